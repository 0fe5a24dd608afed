package script

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/pkg/errors"

	"mkernel/kernel"
)

func init() {
	color.NoColor = true
}

func newInterpreter(t *testing.T) (*Interpreter, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	in, err := New(&out, Options{MemoryPages: 64, StackSize: 256})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return in, &out
}

func TestScripts(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "*.ksim"))
	if err != nil || len(paths) == 0 {
		t.Fatalf("Glob() = %v, %v", paths, err)
	}
	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			f, err := os.Open(path)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer f.Close()

			in, out := newInterpreter(t)
			if err := in.Run(f); err != nil {
				t.Fatalf("Run() error = %v\noutput:\n%s", err, out)
			}
		})
	}
}

func TestExecErrors(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"bogus", "unknown command"},
		{"spawn a", "usage: spawn"},
		{"spawn a x", "priority"},
		{"send nobody", "no process named"},
		{"send idle zz", "word"},
		{"expect running nobody", "no process named"},
		{"expect weather idle x", "unknown expectation"},
		{`spawn "a`, "parse"},
	}
	for _, tt := range tests {
		in, _ := newInterpreter(t)
		err := in.Exec(tt.line)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("Exec(%q) error = %v, want %q", tt.line, err, tt.want)
		}
	}
}

func TestExecCommentsAndBlankLines(t *testing.T) {
	in, out := newInterpreter(t)
	for _, line := range []string{"", "   ", "# spawn a 1"} {
		if err := in.Exec(line); err != nil {
			t.Fatalf("Exec(%q) error = %v", line, err)
		}
	}
	if out.Len() != 0 {
		t.Fatalf("output = %q, want none", out)
	}
}

func TestFatalErrorHaltsScript(t *testing.T) {
	in, _ := newInterpreter(t)
	script := "spawn a 1\nswitch\nsend a 1\nps\n"
	err := in.Run(strings.NewReader(script))
	if errors.Cause(err) != kernel.ErrSelfSend {
		t.Fatalf("Run() error = %v, want %v", err, kernel.ErrSelfSend)
	}
	if !strings.Contains(err.Error(), "line 3") || !strings.Contains(err.Error(), "kernel halted") {
		t.Fatalf("Run() error = %q, want line 3 and halt", err)
	}
	if err := in.Exec("ps"); errors.Cause(err) != kernel.ErrHalted {
		t.Fatalf("ps after halt error = %v, want %v", err, kernel.ErrHalted)
	}
}

func TestPsAndInbox(t *testing.T) {
	in, out := newInterpreter(t)
	script := `
spawn a 2
spawn b 4
switch
send b 7
ps
switch
recv
inbox b
running
`
	if err := in.Run(strings.NewReader(script)); err != nil {
		t.Fatalf("Run() error = %v\n%s", err, out)
	}
	got := out.String()
	for _, want := range []string{
		"spawned a as pid 1",
		"sending(to 2",
		"b <- a [7 0 0 0 0]",
		"running: a",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestExitRemovesName(t *testing.T) {
	in, out := newInterpreter(t)
	script := "spawn a 2\nswitch\nexit\nexpect running idle\n"
	if err := in.Run(strings.NewReader(script)); err != nil {
		t.Fatalf("Run() error = %v\n%s", err, out)
	}
	if !strings.Contains(out.String(), "a exited") {
		t.Fatalf("output = %q", out)
	}
	if err := in.Exec("send a 1"); err == nil || !strings.Contains(err.Error(), "no process named") {
		t.Fatalf("send to exited process error = %v", err)
	}
}

func TestPartnerExitIsReported(t *testing.T) {
	in, out := newInterpreter(t)
	script := `spawn b 3
spawn a 2
switch
send b 1
expect running b
exit
expect running a
expect status a running
switch
expect running a
send b 2
`
	err := in.Run(strings.NewReader(script))
	if err == nil || !strings.Contains(err.Error(), "line 11") {
		t.Fatalf("Run() error = %v, want a failure at line 11\n%s", err, out)
	}
	if !strings.Contains(out.String(), "a: partner process exited") {
		t.Fatalf("output lacks the partner exit:\n%s", out)
	}
}

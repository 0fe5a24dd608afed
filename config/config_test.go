package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.toml")
	doc := `
name = "echo"

[log]
level = "debug"

[kernel]
stack_size = 1024

[[process]]
name = "server"
priority = 2
task = "echo"

[[process]]
name = "client"
priority = 4
task = "ping"
peer = "server"
rounds = 3
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Name != "echo" || cfg.Log.Level != "debug" {
		t.Fatalf("Load() = %+v", cfg)
	}
	if cfg.Kernel.StackSize != 1024 || cfg.Kernel.MemoryPages != 256 {
		t.Fatalf("Kernel = %+v, want stack_size 1024 and default memory_pages", cfg.Kernel)
	}
	if len(cfg.Process) != 2 || cfg.Process[1].Peer != "server" || cfg.Process[1].Rounds != 3 {
		t.Fatalf("Process = %+v", cfg.Process)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown key", "nmae = \"x\"", "unknown key"},
		{"bad priority", proc("a", 16, "spin", ""), "out of range"},
		{"unknown task", proc("a", 1, "fork", ""), "unknown task"},
		{"reserved name", proc("idle", 1, "spin", ""), "reserved"},
		{"duplicate", proc("a", 1, "spin", "") + proc("a", 1, "spin", ""), "duplicate"},
		{"ping without peer", proc("a", 1, "ping", ""), "needs another process"},
		{"ping to self", proc("a", 1, "ping", "a"), "needs another process"},
		{"missing peer", proc("a", 1, "ping", "b"), "unknown peer"},
		{"small stack", "[kernel]\nstack_size = 8\n", "stack_size"},
		{"syntax", "[[process]\n", "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.doc)
			if err == nil {
				t.Fatalf("Parse() error = nil, want %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Parse() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func proc(name string, prio int, task, peer string) string {
	s := "[[process]]\nname = \"" + name + "\"\ntask = \"" + task + "\"\n"
	s += "priority = " + strconv.Itoa(prio) + "\n"
	if peer != "" {
		s += "peer = \"" + peer + "\"\n"
	}
	return s
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.toml")
	want := Default()
	want.Process = append(want.Process, ProcessConfig{Name: "burn", Priority: 9, Task: TaskSpin, Steps: 4})
	if err := Save(path, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Name != want.Name || got.Kernel != want.Kernel || len(got.Process) != 3 {
		t.Fatalf("Load() = %+v, want %+v", got, want)
	}
	for i := range want.Process {
		if got.Process[i] != want.Process[i] {
			t.Fatalf("process %d = %+v, want %+v", i, got.Process[i], want.Process[i])
		}
	}
}

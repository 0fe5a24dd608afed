// Package script drives a step-mode kernel from a line-oriented command
// language. The interpreter always acts on behalf of the running process.
package script

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/google/shlex"
	"github.com/pkg/errors"

	"mkernel/hal"
	"mkernel/kernel"
	"mkernel/task"
)

// Options sizes the emulated machine.
type Options struct {
	MemoryPages int
	TLBEntries  int
	StackSize   int
	Observer    kernel.Observer
}

// Interpreter owns one kernel and the processes created by spawn.
type Interpreter struct {
	out       io.Writer
	host      *hal.Host
	k         *kernel.Kernel
	stackSize int

	names map[string]kernel.Pid
	procs map[kernel.Pid]*process
	next  kernel.Pid
	panic *kernel.PanicInfo
}

type process struct {
	name string
	buf  task.Buffers
}

type command struct {
	usage string
	help  string
	min   int
	max   int
	run   func(in *Interpreter, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"spawn":   {"spawn NAME PRIORITY", "register a runnable process", 2, 2, (*Interpreter).spawn},
		"switch":  {"switch", "let the scheduler pick the next process", 0, 0, (*Interpreter).doSwitch},
		"send":    {"send TO [WORD...]", "send a message from the running process", 1, 1 + kernel.BodyWords, (*Interpreter).send},
		"recv":    {"recv [FROM]", "receive from anyone, or from FROM", 0, 1, (*Interpreter).recv},
		"exit":    {"exit", "terminate the running process", 0, 0, (*Interpreter).exit},
		"ps":      {"ps", "list processes", 0, 0, (*Interpreter).ps},
		"inbox":   {"inbox NAME", "show the last message received by NAME", 1, 1, (*Interpreter).inbox},
		"running": {"running", "show the running process", 0, 0, (*Interpreter).running},
		"check":   {"check", "verify the scheduler invariants", 0, 0, (*Interpreter).check},
		"expect":  {"expect running NAME | status NAME STATE | inbox NAME WORD...", "fail unless the condition holds", 2, 2 + kernel.BodyWords, (*Interpreter).expect},
		"help":    {"help", "list commands", 0, 0, (*Interpreter).help},
	}
}

// New boots a kernel with only the idle process.
func New(out io.Writer, opts Options) (*Interpreter, error) {
	if opts.StackSize <= 0 {
		opts.StackSize = 1024
	}
	host, err := hal.NewHost(hal.HostConfig{MemoryPages: opts.MemoryPages, TLBEntries: opts.TLBEntries, Step: true})
	if err != nil {
		return nil, err
	}
	in := &Interpreter{
		out:       out,
		host:      host,
		stackSize: opts.StackSize,
		names:     map[string]kernel.Pid{"idle": kernel.IdlePid},
		procs:     make(map[kernel.Pid]*process),
		next:      kernel.IdlePid + 1,
	}
	in.k = kernel.New(host, kernel.Config{
		Observer:     opts.Observer,
		PanicHandler: func(info kernel.PanicInfo) { in.panic = &info },
	})
	if err := in.register(kernel.IdlePid, "idle", 0); err != nil {
		return nil, err
	}
	return in, nil
}

// Kernel exposes the kernel being driven.
func (in *Interpreter) Kernel() *kernel.Kernel { return in.k }

// Run executes every line of r and stops at the first failing command.
func (in *Interpreter) Run(r io.Reader) error {
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		if err := in.Exec(sc.Text()); err != nil {
			return errors.Wrapf(err, "line %d", n)
		}
	}
	return errors.Wrap(sc.Err(), "script: read")
}

// Exec runs one command line. Blank lines and # comments are ignored.
func (in *Interpreter) Exec(line string) error {
	words, err := shlex.Split(line)
	if err != nil {
		return errors.Wrap(err, "script: parse")
	}
	if len(words) == 0 {
		return nil
	}
	cmd, ok := commands[words[0]]
	if !ok {
		return errors.Errorf("unknown command %q", words[0])
	}
	args := words[1:]
	if len(args) < cmd.min || len(args) > cmd.max {
		return errors.Errorf("usage: %s", cmd.usage)
	}
	if err := cmd.run(in, args); err != nil {
		if in.panic != nil {
			return errors.Wrap(err, "kernel halted")
		}
		return err
	}
	return nil
}

func (in *Interpreter) register(pid kernel.Pid, name string, priority kernel.Priority) error {
	mem := in.host.HostMemory()
	va, err := mem.Alloc(in.stackSize)
	if err != nil {
		return err
	}
	pa, err := mem.Translate(va)
	if err != nil {
		return err
	}
	m, err := mem.Map(pa, in.stackSize)
	if err != nil {
		return err
	}
	stack, err := kernel.NewKernelStack(va, m.Bytes())
	if err != nil {
		return err
	}
	buf, err := task.AllocBuffers(mem)
	if err != nil {
		return err
	}

	if pid == kernel.IdlePid {
		err = in.k.Init(hal.NopContext(pid), stack)
	} else {
		var p *kernel.Process
		p, err = kernel.NewProcess(pid, name, priority, hal.NopContext(pid), stack)
		if err == nil {
			err = in.k.AddProcessAsRunnable(p)
		}
	}
	if err != nil {
		return err
	}
	in.names[name] = pid
	in.procs[pid] = &process{name: name, buf: buf}
	return nil
}

func (in *Interpreter) spawn(args []string) error {
	name := args[0]
	if _, dup := in.names[name]; dup {
		return errors.Errorf("process %q already exists", name)
	}
	prio, err := strconv.ParseUint(args[1], 10, 8)
	if err != nil {
		return errors.Wrap(err, "priority")
	}
	pid := in.next
	if err := in.register(pid, name, kernel.Priority(prio)); err != nil {
		return err
	}
	in.next++
	fmt.Fprintf(in.out, "spawned %s as pid %d\n", name, pid)
	return nil
}

func (in *Interpreter) doSwitch([]string) error {
	return in.syscall(in.k.Switch)
}

// syscall issues call for the running process. A call cut short because the
// partner exited is reported, not treated as a failure.
func (in *Interpreter) syscall(call func() error) error {
	pid, err := in.k.Running()
	if err != nil {
		return err
	}
	err = call()
	if errors.Cause(err) == kernel.ErrPartnerExited {
		fmt.Fprintf(in.out, "%s: %v\n", in.procs[pid].name, err)
	} else if err != nil {
		return err
	}
	return in.running(nil)
}

func (in *Interpreter) send(args []string) error {
	to, err := in.lookup(args[0])
	if err != nil {
		return err
	}
	words, err := parseWords(args[1:])
	if err != nil {
		return err
	}
	cur, err := in.current()
	if err != nil {
		return err
	}
	raw := kernel.NewMessage(0, words...).Encode()
	if err := hal.WriteVirt(in.host.Memory(), cur.buf.Out, raw[:]); err != nil {
		return err
	}
	return in.syscall(func() error { return in.k.Send(cur.buf.Out, to) })
}

func (in *Interpreter) recv(args []string) error {
	cur, err := in.current()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return in.syscall(func() error { return in.k.ReceiveFromAny(cur.buf.In) })
	}
	from, err := in.lookup(args[0])
	if err != nil {
		return err
	}
	return in.syscall(func() error { return in.k.ReceiveFrom(cur.buf.In, from) })
}

func (in *Interpreter) exit([]string) error {
	pid, err := in.k.Running()
	if err != nil {
		return err
	}
	if err := in.k.Exit(); err != nil {
		return err
	}
	name := in.procs[pid].name
	delete(in.names, name)
	fmt.Fprintf(in.out, "%s exited\n", name)
	return in.running(nil)
}

func (in *Interpreter) running([]string) error {
	pid, err := in.k.Running()
	if err != nil {
		return err
	}
	fmt.Fprintf(in.out, "running: %s\n", in.procs[pid].name)
	return nil
}

func (in *Interpreter) ps([]string) error {
	snap, err := in.k.Snapshot()
	if err != nil {
		return err
	}
	fmt.Fprintf(in.out, "%4s  %-12s %4s  %-24s %s\n", "PID", "NAME", "PRIO", "STATUS", "PENDING")
	for _, p := range snap {
		pending := make([]string, 0, len(p.PendingSenders))
		for _, s := range p.PendingSenders {
			pending = append(pending, in.procs[s].name)
		}
		fmt.Fprintf(in.out, "%4d  %-12s %4d  %s %s\n", p.Pid, p.Name, p.Priority,
			colorize(p.Status.State, fmt.Sprintf("%-24s", p.Status)), strings.Join(pending, ","))
	}
	return nil
}

func (in *Interpreter) inbox(args []string) error {
	m, err := in.read(args[0])
	if err != nil {
		return err
	}
	from := "?"
	if p, ok := in.procs[m.Sender]; ok {
		from = p.name
	}
	fmt.Fprintf(in.out, "%s <- %s %v\n", args[0], from, m.Body)
	return nil
}

func (in *Interpreter) check([]string) error {
	if err := in.k.CheckInvariants(); err != nil {
		return err
	}
	fmt.Fprintln(in.out, "ok")
	return nil
}

func (in *Interpreter) expect(args []string) error {
	switch args[0] {
	case "running":
		want, err := in.lookup(args[1])
		if err != nil {
			return err
		}
		got, err := in.k.Running()
		if err != nil {
			return err
		}
		if got != want {
			return errors.Errorf("expected %s to be running, got %s", args[1], in.procs[got].name)
		}
	case "status":
		if len(args) != 3 {
			return errors.New("usage: expect status NAME STATE")
		}
		pid, err := in.lookup(args[1])
		if err != nil {
			return err
		}
		st, err := in.status(pid)
		if err != nil {
			return err
		}
		if st.State.String() != args[2] {
			return errors.Errorf("expected %s to be %s, got %s", args[1], args[2], st)
		}
	case "inbox":
		m, err := in.read(args[1])
		if err != nil {
			return err
		}
		words, err := parseWords(args[2:])
		if err != nil {
			return err
		}
		want := kernel.NewMessage(0, words...).Body
		if m.Body != want {
			return errors.Errorf("expected %s inbox %v, got %v", args[1], want, m.Body)
		}
	default:
		return errors.Errorf("unknown expectation %q", args[0])
	}
	return nil
}

func (in *Interpreter) help([]string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(in.out, "  %-60s %s\n", commands[name].usage, commands[name].help)
	}
	return nil
}

func (in *Interpreter) lookup(name string) (kernel.Pid, error) {
	if pid, ok := in.names[name]; ok {
		return pid, nil
	}
	if n, err := strconv.ParseInt(name, 10, 32); err == nil {
		return kernel.Pid(n), nil
	}
	return kernel.NoPid, errors.Errorf("no process named %q", name)
}

func (in *Interpreter) current() (*process, error) {
	pid, err := in.k.Running()
	if err != nil {
		return nil, err
	}
	return in.procs[pid], nil
}

func (in *Interpreter) status(pid kernel.Pid) (kernel.Status, error) {
	snap, err := in.k.Snapshot()
	if err != nil {
		return kernel.Status{}, err
	}
	for _, p := range snap {
		if p.Pid == pid {
			return p.Status, nil
		}
	}
	return kernel.Status{}, errors.Errorf("pid %d is gone", pid)
}

func (in *Interpreter) read(name string) (kernel.Message, error) {
	pid, err := in.lookup(name)
	if err != nil {
		return kernel.Message{}, err
	}
	p, ok := in.procs[pid]
	if !ok {
		return kernel.Message{}, errors.Errorf("no process %q", name)
	}
	var raw [kernel.MessageSize]byte
	if err := hal.ReadVirt(in.host.Memory(), p.buf.In, raw[:]); err != nil {
		return kernel.Message{}, err
	}
	return kernel.DecodeMessage(raw[:])
}

func parseWords(args []string) ([]uint64, error) {
	words := make([]uint64, 0, len(args))
	for _, a := range args {
		w, err := strconv.ParseUint(a, 0, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "word %q", a)
		}
		words = append(words, w)
	}
	return words, nil
}

func colorize(st kernel.State, s string) string {
	switch st {
	case kernel.StateRunning:
		return color.GreenString(s)
	case kernel.StateRunnable:
		return color.CyanString(s)
	case kernel.StateSending, kernel.StateReceiving:
		return color.YellowString(s)
	default:
		return s
	}
}

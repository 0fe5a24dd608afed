package kernel

import (
	"testing"

	"github.com/pkg/errors"

	"mkernel/hal"
)

const testStackSize = 512

// testEnv drives a Kernel in step mode: the test acts on behalf of whichever
// process the scheduler marks as running.
type testEnv struct {
	t      *testing.T
	k      *Kernel
	host   *hal.Host
	mem    *hal.HostMemory
	panics []PanicInfo

	next   Pid
	out    map[Pid]hal.VirtAddr
	in     map[Pid]hal.VirtAddr
	stacks map[Pid]KernelStack
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	host, err := hal.NewHost(hal.HostConfig{MemoryPages: 128, TLBEntries: 8, Step: true})
	if err != nil {
		t.Fatalf("NewHost() error = %v", err)
	}
	e := &testEnv{
		t:      t,
		host:   host,
		mem:    host.HostMemory(),
		next:   1,
		out:    make(map[Pid]hal.VirtAddr),
		in:     make(map[Pid]hal.VirtAddr),
		stacks: make(map[Pid]KernelStack),
	}
	e.k = New(host, Config{PanicHandler: func(info PanicInfo) { e.panics = append(e.panics, info) }})
	if err := e.k.Init(hal.NopContext(0), e.stack(IdlePid)); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	e.buffers(IdlePid)
	return e
}

func (e *testEnv) stack(pid Pid) KernelStack {
	e.t.Helper()
	va, err := e.mem.Alloc(testStackSize)
	if err != nil {
		e.t.Fatalf("Alloc() error = %v", err)
	}
	pa, err := e.mem.Translate(va)
	if err != nil {
		e.t.Fatalf("Translate() error = %v", err)
	}
	m, err := e.mem.Map(pa, testStackSize)
	if err != nil {
		e.t.Fatalf("Map() error = %v", err)
	}
	st, err := NewKernelStack(va, m.Bytes())
	if err != nil {
		e.t.Fatalf("NewKernelStack() error = %v", err)
	}
	e.stacks[pid] = st
	return st
}

func (e *testEnv) buffers(pid Pid) {
	e.t.Helper()
	for _, m := range []map[Pid]hal.VirtAddr{e.out, e.in} {
		va, err := e.mem.Alloc(MessageSize)
		if err != nil {
			e.t.Fatalf("Alloc() error = %v", err)
		}
		m[pid] = va
	}
}

func (e *testEnv) spawn(name string, priority Priority) Pid {
	e.t.Helper()
	pid := e.next
	e.next++
	p, err := NewProcess(pid, name, priority, hal.NopContext(pid), e.stack(pid))
	if err != nil {
		e.t.Fatalf("NewProcess(%q) error = %v", name, err)
	}
	if err := e.k.AddProcessAsRunnable(p); err != nil {
		e.t.Fatalf("AddProcessAsRunnable(%q) error = %v", name, err)
	}
	e.buffers(pid)
	return pid
}

func (e *testEnv) running() Pid {
	e.t.Helper()
	pid, err := e.k.Running()
	if err != nil {
		e.t.Fatalf("Running() error = %v", err)
	}
	return pid
}

// runAs switches until pid is the running process.
func (e *testEnv) runAs(pid Pid) {
	e.t.Helper()
	for i := 0; i < 64; i++ {
		if e.running() == pid {
			return
		}
		if err := e.step(e.k.Switch()); err != nil {
			e.t.Fatalf("Switch() error = %v", err)
		}
	}
	e.t.Fatalf("pid %d never became running", pid)
}

func (e *testEnv) process(pid Pid) *Process {
	e.t.Helper()
	p, ok := e.k.s.processes[pid]
	if !ok {
		e.t.Fatalf("pid %d is not in the process table", pid)
	}
	return p
}

func (e *testEnv) status(pid Pid) Status {
	e.t.Helper()
	return e.process(pid).status
}

// send writes m into the running process's outgoing buffer and sends it.
func (e *testEnv) send(to Pid, m Message) error {
	e.t.Helper()
	cur := e.running()
	b := m.Encode()
	if err := hal.WriteVirt(e.mem, e.out[cur], b[:]); err != nil {
		e.t.Fatalf("WriteVirt() error = %v", err)
	}
	return e.step(e.k.Send(e.out[cur], to))
}

func (e *testEnv) receiveFromAny() error {
	e.t.Helper()
	return e.step(e.k.ReceiveFromAny(e.in[e.running()]))
}

func (e *testEnv) receiveFrom(from Pid) error {
	e.t.Helper()
	return e.step(e.k.ReceiveFrom(e.in[e.running()], from))
}

// step checks the invariants after a syscall that left the kernel running.
func (e *testEnv) step(err error) error {
	e.t.Helper()
	if !e.k.Halted() {
		e.checkInvariants()
	}
	return err
}

// received decodes pid's receive buffer.
func (e *testEnv) received(pid Pid) Message {
	e.t.Helper()
	var b [MessageSize]byte
	if err := hal.ReadVirt(e.mem, e.in[pid], b[:]); err != nil {
		e.t.Fatalf("ReadVirt() error = %v", err)
	}
	m, err := DecodeMessage(b[:])
	if err != nil {
		e.t.Fatalf("DecodeMessage() error = %v", err)
	}
	return m
}

func (e *testEnv) checkInvariants() {
	e.t.Helper()
	if err := e.k.CheckInvariants(); err != nil {
		e.t.Fatalf("CheckInvariants() error = %v", err)
	}
}

// wantFatal checks that err is cause and that the kernel halted.
func (e *testEnv) wantFatal(err, cause error) {
	e.t.Helper()
	if errors.Cause(err) != cause {
		e.t.Fatalf("error = %v, want %v", err, cause)
	}
	if !e.k.Halted() {
		e.t.Fatal("Halted() = false after fatal error, want true")
	}
	if len(e.panics) != 1 {
		e.t.Fatalf("panic handler ran %d times, want 1", len(e.panics))
	}
	select {
	case <-e.host.HostCPU().Halted():
	default:
		e.t.Fatal("CPU was not halted")
	}
}

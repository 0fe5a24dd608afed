package kernel

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"mkernel/hal"
)

// StackGuard is written at the low end of every kernel stack. A stack that
// overflows clobbers it before anything else.
const StackGuard uint64 = 0xDEADBEEFCAFEBABE

// KernelStack is the stack a process uses while it runs in the kernel.
type KernelStack struct {
	base hal.VirtAddr
	mem  []byte
}

// NewKernelStack wraps mem, mapped at base, and writes the guard word.
func NewKernelStack(base hal.VirtAddr, mem []byte) (KernelStack, error) {
	if len(mem) < 16 {
		return KernelStack{}, errors.Errorf("kernel: stack of %d bytes is too small", len(mem))
	}
	binary.LittleEndian.PutUint64(mem[:8], StackGuard)
	return KernelStack{base: base, mem: mem}, nil
}

// Bottom is the address the stack grows down from.
func (s KernelStack) Bottom() hal.VirtAddr {
	return s.base + hal.VirtAddr(len(s.mem))
}

func (s KernelStack) intact() bool {
	return len(s.mem) >= 8 && binary.LittleEndian.Uint64(s.mem[:8]) == StackGuard
}

// Process is the scheduler's record of one process.
type Process struct {
	pid      Pid
	name     string
	priority Priority
	status   Status
	ctx      hal.Context
	stack    KernelStack

	// msgPtr is the message to send or the receive buffer, while blocked.
	msgPtr hal.PhysAddr
	hasMsg bool

	sendTo  Pid
	sending bool

	receiveFrom ReceiveFrom
	receiving   bool

	// pending holds the PIDs blocked sending to this process, oldest first.
	pending fifo

	// wakeErr is handed back to a blocked syscall whose partner exited.
	wakeErr error
}

// NewProcess returns a runnable process record. The context and stack are
// built by the caller.
func NewProcess(pid Pid, name string, priority Priority, ctx hal.Context, stack KernelStack) (*Process, error) {
	if pid < 0 {
		return nil, errors.Wrapf(ErrBadPid, "pid %d", pid)
	}
	if !priority.Valid() {
		return nil, errors.Wrapf(ErrBadPriority, "priority %d", priority)
	}
	return &Process{
		pid:      pid,
		name:     name,
		priority: priority,
		status:   StatusRunnable,
		ctx:      ctx,
		stack:    stack,
	}, nil
}

func newIdleProcess(ctx hal.Context, stack KernelStack) *Process {
	return &Process{
		pid:      IdlePid,
		name:     "idle",
		priority: LeastPriority,
		status:   StatusRunning,
		ctx:      ctx,
		stack:    stack,
	}
}

func (p *Process) Pid() Pid                        { return p.pid }
func (p *Process) Name() string                    { return p.name }
func (p *Process) Priority() Priority              { return p.priority }
func (p *Process) Status() Status                  { return p.status }
func (p *Process) KernelStackBottom() hal.VirtAddr { return p.stack.Bottom() }

func (p *Process) setMsgBuf(pa hal.PhysAddr) error {
	if p.hasMsg {
		return errors.Wrapf(ErrMessageAlreadyStored, "pid %d", p.pid)
	}
	p.msgPtr = pa
	p.hasMsg = true
	return nil
}

func (p *Process) msgBuf() (hal.PhysAddr, error) {
	if !p.hasMsg {
		return 0, errors.Wrapf(ErrNoMessageBuffer, "pid %d", p.pid)
	}
	return p.msgPtr, nil
}

// clearIPC drops every piece of rendezvous bookkeeping except the pending queue.
func (p *Process) clearIPC() {
	p.msgPtr, p.hasMsg = 0, false
	p.sendTo, p.sending = 0, false
	p.receiveFrom, p.receiving = ReceiveFrom{}, false
}

// ProcessInfo is a copy of a process record for introspection.
type ProcessInfo struct {
	Pid            Pid
	Name           string
	Priority       Priority
	Status         Status
	PendingSenders []Pid
}

func (p *Process) info() ProcessInfo {
	return ProcessInfo{
		Pid:            p.pid,
		Name:           p.name,
		Priority:       p.priority,
		Status:         p.status,
		PendingSenders: p.pending.items(),
	}
}

// Package task is the process-side view of the kernel: the syscalls a task
// body may issue, bound to its PID and its message buffers.
package task

import (
	"runtime"

	"github.com/pkg/errors"

	"mkernel/hal"
	"mkernel/kernel"
)

// Task is the body of a process.
//
// Run is entered once, with interrupts enabled, on the process's own context.
// Returning ends the process.
type Task interface {
	Run(ctx *Context) error
}

// Func adapts a function to Task.
type Func func(ctx *Context) error

func (f Func) Run(ctx *Context) error { return f(ctx) }

// Directory resolves process names to PIDs. It is fixed once the system boots.
type Directory map[string]kernel.Pid

// Buffers are the two message-sized regions a process uses for IPC.
type Buffers struct {
	Out hal.VirtAddr
	In  hal.VirtAddr
}

// AllocBuffers maps a fresh pair of message buffers.
func AllocBuffers(a hal.Allocator) (Buffers, error) {
	out, err := a.Alloc(kernel.MessageSize)
	if err != nil {
		return Buffers{}, errors.Wrap(err, "task: outgoing buffer")
	}
	in, err := a.Alloc(kernel.MessageSize)
	if err != nil {
		return Buffers{}, errors.Wrap(err, "task: incoming buffer")
	}
	return Buffers{Out: out, In: in}, nil
}

// Context provides task-local access to kernel operations.
type Context struct {
	k    *kernel.Kernel
	mem  hal.Memory
	pid  kernel.Pid
	name string
	buf  Buffers
	dir  Directory
}

// NewContext binds the syscalls of process pid.
func NewContext(k *kernel.Kernel, mem hal.Memory, pid kernel.Pid, name string, buf Buffers, dir Directory) *Context {
	return &Context{k: k, mem: mem, pid: pid, name: name, buf: buf, dir: dir}
}

// Pid returns the current process ID.
func (c *Context) Pid() kernel.Pid { return c.pid }

// Name returns the current process name.
func (c *Context) Name() string { return c.name }

// Lookup resolves another process by name.
func (c *Context) Lookup(name string) (kernel.Pid, bool) {
	pid, ok := c.dir[name]
	return pid, ok
}

// Send blocks until to has received body.
func (c *Context) Send(to kernel.Pid, body kernel.Body) error {
	raw := kernel.Message{Header: kernel.Header{Sender: c.pid}, Body: body}.Encode()
	if err := hal.WriteVirt(c.mem, c.buf.Out, raw[:]); err != nil {
		return errors.Wrap(err, "task: write outgoing buffer")
	}
	return c.k.Send(c.buf.Out, to)
}

// ReceiveFromAny blocks until some process sends a message.
func (c *Context) ReceiveFromAny() (kernel.Message, error) {
	if err := c.k.ReceiveFromAny(c.buf.In); err != nil {
		return kernel.Message{}, err
	}
	return c.read()
}

// ReceiveFrom blocks until from sends a message.
func (c *Context) ReceiveFrom(from kernel.Pid) (kernel.Message, error) {
	if err := c.k.ReceiveFrom(c.buf.In, from); err != nil {
		return kernel.Message{}, err
	}
	return c.read()
}

// Call sends body to to and waits for its reply.
func (c *Context) Call(to kernel.Pid, body kernel.Body) (kernel.Message, error) {
	if err := c.Send(to, body); err != nil {
		return kernel.Message{}, err
	}
	return c.ReceiveFrom(to)
}

// Yield gives up the CPU to a runnable process of the same or better priority.
func (c *Context) Yield() error {
	return c.k.Switch()
}

// Exit ends the process. It does not return on success: the calling
// goroutine is terminated once the next process has been resumed.
func (c *Context) Exit() error {
	if err := c.k.Exit(); err != nil {
		return err
	}
	runtime.Goexit()
	return nil
}

func (c *Context) read() (kernel.Message, error) {
	var raw [kernel.MessageSize]byte
	if err := hal.ReadVirt(c.mem, c.buf.In, raw[:]); err != nil {
		return kernel.Message{}, errors.Wrap(err, "task: read incoming buffer")
	}
	return kernel.DecodeMessage(raw[:])
}

// PartnerExited reports whether err means the rendezvous partner exited.
func PartnerExited(err error) bool {
	return errors.Cause(err) == kernel.ErrPartnerExited
}

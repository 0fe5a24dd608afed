package app

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"mkernel/hal"
	"mkernel/kernel"
	"mkernel/task"
)

// Options sizes the emulated machine and wires the kernel's collaborators.
type Options struct {
	MemoryPages int
	TLBEntries  int
	StackSize   int

	Logger   logrus.FieldLogger
	Observer kernel.Observer
}

// System is a booted kernel on goroutine contexts, plus the processes
// registered on it.
type System struct {
	host      *hal.Host
	k         *kernel.Kernel
	log       logrus.FieldLogger
	stackSize int

	idle    *hal.HostContext
	dir     task.Directory
	procs   []*proc
	nextPid kernel.Pid
	booted  bool
	done    chan struct{}

	mu      sync.Mutex
	results map[kernel.Pid]error
	exited  map[kernel.Pid]bool
	panic   *kernel.PanicInfo
}

type proc struct {
	pid      kernel.Pid
	name     string
	kind     string
	priority kernel.Priority
	body     task.Task
	buf      task.Buffers
}

// NewSystem builds the machine and initialises the kernel with the idle
// process.
func NewSystem(opts Options) (*System, error) {
	if opts.StackSize <= 0 {
		opts.StackSize = 4096
	}
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.Out = io.Discard
		log = l
	}
	host, err := hal.NewHost(hal.HostConfig{MemoryPages: opts.MemoryPages, TLBEntries: opts.TLBEntries})
	if err != nil {
		return nil, err
	}

	s := &System{
		host:      host,
		log:       log,
		stackSize: opts.StackSize,
		dir:       make(task.Directory),
		nextPid:   kernel.IdlePid + 1,
		done:      make(chan struct{}),
		results:   make(map[kernel.Pid]error),
		exited:    make(map[kernel.Pid]bool),
	}
	s.k = kernel.New(host, kernel.Config{
		Logger:       log.WithField("module", "kernel"),
		Observer:     kernel.Observers{exitLog{s}, observerOrNop(opts.Observer)},
		PanicHandler: s.onPanic,
	})

	stack, err := s.newStack()
	if err != nil {
		return nil, err
	}
	s.idle = host.Contexts().NewContext(s.idleLoop)
	if err := s.k.Init(s.idle, stack); err != nil {
		return nil, err
	}
	return s, nil
}

// Kernel exposes the kernel for introspection.
func (s *System) Kernel() *kernel.Kernel { return s.k }

// Spawn registers a runnable process. It must be called before Run.
func (s *System) Spawn(name string, priority kernel.Priority, t task.Task) (kernel.Pid, error) {
	return s.spawn(name, fmt.Sprintf("%T", t), priority, t)
}

func (s *System) spawn(name, kind string, priority kernel.Priority, t task.Task) (kernel.Pid, error) {
	if s.booted {
		return kernel.NoPid, errors.New("app: cannot spawn after boot")
	}
	if _, dup := s.dir[name]; dup || name == "idle" {
		return kernel.NoPid, errors.Errorf("app: process name %q already taken", name)
	}

	stack, err := s.newStack()
	if err != nil {
		return kernel.NoPid, err
	}
	buf, err := task.AllocBuffers(s.host.HostMemory())
	if err != nil {
		return kernel.NoPid, err
	}

	p := &proc{pid: s.nextPid, name: name, kind: kind, priority: priority, body: t, buf: buf}
	ctx := s.host.Contexts().NewContext(func() { s.enter(p) })
	kp, err := kernel.NewProcess(p.pid, name, priority, ctx, stack)
	if err != nil {
		return kernel.NoPid, err
	}
	if err := s.k.AddProcessAsRunnable(kp); err != nil {
		return kernel.NoPid, err
	}

	s.nextPid++
	s.dir[name] = p.pid
	s.procs = append(s.procs, p)
	s.log.WithFields(logrus.Fields{"pid": p.pid, "name": name, "priority": priority}).Debug("process registered")
	return p.pid, nil
}

// Run hands the CPU to the idle process and waits until nothing is runnable,
// the kernel halts, or ctx is done.
func (s *System) Run(ctx context.Context) (*Report, error) {
	if s.booted {
		return nil, errors.New("app: system already ran")
	}
	s.booted = true
	s.host.Contexts().Boot(s.idle)

	select {
	case <-s.done:
		return s.report(true), nil
	case <-s.host.HostCPU().Halted():
		return s.report(false), nil
	case <-ctx.Done():
		// The running process may hold the scheduler lock; leave the
		// kernel alone.
		return s.report(false), errors.Wrap(ctx.Err(), "app: run")
	}
}

// idleLoop runs on the idle process's context.
func (s *System) idleLoop() {
	for {
		if err := s.k.Switch(); err != nil {
			return
		}
		n, err := s.k.RunnableCount()
		if err != nil {
			return
		}
		if n == 0 {
			close(s.done)
			return
		}
	}
}

// enter is the first code a process runs.
func (s *System) enter(p *proc) {
	s.host.CPU().RestoreInterrupts(true)

	tc := task.NewContext(s.k, s.host.Memory(), p.pid, p.name, p.buf, s.dir)
	err := s.runTask(p, tc)

	s.mu.Lock()
	s.results[p.pid] = err
	s.mu.Unlock()
	if err != nil {
		s.log.WithFields(logrus.Fields{"pid": p.pid, "name": p.name}).WithError(err).Warn("task failed")
	}

	if s.k.Halted() {
		return
	}
	if err := tc.Exit(); err != nil {
		s.log.WithField("pid", p.pid).WithError(err).Debug("exit after halt")
	}
}

func (s *System) runTask(p *proc, tc *task.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("task %s panicked: %v", p.name, r)
			s.k.Abort(p.pid, err)
		}
	}()
	return p.body.Run(tc)
}

func (s *System) newStack() (kernel.KernelStack, error) {
	mem := s.host.HostMemory()
	va, err := mem.Alloc(s.stackSize)
	if err != nil {
		return kernel.KernelStack{}, errors.Wrap(err, "app: kernel stack")
	}
	pa, err := mem.Translate(va)
	if err != nil {
		return kernel.KernelStack{}, err
	}
	m, err := mem.Map(pa, s.stackSize)
	if err != nil {
		return kernel.KernelStack{}, err
	}
	return kernel.NewKernelStack(va, m.Bytes())
}

// exitLog remembers which processes exited.
type exitLog struct{ s *System }

func (exitLog) Switched(from, to kernel.Pid)      {}
func (exitLog) Blocked(kernel.Pid, kernel.Status) {}
func (exitLog) Woken(kernel.Pid)                  {}
func (exitLog) Delivered(from, to kernel.Pid)     {}
func (l exitLog) Exited(pid kernel.Pid) {
	l.s.mu.Lock()
	l.s.exited[pid] = true
	l.s.mu.Unlock()
}

func observerOrNop(o kernel.Observer) kernel.Observer {
	if o == nil {
		return kernel.Observers(nil)
	}
	return o
}

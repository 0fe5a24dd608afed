// Package kernel implements the process scheduler and the rendezvous
// message-passing layer of the kernel.
//
// A Kernel owns the process table and the ready queues. Every entry point masks
// interrupts, takes the scheduler lock, runs one protocol step, decides which
// process runs next, releases the lock and only then swaps contexts.
package kernel

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"mkernel/hal"
	"mkernel/kernel/ksync"
)

// Config carries the optional collaborators of a Kernel.
type Config struct {
	Logger logrus.FieldLogger
	// Observer receives scheduling events; nil disables them.
	Observer Observer
	// PanicHandler runs once, before the CPU halts on a fatal error.
	PanicHandler func(PanicInfo)
}

// Kernel is the single owner of the scheduler state.
type Kernel struct {
	lock ksync.Spinlock
	s    scheduler

	cpu hal.CPU
	sw  hal.Switcher
	log logrus.FieldLogger

	onPanic   func(PanicInfo)
	panicOnce sync.Once
	halted    atomic.Bool
}

// New creates a kernel instance. Init must be called before anything else.
func New(h hal.HAL, cfg Config) *Kernel {
	log := cfg.Logger
	if log == nil {
		l := logrus.New()
		l.Out = io.Discard
		log = l
	}
	obs := cfg.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	return &Kernel{
		s: scheduler{
			processes: make(map[Pid]*Process),
			mem:       h.Memory(),
			cpu:       h.CPU(),
			log:       log,
			obs:       obs,
		},
		cpu:     h.CPU(),
		sw:      h.Switcher(),
		log:     log,
		onPanic: cfg.PanicHandler,
	}
}

// guard is a held scheduler lock plus the interrupt state to restore.
type guard struct {
	k      *Kernel
	s      *scheduler
	mask   bool
	locked bool
}

// enter masks interrupts and takes the lock. Finding the lock held is fatal.
func (k *Kernel) enter() (*guard, error) {
	mask := k.cpu.DisableInterrupts()
	if k.halted.Load() {
		k.cpu.RestoreInterrupts(mask)
		return nil, ErrHalted
	}
	if !k.lock.TryToAcquire() {
		err := k.fatal(NoPid, errors.WithStack(ErrLockHeld))
		k.cpu.RestoreInterrupts(mask)
		return nil, err
	}
	return &guard{k: k, s: &k.s, mask: mask, locked: true}, nil
}

func (g *guard) unlock() {
	if g.locked {
		g.locked = false
		g.k.lock.Release()
	}
}

// leave releases the lock if still held and restores interrupts.
func (g *guard) leave() {
	g.unlock()
	g.k.cpu.RestoreInterrupts(g.mask)
}

// Init registers the idle process, which becomes the running process.
// ctx is the context the caller is executing on.
func (k *Kernel) Init(ctx hal.Context, stack KernelStack) error {
	g, err := k.enter()
	if err != nil {
		return err
	}
	defer g.leave()

	if err := g.s.init(newIdleProcess(ctx, stack)); err != nil {
		g.unlock()
		return k.fatal(IdlePid, err)
	}
	k.log.Info("scheduler initialized")
	return nil
}

// AddProcessAsRunnable registers a newly constructed process.
func (k *Kernel) AddProcessAsRunnable(p *Process) error {
	g, err := k.enter()
	if err != nil {
		return err
	}
	defer g.leave()

	pid := NoPid
	if p != nil {
		pid = p.pid
	}
	err = g.s.checkInitialized()
	switch {
	case err != nil:
	case p == nil:
		err = errors.Wrap(ErrNoSuchProcess, "nil process")
	default:
		err = g.s.addProcessAsRunnable(p)
	}
	if err != nil {
		g.unlock()
		return k.fatal(pid, err)
	}
	return nil
}

// Switch requests a scheduling decision without IPC, e.g. from a timer trap
// or a voluntary yield.
func (k *Kernel) Switch() error {
	return k.syscall(nil)
}

// Send delivers the message at msg to process to, blocking the caller until
// to receives it.
func (k *Kernel) Send(msg hal.VirtAddr, to Pid) error {
	return k.syscall(func(s *scheduler) error { return s.send(msg, to) })
}

// ReceiveFromAny blocks until a message from any process is copied into buf.
func (k *Kernel) ReceiveFromAny(buf hal.VirtAddr) error {
	return k.syscall(func(s *scheduler) error { return s.receiveFromAny(buf) })
}

// ReceiveFrom blocks until a message from process from is copied into buf.
func (k *Kernel) ReceiveFrom(buf hal.VirtAddr, from Pid) error {
	return k.syscall(func(s *scheduler) error { return s.receiveFrom(buf, from) })
}

// syscall runs op on behalf of the running process, then switches. It returns
// once the calling process runs again.
func (k *Kernel) syscall(op func(*scheduler) error) error {
	g, err := k.enter()
	if err != nil {
		return err
	}
	defer g.leave()

	if err := g.s.checkInitialized(); err != nil {
		g.unlock()
		return k.fatal(NoPid, err)
	}
	caller := g.s.running
	if p, ok := g.s.processes[caller]; ok && p.wakeErr != nil {
		// The caller's previous call ended without a real context swap
		// (step mode); it completes now with the reason it was woken.
		err, p.wakeErr = p.wakeErr, nil
		g.unlock()
		return err
	}
	if op != nil {
		if err := op(g.s); err != nil {
			g.unlock()
			return k.fatal(caller, err)
		}
	}
	pair, err := g.s.trySwitch()
	if err != nil {
		g.unlock()
		return k.fatal(caller, err)
	}
	g.unlock()

	if pair == nil {
		return nil
	}
	k.sw.Switch(pair.cur, pair.next)
	return k.takeWakeErr(caller)
}

// takeWakeErr returns the reason the caller was woken abnormally, if any.
func (k *Kernel) takeWakeErr(pid Pid) error {
	g, err := k.enter()
	if err != nil {
		return err
	}
	defer g.leave()

	if g.s.running != pid {
		// Contexts were not really swapped (step mode); the error waits
		// for pid's next syscall.
		return nil
	}
	p, ok := g.s.processes[pid]
	if !ok {
		return nil
	}
	err, p.wakeErr = p.wakeErr, nil
	return err
}

// Exit removes the running process and switches to the next one. On success
// it never hands control back to the caller's context.
func (k *Kernel) Exit() error {
	g, err := k.enter()
	if err != nil {
		return err
	}
	if err := g.s.checkInitialized(); err != nil {
		g.unlock()
		err = k.fatal(NoPid, err)
		g.leave()
		return err
	}
	caller := g.s.running
	pair, err := g.s.exit()
	if err != nil {
		g.unlock()
		err = k.fatal(caller, err)
		g.leave()
		return err
	}
	g.unlock()

	// The next process restores its own interrupt state when it resumes.
	k.sw.Release(pair.cur, pair.next)
	return nil
}

// CurrentProcessName returns the name of the running process.
func (k *Kernel) CurrentProcessName() (string, error) {
	p, err := k.current()
	if err != nil {
		return "", err
	}
	return p.name, nil
}

// CurrentKernelStackBottom returns the top of the running process's kernel stack.
func (k *Kernel) CurrentKernelStackBottom() (hal.VirtAddr, error) {
	p, err := k.current()
	if err != nil {
		return 0, err
	}
	return p.stack.Bottom(), nil
}

// Running returns the PID of the running process.
func (k *Kernel) Running() (Pid, error) {
	p, err := k.current()
	if err != nil {
		return NoPid, err
	}
	return p.pid, nil
}

func (k *Kernel) current() (*Process, error) {
	g, err := k.enter()
	if err != nil {
		return nil, err
	}
	defer g.leave()

	p, err := g.s.runningProcess()
	if err != nil {
		g.unlock()
		return nil, k.fatal(NoPid, err)
	}
	return p, nil
}

// RunnableCount returns how many processes wait in the ready queues.
func (k *Kernel) RunnableCount() (int, error) {
	g, err := k.enter()
	if err != nil {
		return 0, err
	}
	defer g.leave()
	return g.s.ready.len(), nil
}

// Switches returns the number of completed context switches.
func (k *Kernel) Switches() (uint64, error) {
	g, err := k.enter()
	if err != nil {
		return 0, err
	}
	defer g.leave()
	return g.s.switches, nil
}

// Snapshot returns a copy of every process record, ordered by PID.
func (k *Kernel) Snapshot() ([]ProcessInfo, error) {
	g, err := k.enter()
	if err != nil {
		return nil, err
	}
	defer g.leave()
	return g.s.snapshot(), nil
}

// CheckInvariants verifies the scheduler state. A violation is reported, not
// treated as fatal.
func (k *Kernel) CheckInvariants() error {
	g, err := k.enter()
	if err != nil {
		return err
	}
	defer g.leave()
	if err := g.s.checkInitialized(); err != nil {
		return err
	}
	return g.s.checkInvariants()
}

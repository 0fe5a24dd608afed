package kernel

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"mkernel/hal"
)

// scheduler is the state guarded by the Kernel lock: the process table, the
// ready queues and the running PID.
type scheduler struct {
	processes map[Pid]*Process
	ready     readyQueue
	running   Pid

	initialized bool
	switches    uint64

	mem hal.Memory
	cpu hal.CPU
	log logrus.FieldLogger
	obs Observer
}

func (s *scheduler) init(idle *Process) error {
	if s.initialized {
		return errors.WithStack(ErrAlreadyInitialized)
	}
	if idle.pid != IdlePid || idle.status != StatusRunning {
		return errors.Wrapf(ErrBadIdle, "pid %d, status %s", idle.pid, idle.status)
	}
	if _, ok := s.processes[idle.pid]; ok {
		return errors.Wrap(ErrDuplicatePid, "idle process")
	}
	s.processes[idle.pid] = idle
	s.running = idle.pid
	s.initialized = true
	return nil
}

func (s *scheduler) checkInitialized() error {
	if !s.initialized {
		return errors.WithStack(ErrNotInitialized)
	}
	return nil
}

func (s *scheduler) addProcessAsRunnable(p *Process) error {
	if !p.priority.Valid() {
		return errors.Wrapf(ErrBadPriority, "pid %d, priority %d", p.pid, p.priority)
	}
	if _, ok := s.processes[p.pid]; ok {
		return errors.Wrapf(ErrDuplicatePid, "pid %d", p.pid)
	}
	p.status = StatusRunnable
	p.clearIPC()
	s.processes[p.pid] = p
	s.ready.push(p.pid, p.priority)

	s.log.WithFields(logrus.Fields{"pid": p.pid, "name": p.name, "priority": p.priority}).Debug("process added")
	return nil
}

// wake makes a blocked process runnable.
func (s *scheduler) wake(pid Pid) error {
	p, err := s.process(pid)
	if err != nil {
		return err
	}
	if !p.status.Blocked() {
		return errors.Wrapf(ErrAlreadyAwake, "pid %d is %s", pid, p.status)
	}
	p.status = StatusRunnable
	s.ready.push(pid, p.priority)

	s.obs.Woken(pid)
	s.log.WithField("pid", pid).Debug("process woken")
	return nil
}

func (s *scheduler) process(pid Pid) (*Process, error) {
	p, ok := s.processes[pid]
	if !ok {
		return nil, errors.Wrapf(ErrNoSuchProcess, "pid %d", pid)
	}
	return p, nil
}

func (s *scheduler) runningProcess() (*Process, error) {
	p, err := s.process(s.running)
	if err != nil {
		return nil, errors.Wrap(err, "running process is not stored")
	}
	return p, nil
}

// translate resolves the Message-sized record at v.
func (s *scheduler) translate(v hal.VirtAddr) (hal.PhysAddr, error) {
	pa, err := hal.TranslateRange(s.mem, v, MessageSize)
	if err != nil {
		return 0, errors.Wrapf(ErrTranslate, "virt %#x: %v", uint64(v), err)
	}
	return pa, nil
}

func (s *scheduler) send(msg hal.VirtAddr, to Pid) error {
	x, err := newSender(s, msg, to)
	if err != nil {
		return err
	}
	return x.send()
}

func (s *scheduler) receiveFromAny(buf hal.VirtAddr) error {
	r, err := newReceiver(s, buf, FromAny())
	if err != nil {
		return err
	}
	return r.receive()
}

func (s *scheduler) receiveFrom(buf hal.VirtAddr, from Pid) error {
	r, err := newReceiver(s, buf, FromID(from))
	if err != nil {
		return err
	}
	return r.receive()
}

func (s *scheduler) trySwitch() (*switchPair, error) {
	return switcher{s}.trySwitch()
}

// pids returns every PID in ascending order.
func (s *scheduler) pids() []Pid {
	out := make([]Pid, 0, len(s.processes))
	for pid := range s.processes {
		out = append(out, pid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *scheduler) snapshot() []ProcessInfo {
	pids := s.pids()
	out := make([]ProcessInfo, 0, len(pids))
	for _, pid := range pids {
		out = append(out, s.processes[pid].info())
	}
	return out
}

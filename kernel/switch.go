package kernel

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"mkernel/hal"
)

// switchPair is handed to the context-swap primitive once the lock is released.
type switchPair struct {
	cur, next hal.Context
}

// switcher picks the next process and does the bookkeeping around a swap.
type switcher struct {
	s *scheduler
}

func (w switcher) trySwitch() (*switchPair, error) {
	cur, err := w.s.runningProcess()
	if err != nil {
		return nil, err
	}
	next, err := w.updateRunnablePidsAndReturnNext(cur)
	if err != nil {
		return nil, err
	}
	if next == w.s.running {
		return nil, nil
	}
	return w.switchTo(cur, next)
}

// updateRunnablePidsAndReturnNext rotates a still-running process to the back
// of its level before popping.
func (w switcher) updateRunnablePidsAndReturnNext(cur *Process) (Pid, error) {
	if cur.status == StatusRunning {
		w.s.ready.push(cur.pid, cur.priority)
	}
	next, ok := w.s.ready.pop()
	if !ok {
		return 0, errors.WithStack(ErrNoRunnable)
	}
	return next, nil
}

func (w switcher) switchTo(cur *Process, next Pid) (*switchPair, error) {
	np, err := w.s.process(next)
	if err != nil {
		return nil, err
	}
	if !np.stack.intact() {
		return nil, errors.Wrapf(ErrStackSmashed, "pid %d", next)
	}
	w.s.cpu.SetPrivilegeStack(np.stack.Bottom())

	if cur.status == StatusRunning {
		cur.status = StatusRunnable
	}
	np.status = StatusRunning
	w.s.running = next
	w.s.switches++

	w.s.obs.Switched(cur.pid, next)
	w.s.log.WithFields(logrus.Fields{"from": cur.pid, "to": next}).Debug("switch")
	return &switchPair{cur: cur.ctx, next: np.ctx}, nil
}

// exit removes the running process and switches away from it for good.
//
// Processes blocked on a rendezvous with it are woken and told so through
// wakeErr.
func (s *scheduler) exit() (*switchPair, error) {
	cur, err := s.runningProcess()
	if err != nil {
		return nil, err
	}
	if cur.pid == IdlePid {
		return nil, errors.WithStack(ErrIdleExit)
	}

	for {
		pid, ok := cur.pending.pop()
		if !ok {
			break
		}
		if err := s.abortRendezvous(pid, cur.pid); err != nil {
			return nil, err
		}
	}
	for _, pid := range s.pids() {
		p := s.processes[pid]
		if id, ok := p.receiveFrom.ID(); p.receiving && ok && id == cur.pid {
			if err := s.abortRendezvous(pid, cur.pid); err != nil {
				return nil, err
			}
		}
	}

	delete(s.processes, cur.pid)
	s.obs.Exited(cur.pid)
	s.log.WithFields(logrus.Fields{"pid": cur.pid, "name": cur.name}).Debug("process exited")

	next, ok := s.ready.pop()
	if !ok {
		return nil, errors.WithStack(ErrNoRunnable)
	}
	return switcher{s}.switchTo(cur, next)
}

func (s *scheduler) abortRendezvous(pid, exited Pid) error {
	p, err := s.process(pid)
	if err != nil {
		return err
	}
	p.clearIPC()
	p.wakeErr = errors.Wrapf(ErrPartnerExited, "pid %d", exited)
	return s.wake(pid)
}

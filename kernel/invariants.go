package kernel

import "github.com/pkg/errors"

// checkInvariants verifies the consistency of the process table and the ready queues.
func (s *scheduler) checkInvariants() error {
	if _, ok := s.processes[IdlePid]; !ok {
		return errors.Wrap(ErrInvariant, "idle process is missing")
	}

	running := 0
	for _, pid := range s.pids() {
		p := s.processes[pid]

		if !p.priority.Valid() {
			return errors.Wrapf(ErrInvariant, "pid %d: priority %d", pid, p.priority)
		}
		if p.status.State == StateRunning {
			running++
			if pid != s.running {
				return errors.Wrapf(ErrInvariant, "pid %d is running but %d is recorded", pid, s.running)
			}
		}
		if p.hasMsg && !p.status.Blocked() {
			return errors.Wrapf(ErrInvariant, "pid %d: message buffer set while %s", pid, p.status)
		}
		if p.sending != (p.status.State == StateSending) {
			return errors.Wrapf(ErrInvariant, "pid %d: send_to set=%v while %s", pid, p.sending, p.status)
		}
		if p.receiving != (p.status.State == StateReceiving) {
			return errors.Wrapf(ErrInvariant, "pid %d: receive_from set=%v while %s", pid, p.receiving, p.status)
		}
		if p.sending {
			dst, ok := s.processes[p.sendTo]
			if !ok {
				return errors.Wrapf(ErrInvariant, "pid %d sends to missing pid %d", pid, p.sendTo)
			}
			if n := dst.pending.count(pid); n != 1 {
				return errors.Wrapf(ErrInvariant, "pid %d queued %d times at pid %d", pid, n, p.sendTo)
			}
		}
		for _, q := range p.pending.items() {
			src, ok := s.processes[q]
			if !ok || !src.sending || src.sendTo != pid {
				return errors.Wrapf(ErrInvariant, "pid %d queued at pid %d but not sending to it", q, pid)
			}
		}

		n, level := s.ready.slots(pid)
		want := 0
		if p.status.State == StateRunnable {
			want = 1
		}
		if n != want {
			return errors.Wrapf(ErrInvariant, "pid %d (%s) is queued %d times", pid, p.status, n)
		}
		if n == 1 && level != p.priority {
			return errors.Wrapf(ErrInvariant, "pid %d queued at level %d, priority %d", pid, level, p.priority)
		}
	}
	if running != 1 {
		return errors.Wrapf(ErrInvariant, "%d running processes", running)
	}
	if s.ready.len() != s.countState(StateRunnable) {
		return errors.Wrap(ErrInvariant, "ready queues hold unknown PIDs")
	}
	return nil
}

func (s *scheduler) countState(st State) int {
	n := 0
	for _, p := range s.processes {
		if p.status.State == st {
			n++
		}
	}
	return n
}

package kernel

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"mkernel/hal"
)

// receiver is the receiving half of a rendezvous, run on behalf of the running process.
type receiver struct {
	s    *scheduler
	buf  hal.PhysAddr
	from ReceiveFrom
}

func newReceiver(s *scheduler, buf hal.VirtAddr, from ReceiveFrom) (*receiver, error) {
	if id, ok := from.ID(); ok && id == s.running {
		return nil, errors.Wrapf(ErrSelfReceive, "pid %d", id)
	}
	pa, err := s.translate(buf)
	if err != nil {
		return nil, err
	}
	return &receiver{s: s, buf: pa, from: from}, nil
}

func (r *receiver) receive() error {
	cur, err := r.s.runningProcess()
	if err != nil {
		return err
	}
	src, err := r.waitingSender(cur)
	if err != nil {
		return err
	}
	if src != nil {
		return r.copyMsgAndWake(src)
	}
	return r.setMsgBufAndSleep(cur)
}

// waitingSender picks the blocked sender this receive is satisfied by, and
// takes it off the pending queue. It returns nil if nobody matches.
func (r *receiver) waitingSender(cur *Process) (*Process, error) {
	if id, ok := r.from.ID(); ok {
		p, err := r.s.process(id)
		if err != nil {
			return nil, errors.Wrap(err, "the sender does not exist")
		}
		if !p.sending || p.sendTo != cur.pid {
			return nil, nil
		}
		cur.pending.remove(id)
		return p, nil
	}

	pid, ok := cur.pending.pop()
	if !ok {
		return nil, nil
	}
	p, err := r.s.process(pid)
	if err != nil {
		return nil, errors.Wrap(err, "queued sender does not exist")
	}
	return p, nil
}

func (r *receiver) copyMsgAndWake(src *Process) error {
	msg, err := src.msgBuf()
	if err != nil {
		return err
	}
	if err := copyMessage(r.s.mem, msg, r.buf, src.pid); err != nil {
		return err
	}
	src.clearIPC()

	r.s.obs.Delivered(src.pid, r.s.running)
	return r.s.wake(src.pid)
}

func (r *receiver) setMsgBufAndSleep(cur *Process) error {
	if err := cur.setMsgBuf(r.buf); err != nil {
		return err
	}
	cur.receiveFrom, cur.receiving = r.from, true
	cur.status = ReceivingFrom(r.from)

	r.s.obs.Blocked(cur.pid, cur.status)
	r.s.log.WithFields(logrus.Fields{"pid": cur.pid, "from": r.from}).Debug("receiver blocked")
	return nil
}

package kernel

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"mkernel/hal"
)

// sender is the sending half of a rendezvous, run on behalf of the running process.
type sender struct {
	s   *scheduler
	msg hal.PhysAddr
	to  Pid
}

func newSender(s *scheduler, msg hal.VirtAddr, to Pid) (*sender, error) {
	if to == s.running {
		return nil, errors.Wrapf(ErrSelfSend, "pid %d", to)
	}
	if _, err := s.process(to); err != nil {
		return nil, errors.Wrap(err, "the receiver does not exist")
	}
	pa, err := s.translate(msg)
	if err != nil {
		return nil, err
	}
	return &sender{s: s, msg: pa, to: to}, nil
}

func (x *sender) send() error {
	dst, err := x.s.process(x.to)
	if err != nil {
		return err
	}
	if x.isReceiverWaiting(dst) {
		return x.copyMsgAndWake(dst)
	}
	return x.setMsgBufAndSleep(dst)
}

func (x *sender) isReceiverWaiting(dst *Process) bool {
	if !dst.receiving {
		return false
	}
	return dst.receiveFrom == FromID(x.s.running) || dst.receiveFrom == FromAny()
}

func (x *sender) copyMsgAndWake(dst *Process) error {
	buf, err := dst.msgBuf()
	if err != nil {
		return err
	}
	if err := copyMessage(x.s.mem, x.msg, buf, x.s.running); err != nil {
		return err
	}
	dst.clearIPC()

	x.s.obs.Delivered(x.s.running, x.to)
	return x.s.wake(x.to)
}

func (x *sender) setMsgBufAndSleep(dst *Process) error {
	cur, err := x.s.runningProcess()
	if err != nil {
		return err
	}
	if err := cur.setMsgBuf(x.msg); err != nil {
		return err
	}
	dst.pending.push(cur.pid)
	cur.sendTo, cur.sending = x.to, true
	cur.status = SendingTo(x.to, x.msg)

	x.s.obs.Blocked(cur.pid, cur.status)
	x.s.log.WithFields(logrus.Fields{"pid": cur.pid, "to": x.to}).Debug("sender blocked")
	return nil
}

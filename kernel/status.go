package kernel

import (
	"fmt"

	"mkernel/hal"
)

// State is the variant of a Status.
type State uint8

const (
	StateRunning State = iota
	StateRunnable
	StateSending
	StateReceiving
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateRunnable:
		return "runnable"
	case StateSending:
		return "sending"
	case StateReceiving:
		return "receiving"
	default:
		return "unknown"
	}
}

// Status is the scheduling state of a process. To and Message are meaningful
// only while sending, From only while receiving.
type Status struct {
	State   State
	To      Pid
	Message hal.PhysAddr
	From    ReceiveFrom
}

var (
	StatusRunning  = Status{State: StateRunning}
	StatusRunnable = Status{State: StateRunnable}
)

// SendingTo is the status of a process blocked until to receives msg.
func SendingTo(to Pid, msg hal.PhysAddr) Status {
	return Status{State: StateSending, To: to, Message: msg}
}

// ReceivingFrom is the status of a process blocked until a message matching f arrives.
func ReceivingFrom(f ReceiveFrom) Status {
	return Status{State: StateReceiving, From: f}
}

// Blocked reports whether the process waits for a rendezvous partner.
func (s Status) Blocked() bool {
	return s.State == StateSending || s.State == StateReceiving
}

func (s Status) String() string {
	switch s.State {
	case StateSending:
		return fmt.Sprintf("sending(to %d, msg %#x)", s.To, uint64(s.Message))
	case StateReceiving:
		return fmt.Sprintf("receiving(%s)", s.From)
	default:
		return s.State.String()
	}
}

package trace

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"

	"mkernel/kernel"
)

// Kind is the type of a recorded event.
type Kind uint8

const (
	KindSwitched Kind = iota + 1
	KindBlocked
	KindWoken
	KindDelivered
	KindExited
)

func (k Kind) String() string {
	switch k {
	case KindSwitched:
		return "switch"
	case KindBlocked:
		return "block"
	case KindWoken:
		return "wake"
	case KindDelivered:
		return "deliver"
	case KindExited:
		return "exit"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Event is one scheduling or IPC event.
//
// From and To are the two PIDs involved; for single-process events To is
// kernel.NoPid. State and Peer are set for KindBlocked only.
type Event struct {
	Seq   uint64
	Kind  Kind
	From  kernel.Pid
	To    kernel.Pid
	State kernel.State
	Peer  kernel.Pid
}

func (e Event) String() string {
	switch e.Kind {
	case KindSwitched:
		return fmt.Sprintf("#%d switch %d -> %d", e.Seq, e.From, e.To)
	case KindDelivered:
		return fmt.Sprintf("#%d deliver %d -> %d", e.Seq, e.From, e.To)
	case KindBlocked:
		if e.Peer == kernel.NoPid {
			return fmt.Sprintf("#%d block %d %s any", e.Seq, e.From, e.State)
		}
		return fmt.Sprintf("#%d block %d %s %d", e.Seq, e.From, e.State, e.Peer)
	default:
		return fmt.Sprintf("#%d %s %d", e.Seq, e.Kind, e.From)
	}
}

// eventSize is the encoded size of an event value:
// kind u8, state u8, from i32, to i32, peer i32.
const eventSize = 14

func (e Event) encode() []byte {
	b := make([]byte, eventSize)
	b[0] = byte(e.Kind)
	b[1] = byte(e.State)
	binary.BigEndian.PutUint32(b[2:], uint32(e.From))
	binary.BigEndian.PutUint32(b[6:], uint32(e.To))
	binary.BigEndian.PutUint32(b[10:], uint32(e.Peer))
	return b
}

func decodeEvent(seq uint64, b []byte) (Event, error) {
	if len(b) != eventSize {
		return Event{}, errors.Errorf("trace: event %d: %d bytes, want %d", seq, len(b), eventSize)
	}
	return Event{
		Seq:   seq,
		Kind:  Kind(b[0]),
		State: kernel.State(b[1]),
		From:  kernel.Pid(int32(binary.BigEndian.Uint32(b[2:]))),
		To:    kernel.Pid(int32(binary.BigEndian.Uint32(b[6:]))),
		Peer:  kernel.Pid(int32(binary.BigEndian.Uint32(b[10:]))),
	}, nil
}

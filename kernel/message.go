package kernel

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// BodyWords is the number of 64-bit words in a message body.
const BodyWords = 5

// MessageSize is the in-memory size of a Message.
//
// Layout (little-endian):
//   - [0:4]  i32: sender PID
//   - [4:8]  reserved
//   - [8:48] body, BodyWords u64
const MessageSize = 8 + 8*BodyWords

// Header is the part of a message the kernel writes.
type Header struct {
	Sender Pid
}

// Body is the opaque payload. The kernel copies it without interpreting it.
type Body [BodyWords]uint64

// Message is the fixed-size record exchanged by rendezvous IPC.
type Message struct {
	Header
	Body Body
}

// NewMessage builds a message with the given words; extra words are dropped.
func NewMessage(sender Pid, words ...uint64) Message {
	m := Message{Header: Header{Sender: sender}}
	copy(m.Body[:], words)
	return m
}

// Encode returns the in-memory representation of m.
func (m Message) Encode() [MessageSize]byte {
	var b [MessageSize]byte
	binary.LittleEndian.PutUint32(b[0:4], uint32(m.Header.Sender))
	for i, w := range m.Body {
		binary.LittleEndian.PutUint64(b[8+8*i:], w)
	}
	return b
}

// DecodeMessage parses the in-memory representation of a message.
func DecodeMessage(b []byte) (Message, error) {
	if len(b) < MessageSize {
		return Message{}, errors.Errorf("kernel: short message: %d bytes", len(b))
	}
	var m Message
	m.Header.Sender = Pid(int32(binary.LittleEndian.Uint32(b[0:4])))
	for i := range m.Body {
		m.Body[i] = binary.LittleEndian.Uint64(b[8+8*i:])
	}
	return m, nil
}

// stampSender overwrites the sender field of an encoded message.
func stampSender(b []byte, sender Pid) {
	binary.LittleEndian.PutUint32(b[0:4], uint32(sender))
}

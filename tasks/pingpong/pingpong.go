// Package pingpong bounces a counter between two processes.
package pingpong

import (
	"github.com/pkg/errors"

	"mkernel/kernel"
	"mkernel/task"
)

// Ping sends Rounds requests to Peer and checks each reply.
//
// Request i carries i in word 0; the reply must carry i+1.
type Ping struct {
	Peer   string
	Rounds int

	// Replies receives every reply body, if set.
	Replies func(kernel.Body)
}

func (t *Ping) Run(ctx *task.Context) error {
	peer, ok := ctx.Lookup(t.Peer)
	if !ok {
		return errors.Errorf("ping: unknown peer %q", t.Peer)
	}
	for i := 0; i < t.Rounds; i++ {
		reply, err := ctx.Call(peer, kernel.Body{uint64(i)})
		if err != nil {
			return errors.Wrapf(err, "ping: round %d", i)
		}
		if reply.Sender != peer {
			return errors.Errorf("ping: reply from %d, want %d", reply.Sender, peer)
		}
		if reply.Body[0] != uint64(i)+1 {
			return errors.Errorf("ping: round %d: got %d", i, reply.Body[0])
		}
		if t.Replies != nil {
			t.Replies(reply.Body)
		}
	}
	return nil
}

// Pong answers Rounds requests from Peer.
type Pong struct {
	Peer   string
	Rounds int
}

func (t *Pong) Run(ctx *task.Context) error {
	peer, ok := ctx.Lookup(t.Peer)
	if !ok {
		return errors.Errorf("pong: unknown peer %q", t.Peer)
	}
	for i := 0; i < t.Rounds; i++ {
		req, err := ctx.ReceiveFrom(peer)
		if err != nil {
			return errors.Wrapf(err, "pong: round %d", i)
		}
		body := req.Body
		body[0]++
		if err := ctx.Send(peer, body); err != nil {
			return errors.Wrapf(err, "pong: round %d", i)
		}
	}
	return nil
}

// Package echo is a server that returns every request to its sender.
package echo

import (
	"github.com/pkg/errors"

	"mkernel/task"
)

// Task serves Rounds requests, or forever if Rounds is zero.
type Task struct {
	Rounds int
}

func (t *Task) Run(ctx *task.Context) error {
	for n := 0; t.Rounds == 0 || n < t.Rounds; n++ {
		req, err := ctx.ReceiveFromAny()
		if err != nil {
			return errors.Wrap(err, "echo: receive")
		}
		if err := ctx.Send(req.Sender, req.Body); err != nil {
			if task.PartnerExited(err) {
				continue
			}
			return errors.Wrapf(err, "echo: reply to %d", req.Sender)
		}
	}
	return nil
}

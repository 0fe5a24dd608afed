// Package spin burns CPU by yielding in a loop.
package spin

import "mkernel/task"

// Task yields Steps times and exits.
type Task struct {
	Steps int

	// Tick is called after every yield, if set.
	Tick func(step int)
}

func (t *Task) Run(ctx *task.Context) error {
	for i := 0; i < t.Steps; i++ {
		if err := ctx.Yield(); err != nil {
			return err
		}
		if t.Tick != nil {
			t.Tick(i)
		}
	}
	return nil
}

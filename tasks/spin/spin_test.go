package spin_test

import (
	"context"
	"testing"
	"time"

	"mkernel/app"
	"mkernel/tasks/spin"
)

func TestSpinYields(t *testing.T) {
	s, err := app.NewSystem(app.Options{MemoryPages: 64, StackSize: 256})
	if err != nil {
		t.Fatalf("NewSystem() error = %v", err)
	}
	var steps []int
	if _, err := s.Spawn("spin", 7, &spin.Task{Steps: 4, Tick: func(i int) { steps = append(steps, i) }}); err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rep, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !rep.OK() || len(steps) != 4 || steps[3] != 3 {
		t.Fatalf("steps = %v, report = %+v", steps, rep)
	}
}

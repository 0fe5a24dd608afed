package app

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"

	"mkernel/config"
	"mkernel/kernel"
	"mkernel/task"
	"mkernel/tasks/spin"
	"mkernel/trace"
)

func runSystem(t *testing.T, s *System) *Report {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rep, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return rep
}

func newTestSystem(t *testing.T) *System {
	t.Helper()
	s, err := NewSystem(Options{MemoryPages: 128, StackSize: 512})
	if err != nil {
		t.Fatalf("NewSystem() error = %v", err)
	}
	return s
}

func TestRunDefault(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rep, err := Run(ctx, config.Default(), Env{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !rep.OK() {
		t.Fatalf("Run() report not OK: %+v", rep)
	}
	if rep.Switches == 0 {
		t.Fatal("Switches = 0")
	}
	if rep.TLBLookups == 0 {
		t.Fatal("no address translations recorded")
	}
}

func TestRunEchoServer(t *testing.T) {
	cfg := config.Default()
	cfg.Name = "echo"
	cfg.Process = []config.ProcessConfig{
		{Name: "server", Priority: 1, Task: config.TaskEcho},
	}

	s, err := newSystem(cfg, Options{MemoryPages: 128, StackSize: 512})
	if err != nil {
		t.Fatalf("newSystem() error = %v", err)
	}
	var got []uint64
	for _, name := range []string{"c1", "c2"} {
		name := name
		_, err := s.Spawn(name, 3, task.Func(func(ctx *task.Context) error {
			server, _ := ctx.Lookup("server")
			for i := uint64(0); i < 3; i++ {
				reply, err := ctx.Call(server, kernel.Body{i, uint64(ctx.Pid())})
				if err != nil {
					return err
				}
				if reply.Sender != server || reply.Body[1] != uint64(ctx.Pid()) {
					return errors.Errorf("%s: bad reply %+v", name, reply)
				}
				got = append(got, reply.Body[0])
			}
			return nil
		}))
		if err != nil {
			t.Fatalf("Spawn(%s) error = %v", name, err)
		}
	}

	rep := runSystem(t, s)
	if len(got) != 6 {
		t.Fatalf("replies = %v, want 6", got)
	}
	blocked := rep.Blocked()
	if len(blocked) != 1 || blocked[0].Name != "server" {
		t.Fatalf("Blocked() = %+v, want the server", blocked)
	}
	if st := blocked[0].Status; st != kernel.ReceivingFrom(kernel.FromAny()) {
		t.Fatalf("server status = %s, want receiving from any", st)
	}
	for _, p := range rep.Processes {
		if p.Err != nil {
			t.Errorf("%s failed: %v", p.Name, p.Err)
		}
	}
	if rep.OK() {
		t.Fatal("OK() = true with a blocked server")
	}
}

func TestRunHonoursPriority(t *testing.T) {
	s := newTestSystem(t)
	var order []string
	for _, p := range []struct {
		name string
		prio kernel.Priority
	}{{"low", 5}, {"high", 1}, {"mid", 3}} {
		name := p.name
		if _, err := s.Spawn(name, p.prio, &spin.Task{Steps: 3, Tick: func(int) { order = append(order, name) }}); err != nil {
			t.Fatalf("Spawn(%s) error = %v", name, err)
		}
	}

	rep := runSystem(t, s)
	if !rep.OK() {
		t.Fatalf("report not OK: %+v", rep)
	}
	want := []string{"high", "high", "high", "mid", "mid", "mid", "low", "low", "low"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestRunRoundRobinWithinLevel(t *testing.T) {
	s := newTestSystem(t)
	var order []string
	for _, name := range []string{"a", "b"} {
		name := name
		if _, err := s.Spawn(name, 4, &spin.Task{Steps: 2, Tick: func(int) { order = append(order, name) }}); err != nil {
			t.Fatalf("Spawn(%s) error = %v", name, err)
		}
	}
	runSystem(t, s)

	want := []string{"a", "b", "a", "b"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestRunDeadlock(t *testing.T) {
	cfg := config.Default()
	cfg.Process = []config.ProcessConfig{
		{Name: "a", Priority: 2, Task: config.TaskPong, Peer: "b", Rounds: 1},
		{Name: "b", Priority: 2, Task: config.TaskPong, Peer: "a", Rounds: 1},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rep, err := Run(ctx, cfg, Env{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rep.OK() || len(rep.Blocked()) != 2 {
		t.Fatalf("Blocked() = %+v, want both processes", rep.Blocked())
	}
}

func TestRunPartnerExit(t *testing.T) {
	s := newTestSystem(t)
	var waitErr error
	if _, err := s.Spawn("waiter", 2, task.Func(func(ctx *task.Context) error {
		quitter, _ := ctx.Lookup("quitter")
		_, waitErr = ctx.ReceiveFrom(quitter)
		return nil
	})); err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	if _, err := s.Spawn("quitter", 3, task.Func(func(*task.Context) error { return nil })); err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}

	rep := runSystem(t, s)
	if !task.PartnerExited(waitErr) {
		t.Fatalf("ReceiveFrom() error = %v, want partner exited", waitErr)
	}
	if !rep.OK() {
		t.Fatalf("report not OK: %+v", rep)
	}
}

func TestRunHaltsOnKernelError(t *testing.T) {
	s := newTestSystem(t)
	pid, err := s.Spawn("selfish", 2, task.Func(func(ctx *task.Context) error {
		return ctx.Send(ctx.Pid(), kernel.Body{})
	}))
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}

	rep := runSystem(t, s)
	if rep.Panic == nil {
		t.Fatal("Panic = nil, want the kernel to halt")
	}
	if rep.Panic.Pid != pid || errors.Cause(rep.Panic.Err) != kernel.ErrSelfSend {
		t.Fatalf("Panic = %+v, want pid %d and %v", rep.Panic, pid, kernel.ErrSelfSend)
	}
	if rep.OK() {
		t.Fatal("OK() = true after a halt")
	}
	if !s.Kernel().Halted() {
		t.Fatal("Halted() = false")
	}
}

func TestRunHaltsOnTaskPanic(t *testing.T) {
	s := newTestSystem(t)
	pid, err := s.Spawn("boom", 2, task.Func(func(*task.Context) error {
		panic("boom")
	}))
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}

	rep := runSystem(t, s)
	if rep.Panic == nil || rep.Panic.Pid != pid {
		t.Fatalf("Panic = %+v, want pid %d", rep.Panic, pid)
	}
	if len(rep.Panic.Stack) == 0 {
		t.Fatal("Panic.Stack is empty")
	}
}

func TestSpawnAfterRunFails(t *testing.T) {
	s := newTestSystem(t)
	if _, err := s.Spawn("a", 2, &spin.Task{}); err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	if _, err := s.Spawn("a", 2, &spin.Task{}); err == nil {
		t.Fatal("Spawn(duplicate) error = nil")
	}
	runSystem(t, s)
	if _, err := s.Spawn("b", 2, &spin.Task{}); err == nil {
		t.Fatal("Spawn() after Run error = nil")
	}
	if _, err := s.Run(context.Background()); err == nil {
		t.Fatal("second Run() error = nil")
	}
}

func TestRunRecordsTrace(t *testing.T) {
	store, err := trace.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rep, err := Run(ctx, config.Default(), Env{Trace: store})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rep.TraceRun == "" {
		t.Fatal("TraceRun is empty")
	}

	runs, err := store.Runs()
	if err != nil {
		t.Fatalf("Runs() error = %v", err)
	}
	if len(runs) != 1 || runs[0].ID.String() != rep.TraceRun || runs[0].Name != "pingpong" {
		t.Fatalf("Runs() = %+v", runs)
	}
	events, err := store.Events(runs[0].ID)
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	var delivered, exited int
	for _, ev := range events {
		switch ev.Kind {
		case trace.KindDelivered:
			delivered++
		case trace.KindExited:
			exited++
		}
	}
	if delivered != 4 || exited != 2 {
		t.Fatalf("delivered = %d, exited = %d, want 4 and 2", delivered, exited)
	}
}

func TestRunRecordsTraceOfHaltedRun(t *testing.T) {
	store, err := trace.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	defer store.Close()

	// pong gives up at once, so ping's first send names an exited PID.
	cfg := config.Default()
	cfg.Process[0].Priority = 5
	cfg.Process[1].Rounds = 0

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rep, err := Run(ctx, cfg, Env{Trace: store})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rep.Panic == nil || errors.Cause(rep.Panic.Err) != kernel.ErrNoSuchProcess {
		t.Fatalf("Panic = %+v, want %v", rep.Panic, kernel.ErrNoSuchProcess)
	}
	if rep.TraceRun == "" {
		t.Fatal("TraceRun is empty for a halted run")
	}

	runs, err := store.Runs()
	if err != nil {
		t.Fatalf("Runs() error = %v", err)
	}
	if len(runs) != 1 || runs[0].ID.String() != rep.TraceRun {
		t.Fatalf("Runs() = %+v", runs)
	}
	events, err := store.Events(runs[0].ID)
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	var exited int
	for _, ev := range events {
		if ev.Kind == trace.KindExited {
			exited++
		}
	}
	if exited != 1 {
		t.Fatalf("%d exited events, want 1 (pong): %v", exited, events)
	}
}

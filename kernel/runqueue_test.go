package kernel

import "testing"

func TestReadyQueuePopPriorityOrder(t *testing.T) {
	var q readyQueue

	q.push(1, 5)
	q.push(2, 2)
	q.push(3, LeastPriority)
	q.push(4, 0)
	q.push(5, 2)

	want := []Pid{4, 2, 5, 1, 3}
	for i, w := range want {
		got, ok := q.pop()
		if !ok {
			t.Fatalf("pop() #%d ok = false, want true", i)
		}
		if got != w {
			t.Fatalf("pop() #%d = %d, want %d", i, got, w)
		}
	}
	if _, ok := q.pop(); ok {
		t.Fatal("pop() on empty queue ok = true, want false")
	}
}

func TestReadyQueueFIFOWithinLevel(t *testing.T) {
	var q readyQueue
	for pid := Pid(1); pid <= 10; pid++ {
		q.push(pid, 7)
	}
	for pid := Pid(1); pid <= 10; pid++ {
		got, _ := q.pop()
		if got != pid {
			t.Fatalf("pop() = %d, want %d", got, pid)
		}
	}
}

func TestReadyQueueStarvesLowerLevels(t *testing.T) {
	var q readyQueue
	q.push(1, 0)
	q.push(2, 1)

	// A continuously runnable high-priority process is always chosen.
	for i := 0; i < 1000; i++ {
		got, _ := q.pop()
		if got != 1 {
			t.Fatalf("pop() #%d = %d, want 1", i, got)
		}
		q.push(1, 0)
	}
	if n, _ := q.slots(2); n != 1 {
		t.Fatalf("slots(2) = %d, want 1", n)
	}
}

func TestFIFORemove(t *testing.T) {
	var q fifo
	for _, pid := range []Pid{1, 2, 3, 4} {
		q.push(pid)
	}
	if _, ok := q.pop(); !ok {
		t.Fatal("pop() ok = false, want true")
	}
	if !q.remove(3) {
		t.Fatal("remove(3) = false, want true")
	}
	if q.remove(1) {
		t.Fatal("remove(1) of a popped PID = true, want false")
	}
	got := q.items()
	if len(got) != 2 || got[0] != 2 || got[1] != 4 {
		t.Fatalf("items() = %v, want [2 4]", got)
	}
	q.remove(2)
	q.remove(4)
	if q.len() != 0 || q.items() != nil {
		t.Fatalf("len() = %d, items() = %v after removing all, want empty", q.len(), q.items())
	}
}

func TestFIFOStaysBoundedWhenNeverEmpty(t *testing.T) {
	var q fifo
	q.push(1)
	q.push(2)
	for i := 0; i < 100000; i++ {
		pid, ok := q.pop()
		if !ok {
			t.Fatalf("pop() #%d ok = false, want true", i)
		}
		if want := Pid(1 + i%2); pid != want {
			t.Fatalf("pop() #%d = %d, want %d", i, pid, want)
		}
		q.push(pid)
	}
	if q.len() != 2 {
		t.Fatalf("len() = %d, want 2", q.len())
	}
	if cap(q.buf) > 8 {
		t.Fatalf("cap(buf) = %d after steady rotation, want <= 8", cap(q.buf))
	}
}

func TestSwitchRotationKeepsReadyQueueBounded(t *testing.T) {
	e := newTestEnv(t)
	e.spawn("a", 3)
	e.spawn("b", 3)
	for i := 0; i < 10000; i++ {
		if err := e.k.Switch(); err != nil {
			t.Fatalf("Switch() #%d error = %v", i, err)
		}
	}
	if q := &e.k.s.ready[3]; cap(q.buf) > 8 {
		t.Fatalf("cap(ready[3].buf) = %d after 10000 switches, want <= 8", cap(q.buf))
	}
	e.checkInvariants()
}

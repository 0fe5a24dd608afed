package hal

import (
	"testing"
	"time"
)

func TestSwitcherHandsBaton(t *testing.T) {
	sw := NewSwitcher()
	var trace []string
	done := make(chan struct{})

	var a, b *HostContext
	a = sw.NewContext(func() {
		trace = append(trace, "a1")
		sw.Switch(a, b)
		trace = append(trace, "a2")
		sw.Switch(a, b)
		trace = append(trace, "a3")
		close(done)
	})
	b = sw.NewContext(func() {
		trace = append(trace, "b1")
		sw.Switch(b, a)
		trace = append(trace, "b2")
		sw.Release(b, a)
	})
	if a.ID() == b.ID() {
		t.Fatalf("contexts share id %d", a.ID())
	}

	sw.Boot(a)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("contexts deadlocked")
	}

	want := []string{"a1", "b1", "a2", "b2", "a3"}
	if len(trace) != len(want) {
		t.Fatalf("trace = %v, want %v", trace, want)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("trace = %v, want %v", trace, want)
		}
	}
}

func TestCPUInterruptsAndHalt(t *testing.T) {
	c := NewCPU()
	if c.DisableInterrupts() {
		t.Fatal("interrupts enabled at reset")
	}
	c.RestoreInterrupts(true)
	if !c.DisableInterrupts() {
		t.Fatal("DisableInterrupts() = false after enabling")
	}
	c.RestoreInterrupts(false)
	if c.InterruptsEnabled() {
		t.Fatal("RestoreInterrupts(false) enabled interrupts")
	}

	c.SetPrivilegeStack(0x1000)
	if c.PrivilegeStack() != 0x1000 || c.PrivilegeStackUpdates() != 1 {
		t.Fatalf("PrivilegeStack() = %#x after %d updates", c.PrivilegeStack(), c.PrivilegeStackUpdates())
	}

	c.Halt()
	c.Halt()
	select {
	case <-c.Halted():
	default:
		t.Fatal("Halted() not closed")
	}
}

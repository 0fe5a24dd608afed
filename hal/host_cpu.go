package hal

import "sync"

// HostCPU emulates the interrupt flag, the privileged-stack register and halt.
type HostCPU struct {
	mu       sync.Mutex
	enabled  bool
	rsp0     VirtAddr
	rsp0Sets uint64

	haltOnce sync.Once
	halted   chan struct{}
}

func NewCPU() *HostCPU {
	return &HostCPU{halted: make(chan struct{})}
}

func (c *HostCPU) DisableInterrupts() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.enabled
	c.enabled = false
	return prev
}

func (c *HostCPU) RestoreInterrupts(enabled bool) {
	if !enabled {
		return
	}
	c.mu.Lock()
	c.enabled = true
	c.mu.Unlock()
}

func (c *HostCPU) InterruptsEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

func (c *HostCPU) SetPrivilegeStack(top VirtAddr) {
	c.mu.Lock()
	c.rsp0 = top
	c.rsp0Sets++
	c.mu.Unlock()
}

func (c *HostCPU) PrivilegeStack() VirtAddr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rsp0
}

// PrivilegeStackUpdates counts SetPrivilegeStack calls.
func (c *HostCPU) PrivilegeStackUpdates() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rsp0Sets
}

// Halt stops the emulated CPU. Only the first call has an effect.
func (c *HostCPU) Halt() {
	c.haltOnce.Do(func() { close(c.halted) })
}

// Halted is closed once Halt has been called.
func (c *HostCPU) Halted() <-chan struct{} {
	return c.halted
}

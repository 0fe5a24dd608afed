package hal

// Host bundles the host implementations of every collaborator.
type Host struct {
	mem *HostMemory
	cpu *HostCPU
	sw  Switcher
}

// HostConfig sizes the emulated machine.
type HostConfig struct {
	MemoryPages int
	TLBEntries  int
	// Step selects NopSwitcher instead of goroutine contexts.
	Step bool
}

// NewHost returns a host HAL implementation.
func NewHost(cfg HostConfig) (*Host, error) {
	if cfg.MemoryPages <= 0 {
		cfg.MemoryPages = 256
	}
	mem, err := NewMemory(cfg.MemoryPages, cfg.TLBEntries)
	if err != nil {
		return nil, err
	}
	h := &Host{mem: mem, cpu: NewCPU()}
	if cfg.Step {
		h.sw = &NopSwitcher{}
	} else {
		h.sw = NewSwitcher()
	}
	return h, nil
}

func (h *Host) Memory() Memory     { return h.mem }
func (h *Host) CPU() CPU           { return h.cpu }
func (h *Host) Switcher() Switcher { return h.sw }

func (h *Host) HostMemory() *HostMemory { return h.mem }
func (h *Host) HostCPU() *HostCPU       { return h.cpu }

// Contexts returns the goroutine switcher, or nil in step mode.
func (h *Host) Contexts() *HostSwitcher {
	s, _ := h.sw.(*HostSwitcher)
	return s
}

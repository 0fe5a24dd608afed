package hal

import "sync/atomic"

// HostContext runs a process body on its own goroutine.
//
// Exactly one HostContext holds the baton at a time; the others are parked on
// their resume channel.
type HostContext struct {
	id      uint64
	entry   func()
	started bool
	resume  chan struct{}
}

func (c *HostContext) ID() uint64 { return c.id }

// HostSwitcher hands the baton between HostContexts.
type HostSwitcher struct {
	nextID atomic.Uint64
}

func NewSwitcher() *HostSwitcher {
	return &HostSwitcher{}
}

// NewContext returns a context that starts running entry the first time it is resumed.
//
// entry must not return while holding the baton unless it was the last runnable
// context; processes leave through Release.
func (s *HostSwitcher) NewContext(entry func()) *HostContext {
	return &HostContext{
		id:     s.nextID.Add(1),
		entry:  entry,
		resume: make(chan struct{}, 1),
	}
}

// Boot gives the baton to c. It is used once, for the context that is already
// marked running when the scheduler is initialised.
func (s *HostSwitcher) Boot(c *HostContext) {
	s.resume(c)
}

func (s *HostSwitcher) Switch(cur, next Context) {
	c := cur.(*HostContext)
	s.resume(next.(*HostContext))
	<-c.resume
}

func (s *HostSwitcher) Release(_, next Context) {
	s.resume(next.(*HostContext))
}

func (s *HostSwitcher) resume(c *HostContext) {
	if !c.started {
		c.started = true
		go c.entry()
		return
	}
	c.resume <- struct{}{}
}

// NopSwitcher records swaps without transferring control. The caller keeps
// acting on behalf of whichever process the scheduler marks as running.
type NopSwitcher struct {
	Swaps    uint64
	Releases uint64
}

func (s *NopSwitcher) Switch(_, _ Context)  { s.Swaps++ }
func (s *NopSwitcher) Release(_, _ Context) { s.Releases++ }

// NopContext is an inert Context for NopSwitcher.
type NopContext uint64

func (c NopContext) ID() uint64 { return uint64(c) }

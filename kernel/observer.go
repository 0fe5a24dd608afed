package kernel

// Observer is told about scheduling and IPC events. It is called with the
// scheduler lock held and must not call back into the Kernel.
type Observer interface {
	Switched(from, to Pid)
	Blocked(pid Pid, st Status)
	Woken(pid Pid)
	Delivered(from, to Pid)
	Exited(pid Pid)
}

type nopObserver struct{}

func (nopObserver) Switched(Pid, Pid)   {}
func (nopObserver) Blocked(Pid, Status) {}
func (nopObserver) Woken(Pid)           {}
func (nopObserver) Delivered(Pid, Pid)  {}
func (nopObserver) Exited(Pid)          {}

// Observers fans events out to every element in order.
type Observers []Observer

func (os Observers) Switched(from, to Pid) {
	for _, o := range os {
		o.Switched(from, to)
	}
}

func (os Observers) Blocked(pid Pid, st Status) {
	for _, o := range os {
		o.Blocked(pid, st)
	}
}

func (os Observers) Woken(pid Pid) {
	for _, o := range os {
		o.Woken(pid)
	}
}

func (os Observers) Delivered(from, to Pid) {
	for _, o := range os {
		o.Delivered(from, to)
	}
}

func (os Observers) Exited(pid Pid) {
	for _, o := range os {
		o.Exited(pid)
	}
}

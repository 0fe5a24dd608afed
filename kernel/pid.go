package kernel

import "fmt"

// Pid identifies a process.
type Pid int32

const (
	// IdlePid is the permanent idle process.
	IdlePid Pid = 0
	// NoPid marks an unknown process in diagnostics.
	NoPid Pid = -1
)

// Priority is a scheduling rank; lower values run first.
type Priority uint8

// LeastPriority is the lowest scheduling precedence. The idle process runs at it.
const LeastPriority Priority = 15

func (p Priority) Valid() bool { return p <= LeastPriority }

// ReceiveFrom selects which sender a receive accepts.
type ReceiveFrom struct {
	any bool
	id  Pid
}

// FromAny accepts a message from any sender.
func FromAny() ReceiveFrom { return ReceiveFrom{any: true} }

// FromID accepts a message only from pid.
func FromID(pid Pid) ReceiveFrom { return ReceiveFrom{id: pid} }

func (f ReceiveFrom) IsAny() bool { return f.any }

// ID returns the accepted sender and false for FromAny.
func (f ReceiveFrom) ID() (Pid, bool) { return f.id, !f.any }

func (f ReceiveFrom) String() string {
	if f.any {
		return "any"
	}
	return fmt.Sprintf("pid %d", f.id)
}

package kernel

// Error describes a scheduler error. Every condition the scheduler can detect
// is a preallocated *Error; call sites attach detail with errors.Wrapf and
// callers compare errors.Cause against these values.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Module + ": " + e.Message
}

var (
	ErrNotInitialized     = &Error{Module: "sched", Message: "scheduler is not initialized"}
	ErrAlreadyInitialized = &Error{Module: "sched", Message: "scheduler is already initialized"}
	ErrBadIdle            = &Error{Module: "sched", Message: "idle process must have PID 0 and be running"}
	ErrDuplicatePid       = &Error{Module: "sched", Message: "duplicated process"}
	ErrNoSuchProcess      = &Error{Module: "sched", Message: "no such process"}
	ErrBadPid             = &Error{Module: "sched", Message: "invalid PID"}
	ErrBadPriority        = &Error{Module: "sched", Message: "priority out of range"}
	ErrAlreadyAwake       = &Error{Module: "sched", Message: "the process is already awake"}
	ErrNoRunnable         = &Error{Module: "sched", Message: "no runnable PIDs"}
	ErrStackSmashed       = &Error{Module: "sched", Message: "kernel stack guard is corrupted"}
	ErrLockHeld           = &Error{Module: "sched", Message: "failed to acquire the scheduler lock"}
	ErrIdleExit           = &Error{Module: "sched", Message: "the idle process cannot exit"}
	ErrInvariant          = &Error{Module: "sched", Message: "invariant violated"}
	ErrHalted             = &Error{Module: "sched", Message: "system halted"}

	ErrSelfSend             = &Error{Module: "ipc", Message: "tried to send a message to self"}
	ErrSelfReceive          = &Error{Module: "ipc", Message: "tried to receive a message from self"}
	ErrMessageAlreadyStored = &Error{Module: "ipc", Message: "message is already stored"}
	ErrNoMessageBuffer      = &Error{Module: "ipc", Message: "message buffer is not registered"}
	ErrTranslate            = &Error{Module: "ipc", Message: "failed to convert a virtual address to physical one"}

	// ErrPartnerExited is returned from a blocked send or receive whose partner
	// exited. It is the only error that does not halt the system.
	ErrPartnerExited = &Error{Module: "ipc", Message: "partner process exited"}
)

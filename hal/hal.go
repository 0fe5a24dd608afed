package hal

import "github.com/pkg/errors"

// PageSize is the size of a virtual page and of a physical frame.
const PageSize = 4096

// VirtAddr is an address in the active virtual address space.
type VirtAddr uint64

// PhysAddr is a physical memory address.
type PhysAddr uint64

var (
	ErrNotMapped   = errors.New("hal: address not mapped")
	ErrOutOfMemory = errors.New("hal: out of physical frames")
	ErrBadRange    = errors.New("hal: physical range not addressable")
	ErrNotContig   = errors.New("hal: virtual range is not physically contiguous")
)

// Context is the saved execution state of a process that is not running.
//
// The kernel never looks inside it; it only hands pairs of contexts to a Switcher.
type Context interface {
	ID() uint64
}

// Mapping is a temporary window onto a physical range.
//
// It is valid until Unmap.
type Mapping interface {
	Bytes() []byte
	Unmap()
}

// Memory translates addresses of the active address space and maps physical ranges.
type Memory interface {
	Translate(v VirtAddr) (PhysAddr, error)
	Map(pa PhysAddr, size int) (Mapping, error)
}

// Allocator hands out fresh virtual memory backed by physical frames.
type Allocator interface {
	Alloc(size int) (VirtAddr, error)
}

// CPU is the subset of processor control the scheduler depends on.
type CPU interface {
	// DisableInterrupts masks interrupts and reports whether they were enabled.
	DisableInterrupts() bool
	// RestoreInterrupts re-enables interrupts if enabled is true.
	RestoreInterrupts(enabled bool)
	InterruptsEnabled() bool
	// SetPrivilegeStack points the privileged-stack register (TSS RSP0) at top.
	SetPrivilegeStack(top VirtAddr)
	PrivilegeStack() VirtAddr
	Halt()
}

// Switcher performs the low-level context swap.
type Switcher interface {
	// Switch saves the caller into cur and resumes next. It returns once cur is resumed.
	Switch(cur, next Context)
	// Release resumes next; cur is never resumed again.
	Release(cur, next Context)
}

// HAL provides the only contact point between the scheduler and the machine.
type HAL interface {
	Memory() Memory
	CPU() CPU
	Switcher() Switcher
}

// ReadVirt copies len(dst) bytes starting at the virtual address v.
func ReadVirt(m Memory, v VirtAddr, dst []byte) error {
	mp, err := mapVirt(m, v, len(dst))
	if err != nil {
		return err
	}
	defer mp.Unmap()
	copy(dst, mp.Bytes())
	return nil
}

// WriteVirt copies src to the virtual address v.
func WriteVirt(m Memory, v VirtAddr, src []byte) error {
	mp, err := mapVirt(m, v, len(src))
	if err != nil {
		return err
	}
	defer mp.Unmap()
	copy(mp.Bytes(), src)
	return nil
}

// TranslateRange resolves the n bytes starting at v. Every page the range
// touches must be mapped, onto frames that follow each other physically.
func TranslateRange(m Memory, v VirtAddr, n int) (PhysAddr, error) {
	pa, err := m.Translate(v)
	if err != nil || n <= 1 {
		return pa, err
	}
	last := v + VirtAddr(n-1)
	for page := v&^(PageSize-1) + PageSize; page <= last; page += PageSize {
		got, err := m.Translate(page)
		if err != nil {
			return 0, err
		}
		if want := pa + PhysAddr(page-v); got != want {
			return 0, errors.Wrapf(ErrNotContig, "virt %#x maps to %#x, want %#x", uint64(page), uint64(got), uint64(want))
		}
	}
	return pa, nil
}

func mapVirt(m Memory, v VirtAddr, n int) (Mapping, error) {
	pa, err := TranslateRange(m, v, n)
	if err != nil {
		return nil, err
	}
	return m.Map(pa, n)
}

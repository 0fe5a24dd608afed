package hal

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

// UserBase is the first virtual address handed out by HostMemory.
const UserBase VirtAddr = 0x4000_0000

// HostMemory is a flat arena of physical frames plus a single page map.
//
// Frames are handed out from the top of the arena down, so virtual and
// physical addresses never coincide. Each allocation is physically contiguous.
type HostMemory struct {
	mu sync.Mutex

	frames  []byte
	free    int // frames below this index are unallocated
	nextVA  VirtAddr
	pages   map[VirtAddr]PhysAddr
	tlb     *lru.Cache
	misses  uint64
	lookups uint64
}

// NewMemory returns an arena of the given number of frames with a translation
// cache of tlbEntries entries.
func NewMemory(frames, tlbEntries int) (*HostMemory, error) {
	if frames <= 0 {
		return nil, errors.Errorf("hal: invalid frame count %d", frames)
	}
	if tlbEntries <= 0 {
		tlbEntries = 64
	}
	tlb, err := lru.New(tlbEntries)
	if err != nil {
		return nil, errors.Wrap(err, "hal: tlb")
	}
	return &HostMemory{
		frames: make([]byte, frames*PageSize),
		free:   frames,
		nextVA: UserBase,
		pages:  make(map[VirtAddr]PhysAddr),
		tlb:    tlb,
	}, nil
}

// Alloc maps enough fresh pages to hold size bytes and returns their base.
func (m *HostMemory) Alloc(size int) (VirtAddr, error) {
	if size <= 0 {
		return 0, errors.Errorf("hal: invalid allocation size %d", size)
	}
	n := (size + PageSize - 1) / PageSize

	m.mu.Lock()
	defer m.mu.Unlock()

	if n > m.free {
		return 0, errors.Wrapf(ErrOutOfMemory, "need %d frames, %d left", n, m.free)
	}
	m.free -= n
	base := m.nextVA
	for i := 0; i < n; i++ {
		va := base + VirtAddr(i*PageSize)
		m.pages[va] = PhysAddr((m.free + i) * PageSize)
	}
	// Leave an unmapped guard page between allocations.
	m.nextVA += VirtAddr((n + 1) * PageSize)
	return base, nil
}

// Translate resolves v through the page map.
func (m *HostMemory) Translate(v VirtAddr) (PhysAddr, error) {
	page := v &^ (PageSize - 1)
	off := PhysAddr(v & (PageSize - 1))

	m.mu.Lock()
	defer m.mu.Unlock()

	m.lookups++
	if pa, ok := m.tlb.Get(page); ok {
		return pa.(PhysAddr) + off, nil
	}
	m.misses++
	pa, ok := m.pages[page]
	if !ok {
		return 0, errors.Wrapf(ErrNotMapped, "virt %#x", uint64(v))
	}
	m.tlb.Add(page, pa)
	return pa + off, nil
}

// TLBStats reports translation lookups and cache misses.
func (m *HostMemory) TLBStats() (lookups, misses uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookups, m.misses
}

// Map returns a window onto [pa, pa+size). Every frame in the range must
// belong to an allocation.
func (m *HostMemory) Map(pa PhysAddr, size int) (Mapping, error) {
	if size < 0 || uint64(pa)+uint64(size) > uint64(len(m.frames)) {
		return nil, errors.Wrapf(ErrBadRange, "phys %#x+%d", uint64(pa), size)
	}
	m.mu.Lock()
	free := PhysAddr(m.free * PageSize)
	m.mu.Unlock()
	if pa < free {
		return nil, errors.Wrapf(ErrBadRange, "phys %#x: frame is not allocated", uint64(pa))
	}
	return &hostMapping{b: m.frames[pa : uint64(pa)+uint64(size) : uint64(pa)+uint64(size)]}, nil
}

type hostMapping struct {
	b []byte
}

func (mp *hostMapping) Bytes() []byte { return mp.b }
func (mp *hostMapping) Unmap()        { mp.b = nil }

package kernel

import (
	"github.com/pkg/errors"

	"mkernel/hal"
)

// single is a mapped window onto one Message-sized record in physical memory.
// It lives only for the duration of a copy.
type single struct {
	m hal.Mapping
}

func mapSingle(mem hal.Memory, pa hal.PhysAddr) (single, error) {
	m, err := mem.Map(pa, MessageSize)
	if err != nil {
		return single{}, errors.Wrapf(ErrTranslate, "map phys %#x: %v", uint64(pa), err)
	}
	return single{m: m}, nil
}

func (s single) read() [MessageSize]byte {
	var b [MessageSize]byte
	copy(b[:], s.m.Bytes())
	return b
}

func (s single) write(b [MessageSize]byte) {
	copy(s.m.Bytes(), b[:])
}

func (s single) unmap() { s.m.Unmap() }

// copyMessage copies the record at src to dst, stamping the true sender.
func copyMessage(mem hal.Memory, src, dst hal.PhysAddr, sender Pid) error {
	from, err := mapSingle(mem, src)
	if err != nil {
		return err
	}
	defer from.unmap()

	to, err := mapSingle(mem, dst)
	if err != nil {
		return err
	}
	defer to.unmap()

	b := from.read()
	stampSender(b[:], sender)
	to.write(b)
	return nil
}

package app

import (
	"strings"

	"github.com/sirupsen/logrus"

	"mkernel/kernel"
)

// onPanic runs once, on the context that hit the fatal error, before the CPU
// halts.
func (s *System) onPanic(info kernel.PanicInfo) {
	s.mu.Lock()
	s.panic = &info
	s.mu.Unlock()

	l := s.log.WithFields(logrus.Fields{"pid": info.Pid})
	l.WithError(info.Err).Error("kernel panic")
	if len(info.Stack) == 0 {
		l.Error("stack: unavailable")
		return
	}
	for _, line := range strings.Split(string(info.Stack), "\n") {
		if line == "" {
			continue
		}
		l.Error(line)
	}
}

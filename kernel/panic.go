package kernel

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// PanicInfo describes the fatal error that halted the system.
type PanicInfo struct {
	Pid   Pid
	Err   error
	Stack []byte
}

// Halted reports whether a fatal error has halted the system.
func (k *Kernel) Halted() bool {
	return k.halted.Load()
}

// fatal puts the kernel in panic mode and halts the CPU. Only the first call
// runs the panic handler; err is returned so callers can surface it.
func (k *Kernel) fatal(pid Pid, err error) error {
	k.panicOnce.Do(func() {
		k.halted.Store(true)
		k.log.WithFields(logrus.Fields{"pid": pid}).WithError(err).Error("unrecoverable scheduler error")

		info := PanicInfo{Pid: pid, Err: err, Stack: captureStack()}
		if fn := k.onPanic; fn != nil {
			fn(info)
		}
		k.cpu.Halt()
	})
	return err
}

// Abort halts the system on behalf of pid, e.g. when the body of a process
// panics or fails outside any syscall.
func (k *Kernel) Abort(pid Pid, err error) error {
	if err == nil {
		err = errors.New("abort")
	}
	return k.fatal(pid, err)
}

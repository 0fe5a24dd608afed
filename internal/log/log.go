// Package log builds the logrus logger shared by the simulator.
package log

import (
	"io"
	"os"
	"path/filepath"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/pkg/errors"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
)

// Options selects the level and the optional log directory.
type Options struct {
	Level string
	// Dir enables a daily rotating file in addition to Out.
	Dir string
	// RotationCount is how many rotated files are kept; zero keeps 7.
	RotationCount uint
	Out           io.Writer
}

// New returns a text logger with full timestamps.
func New(opts Options) (*logrus.Logger, error) {
	l := logrus.New()
	l.Out = opts.Out
	if l.Out == nil {
		l.Out = os.Stderr
	}
	l.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	l.Level = logrus.InfoLevel
	if opts.Level != "" {
		lvl, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, errors.Wrap(err, "log")
		}
		l.Level = lvl
	}
	if opts.Dir != "" {
		hook, err := newFileRotateHook(opts.Dir, opts.RotationCount)
		if err != nil {
			return nil, err
		}
		l.Hooks.Add(hook)
	}
	return l, nil
}

func newFileRotateHook(dir string, count uint) (logrus.Hook, error) {
	if !filepath.IsAbs(dir) {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, errors.Wrap(err, "log: resolve dir")
		}
		dir = abs
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Wrap(err, "log: create dir")
	}
	if count == 0 {
		count = 7
	}
	writer, err := rotatelogs.New(
		filepath.Join(dir, "ksim-%Y%m%d.log"),
		rotatelogs.WithLinkName(filepath.Join(dir, "ksim.log")),
		rotatelogs.WithRotationTime(24*time.Hour),
		rotatelogs.WithRotationCount(count),
	)
	if err != nil {
		return nil, errors.Wrap(err, "log: rotate")
	}
	return lfshook.NewHook(lfshook.WriterMap{
		logrus.DebugLevel: writer,
		logrus.InfoLevel:  writer,
		logrus.WarnLevel:  writer,
		logrus.ErrorLevel: writer,
		logrus.FatalLevel: writer,
		logrus.PanicLevel: writer,
	}, &logrus.JSONFormatter{}), nil
}

package main

import (
	"sync"

	"github.com/sirupsen/logrus"

	"mkernel/config"
	klog "mkernel/internal/log"
)

// loggerSet builds one logger per distinct [log] section, so runs that share
// a log directory share its rotating file.
type loggerSet struct {
	mu      sync.Mutex
	loggers map[config.LogConfig]*logrus.Logger
}

func newLoggerSet() *loggerSet {
	return &loggerSet{loggers: make(map[config.LogConfig]*logrus.Logger)}
}

func (s *loggerSet) get(c config.LogConfig) (*logrus.Logger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.loggers[c]; ok {
		return l, nil
	}
	l, err := klog.New(klog.Options{Level: c.Level, Dir: c.Dir})
	if err != nil {
		return nil, err
	}
	s.loggers[c] = l
	return l, nil
}

// Package app boots a kernel, registers the processes a run describes and
// collects the outcome.
package app

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"mkernel/config"
	"mkernel/kernel"
	"mkernel/task"
	"mkernel/tasks/echo"
	"mkernel/tasks/pingpong"
	"mkernel/tasks/spin"
	"mkernel/trace"
)

// Env carries what a run shares with its caller.
type Env struct {
	Log logrus.FieldLogger
	// Trace records the run's events when set.
	Trace *trace.Store
}

// Run boots the system described by cfg and runs it to completion.
func Run(ctx context.Context, cfg *config.Config, env Env) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := env.Log
	if log == nil {
		log = logrus.New()
	}
	log = log.WithField("run", cfg.Name)

	var rec *trace.Recorder
	opts := Options{
		MemoryPages: cfg.Kernel.MemoryPages,
		TLBEntries:  cfg.Kernel.TLBEntries,
		StackSize:   cfg.Kernel.StackSize,
		Logger:      log,
	}
	if env.Trace != nil {
		var err error
		if rec, err = env.Trace.NewRecorder(cfg.Name); err != nil {
			return nil, err
		}
		opts.Observer = rec
	}

	s, err := newSystem(cfg, opts)
	if err != nil {
		return nil, err
	}
	log.WithField("processes", len(cfg.Process)).Info("booting")
	rep, runErr := s.Run(ctx)
	if rep != nil {
		rep.Name = cfg.Name
	}

	// Halted and interrupted runs keep their trace too.
	if rec != nil && rep != nil {
		if err := rec.Flush(); err != nil {
			return rep, err
		}
		rep.TraceRun = rec.ID().String()
	}
	if runErr != nil {
		return rep, runErr
	}

	l := log.WithField("switches", rep.Switches)
	switch {
	case rep.Panic != nil:
		l.WithError(rep.Panic.Err).Error("halted")
	case len(rep.Blocked()) > 0:
		l.WithField("blocked", len(rep.Blocked())).Warn("finished with blocked processes")
	default:
		l.Info("finished")
	}
	return rep, nil
}

func newSystem(cfg *config.Config, opts Options) (*System, error) {
	s, err := NewSystem(opts)
	if err != nil {
		return nil, err
	}
	for _, pc := range cfg.Process {
		t, err := NewTask(pc)
		if err != nil {
			return nil, err
		}
		if _, err := s.spawn(pc.Name, pc.Task, kernel.Priority(pc.Priority), t); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// NewTask builds the task body a process entry describes.
func NewTask(pc config.ProcessConfig) (task.Task, error) {
	switch pc.Task {
	case config.TaskPing:
		return &pingpong.Ping{Peer: pc.Peer, Rounds: pc.Rounds}, nil
	case config.TaskPong:
		return &pingpong.Pong{Peer: pc.Peer, Rounds: pc.Rounds}, nil
	case config.TaskEcho:
		return &echo.Task{Rounds: pc.Rounds}, nil
	case config.TaskSpin:
		return &spin.Task{Steps: pc.Steps}, nil
	default:
		return nil, errors.Errorf("app: unknown task %q", pc.Task)
	}
}

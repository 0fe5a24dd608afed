package main

import (
	"context"
	"os"
	"os/signal"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"

	"mkernel/app"
	"mkernel/config"
	"mkernel/trace"
)

var (
	parallelFlag = cli.IntFlag{
		Name:  "parallel, p",
		Usage: "number of runs executed at once",
		Value: 4,
	}
	timeoutFlag = cli.DurationFlag{
		Name:  "timeout",
		Usage: "give up on a run after this long (0 = never)",
	}

	runCommand = cli.Command{
		Name:      "run",
		Usage:     "Boot the processes of one or more config files",
		ArgsUsage: "[config.toml...]",
		Flags:     []cli.Flag{parallelFlag, timeoutFlag},
		Description: `
Each file is an independent run on its own kernel. Without arguments the
global --config file, or the built-in ping/pong run, is used.`,
		Action: runAction,
	}
)

func runAction(ctx *cli.Context) error {
	cfgs, err := loadConfigs(ctx)
	if err != nil {
		return err
	}

	sctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if d := ctx.Duration(timeoutFlag.Name); d > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(sctx, d)
		defer cancel()
	}

	stores := newStoreSet()
	defer stores.close()

	logs := make([]*logrus.Logger, len(cfgs))
	for i, cfg := range cfgs {
		if logs[i], err = loggers.get(cfg.Log); err != nil {
			return errors.Wrapf(err, "run %s", cfg.Name)
		}
	}

	reports := make([]*app.Report, len(cfgs))
	g, gctx := errgroup.WithContext(sctx)
	if n := ctx.Int(parallelFlag.Name); n > 0 {
		g.SetLimit(n)
	}
	for i, cfg := range cfgs {
		i, cfg := i, cfg
		g.Go(func() error {
			store, err := stores.open(cfg.Trace.DB)
			if err != nil {
				return err
			}
			rep, err := app.Run(gctx, cfg, app.Env{Log: logs[i], Trace: store})
			reports[i] = rep
			return errors.Wrapf(err, "run %s", cfg.Name)
		})
	}
	runErr := g.Wait()

	failed := 0
	for _, rep := range reports {
		if rep == nil {
			continue
		}
		printReport(os.Stdout, rep)
		if !rep.OK() {
			failed++
		}
	}
	if runErr != nil {
		return runErr
	}
	if failed > 0 {
		return errors.Errorf("%d of %d runs did not finish cleanly", failed, len(cfgs))
	}
	return nil
}

func loadConfigs(ctx *cli.Context) ([]*config.Config, error) {
	if ctx.NArg() == 0 {
		cfg, err := config.FromContext(ctx)
		if err != nil {
			return nil, err
		}
		return []*config.Config{cfg}, nil
	}
	var cfgs []*config.Config
	for _, path := range ctx.Args() {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, errors.Wrap(err, path)
		}
		config.Override(ctx, cfg)
		cfgs = append(cfgs, cfg)
	}
	return cfgs, nil
}

// storeSet opens each trace database once, however many runs share it.
type storeSet struct {
	mu     sync.Mutex
	stores map[string]*trace.Store
}

func newStoreSet() *storeSet {
	return &storeSet{stores: make(map[string]*trace.Store)}
}

func (s *storeSet) open(path string) (*trace.Store, error) {
	if path == "" {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.stores[path]; ok {
		return st, nil
	}
	st, err := trace.Open(path)
	if err != nil {
		return nil, err
	}
	s.stores[path] = st
	return st, nil
}

func (s *storeSet) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for path, st := range s.stores {
		if err := st.Close(); err != nil {
			logger.WithError(err).WithField("db", path).Warn("closing trace store")
		}
	}
}

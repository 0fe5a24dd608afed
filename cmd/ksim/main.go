// Command ksim boots the kernel on the host and runs processes on it.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"mkernel/config"
	"mkernel/internal/buildinfo"
)

var (
	ksim    = cli.NewApp()
	logger  *logrus.Logger
	loggers = newLoggerSet()
)

func init() {
	ksim.Name = filepath.Base(os.Args[0])
	ksim.Usage = "run processes on the simulated kernel"
	ksim.Version = buildinfo.Short()
	ksim.HideVersion = true
	ksim.Flags = []cli.Flag{
		config.ConfigFlag,
		config.LogLevelFlag,
		config.LogDirFlag,
		config.TraceDBFlag,
	}
	ksim.Commands = []cli.Command{
		runCommand,
		scriptCommand,
		shellCommand,
		traceCommand,
		configCommand,
		versionCommand,
	}
	sort.Sort(cli.CommandsByName(ksim.Commands))
	// The global logger follows the [log] section of --config; flags win.
	ksim.Before = func(ctx *cli.Context) error {
		cfg, err := config.FromContext(ctx)
		if err != nil {
			return err
		}
		logger, err = loggers.get(cfg.Log)
		return err
	}
	ksim.Action = runCommand.Action
}

func main() {
	if err := ksim.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

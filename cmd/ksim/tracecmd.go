package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
	"github.com/urfave/cli"

	"mkernel/config"
	"mkernel/trace"
)

var traceCommand = cli.Command{
	Name:     "trace",
	Usage:    "Inspect recorded runs",
	Category: "TRACE COMMANDS",
	Subcommands: []cli.Command{
		{
			Name:   "ls",
			Usage:  "List recorded runs",
			Action: traceList,
		},
		{
			Name:      "show",
			Usage:     "Print the events of a run",
			ArgsUsage: "<run id>",
			Action:    traceShow,
		},
		{
			Name:      "rm",
			Usage:     "Delete a run",
			ArgsUsage: "<run id>",
			Action:    traceRemove,
		},
	},
}

func openTraceStore(ctx *cli.Context) (*trace.Store, error) {
	cfg, err := config.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.Trace.DB == "" {
		return nil, errors.New("trace: no database; pass --trace or set trace.db")
	}
	return trace.Open(cfg.Trace.DB)
}

func runID(ctx *cli.Context) (uuid.UUID, error) {
	if ctx.NArg() != 1 {
		return uuid.Nil, errors.New("trace: expected one run id")
	}
	id, err := uuid.FromString(ctx.Args().First())
	return id, errors.Wrap(err, "trace: run id")
}

func traceList(ctx *cli.Context) error {
	store, err := openTraceStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Runs()
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Printf("%s  %s  %-16s %6d events\n", r.ID, r.Started.Format("2006-01-02 15:04:05"), r.Name, r.Events)
	}
	return nil
}

func traceShow(ctx *cli.Context) error {
	id, err := runID(ctx)
	if err != nil {
		return err
	}
	store, err := openTraceStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	events, err := store.Events(id)
	if err != nil {
		return err
	}
	for _, ev := range events {
		fmt.Fprintln(os.Stdout, ev)
	}
	return nil
}

func traceRemove(ctx *cli.Context) error {
	id, err := runID(ctx)
	if err != nil {
		return err
	}
	store, err := openTraceStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Delete(id)
}

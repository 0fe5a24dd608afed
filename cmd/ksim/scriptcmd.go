package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"mkernel/config"
	"mkernel/internal/script"
	"mkernel/trace"
)

var (
	scriptCommand = cli.Command{
		Name:      "script",
		Usage:     "Drive a step-mode kernel from command files",
		ArgsUsage: "<file.ksim>...",
		Description: `
Every file runs on a fresh kernel. The interpreter acts on behalf of the
running process; "help" inside a script lists the commands.`,
		Action: scriptAction,
	}

	shellCommand = cli.Command{
		Name:   "shell",
		Usage:  "Drive a step-mode kernel interactively",
		Action: shellAction,
	}
)

func scriptAction(ctx *cli.Context) error {
	if ctx.NArg() == 0 {
		return errors.New("script: no files given")
	}
	cfg, err := config.FromContext(ctx)
	if err != nil {
		return err
	}
	for _, path := range ctx.Args() {
		if err := runScript(cfg, path); err != nil {
			return errors.Wrap(err, path)
		}
	}
	return nil
}

func runScript(cfg *config.Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	in, done, err := newInterpreter(cfg, os.Stdout, path)
	if err != nil {
		return err
	}
	defer done()
	return in.Run(f)
}

// newInterpreter boots a step-mode kernel sized by cfg, recording to the
// configured trace store if any.
func newInterpreter(cfg *config.Config, out io.Writer, name string) (*script.Interpreter, func(), error) {
	opts := script.Options{
		MemoryPages: cfg.Kernel.MemoryPages,
		TLBEntries:  cfg.Kernel.TLBEntries,
		StackSize:   cfg.Kernel.StackSize,
	}
	done := func() {}
	if cfg.Trace.DB != "" {
		store, err := trace.Open(cfg.Trace.DB)
		if err != nil {
			return nil, nil, err
		}
		rec, err := store.NewRecorder(name)
		if err != nil {
			store.Close()
			return nil, nil, err
		}
		opts.Observer = rec
		done = func() {
			if err := rec.Flush(); err != nil {
				logger.WithError(err).Warn("flushing trace")
			}
			store.Close()
			fmt.Fprintf(out, "trace %s\n", rec.ID())
		}
	}
	in, err := script.New(out, opts)
	if err != nil {
		done()
		return nil, nil, err
	}
	return in, done, nil
}

func shellAction(ctx *cli.Context) error {
	cfg, err := config.FromContext(ctx)
	if err != nil {
		return err
	}
	in, done, err := newInterpreter(cfg, os.Stdout, "shell")
	if err != nil {
		return err
	}
	defer done()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	fmt.Println(`kernel shell; "help" lists commands, "quit" leaves`)
	for {
		input, err := line.Prompt(prompt(in))
		if err == liner.ErrPromptAborted || err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "shell")
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if input == "quit" {
			return nil
		}
		line.AppendHistory(input)
		if err := in.Exec(input); err != nil {
			fmt.Println(failColor.Sprint(err))
		}
	}
}

func prompt(in *script.Interpreter) string {
	name, err := in.Kernel().CurrentProcessName()
	if err != nil {
		return "halted> "
	}
	return name + "> "
}

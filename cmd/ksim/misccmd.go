package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"mkernel/config"
	"mkernel/internal/buildinfo"
)

var (
	configCommand = cli.Command{
		Name:     "config",
		Usage:    "Manage run configurations",
		Category: "CONFIG COMMANDS",
		Subcommands: []cli.Command{
			{
				Name:      "new",
				Usage:     "Write the built-in ping/pong run to a file",
				ArgsUsage: "<filename>",
				Action:    newConfig,
			},
			{
				Name:      "check",
				Usage:     "Validate config files",
				ArgsUsage: "<filename>...",
				Action:    checkConfig,
			},
		},
	}

	versionCommand = cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Action: func(ctx *cli.Context) error {
			fmt.Println("ksim", buildinfo.String())
			return nil
		},
	}
)

func newConfig(ctx *cli.Context) error {
	path := ctx.Args().First()
	if path == "" {
		return errors.New("config: please give a file name")
	}
	return config.Save(path, config.Default())
}

func checkConfig(ctx *cli.Context) error {
	for _, path := range ctx.Args() {
		cfg, err := config.Load(path)
		if err != nil {
			return errors.Wrap(err, path)
		}
		fmt.Printf("%s: %s, %d processes\n", path, cfg.Name, len(cfg.Process))
	}
	return nil
}

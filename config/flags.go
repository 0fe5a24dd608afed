package config

import "github.com/urfave/cli"

var (
	ConfigFlag = cli.StringFlag{
		Name:  "config, c",
		Usage: "TOML file describing the run",
	}

	LogLevelFlag = cli.StringFlag{
		Name:  "loglevel",
		Usage: "log level: panic, fatal, error, warn, info, debug",
	}

	LogDirFlag = cli.StringFlag{
		Name:  "logdir",
		Usage: "directory for rotating log files",
	}

	TraceDBFlag = cli.StringFlag{
		Name:  "trace",
		Usage: "LevelDB directory to record scheduling events to",
	}
)

// FromContext loads the file named by --config, or the default run, and
// applies the command-line overrides.
func FromContext(ctx *cli.Context) (*Config, error) {
	cfg := Default()
	if path := ctx.GlobalString(ConfigFlag.Name); path != "" {
		var err error
		if cfg, err = Load(path); err != nil {
			return nil, err
		}
	}
	Override(ctx, cfg)
	return cfg, nil
}

// Override copies flags the user set onto cfg.
func Override(ctx *cli.Context, cfg *Config) {
	if ctx.GlobalIsSet(LogLevelFlag.Name) {
		cfg.Log.Level = ctx.GlobalString(LogLevelFlag.Name)
	}
	if ctx.GlobalIsSet(LogDirFlag.Name) {
		cfg.Log.Dir = ctx.GlobalString(LogDirFlag.Name)
	}
	if ctx.GlobalIsSet(TraceDBFlag.Name) {
		cfg.Trace.DB = ctx.GlobalString(TraceDBFlag.Name)
	}
}

// Package config describes a simulation run: the emulated machine, logging,
// tracing and the processes to boot.
package config

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Task kinds understood by the app package.
const (
	TaskPing = "ping"
	TaskPong = "pong"
	TaskEcho = "echo"
	TaskSpin = "spin"
)

// LeastPriority mirrors kernel.LeastPriority; config does not import the kernel.
const LeastPriority = 15

type Config struct {
	Name    string          `toml:"name"`
	Log     LogConfig       `toml:"log"`
	Kernel  KernelConfig    `toml:"kernel"`
	Trace   TraceConfig     `toml:"trace"`
	Process []ProcessConfig `toml:"process"`
}

type LogConfig struct {
	Level string `toml:"level"`
	// Dir enables a rotating log file in addition to stderr.
	Dir string `toml:"dir"`
}

type KernelConfig struct {
	StackSize   int `toml:"stack_size"`
	TLBEntries  int `toml:"tlb_entries"`
	MemoryPages int `toml:"memory_pages"`
}

type TraceConfig struct {
	// DB is the LevelDB directory events are recorded to; empty disables tracing.
	DB string `toml:"db"`
}

type ProcessConfig struct {
	Name     string `toml:"name"`
	Priority uint8  `toml:"priority"`
	Task     string `toml:"task"`
	Peer     string `toml:"peer"`
	// Rounds is the number of exchanges for ping, pong and echo. Zero means
	// serve forever for echo.
	Rounds int `toml:"rounds"`
	// Steps is the number of yields for spin.
	Steps int `toml:"steps"`
}

// Default returns a two-process ping/pong run.
func Default() *Config {
	return &Config{
		Name: "pingpong",
		Log:  LogConfig{Level: "info"},
		Kernel: KernelConfig{
			StackSize:   4096,
			TLBEntries:  64,
			MemoryPages: 256,
		},
		Process: []ProcessConfig{
			{Name: "ping", Priority: 3, Task: TaskPing, Peer: "pong", Rounds: 2},
			{Name: "pong", Priority: 3, Task: TaskPong, Peer: "ping", Rounds: 2},
		},
	}
}

// Load reads a TOML file. Fields the file leaves out keep their defaults,
// except the process list, which the file replaces.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "config: read")
	}
	return Parse(string(data))
}

// Parse decodes a TOML document on top of Default.
func Parse(data string) (*Config, error) {
	cfg := Default()
	cfg.Process = nil
	md, err := toml.Decode(data, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "config: decode")
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		return nil, errors.Errorf("config: unknown key %q", undec[0].String())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the machine sizes and the process list.
func (c *Config) Validate() error {
	if c.Kernel.StackSize < 64 {
		return errors.Errorf("config: stack_size %d is below 64 bytes", c.Kernel.StackSize)
	}
	if c.Kernel.MemoryPages <= 0 {
		return errors.Errorf("config: memory_pages must be positive, got %d", c.Kernel.MemoryPages)
	}
	if c.Kernel.TLBEntries < 0 {
		return errors.Errorf("config: tlb_entries must not be negative, got %d", c.Kernel.TLBEntries)
	}

	names := make(map[string]bool, len(c.Process))
	for i, p := range c.Process {
		if p.Name == "" {
			return errors.Errorf("config: process #%d has no name", i)
		}
		if p.Name == "idle" {
			return errors.New("config: the name idle is reserved")
		}
		if names[p.Name] {
			return errors.Errorf("config: duplicate process %q", p.Name)
		}
		names[p.Name] = true
		if p.Priority > LeastPriority {
			return errors.Errorf("config: process %q: priority %d out of range 0..%d", p.Name, p.Priority, LeastPriority)
		}
		if p.Rounds < 0 || p.Steps < 0 {
			return errors.Errorf("config: process %q: negative count", p.Name)
		}
		switch p.Task {
		case TaskPing, TaskPong:
			if p.Peer == "" || p.Peer == p.Name {
				return errors.Errorf("config: process %q: %s needs another process as peer", p.Name, p.Task)
			}
		case TaskEcho, TaskSpin:
		default:
			return errors.Errorf("config: process %q: unknown task %q", p.Name, p.Task)
		}
	}
	for _, p := range c.Process {
		if p.Peer != "" && !names[p.Peer] {
			return errors.Errorf("config: process %q: unknown peer %q", p.Name, p.Peer)
		}
	}
	return nil
}

// Save writes c as TOML.
func Save(path string, c *Config) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "config: create")
	}
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		f.Close()
		return errors.Wrap(err, "config: encode")
	}
	return errors.Wrap(f.Close(), "config: close")
}

package main

import (
	"errors"
	"flag"
	"os"
)

// Config holds the command line configuration.
type Config struct {
	IntentPath string

	OutputDir  string
	Templates  string
	FilledPath string
	Policies   string
	LogLevel   string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		OutputDir: "./output",
		Templates: "",
		Policies:  "intent",
		LogLevel:  "info",
	}
}

// ParseFlags parses command line flags and returns a Config.
func ParseFlags() (Config, error) {
	return parseFlags(flag.CommandLine, os.Args[1:])
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := DefaultConfig()

	fs.StringVar(&cfg.OutputDir, "output", cfg.OutputDir, "Directory to write router configurations and plan.yaml to")
	fs.StringVar(&cfg.Templates, "templates", cfg.Templates, "Path to a templates YAML file overriding the built-in templates")
	fs.StringVar(&cfg.FilledPath, "filled", cfg.FilledPath, "Path of the filled intent (default <intent>_filled.<ext>)")
	fs.StringVar(&cfg.Policies, "policies", cfg.Policies, "Policy synthesis: intent, on or off")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warning or error")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if fs.NArg() != 1 {
		return cfg, errors.New("exactly one intent file is required")
	}
	cfg.IntentPath = fs.Arg(0)
	if cfg.FilledPath == "" {
		cfg.FilledPath = FilledPath(cfg.IntentPath)
	}
	return cfg, nil
}

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
)

func main() {
	cfg, err := ParseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger := setupGlobalLogger(os.Stderr, cfg.LogLevel)

	mode, err := ParsePolicyMode(cfg.Policies)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Load templates
	templates, err := loadTemplates(cfg.Templates)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading templates: %v\n", err)
		os.Exit(1)
	}

	// Load intent
	in, err := LoadIntent(cfg.IntentPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading intent: %v\n", err)
		os.Exit(1)
	}

	// Compile
	plan, err := NewCompiler(logger, mode).Compile(in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error compiling intent: %v\n", err)
		os.Exit(1)
	}

	// Render everything before touching the output directory
	out, err := renderOutputs(plan, templates, FormatOf(cfg.IntentPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error rendering configs: %v\n", err)
		os.Exit(1)
	}

	if err := writeOutputs(cfg.OutputDir, out); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing configs: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(cfg.FilledPath, out.filled, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing filled intent: %v\n", err)
		os.Exit(1)
	}

	logger.Info("configs written", "output", cfg.OutputDir, "routers", len(plan.Routers), "filled", cfg.FilledPath)
}

func loadTemplates(path string) (*Templates, error) {
	if path == "" {
		return DefaultTemplates()
	}
	return LoadTemplates(path)
}

// planDocument is the layout of plan.yaml.
type planDocument struct {
	Routers []RouterConfig `yaml:"routers"`
}

type outputs struct {
	configs map[string]string // path relative to the output directory
	plan    []byte
	filled  []byte
}

func renderOutputs(plan *Plan, templates *Templates, format IntentFormat) (*outputs, error) {
	out := &outputs{configs: make(map[string]string, len(plan.Routers))}
	for _, rc := range plan.Routers {
		text, err := templates.Render(rc)
		if err != nil {
			return nil, fmt.Errorf("failed to render %s: %w", rc.Hostname, err)
		}
		out.configs[filepath.Join(rc.ASN.Label(), rc.Hostname+"_config.txt")] = text
	}

	data, err := yaml.MarshalWithOptions(planDocument{Routers: plan.Routers}, yaml.IndentSequence(true))
	if err != nil {
		return nil, fmt.Errorf("failed to encode plan: %w", err)
	}
	out.plan = data

	if out.filled, err = EncodeIntent(plan.Filled, format); err != nil {
		return nil, fmt.Errorf("failed to encode filled intent: %w", err)
	}
	return out, nil
}

func writeOutputs(dir string, out *outputs) error {
	for name, config := range out.configs {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(config), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}

	path := filepath.Join(dir, "plan.yaml")
	if err := os.WriteFile(path, out.plan, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// setupGlobalLogger builds the text logger used for progress output and sets
// it as the slog default.
func setupGlobalLogger(w io.Writer, level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		AddSource: true,
	}

	switch level {
	case "info":
		opts.Level = slog.LevelInfo
	case "debug":
		opts.Level = slog.LevelDebug
	case "warning":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	logger := slog.New(slog.NewTextHandler(w, opts))
	slog.SetDefault(logger)
	return logger
}

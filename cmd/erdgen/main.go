package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"erdgen/internal/app"
	"erdgen/internal/config"
	"erdgen/internal/logging"
	"erdgen/util"
)

var version = "0.1.0-dev"

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
	root       string

	stdout io.Writer
	stderr io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &globalOptions{stdout: stdout, stderr: stderr}

	rootCmd := &cobra.Command{
		Use:   "erdgen",
		Short: "Draw Mermaid class diagrams of the models in a code base",
		Long: `erdgen reads the symbols of a source file, turns its classes, interfaces
and modules into a Mermaid classDiagram and follows model associations
into the files that define their targets.`,
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "Config file (default: <root>/"+config.FileName+")")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level: debug|info|warn|error")
	pf.StringVar(&opts.logFormat, "log-format", "", "Log format: text|json")
	pf.StringVar(&opts.root, "root", "", "Workspace root (default: nearest directory with "+config.FileName+" or .git)")

	rootCmd.AddCommand(
		newGenerateCmd(opts),
		newIndexCmd(opts),
		newSymbolsCmd(opts),
		newServeCmd(opts),
		newExportCmd(opts),
	)
	return rootCmd
}

// workspaceRoot resolves --root, or searches upward from start.
func (o *globalOptions) workspaceRoot(start string) (string, error) {
	if o.root != "" {
		return filepath.Abs(o.root)
	}
	return util.FindWorkspaceRoot(start)
}

// load reads the configuration of the workspace containing start and
// builds the logger. overrides may adjust the config before validation
// of the result by app.New.
func (o *globalOptions) load(start string, overrides func(*config.Config)) (*config.Config, string, *slog.Logger, error) {
	root, err := o.workspaceRoot(start)
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to find workspace root: %w", err)
	}
	cfg, err := config.Load(o.configPath, root)
	if err != nil {
		return nil, "", nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	if overrides != nil {
		overrides(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, "", nil, err
		}
	}
	logger := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Writer: o.stderr})
	return cfg, root, logger, nil
}

// openApp loads the configuration and wires an App. The caller closes it.
func (o *globalOptions) openApp(start string, overrides func(*config.Config)) (*app.App, error) {
	cfg, root, logger, err := o.load(start, overrides)
	if err != nil {
		return nil, err
	}
	return app.New(cfg, root, logger)
}

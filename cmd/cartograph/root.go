package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tonimelisma/cartograph/internal/config"
	"github.com/tonimelisma/cartograph/internal/graphengine"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd.
var (
	flagWatchDir string
	flagJSON     bool
	flagVerbose  bool
	flagDebug    bool
	flagQuiet    bool
)

// CLIContext bundles the resolved config holder and logger. Created once
// in PersistentPreRunE so RunE handlers never reload config themselves.
type CLIContext struct {
	Holder *config.Holder
	Logger *slog.Logger
}

type cliContextKey struct{}

func cliContextFrom(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		return nil
	}

	return cc
}

// mustCLIContext extracts the CLIContext or panics. RunE handlers can
// only reach this point after PersistentPreRunE has populated it, so a
// miss here is always a programmer error in the command tree.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("BUG: CLIContext not found in context")
	}

	return cc
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "cartograph",
		Short:   "Live knowledge-graph reconciliation over a watched document directory",
		Long:    "Watches a directory of Markdown/Org-mode documents, keeps an in-memory knowledge graph reconciled against them, and serves it over HTTP.",
		Version: version,
		// Silence Cobra's own error/usage printing — errors are reported by exitOnError.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagWatchDir, "dir", ".", "directory to watch")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "show detailed output")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newRescanCmd())
	cmd.AddCommand(newQueryCmd())

	return cmd
}

// loadConfig resolves the watched directory's configuration and stores a
// Holder plus a logger in the command's context for every subcommand.
func loadConfig(cmd *cobra.Command) error {
	bootstrap := buildLogger(nil)

	dir, err := filepath.Abs(flagWatchDir)
	if err != nil {
		return fmt.Errorf("resolving watch directory: %w", err)
	}

	cfg, foundPath, err := config.Load(dir, bootstrap)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if foundPath == "" {
		foundPath = filepath.Join(dir, ".cartograph.toml")
	}

	logger := buildLogger(cfg)
	holder := config.NewHolder(cfg, foundPath)

	cc := &CLIContext{Holder: holder, Logger: logger}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	return nil
}

// indexDefsFrom turns the configured tag-based index declarations into the
// predicate form the graph engine runs.
func indexDefsFrom(cfg *config.Config) []graphengine.IndexDef {
	defs := make([]graphengine.IndexDef, 0, len(cfg.Indices))
	for _, idx := range cfg.Indices {
		defs = append(defs, graphengine.TagIndex(idx.Name, idx.Tag))
	}

	return defs
}

// buildLogger creates an slog.Logger whose level is set by cfg.LogLevel
// (lowest priority), then overridden by CLI flags (highest priority, and
// mutually exclusive with each other by Cobra's own enforcement). Pass nil
// for the pre-config bootstrap logger used while resolving configuration.
func buildLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelWarn

	if cfg != nil {
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelInfo
	}

	if flagDebug {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg != nil && cfg.LogDirectory != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.LogDirectory + "/cartograph.log",
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     28,
		}

		return slog.New(slog.NewJSONHandler(rotator, opts))
	}

	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

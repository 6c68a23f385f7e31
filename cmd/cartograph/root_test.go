package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/cartograph/internal/config"
)

func resetFlags() {
	flagWatchDir = "."
	flagJSON = false
	flagVerbose = false
	flagDebug = false
	flagQuiet = false
}

func TestBuildLogger_LevelPrecedence(t *testing.T) {
	resetFlags()
	defer resetFlags()

	t.Run("nil config defaults to warn", func(t *testing.T) {
		logger := buildLogger(nil)
		assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
		assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))
	})

	t.Run("config log level sets the floor", func(t *testing.T) {
		logger := buildLogger(&config.Config{LogLevel: "debug"})
		assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
	})

	t.Run("verbose flag overrides config", func(t *testing.T) {
		flagVerbose = true
		defer resetFlags()

		logger := buildLogger(&config.Config{LogLevel: "error"})
		assert.True(t, logger.Enabled(context.Background(), slog.LevelInfo))
	})

	t.Run("debug flag wins over verbose", func(t *testing.T) {
		flagVerbose = true
		flagDebug = true
		defer resetFlags()

		logger := buildLogger(nil)
		assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
	})

	t.Run("quiet flag raises the floor to error", func(t *testing.T) {
		flagQuiet = true
		defer resetFlags()

		logger := buildLogger(&config.Config{LogLevel: "debug"})
		assert.False(t, logger.Enabled(context.Background(), slog.LevelWarn))
		assert.True(t, logger.Enabled(context.Background(), slog.LevelError))
	})
}

func TestBuildLogger_RotatesToFileWhenLogDirectorySet(t *testing.T) {
	resetFlags()
	defer resetFlags()

	dir := t.TempDir()
	logger := buildLogger(&config.Config{LogDirectory: dir, LogLevel: "info"})
	require.NotNil(t, logger)

	logger.Info("hello")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestMustCLIContext_PanicsWithoutContext(t *testing.T) {
	assert.Panics(t, func() {
		mustCLIContext(context.Background())
	})
}

func TestCliContextFrom_RoundTrips(t *testing.T) {
	cc := &CLIContext{Holder: config.NewHolder(config.DefaultConfig(), "")}
	ctx := context.WithValue(context.Background(), cliContextKey{}, cc)

	assert.Same(t, cc, cliContextFrom(ctx))
	assert.Same(t, cc, mustCLIContext(ctx))
	assert.Nil(t, cliContextFrom(context.Background()))
}

func TestLoadConfig_PopulatesContextFromDefaults(t *testing.T) {
	resetFlags()
	defer resetFlags()

	dir := t.TempDir()
	flagWatchDir = dir

	cmd := newRootCmd()
	cmd.SetContext(context.Background())

	require.NoError(t, loadConfig(cmd))

	cc := cliContextFrom(cmd.Context())
	require.NotNil(t, cc)
	assert.Equal(t, dir, cc.Holder.Config().WatchDir)
	assert.Equal(t, filepath.Join(dir, ".cartograph.toml"), cc.Holder.Path())
}

func TestLoadConfig_FindsConfigFileAtWatchRoot(t *testing.T) {
	resetFlags()
	defer resetFlags()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, ".cartograph.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`port = 9999`), 0o644))

	flagWatchDir = dir

	cmd := newRootCmd()
	cmd.SetContext(context.Background())

	require.NoError(t, loadConfig(cmd))

	cc := cliContextFrom(cmd.Context())
	require.NotNil(t, cc)
	assert.Equal(t, 9999, cc.Holder.Config().Port)
	assert.Equal(t, cfgPath, cc.Holder.Path())
}

func TestIndexDefsFrom_BuildsOneDefPerConfiguredIndex(t *testing.T) {
	cfg := &config.Config{
		Indices: []config.IndexConfig{
			{Name: "projects", Tag: "project"},
			{Name: "areas", Tag: "area"},
		},
	}

	defs := indexDefsFrom(cfg)
	require.Len(t, defs, 2)
	assert.Equal(t, "projects", defs[0].Name)
	assert.Equal(t, "areas", defs[1].Name)
}

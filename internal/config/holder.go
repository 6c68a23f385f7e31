package config

import (
	"fmt"
	"log/slog"
	"sync"
)

// Holder provides thread-safe access to a mutable *Config and an immutable
// config file path. Both the query server and the orchestrator read through
// a shared Holder, so SIGHUP reload updates config in exactly one place.
type Holder struct {
	mu   sync.RWMutex
	cfg  *Config
	path string // immutable after construction
}

// NewHolder creates a Holder with the initial config and config file path.
func NewHolder(cfg *Config, path string) *Holder {
	return &Holder{
		cfg:  cfg,
		path: path,
	}
}

// Config returns the current config snapshot. Thread-safe (read lock).
func (h *Holder) Config() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.cfg
}

// Path returns the config file path. Thread-safe without locking because
// the path is immutable after construction.
func (h *Holder) Path() string {
	return h.path
}

// Update replaces the config. Thread-safe (write lock). Called on SIGHUP
// reload — one call updates config for all consumers (query server,
// orchestrator).
func (h *Holder) Update(cfg *Config) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.cfg = cfg
}

// Reload re-reads configuration from the current config's watch root and
// swaps it in on success, leaving the previous config (and its WatchDir,
// which a SIGHUP reload cannot change) untouched on failure. This is the
// one operation a live SIGHUP handler needs, so it lives here rather than
// being reassembled from Load+Update at every call site.
func (h *Holder) Reload(logger *slog.Logger) error {
	watchDir := h.Config().WatchDir

	cfg, _, err := Load(watchDir, logger)
	if err != nil {
		return fmt.Errorf("reloading config from %s: %w", watchDir, err)
	}

	h.Update(cfg)

	return nil
}

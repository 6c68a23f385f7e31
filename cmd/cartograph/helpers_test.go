package main

import (
	"log/slog"
	"os"
)

// testLogger is a quiet logger shared by this package's tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

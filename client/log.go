package main

import (
	"io"
	"log/slog"
	"os"
)

// logger shows provisioning logs on stderr in verbose mode only, as the
// spinners already report progress.
func logger() *slog.Logger {
	if !verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

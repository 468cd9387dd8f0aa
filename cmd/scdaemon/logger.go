// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// newLogger builds the daemon's logger. With a log file, records are
// appended to it as JSON lines. Otherwise they go to stderr: text when
// stderr is a terminal, JSON when it is piped or redirected.
func newLogger(stderr io.Writer, logFile string, level slog.Level, addSource bool) (*slog.Logger, func() error, error) {
	options := &slog.HandlerOptions{Level: level, AddSource: addSource}

	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		return slog.New(slog.NewJSONHandler(file, options)), file.Close, nil
	}

	var handler slog.Handler
	if file, ok := stderr.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		handler = slog.NewTextHandler(stderr, options)
	} else {
		handler = slog.NewJSONHandler(stderr, options)
	}
	return slog.New(handler), func() error { return nil }, nil
}

// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

// Package connection runs one accepted connection, pipe or socket,
// from nonce check to final cleanup.
package connection

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"

	"github.com/0ndorio/gnupg/lib/netutil"
	"github.com/0ndorio/gnupg/lib/session"
	"github.com/0ndorio/gnupg/lib/shutdown"
)

// NonceChecker verifies that a socket connection reached the socket
// this daemon bound. *endpoint.Nonce implements it.
type NonceChecker interface {
	Check(conn io.ReadWriteCloser) error
}

// Context is everything one connection's worker owns. The event loop
// builds it just before dispatch and never touches it again.
type Context struct {
	ID      uint64
	Conn    io.ReadWriteCloser
	Primary bool
	Session *session.State
}

// Worker holds the collaborators shared by every connection worker.
type Worker struct {
	// Nonce checks socket connections. Nil skips the check, which is
	// only right for a daemon without a listening socket.
	Nonce NonceChecker

	Runner      session.Runner
	Coordinator *shutdown.Coordinator
	Logger      *slog.Logger

	// Verbose logs each handler's start and end at info level.
	Verbose bool
}

// Run serves c until its session ends, then releases it. The caller
// must have registered c.ID with the coordinator; Run reports it done
// on every path, including a panicking session. When the primary
// connection ends the daemon starts draining.
func (w *Worker) Run(ctx context.Context, c *Context) {
	defer w.Coordinator.ReportWorkerDone(c.ID)
	logger := w.Logger.With("connection", c.ID, "primary", c.Primary)

	if !c.Primary && w.Nonce != nil {
		if err := w.Nonce.Check(c.Conn); err != nil {
			logger.Info("error reading nonce on connection", "error", err)
			c.Conn.Close()
			return
		}
	}

	c.Session = session.NewState()
	if w.Verbose {
		logger.Info("handler for connection started")
	}

	err := w.runSession(ctx, c)
	switch {
	case err == nil:
	case netutil.IsExpectedCloseError(err):
		logger.Debug("connection closed by peer", "error", err)
	default:
		logger.Info("session failed", "error", err)
	}

	c.Session.Release()
	if err := c.Conn.Close(); err != nil && !netutil.IsExpectedCloseError(err) {
		logger.Debug("closing connection", "error", err)
	}
	if c.Primary {
		w.Coordinator.BeginDrain()
	}

	if w.Verbose {
		logger.Info("handler for connection terminated")
	}
}

func (w *Worker) runSession(ctx context.Context, c *Context) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("session panicked: %v\n%s", recovered, debug.Stack())
		}
	}()
	return w.Runner.RunSession(ctx, c.Conn, c.Session)
}

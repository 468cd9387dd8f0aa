// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

package eventloop

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/0ndorio/gnupg/lib/clock"
)

// acceptBackoff is the pause after a failed Accept before trying
// again.
const acceptBackoff = time.Second

// acceptor performs Accept calls on behalf of the loop, one per
// permit. At most one Accept is outstanding at any time.
type acceptor struct {
	listener net.Listener
	clock    clock.Clock
	logger   *slog.Logger

	permits  chan struct{}
	accepted chan net.Conn
	done     chan struct{}
}

func newAcceptor(listener net.Listener, c clock.Clock, logger *slog.Logger) *acceptor {
	return &acceptor{
		listener: listener,
		clock:    c,
		logger:   logger,
		permits:  make(chan struct{}, 1),
		accepted: make(chan net.Conn),
		done:     make(chan struct{}),
	}
}

// deadliner is implemented by listeners whose pending Accept can be
// cut short, such as *net.UnixListener.
type deadliner interface {
	SetDeadline(t time.Time) error
}

// stop ends accepting without accepting again. A pending Accept
// returns without taking a connection off the backlog; clients that
// connect afterwards wait in the backlog until the listener closes.
func (a *acceptor) stop() {
	if listener, ok := a.listener.(deadliner); ok {
		if err := listener.SetDeadline(time.Unix(1, 0)); err != nil {
			a.logger.Debug("setting accept deadline", "error", err)
		}
	}
}

// permit allows one more Accept.
func (a *acceptor) permit() {
	select {
	case a.permits <- struct{}{}:
	default:
	}
}

func (a *acceptor) run(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.permits:
		}

		conn, ok := a.acceptOne(ctx)
		if !ok {
			return
		}
		select {
		case a.accepted <- conn:
		case <-ctx.Done():
			conn.Close()
			return
		}
	}
}

// acceptOne retries Accept until it yields a connection. It returns
// false once the listener is closed, stop was called, or ctx is done.
func (a *acceptor) acceptOne(ctx context.Context) (net.Conn, bool) {
	for {
		conn, err := a.listener.Accept()
		if err == nil {
			return conn, true
		}
		if errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrDeadlineExceeded) || ctx.Err() != nil {
			return nil, false
		}

		a.logger.Warn("accept failed, waiting before retry", "error", err, "backoff", acceptBackoff)
		select {
		case <-ctx.Done():
			return nil, false
		case <-a.clock.After(acceptBackoff):
		}
	}
}

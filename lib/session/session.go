// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

// Package session defines what runs on a connection once the daemon
// has accepted it, and the per-connection state a session owns.
package session

import (
	"context"
	"io"
)

// NoReader is the reader slot of a session that has not opened a
// reader.
const NoReader = -1

// Runner runs one client session to completion. RunSession returns
// when the client ends the session, the connection fails, or ctx is
// cancelled between requests.
type Runner interface {
	RunSession(ctx context.Context, conn io.ReadWriter, state *State) error
}

// State is the session-level context of one connection. It is owned
// by the connection's worker and never shared.
type State struct {
	ReaderSlot int
}

// NewState returns a State with no reader assigned.
func NewState() *State {
	return &State{ReaderSlot: NoReader}
}

// Release drops the session's hold on its reader. It is safe to call
// more than once.
func (s *State) Release() {
	s.ReaderSlot = NoReader
}

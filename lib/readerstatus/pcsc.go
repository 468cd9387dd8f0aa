// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

package readerstatus

import (
	"net"
	"time"
)

// DefaultPCSCSocket is where pcscd listens on Linux.
const DefaultPCSCSocket = "/run/pcscd/pcscd.comm"

const pcscDialTimeout = 200 * time.Millisecond

// PCSCScanner reports slot 0 as PRESENT while the PC/SC daemon accepts
// connections on its socket and ABSENT otherwise. A scan takes at
// most pcscDialTimeout.
type PCSCScanner struct {
	// SocketPath defaults to DefaultPCSCSocket.
	SocketPath string

	// ReaderPort is recorded on the reported reader.
	ReaderPort string
}

// Scan implements Scanner.
func (s PCSCScanner) Scan() ([]Reader, error) {
	path := s.SocketPath
	if path == "" {
		path = DefaultPCSCSocket
	}

	state := StateAbsent
	if conn, err := net.DialTimeout("unix", path, pcscDialTimeout); err == nil {
		conn.Close()
		state = StatePresent
	}
	return []Reader{{Slot: 0, Port: s.ReaderPort, State: state}}, nil
}

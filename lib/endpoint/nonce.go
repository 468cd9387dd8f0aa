// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package endpoint

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// ErrNonceMismatch is returned by Nonce.Check for a connection that
// must not get a session.
var ErrNonceMismatch = errors.New("connection nonce mismatch")

// Nonce identifies the socket a daemon bound: the daemon's uid and the
// device and inode of the socket file. A connection passes when the
// file at the bound path is still that inode and, where the platform
// reports peer credentials, the peer runs as the daemon's user or as
// root.
type Nonce struct {
	path   string
	uid    int
	device uint64
	inode  uint64
}

// CaptureNonce records the identity of the socket file at path.
func CaptureNonce(path string) (*Nonce, error) {
	var stat unix.Stat_t
	if err := unix.Lstat(path, &stat); err != nil {
		return nil, &os.PathError{Op: "lstat", Path: path, Err: err}
	}
	if stat.Mode&unix.S_IFMT != unix.S_IFSOCK {
		return nil, fmt.Errorf("%s is not a socket", path)
	}
	return &Nonce{
		path:   path,
		uid:    os.Getuid(),
		device: uint64(stat.Dev),
		inode:  uint64(stat.Ino),
	}, nil
}

// Check verifies an accepted connection against the nonce.
func (n *Nonce) Check(conn io.ReadWriteCloser) error {
	var stat unix.Stat_t
	if err := unix.Lstat(n.path, &stat); err != nil {
		return fmt.Errorf("%w: socket %s: %v", ErrNonceMismatch, n.path, err)
	}
	if uint64(stat.Dev) != n.device || uint64(stat.Ino) != n.inode {
		return fmt.Errorf("%w: socket %s was replaced", ErrNonceMismatch, n.path)
	}

	uid, known, err := peerUID(conn)
	if err != nil {
		return fmt.Errorf("%w: reading peer credentials: %v", ErrNonceMismatch, err)
	}
	if known && uid != n.uid && uid != 0 {
		return fmt.Errorf("%w: peer uid %d, daemon uid %d", ErrNonceMismatch, uid, n.uid)
	}
	return nil
}

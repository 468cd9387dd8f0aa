// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

package endpoint

import (
	"io"
	"net"

	"golang.org/x/sys/unix"
)

// peerUID returns the uid of the process on the other end of a Unix
// socket connection. known is false for connections that are not Unix
// sockets.
func peerUID(conn io.ReadWriteCloser) (uid int, known bool, err error) {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return 0, false, nil
	}
	raw, err := unixConn.SyscallConn()
	if err != nil {
		return 0, false, err
	}

	var credentials *unix.Ucred
	var credentialsErr error
	if err := raw.Control(func(fd uintptr) {
		credentials, credentialsErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return 0, false, err
	}
	if credentialsErr != nil {
		return 0, false, credentialsErr
	}
	return int(credentials.Uid), true, nil
}

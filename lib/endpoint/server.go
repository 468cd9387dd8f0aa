// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package endpoint

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// ListenBacklog is the listen(2) backlog of the daemon socket.
const ListenBacklog = 5

// Endpoint is a bound, listening daemon socket.
type Endpoint struct {
	// Path is the socket's filesystem name.
	Path string

	// Standard is true for the fixed name under the home directory.
	Standard bool

	// BindAttempts is 2 when a stale socket was removed and the bind
	// retried, 1 otherwise.
	BindAttempts int

	listener *net.UnixListener
	nonce    *Nonce
	logger   *slog.Logger

	retire sync.Once
}

// Bind creates the listening socket at path. See the package
// documentation for the stale-socket retry rule.
func Bind(isStandardName bool, path string, logger *slog.Logger) (*Endpoint, error) {
	if err := ValidateName(path); err != nil {
		return nil, err
	}

	attempts := 1
	listener, err := listenUnix(path, ListenBacklog)
	if err != nil && isStandardName && errors.Is(err, unix.EADDRINUSE) {
		logger.Debug("removing stale socket", "path", path)
		os.Remove(path)
		attempts++
		listener, err = listenUnix(path, ListenBacklog)
	}
	if err != nil {
		return nil, fmt.Errorf("error binding socket to %q: %w", path, err)
	}

	nonce, err := CaptureNonce(path)
	if err != nil {
		listener.Close()
		os.Remove(path)
		return nil, fmt.Errorf("error getting nonce for the socket: %w", err)
	}

	return &Endpoint{
		Path:         path,
		Standard:     isStandardName,
		BindAttempts: attempts,
		listener:     listener,
		nonce:        nonce,
		logger:       logger,
	}, nil
}

// Adopt wraps a listening socket inherited from a parent process.
func Adopt(path string, standard bool, file *os.File, logger *slog.Logger) (*Endpoint, error) {
	defer file.Close()

	listener, err := net.FileListener(file)
	if err != nil {
		return nil, fmt.Errorf("adopting inherited socket %q: %w", path, err)
	}
	unixListener, ok := listener.(*net.UnixListener)
	if !ok {
		listener.Close()
		return nil, fmt.Errorf("inherited descriptor for %q is %T, not a Unix socket", path, listener)
	}

	nonce, err := CaptureNonce(path)
	if err != nil {
		unixListener.Close()
		return nil, fmt.Errorf("error getting nonce for the socket: %w", err)
	}

	return &Endpoint{
		Path:         path,
		Standard:     standard,
		BindAttempts: 1,
		listener:     unixListener,
		nonce:        nonce,
		logger:       logger,
	}, nil
}

// Listener returns the listening socket. Only the event loop accepts
// on it.
func (e *Endpoint) Listener() *net.UnixListener { return e.listener }

// Nonce returns the nonce captured when the socket was bound.
func (e *Endpoint) Nonce() *Nonce { return e.nonce }

// File returns a duplicate of the listening descriptor for handing to
// a child process.
func (e *Endpoint) File() (*os.File, error) { return e.listener.File() }

// Remove closes the listener and deletes the socket file, plus its
// directory for private names. Only the first call has an effect.
func (e *Endpoint) Remove() {
	e.retire.Do(func() {
		e.listener.Close()
		if err := os.Remove(e.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			e.logger.Warn("removing socket", "path", e.Path, "error", err)
		}
		if !e.Standard {
			os.Remove(filepath.Dir(e.Path))
		}
	})
}

// Handoff closes this process's copy of the listener without touching
// the filesystem, leaving cleanup to the process that inherited it.
// Remove becomes a no-op.
func (e *Endpoint) Handoff() {
	e.retire.Do(func() {
		e.listener.Close()
	})
}

// listenUnix binds and listens through x/sys/unix so the backlog is
// ours rather than the runtime's somaxconn default.
func listenUnix(path string, backlog int) (*net.UnixListener, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}
	unix.CloseOnExec(fd)

	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("bind", err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		os.Remove(path)
		return nil, os.NewSyscallError("listen", err)
	}

	file := os.NewFile(uintptr(fd), path)
	defer file.Close()

	listener, err := net.FileListener(file)
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	return listener.(*net.UnixListener), nil
}

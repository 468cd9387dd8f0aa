// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes.
const (
	ExitOK        = 0
	ExitBootstrap = 1
	ExitFatal     = 2
)

// ExitError attaches an exit code to an error. main() checks for the
// ExitCode method on the error returned from run().
type ExitError struct {
	Code int
	Err  error
}

// WithCode wraps err so that Fatal exits with code. A nil err yields
// nil.
func WithCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: code, Err: err}
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode returns the code the process should exit with.
func (e *ExitError) ExitCode() int { return e.Code }

// CodeOf returns the exit code carried by err: 0 for nil, the
// ExitCode of the first error in the chain that has one, or
// ExitBootstrap otherwise.
func CodeOf(err error) int {
	if err == nil {
		return ExitOK
	}
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return ExitBootstrap
}

// Fatal writes "scdaemon: error: err" to stderr and exits with the
// code carried by err.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "scdaemon: error: %v\n", err)
	os.Exit(CodeOf(err))
}

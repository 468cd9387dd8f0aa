// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/0ndorio/gnupg/lib/process"
	"github.com/0ndorio/gnupg/lib/version"
)

// Environment handed to the background child.
const (
	childEnv         = "SCDAEMON_CHILD"
	childSocketEnv   = "SCDAEMON_CHILD_SOCKET"
	childStandardEnv = "SCDAEMON_CHILD_STANDARD"

	infoEnv = "SCDAEMON_INFO"

	inheritedListenerFD = 3
)

// Child is a started background daemon.
type Child interface {
	Pid() int
	Terminate() error
	Release() error
}

// Launcher starts the background daemon serving listener.
type Launcher interface {
	Launch(listener *os.File, socketPath string, standard bool) (Child, error)
}

// reexecLauncher runs this binary again with the listener as fd 3.
// Go cannot fork a running runtime, so re-execution takes fork's
// place.
type reexecLauncher struct {
	args     []string
	noDetach bool
	stderr   io.Writer
}

func (l *reexecLauncher) Launch(listener *os.File, socketPath string, standard bool) (Child, error) {
	executable, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locating own executable: %w", err)
	}

	command := exec.Command(executable, l.args...)
	command.ExtraFiles = []*os.File{listener}
	command.Env = append(os.Environ(),
		childEnv+"=1",
		childSocketEnv+"="+socketPath,
		childStandardEnv+"="+boolEnv(standard),
	)
	command.Dir = "/"
	if l.noDetach {
		command.Stderr = l.stderr
	} else {
		command.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	}

	if err := command.Start(); err != nil {
		return nil, fmt.Errorf("starting background daemon: %w", err)
	}
	return osChild{command.Process}, nil
}

type osChild struct {
	process *os.Process
}

func (c osChild) Pid() int         { return c.process.Pid }
func (c osChild) Terminate() error { return c.process.Signal(syscall.SIGTERM) }
func (c osChild) Release() error   { return c.process.Release() }

// runDaemon binds the socket, starts the background child and tells
// the caller how to reach it. command, if not empty, is exec'd with
// SCDAEMON_INFO set instead of printing it.
func (d *daemon) runDaemon(command []string) error {
	bound, err := d.bind()
	if err != nil {
		return err
	}

	launcher := d.program.launcher
	if launcher == nil {
		launcher = &reexecLauncher{args: os.Args[1:], noDetach: d.opts.noDetach, stderr: d.program.stderr}
	}

	listenerFile, err := bound.File()
	if err != nil {
		bound.Remove()
		return process.WithCode(process.ExitBootstrap, fmt.Errorf("duplicating listener: %w", err))
	}
	child, err := launcher.Launch(listenerFile, bound.Path, bound.Standard)
	listenerFile.Close()
	if err != nil {
		bound.Remove()
		return process.WithCode(process.ExitBootstrap, err)
	}

	// The child owns the socket from here on.
	bound.Handoff()
	info := infoValue(bound.Path, child.Pid())

	if len(command) > 0 {
		return d.execWithInfo(child, info, command)
	}

	csh := wantCSH(d.opts, d.program.getenv("SHELL"))
	if _, err := fmt.Fprintln(d.program.stdout, formatInfo(info, csh)); err != nil {
		child.Terminate()
		return process.WithCode(process.ExitBootstrap, err)
	}
	return child.Release()
}

func (d *daemon) execWithInfo(child Child, info string, command []string) error {
	path, err := exec.LookPath(command[0])
	if err == nil {
		environment := append(os.Environ(), infoEnv+"="+info)
		err = d.program.execve(path, command, environment)
	}
	// execve only returns on failure.
	child.Terminate()
	return process.WithCode(process.ExitBootstrap, fmt.Errorf("failed to run the command: %w", err))
}

// infoValue is <socket>:<pid>:<protocol version>.
func infoValue(socketPath string, pid int) string {
	return fmt.Sprintf("%s:%d:%d", socketPath, pid, version.ProtocolVersion)
}

// formatInfo renders the assignment for eval by the calling shell.
func formatInfo(value string, csh bool) string {
	if csh {
		return fmt.Sprintf("setenv %s %s", infoEnv, value)
	}
	return fmt.Sprintf("%s=%s; export %s;", infoEnv, value, infoEnv)
}

// wantCSH picks csh syntax when asked for, or when $SHELL names a csh
// and sh syntax was not requested.
func wantCSH(opts options, shell string) bool {
	if opts.csh {
		return true
	}
	if opts.sh {
		return false
	}
	return strings.HasSuffix(shell, "csh")
}

func boolEnv(value bool) string {
	if value {
		return "1"
	}
	return "0"
}

// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package eventloop

import (
	"os"
	"syscall"
)

var controlSignals = []os.Signal{
	syscall.SIGHUP,
	syscall.SIGUSR1,
	syscall.SIGUSR2,
	syscall.SIGTERM,
	syscall.SIGINT,
}

// Translate maps a delivered signal to its control event.
func Translate(received os.Signal) Event {
	event := Event{Source: signalName(received)}
	switch received {
	case syscall.SIGHUP:
		event.Kind = EventReload
	case syscall.SIGUSR1:
		event.Kind = EventDumpState
	case syscall.SIGTERM:
		event.Kind = EventTerminate
	case syscall.SIGINT:
		event.Kind = EventInterrupt
	default:
		event.Kind = EventOther
	}
	return event
}

func signalName(received os.Signal) string {
	switch received {
	case syscall.SIGHUP:
		return "SIGHUP"
	case syscall.SIGUSR1:
		return "SIGUSR1"
	case syscall.SIGUSR2:
		return "SIGUSR2"
	case syscall.SIGTERM:
		return "SIGTERM"
	case syscall.SIGINT:
		return "SIGINT"
	default:
		return received.String()
	}
}

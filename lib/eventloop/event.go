// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

package eventloop

import (
	"fmt"
	"os"
	"os/signal"
)

// EventKind is a control event's meaning, independent of how it was
// delivered.
type EventKind int

const (
	// EventReload re-reads configuration and resets cards.
	EventReload EventKind = iota + 1

	// EventDumpState logs the daemon's internal state.
	EventDumpState

	// EventTerminate requests a graceful shutdown. Repeated requests
	// force it.
	EventTerminate

	// EventInterrupt shuts down immediately.
	EventInterrupt

	// EventOther is a delivered signal with no action bound to it.
	EventOther
)

func (k EventKind) String() string {
	switch k {
	case EventReload:
		return "reload"
	case EventDumpState:
		return "dumpstate"
	case EventTerminate:
		return "terminate"
	case EventInterrupt:
		return "interrupt"
	case EventOther:
		return "other"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one control event. Source names where it came from: the
// signal name, or "control" for the control socket.
type Event struct {
	Kind   EventKind
	Source string
}

// ForwardSignals subscribes to the platform's control signals and
// delivers them on events as translated Events until stop is called.
// Events are sent with a blocking send; the signal package buffers a
// small number of signals while the loop is busy.
func ForwardSignals(events chan<- Event) (stop func()) {
	signals := make(chan os.Signal, 8)
	signal.Notify(signals, controlSignals...)

	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for {
			select {
			case <-done:
				return
			case received := <-signals:
				select {
				case events <- Translate(received):
				case <-done:
					return
				}
			}
		}
	}()

	return func() {
		signal.Stop(signals)
		close(done)
		<-finished
	}
}

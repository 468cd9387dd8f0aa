// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

package eventloop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"runtime"
	"time"

	"github.com/0ndorio/gnupg/lib/clock"
	"github.com/0ndorio/gnupg/lib/connection"
	"github.com/0ndorio/gnupg/lib/shutdown"
	"github.com/0ndorio/gnupg/lib/version"
)

// Outcome is why Run returned.
type Outcome int

const (
	// OutcomeStopped: draining finished with no live workers.
	OutcomeStopped Outcome = iota

	// OutcomeForced: the terminate threshold was reached with
	// workers still live.
	OutcomeForced

	// OutcomeInterrupted: an interrupt event ended the loop.
	OutcomeInterrupted

	// OutcomeCancelled: the context passed to Run was cancelled.
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStopped:
		return "stopped"
	case OutcomeForced:
		return "forced"
	case OutcomeInterrupted:
		return "interrupted"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Remover retires the listening endpoint. *endpoint.Endpoint
// implements it.
type Remover interface {
	Remove()
}

// Config holds the loop's collaborators.
type Config struct {
	// Listener is the socket to accept on. Nil means the daemon
	// serves only its primary connection.
	Listener net.Listener

	// Endpoint is removed when Run returns. If nil, Listener is closed
	// instead.
	Endpoint Remover

	// Primary is the pipe connection, dispatched before the first
	// iteration. Nil when the daemon has none.
	Primary io.ReadWriteCloser

	// Worker runs each connection. Its Coordinator must be the one
	// below.
	Worker *connection.Worker

	Coordinator *shutdown.Coordinator

	// Events delivers control events. May be nil.
	Events <-chan Event

	// Clock drives the tick and the accept backoff. Defaults to the
	// real clock.
	Clock clock.Clock

	// TickInterval defaults to DefaultTickInterval.
	TickInterval time.Duration

	// Tick runs on every tick. Reload and Dump run for the matching
	// events after the loop has logged them. All three may be nil.
	Tick   func()
	Reload func()
	Dump   func()

	Logger *slog.Logger
}

// Loop is the daemon's control loop. Create with New and call Run
// once.
type Loop struct {
	config   Config
	acceptor *acceptor
	nextID   uint64
}

// New validates config and fills its defaults.
func New(config Config) (*Loop, error) {
	if config.Worker == nil {
		return nil, errors.New("eventloop: Worker is required")
	}
	if config.Coordinator == nil {
		return nil, errors.New("eventloop: Coordinator is required")
	}
	if config.Worker.Coordinator != config.Coordinator {
		return nil, errors.New("eventloop: Worker and loop must share a Coordinator")
	}
	if config.Logger == nil {
		return nil, errors.New("eventloop: Logger is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.TickInterval <= 0 {
		config.TickInterval = DefaultTickInterval
	}
	return &Loop{config: config}, nil
}

// Run serves until one of the outcomes occurs, then removes the
// endpoint and logs that the daemon stopped.
func (l *Loop) Run(ctx context.Context) (Outcome, error) {
	workerContext, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	acceptContext, cancelAccept := context.WithCancel(ctx)
	var accepted <-chan net.Conn
	if l.config.Listener != nil {
		l.acceptor = newAcceptor(l.config.Listener, l.config.Clock, l.config.Logger)
		accepted = l.acceptor.accepted
		go l.acceptor.run(acceptContext)
	}
	defer l.teardown(cancelAccept)

	if l.config.Primary != nil {
		l.dispatch(workerContext, l.config.Primary, true)
	}
	if l.acceptor != nil {
		l.acceptor.permit()
	}

	coordinator := l.config.Coordinator
	var tick <-chan time.Time
	for {
		if coordinator.Drained() {
			return OutcomeStopped, nil
		}
		if accepted != nil && coordinator.IsDraining() {
			l.acceptor.stop()
			accepted = nil
		}
		if tick == nil {
			tick = l.config.Clock.After(l.config.TickInterval)
		}

		select {
		case <-ctx.Done():
			return OutcomeCancelled, nil

		case event := <-l.config.Events:
			if outcome, done := l.handleEvent(event); done {
				return outcome, nil
			}

		case <-coordinator.Changed():

		case <-tick:
			tick = nil
			if l.config.Tick != nil {
				l.config.Tick()
			}

		case conn := <-accepted:
			if coordinator.IsDraining() {
				// Accept completed before stop took effect.
				l.config.Logger.Debug("closing connection accepted while draining")
				conn.Close()
				continue
			}
			l.dispatch(workerContext, conn, false)
			l.acceptor.permit()
		}
	}
}

func (l *Loop) dispatch(ctx context.Context, conn io.ReadWriteCloser, primary bool) {
	c := &connection.Context{
		ID:      l.nextID,
		Conn:    conn,
		Primary: primary,
	}
	l.nextID++
	l.config.Coordinator.WorkerStarted(c.ID, c.Primary)
	go l.config.Worker.Run(ctx, c)
}

// handleEvent acts on one control event. done reports whether the
// loop must return outcome.
func (l *Loop) handleEvent(event Event) (outcome Outcome, done bool) {
	logger := l.config.Logger.With("source", event.Source)
	coordinator := l.config.Coordinator

	switch event.Kind {
	case EventReload:
		logger.Info("re-reading configuration and resetting cards")
		if l.config.Reload != nil {
			l.config.Reload()
		}

	case EventDumpState:
		l.dumpState(logger)
		if l.config.Dump != nil {
			l.config.Dump()
		}

	case EventTerminate:
		stage := coordinator.RequestShutdown()
		if stage == shutdown.StageForced {
			logger.Info("shutdown forced",
				"live_workers", coordinator.LiveWorkerCount(),
				"requests", coordinator.Requests())
			return OutcomeForced, true
		}
		if coordinator.Requests() == 1 {
			logger.Info("shutting down", "live_workers", coordinator.LiveWorkerCount())
		} else {
			logger.Info("shutdown pending, workers still running",
				"live_workers", coordinator.LiveWorkerCount(),
				"requests", coordinator.Requests(),
				"force_threshold", coordinator.ForceThreshold())
		}

	case EventInterrupt:
		logger.Info("immediate shutdown")
		return OutcomeInterrupted, true

	default:
		logger.Info("signal received - no action defined", "kind", event.Kind)
	}
	return 0, false
}

func (l *Loop) dumpState(logger *slog.Logger) {
	snapshot := l.config.Coordinator.Snapshot()
	logger.Info("daemon state",
		"stage", snapshot.Stage,
		"shutdown_requests", snapshot.Requests,
		"live_workers", len(snapshot.Workers),
		"goroutines", runtime.NumGoroutine(),
		"accepting", l.acceptor != nil && snapshot.Stage == shutdown.StageRunning)

	now := l.config.Clock.Now()
	for _, worker := range snapshot.Workers {
		logger.Info("connection",
			"id", worker.ID,
			"primary", worker.Primary,
			"age", now.Sub(worker.Started).Round(time.Millisecond))
	}
}

func (l *Loop) teardown(cancelAccept context.CancelFunc) {
	cancelAccept()
	if l.config.Endpoint != nil {
		l.config.Endpoint.Remove()
	} else if l.config.Listener != nil {
		l.config.Listener.Close()
	}
	if l.acceptor != nil {
		<-l.acceptor.done
	}
	l.config.Logger.Info(version.Stopped())
}

// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/0ndorio/gnupg/lib/clock"
	"github.com/0ndorio/gnupg/lib/config"
	"github.com/0ndorio/gnupg/lib/connection"
	"github.com/0ndorio/gnupg/lib/control"
	"github.com/0ndorio/gnupg/lib/endpoint"
	"github.com/0ndorio/gnupg/lib/eventloop"
	"github.com/0ndorio/gnupg/lib/process"
	"github.com/0ndorio/gnupg/lib/readerstatus"
	"github.com/0ndorio/gnupg/lib/session"
	"github.com/0ndorio/gnupg/lib/shutdown"
	"github.com/0ndorio/gnupg/lib/version"
)

// daemon is one configured run of the program.
type daemon struct {
	program *program
	opts    options
	cfg     *config.Config
	home    string
	logger  *slog.Logger
}

// bind names and binds the listening socket. Failures are fatal
// configuration errors.
func (d *daemon) bind() (*endpoint.Endpoint, error) {
	name, err := endpoint.ComputeName(d.cfg.StandardSocket, d.home, endpoint.StandardName, endpoint.DefaultTemplate)
	if err != nil {
		return nil, process.WithCode(process.ExitFatal, err)
	}
	bound, err := endpoint.Bind(d.cfg.StandardSocket, name, d.logger)
	if err != nil {
		if !d.cfg.StandardSocket {
			os.Remove(filepath.Dir(name))
		}
		return nil, process.WithCode(process.ExitFatal, err)
	}
	if d.cfg.Verbose {
		d.logger.Info("listening on socket", "path", bound.Path)
	}
	return bound, nil
}

// runPipe serves stdin/stdout as the primary connection, plus a
// socket in multi-server mode.
func (d *daemon) runPipe(ctx context.Context) error {
	signal.Ignore(syscall.SIGPIPE)

	if d.opts.debugAllowCoreDump {
		if err := os.Chdir("/tmp"); err != nil {
			d.logger.Debug("chdir to /tmp failed", "error", err)
		} else {
			d.logger.Debug("changed working directory to /tmp")
		}
	}
	if d.opts.debugWait > 0 {
		d.logger.Debug("waiting for debugger", "pid", os.Getpid())
		time.Sleep(time.Duration(d.opts.debugWait) * time.Second)
		d.logger.Debug("... okay")
	}

	// The socket exists before the pipe session starts so that the
	// session can report its name.
	var bound *endpoint.Endpoint
	if d.opts.multiServer {
		var err error
		if bound, err = d.bind(); err != nil {
			return err
		}
	}

	primary := &pipeConn{reader: d.program.stdin, writer: d.program.stdout}
	_, err := d.serve(ctx, bound, primary)
	return err
}

// runChild is the background process started by runDaemon.
func (d *daemon) runChild() error {
	signal.Ignore(syscall.SIGPIPE)

	path := d.program.getenv(childSocketEnv)
	standard := d.program.getenv(childStandardEnv) == "1"
	inherited := d.program.inheritedListener
	if inherited == nil {
		inherited = func() *os.File { return os.NewFile(inheritedListenerFD, "listener") }
	}
	adopted, err := endpoint.Adopt(path, standard, inherited(), d.logger)
	if err != nil {
		return process.WithCode(process.ExitBootstrap, err)
	}

	_, err = d.serve(context.Background(), adopted, nil)
	return err
}

// serve wires the collaborators around the event loop and runs it.
// bound and primary may each be nil.
func (d *daemon) serve(ctx context.Context, bound *endpoint.Endpoint, primary io.ReadWriteCloser) (eventloop.Outcome, error) {
	coordinator := shutdown.New(d.cfg.ForceShutdownThreshold, clock.Real())

	socketName := func() string {
		if bound == nil {
			return ""
		}
		return bound.Path
	}
	readers := readerstatus.NewUpdater(d.home, readerstatus.PCSCScanner{
		SocketPath: d.cfg.PCSCSocket(),
		ReaderPort: d.cfg.ReaderPort,
	}, d.logger)

	status := func() control.Status {
		snapshot := coordinator.Snapshot()
		return control.Status{
			Stage:            snapshot.Stage.String(),
			LiveWorkers:      len(snapshot.Workers),
			ShutdownRequests: snapshot.Requests,
			ForceThreshold:   coordinator.ForceThreshold(),
			Socket:           socketName(),
			PID:              os.Getpid(),
			Version:          version.Version,
			Readers:          readerStatuses(readers.Readers()),
			Settings: control.ReaderSettings{
				ReaderPort:           d.cfg.ReaderPort,
				CTAPIDriver:          d.cfg.CTAPIDriver,
				PCSCDriver:           d.cfg.PCSCDriver,
				DisableCCID:          d.cfg.DisableCCID,
				DisableKeypad:        d.cfg.DisableKeypad,
				AllowAdmin:           d.cfg.AllowAdmin,
				DisabledApplications: d.cfg.DisabledApplications,
			},
		}
	}

	worker := &connection.Worker{
		Runner: &session.LineRunner{
			SocketName: socketName,
			Status:     func() string { return coordinator.Stage().String() },
			AllowAdmin: d.cfg.AllowAdmin,
			Logger:     d.logger,
		},
		Coordinator: coordinator,
		Logger:      d.logger,
		Verbose:     d.cfg.Verbose,
	}

	loopConfig := eventloop.Config{
		Primary:      primary,
		Worker:       worker,
		Coordinator:  coordinator,
		TickInterval: d.cfg.TickInterval,
		Tick: func() {
			// The scan dials pcscd; keep it off the loop.
			if !d.cfg.DebugDisableTicker {
				readers.UpdateAsync()
			}
		},
		Reload: readers.Reset,
		Logger: d.logger,
	}
	if bound != nil {
		worker.Nonce = bound.Nonce()
		loopConfig.Listener = bound.Listener()
		loopConfig.Endpoint = bound
	}

	events := make(chan eventloop.Event)
	loopConfig.Events = events
	stopSignals := eventloop.ForwardSignals(events)
	defer stopSignals()

	controlContext, stopControl := context.WithCancel(ctx)
	var controlDone sync.WaitGroup
	defer func() {
		stopControl()
		controlDone.Wait()
	}()
	if d.cfg.ControlSocket != "" {
		server := control.NewServer(d.cfg.ControlSocket, d.logger)
		control.RegisterDaemonActions(server, events, status)
		controlDone.Add(1)
		go func() {
			defer controlDone.Done()
			if err := server.Serve(controlContext); err != nil {
				d.logger.Error("control socket failed", "error", err)
			}
		}()
	}

	loop, err := eventloop.New(loopConfig)
	if err != nil {
		if bound != nil {
			bound.Remove()
		}
		return 0, err
	}
	outcome, err := loop.Run(ctx)
	if err != nil {
		return outcome, err
	}
	d.logger.Debug("event loop finished", "outcome", outcome)
	return outcome, nil
}

func readerStatuses(readers []readerstatus.Reader) []control.ReaderStatus {
	statuses := make([]control.ReaderStatus, 0, len(readers))
	for _, reader := range readers {
		statuses = append(statuses, control.ReaderStatus{
			Slot:  reader.Slot,
			Port:  reader.Port,
			State: string(reader.State),
		})
	}
	return statuses
}

// pipeConn joins stdin and stdout into the primary connection.
type pipeConn struct {
	reader io.ReadCloser
	writer io.WriteCloser
}

func (c *pipeConn) Read(p []byte) (int, error)  { return c.reader.Read(p) }
func (c *pipeConn) Write(p []byte) (int, error) { return c.writer.Write(p) }

func (c *pipeConn) Close() error {
	return errors.Join(c.reader.Close(), c.writer.Close())
}

// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package eventloop

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/0ndorio/gnupg/lib/clock"
	"github.com/0ndorio/gnupg/lib/connection"
	"github.com/0ndorio/gnupg/lib/endpoint"
	"github.com/0ndorio/gnupg/lib/session"
	"github.com/0ndorio/gnupg/lib/shutdown"
	"github.com/0ndorio/gnupg/lib/testutil"
)

const testTimeout = 5 * time.Second

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// drainRunner reads its connection until the peer hangs up. started
// receives once per session.
type drainRunner struct {
	started chan struct{}
}

func (r *drainRunner) RunSession(_ context.Context, conn io.ReadWriter, _ *session.State) error {
	r.started <- struct{}{}
	_, err := io.Copy(io.Discard, conn)
	return err
}

type result struct {
	outcome Outcome
	err     error
}

type harness struct {
	loop        *Loop
	clock       *clock.FakeClock
	events      chan Event
	coordinator *shutdown.Coordinator
	endpoint    *endpoint.Endpoint
	runner      *drainRunner
	done        chan result
}

type harnessOptions struct {
	listen  bool
	primary io.ReadWriteCloser
	tick    func()
	reload  func()
	dump    func()
}

func newHarness(t *testing.T, options harnessOptions) *harness {
	t.Helper()
	h := &harness{
		clock:       clock.Fake(epoch),
		events:      make(chan Event),
		runner:      &drainRunner{started: make(chan struct{}, 16)},
		done:        make(chan result, 1),
		coordinator: nil,
	}
	h.coordinator = shutdown.New(shutdown.DefaultForceThreshold, h.clock)

	config := Config{
		Primary:     options.primary,
		Coordinator: h.coordinator,
		Events:      h.events,
		Clock:       h.clock,
		Tick:        options.tick,
		Reload:      options.reload,
		Dump:        options.dump,
		Logger:      testLogger(),
	}
	if options.listen {
		path := filepath.Join(testutil.SocketDir(t), endpoint.StandardName)
		bound, err := endpoint.Bind(true, path, testLogger())
		if err != nil {
			t.Fatalf("Bind: %v", err)
		}
		t.Cleanup(bound.Remove)
		h.endpoint = bound
		config.Listener = bound.Listener()
		config.Endpoint = bound
	}
	config.Worker = &connection.Worker{
		Runner:      h.runner,
		Coordinator: h.coordinator,
		Logger:      testLogger(),
	}
	if h.endpoint != nil {
		config.Worker.Nonce = h.endpoint.Nonce()
	}

	loop, err := New(config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.loop = loop
	return h
}

func (h *harness) start(ctx context.Context) {
	go func() {
		outcome, err := h.loop.Run(ctx)
		h.done <- result{outcome, err}
	}()
}

// send delivers an event; the unbuffered channel returns once the
// loop has taken it.
func (h *harness) send(t *testing.T, kind EventKind) {
	t.Helper()
	select {
	case h.events <- Event{Kind: kind, Source: "test"}:
	case <-time.After(testTimeout): //nolint:realclock test hang prevention
		t.Fatalf("loop did not take %v event", kind)
	}
}

func (h *harness) wait(t *testing.T) result {
	t.Helper()
	return testutil.RequireReceive(t, h.done, testTimeout, "loop exit")
}

// waitAcceptStopped waits for the acceptor goroutine to give up its
// pending Accept.
func (h *harness) waitAcceptStopped(t *testing.T) {
	t.Helper()
	testutil.RequireClosed(t, h.loop.acceptor.done, testTimeout, "acceptor exit")
}

func (h *harness) dial(t *testing.T) net.Conn {
	t.Helper()
	conn, err := net.Dial("unix", h.endpoint.Path)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestNewValidatesConfig(t *testing.T) {
	coordinator := shutdown.New(0, nil)
	worker := &connection.Worker{Coordinator: coordinator, Logger: testLogger()}

	if _, err := New(Config{Coordinator: coordinator, Logger: testLogger()}); err == nil {
		t.Error("New without Worker succeeded")
	}
	other := shutdown.New(0, nil)
	if _, err := New(Config{Worker: worker, Coordinator: other, Logger: testLogger()}); err == nil {
		t.Error("New with mismatched coordinators succeeded")
	}
	loop, err := New(Config{Worker: worker, Coordinator: coordinator, Logger: testLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if loop.config.TickInterval != DefaultTickInterval {
		t.Errorf("TickInterval = %v, want %v", loop.config.TickInterval, DefaultTickInterval)
	}
}

func TestTickFiresEachInterval(t *testing.T) {
	ticks := make(chan struct{}, 4)
	h := newHarness(t, harnessOptions{tick: func() { ticks <- struct{}{} }})
	h.start(context.Background())

	for range 3 {
		h.clock.WaitForTimers(1)
		h.clock.Advance(DefaultTickInterval - time.Millisecond)
		select {
		case <-ticks:
			t.Fatal("tick fired before its interval elapsed")
		default:
		}
		h.clock.Advance(time.Millisecond)
		testutil.RequireReceive(t, ticks, testTimeout, "tick")
	}

	h.send(t, EventInterrupt)
	if got := h.wait(t); got.outcome != OutcomeInterrupted {
		t.Fatalf("outcome = %v, want %v", got.outcome, OutcomeInterrupted)
	}
}

func TestPrimaryHangupStops(t *testing.T) {
	server, client := net.Pipe()
	h := newHarness(t, harnessOptions{listen: true, primary: server})
	h.start(context.Background())

	testutil.RequireReceive(t, h.runner.started, testTimeout, "primary session start")
	client.Close()

	got := h.wait(t)
	if got.outcome != OutcomeStopped || got.err != nil {
		t.Fatalf("Run = (%v, %v), want (%v, nil)", got.outcome, got.err, OutcomeStopped)
	}
	if _, err := os.Lstat(h.endpoint.Path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("socket still present after stop: %v", err)
	}
	if h.coordinator.Requests() != 0 {
		t.Errorf("pipe hangup counted %d shutdown requests", h.coordinator.Requests())
	}
}

func TestTerminateDrainsThenStops(t *testing.T) {
	h := newHarness(t, harnessOptions{listen: true})
	h.start(context.Background())

	clients := make([]net.Conn, 3)
	for i := range clients {
		clients[i] = h.dial(t)
		testutil.RequireReceive(t, h.runner.started, testTimeout, "session %d start", i)
	}
	if n := h.coordinator.LiveWorkerCount(); n != 3 {
		t.Fatalf("LiveWorkerCount = %d, want 3", n)
	}

	h.send(t, EventTerminate)
	testutil.Eventually(t, h.coordinator.IsDraining, testTimeout, "draining after terminate")
	h.waitAcceptStopped(t)

	// Draining stops accepting: the late client sits in the backlog,
	// neither served nor closed.
	late := h.dial(t)
	late.SetReadDeadline(time.Now().Add(200 * time.Millisecond)) //nolint:realclock bounded wait for a response that must not come
	if _, err := late.Read(make([]byte, 1)); !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("late connection read = %v, want a timeout with nothing accepted", err)
	}
	if n := h.coordinator.LiveWorkerCount(); n != 3 {
		t.Errorf("LiveWorkerCount after late dial = %d, want 3", n)
	}

	select {
	case got := <-h.done:
		t.Fatalf("loop returned %v with workers live", got.outcome)
	default:
	}

	for _, client := range clients {
		client.Close()
	}

	got := h.wait(t)
	if got.outcome != OutcomeStopped {
		t.Fatalf("outcome = %v, want %v", got.outcome, OutcomeStopped)
	}
	if _, err := os.Lstat(h.endpoint.Path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("socket still present after stop: %v", err)
	}

	// The backlogged client is dropped with the listener, never greeted.
	late.SetReadDeadline(time.Now().Add(testTimeout)) //nolint:realclock test hang prevention
	if n, err := late.Read(make([]byte, 1)); n != 0 || err == nil || errors.Is(err, os.ErrDeadlineExceeded) {
		t.Errorf("late connection after stop: read %d bytes, error %v; want it dropped", n, err)
	}
}

func TestPrimaryHangupStopsAccepting(t *testing.T) {
	server, client := net.Pipe()
	h := newHarness(t, harnessOptions{listen: true, primary: server})
	h.start(context.Background())
	testutil.RequireReceive(t, h.runner.started, testTimeout, "primary session start")

	secondary := h.dial(t)
	testutil.RequireReceive(t, h.runner.started, testTimeout, "secondary session start")

	// The primary's end drains the daemon; the secondary keeps it alive.
	client.Close()
	testutil.Eventually(t, func() bool { return h.coordinator.LiveWorkerCount() == 1 }, testTimeout, "primary worker done")
	h.waitAcceptStopped(t)

	late := h.dial(t)
	late.SetReadDeadline(time.Now().Add(200 * time.Millisecond)) //nolint:realclock bounded wait for a response that must not come
	if _, err := late.Read(make([]byte, 1)); !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("late connection read = %v, want a timeout with nothing accepted", err)
	}
	select {
	case <-h.runner.started:
		t.Fatal("a session started after draining began")
	default:
	}

	secondary.Close()
	if got := h.wait(t); got.outcome != OutcomeStopped {
		t.Fatalf("outcome = %v, want %v", got.outcome, OutcomeStopped)
	}
}

func TestRepeatedTerminateForces(t *testing.T) {
	h := newHarness(t, harnessOptions{listen: true})
	h.start(context.Background())

	h.dial(t)
	testutil.RequireReceive(t, h.runner.started, testTimeout, "session start")

	h.send(t, EventTerminate)
	h.send(t, EventTerminate)
	testutil.Eventually(t, func() bool { return h.coordinator.Requests() == 2 }, testTimeout, "two requests")
	select {
	case got := <-h.done:
		t.Fatalf("loop returned %v after two terminate events", got.outcome)
	default:
	}

	h.send(t, EventTerminate)
	got := h.wait(t)
	if got.outcome != OutcomeForced {
		t.Fatalf("outcome = %v, want %v", got.outcome, OutcomeForced)
	}
	if n := h.coordinator.LiveWorkerCount(); n != 1 {
		t.Errorf("LiveWorkerCount at forced exit = %d, want 1", n)
	}
	if _, err := os.Lstat(h.endpoint.Path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("socket still present after forced exit: %v", err)
	}
}

func TestInterruptWithLiveWorkers(t *testing.T) {
	h := newHarness(t, harnessOptions{listen: true})
	h.start(context.Background())

	h.dial(t)
	testutil.RequireReceive(t, h.runner.started, testTimeout, "session start")

	h.send(t, EventInterrupt)
	if got := h.wait(t); got.outcome != OutcomeInterrupted {
		t.Fatalf("outcome = %v, want %v", got.outcome, OutcomeInterrupted)
	}
	if h.coordinator.Requests() != 0 {
		t.Errorf("interrupt counted %d shutdown requests", h.coordinator.Requests())
	}
}

func TestReloadDumpAndOtherKeepRunning(t *testing.T) {
	var reloads, dumps atomic.Int32
	h := newHarness(t, harnessOptions{
		listen: true,
		reload: func() { reloads.Add(1) },
		dump:   func() { dumps.Add(1) },
	})
	h.start(context.Background())

	h.send(t, EventReload)
	h.send(t, EventDumpState)
	h.send(t, EventOther)
	h.send(t, EventDumpState)

	// A further event is only taken once the previous ones finished.
	h.send(t, EventOther)
	if reloads.Load() != 1 || dumps.Load() != 2 {
		t.Errorf("reloads = %d, dumps = %d, want 1 and 2", reloads.Load(), dumps.Load())
	}
	if h.coordinator.IsDraining() {
		t.Error("non-terminating events started a drain")
	}

	// Still accepting.
	h.dial(t)
	testutil.RequireReceive(t, h.runner.started, testTimeout, "session start after events")
}

func TestCancelReturnsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := newHarness(t, harnessOptions{listen: true})
	h.start(ctx)

	cancel()
	if got := h.wait(t); got.outcome != OutcomeCancelled {
		t.Fatalf("outcome = %v, want %v", got.outcome, OutcomeCancelled)
	}
	if _, err := os.Lstat(h.endpoint.Path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("socket still present after cancel: %v", err)
	}
}

// flakyListener fails its first Accept and then blocks until closed.
type flakyListener struct {
	mu      sync.Mutex
	calls   int
	closed  chan struct{}
	closeMu sync.Once
}

func (l *flakyListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	l.calls++
	first := l.calls == 1
	l.mu.Unlock()
	if first {
		return nil, errors.New("too many open files")
	}
	<-l.closed
	return nil, net.ErrClosed
}

func (l *flakyListener) Close() error {
	l.closeMu.Do(func() { close(l.closed) })
	return nil
}

func (l *flakyListener) Addr() net.Addr { return &net.UnixAddr{Name: "flaky", Net: "unix"} }

func (l *flakyListener) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func TestAcceptErrorBacksOff(t *testing.T) {
	fake := clock.Fake(epoch)
	coordinator := shutdown.New(0, fake)
	listener := &flakyListener{closed: make(chan struct{})}
	loop, err := New(Config{
		Listener:    listener,
		Coordinator: coordinator,
		Worker: &connection.Worker{
			Runner:      &drainRunner{started: make(chan struct{}, 1)},
			Coordinator: coordinator,
			Logger:      testLogger(),
		},
		Clock:        fake,
		TickInterval: time.Hour,
		Logger:       testLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Outcome, 1)
	go func() {
		outcome, _ := loop.Run(ctx)
		done <- outcome
	}()

	// The tick timer and the backoff timer.
	fake.WaitForTimers(2)
	if calls := listener.Calls(); calls != 1 {
		t.Fatalf("Accept called %d times before backoff elapsed, want 1", calls)
	}

	fake.Advance(acceptBackoff)
	testutil.Eventually(t, func() bool { return listener.Calls() == 2 }, testTimeout, "accept retried after backoff")

	cancel()
	if outcome := testutil.RequireReceive(t, done, testTimeout, "loop exit"); outcome != OutcomeCancelled {
		t.Fatalf("outcome = %v, want %v", outcome, OutcomeCancelled)
	}
}

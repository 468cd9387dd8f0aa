// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/0ndorio/gnupg/lib/codec"
	"github.com/0ndorio/gnupg/lib/eventloop"
	"github.com/0ndorio/gnupg/lib/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	testutil.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 5*time.Second, "socket %s", path)
}

// startServer serves a daemon-action server and returns its client
// and event channel.
func startServer(t *testing.T, status Status) (*Client, string, chan eventloop.Event) {
	t.Helper()
	socketPath := filepath.Join(testutil.SocketDir(t), "control.sock")
	events := make(chan eventloop.Event)

	server := NewServer(socketPath, testLogger())
	RegisterDaemonActions(server, events, func() Status { return status })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := testutil.RequireReceive(t, done, 5*time.Second, "Serve return"); err != nil {
			t.Errorf("Serve: %v", err)
		}
	})

	waitForSocket(t, socketPath)
	return NewClient(socketPath), socketPath, events
}

func TestStatusAction(t *testing.T) {
	want := Status{
		Stage:            "draining",
		LiveWorkers:      2,
		ShutdownRequests: 1,
		ForceThreshold:   3,
		Socket:           "/tmp/gpg-abc/S.scdaemon",
		PID:              42,
		Version:          "test",
		Readers:          []ReaderStatus{{Slot: 0, Port: "32768", State: "PRESENT"}},
		Settings: ReaderSettings{
			PCSCDriver:           "libpcsclite.so",
			DisableKeypad:        true,
			DisabledApplications: []string{"nks"},
		},
	}
	client, _, _ := startServer(t, want)

	var got Status
	if err := client.Call(context.Background(), "status", &got); err != nil {
		t.Fatalf("Call(status): %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("status = %+v, want %+v", got, want)
	}
}

func TestEventActions(t *testing.T) {
	client, _, events := startServer(t, Status{})

	for action, kind := range eventActions {
		errs := make(chan error, 1)
		go func() { errs <- client.Call(context.Background(), action, nil) }()

		event := testutil.RequireReceive(t, events, 5*time.Second, "event for %s", action)
		if event.Kind != kind || event.Source != "control" {
			t.Errorf("%s delivered %+v, want kind %v from control", action, event, kind)
		}
		if err := testutil.RequireReceive(t, errs, 5*time.Second, "%s response", action); err != nil {
			t.Errorf("Call(%s): %v", action, err)
		}
	}
}

func TestUnknownAction(t *testing.T) {
	client, _, _ := startServer(t, Status{})

	err := client.Call(context.Background(), "self-destruct", nil)
	var actionErr *ActionError
	if !errors.As(err, &actionErr) {
		t.Fatalf("Call = %v, want *ActionError", err)
	}
	if actionErr.Action != "self-destruct" {
		t.Errorf("ActionError.Action = %q", actionErr.Action)
	}
}

func TestMissingAction(t *testing.T) {
	_, socketPath, _ := startServer(t, Status{})

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if err := codec.NewEncoder(conn).Encode(map[string]any{"verb": "status"}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var response Response
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if response.OK || response.Error != "missing required field: action" {
		t.Errorf("response = %+v, want missing action error", response)
	}
}

func TestSocketIsOwnerOnly(t *testing.T) {
	client, socketPath, _ := startServer(t, Status{})

	// The accept loop starts after the mode is set.
	if err := client.Call(context.Background(), "status", nil); err != nil {
		t.Fatalf("Call(status): %v", err)
	}
	info, err := os.Stat(socketPath)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("control socket mode = %o, want 600", perm)
	}
}

func TestDuplicateHandlerPanics(t *testing.T) {
	server := NewServer("/unused", testLogger())
	server.Handle("status", func(context.Context, []byte) (any, error) { return nil, nil })

	defer func() {
		if recover() == nil {
			t.Error("duplicate Handle did not panic")
		}
	}()
	server.Handle("status", func(context.Context, []byte) (any, error) { return nil, nil })
}

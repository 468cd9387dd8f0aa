// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package eventloop

import (
	"syscall"
	"testing"
	"time"

	"github.com/0ndorio/gnupg/lib/testutil"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		signal syscall.Signal
		want   Event
	}{
		{syscall.SIGHUP, Event{Kind: EventReload, Source: "SIGHUP"}},
		{syscall.SIGUSR1, Event{Kind: EventDumpState, Source: "SIGUSR1"}},
		{syscall.SIGUSR2, Event{Kind: EventOther, Source: "SIGUSR2"}},
		{syscall.SIGTERM, Event{Kind: EventTerminate, Source: "SIGTERM"}},
		{syscall.SIGINT, Event{Kind: EventInterrupt, Source: "SIGINT"}},
	}
	for _, test := range tests {
		if got := Translate(test.signal); got != test.want {
			t.Errorf("Translate(%v) = %+v, want %+v", test.signal, got, test.want)
		}
	}
}

func TestForwardSignals(t *testing.T) {
	events := make(chan Event)
	stop := ForwardSignals(events)
	defer stop()

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGUSR2); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	got := testutil.RequireReceive(t, events, 5*time.Second, "forwarded SIGUSR2")
	if got.Kind != EventOther || got.Source != "SIGUSR2" {
		t.Fatalf("event = %+v, want SIGUSR2 as EventOther", got)
	}
}

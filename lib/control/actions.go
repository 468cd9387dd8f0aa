// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"

	"github.com/0ndorio/gnupg/lib/eventloop"
)

// Status is the data of the status action.
type Status struct {
	Stage            string         `cbor:"stage" yaml:"stage"`
	LiveWorkers      int            `cbor:"live_workers" yaml:"live_workers"`
	ShutdownRequests int            `cbor:"shutdown_requests" yaml:"shutdown_requests"`
	ForceThreshold   int            `cbor:"force_threshold" yaml:"force_threshold"`
	Socket           string         `cbor:"socket,omitempty" yaml:"socket,omitempty"`
	PID              int            `cbor:"pid" yaml:"pid"`
	Version          string         `cbor:"version" yaml:"version"`
	Readers          []ReaderStatus `cbor:"readers,omitempty" yaml:"readers,omitempty"`
	Settings         ReaderSettings `cbor:"settings" yaml:"settings"`
}

// ReaderStatus is one scanned reader.
type ReaderStatus struct {
	Slot  int    `cbor:"slot" yaml:"slot"`
	Port  string `cbor:"port,omitempty" yaml:"port,omitempty"`
	State string `cbor:"state" yaml:"state"`
}

// ReaderSettings are the reader and card options in effect.
type ReaderSettings struct {
	ReaderPort           string   `cbor:"reader_port,omitempty" yaml:"reader_port,omitempty"`
	CTAPIDriver          string   `cbor:"ctapi_driver,omitempty" yaml:"ctapi_driver,omitempty"`
	PCSCDriver           string   `cbor:"pcsc_driver,omitempty" yaml:"pcsc_driver,omitempty"`
	DisableCCID          bool     `cbor:"disable_ccid" yaml:"disable_ccid"`
	DisableKeypad        bool     `cbor:"disable_keypad" yaml:"disable_keypad"`
	AllowAdmin           bool     `cbor:"allow_admin" yaml:"allow_admin"`
	DisabledApplications []string `cbor:"disabled_applications,omitempty" yaml:"disabled_applications,omitempty"`
}

// eventActions maps action names to the loop events they deliver.
var eventActions = map[string]eventloop.EventKind{
	"reload":    eventloop.EventReload,
	"dumpstate": eventloop.EventDumpState,
	"terminate": eventloop.EventTerminate,
	"interrupt": eventloop.EventInterrupt,
}

// RegisterDaemonActions binds the event actions to events and the
// status action to status. An event action returns once the loop has
// taken the event.
func RegisterDaemonActions(server *Server, events chan<- eventloop.Event, status func() Status) {
	for action, kind := range eventActions {
		server.Handle(action, func(ctx context.Context, _ []byte) (any, error) {
			select {
			case events <- eventloop.Event{Kind: kind, Source: "control"}:
				return nil, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		})
	}
	server.Handle("status", func(context.Context, []byte) (any, error) {
		return status(), nil
	})
}

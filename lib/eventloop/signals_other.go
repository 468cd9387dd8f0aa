// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !unix

package eventloop

import "os"

// Only the console interrupt is delivered as a signal here; the
// control socket carries the other events.
var controlSignals = []os.Signal{os.Interrupt}

// Translate maps a delivered signal to its control event.
func Translate(received os.Signal) Event {
	if received == os.Interrupt {
		return Event{Kind: EventInterrupt, Source: "interrupt"}
	}
	return Event{Kind: EventOther, Source: received.String()}
}

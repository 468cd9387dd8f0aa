// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the daemon's injectable time source.
//
// The event loop arms its housekeeping timer and the acceptor sleeps
// off failed accepts through a [Clock] rather than calling the time
// package. Production wires [Real]; tests wire [Fake] and drive time
// explicitly:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go loop.Run(ctx)
//	fake.WaitForTimers(1)      // the loop armed its tick timer
//	fake.Advance(2 * time.Second)
//
// WaitForTimers removes the race between a goroutine registering a
// timer and the test advancing past it.
package clock

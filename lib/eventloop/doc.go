// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

// Package eventloop is the daemon's single control thread.
//
// [Loop.Run] waits on one select for control events (signals or
// control-socket requests), a periodic tick, newly accepted
// connections, and shutdown-coordinator changes. Every accepted
// connection becomes a [connection.Context] handed to its own worker
// goroutine; the loop never runs a session itself.
//
// Accepts are serialized through a single acceptor goroutine that
// performs one Accept per permit. The loop issues the next permit only
// after dispatching the previous connection and only while the daemon
// is running, so a draining daemon accepts nothing new. A connection
// that an in-flight Accept returns after draining began is closed
// undispatched.
//
// Shutdown follows the coordinator: a terminate event starts draining
// and the loop returns [OutcomeStopped] once the last worker reports
// done. Repeated terminate events reach the force threshold and
// return [OutcomeForced] with workers still live; an interrupt
// returns [OutcomeInterrupted] at once. Whatever the outcome, Run
// removes the endpoint before returning.
package eventloop

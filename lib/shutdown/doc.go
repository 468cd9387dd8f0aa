// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

// Package shutdown tracks the daemon's shutdown stage and the number
// of live connection workers.
//
// The stage only moves forward:
//
//	StageRunning  -> StageDraining   first RequestShutdown, or BeginDrain
//	StageDraining -> StageForced     RequestShutdown called ForceThreshold times
//
// The event loop reads the stage and the live-worker count on every
// iteration; workers report completion from their own goroutines.
// [Coordinator.Changed] wakes the loop whenever either value moves so
// a drain completes as soon as the last worker exits.
package shutdown

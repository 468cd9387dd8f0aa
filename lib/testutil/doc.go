// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds test helpers shared by the daemon packages.
//
// [SocketDir] returns a short directory under /tmp for Unix domain
// sockets: sun_path holds 108 bytes and t.TempDir() paths routinely
// exceed it.
//
// [RequireReceive], [RequireClosed] and [Eventually] wrap the
// wall-clock timeout safety valve so individual tests never call
// time.After themselves. All helpers fail the test via t.Fatalf.
package testutil

// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

// Package control serves the daemon's operator socket: a CBOR
// request-response protocol on a Unix socket, one request per
// connection.
//
// A request is a CBOR map with an "action" field. The response is
// {ok, error, data}. [RegisterDaemonActions] binds the actions that
// drive the event loop (reload, dumpstate, terminate, interrupt) and a
// read-only status action, which makes the socket an event source
// equivalent to signals on platforms that lack them.
//
// The socket is created mode 0600; only the daemon's user can talk to
// it.
package control

// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

// Package endpoint names, binds and retires the daemon's listening
// Unix domain socket.
//
// A name is either the standard one under the home directory
// (~/.gnupg/S.scdaemon) or a fresh private directory made from a
// template such as /tmp/gpg-XXXXXX/S.scdaemon. [ValidateName] rejects
// names the transport cannot carry before anything is bound.
//
// [Bind] listens with a backlog of [ListenBacklog]. A standard name
// left behind by a crashed daemon produces EADDRINUSE; the stale file
// is removed and the bind retried once. Private names are fresh by
// construction and never retried.
//
// Each bound endpoint captures a [Nonce]. Accepted connections are
// checked against it so a client that reached a replaced socket file,
// or a peer running as another user, never gets a session.
//
// [Endpoint.Remove] closes the listener and deletes the socket file
// (and for private names its directory) exactly once.
package endpoint

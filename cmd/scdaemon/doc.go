// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

// scdaemon is the smartcard daemon's connection engine. It accepts
// client connections on a Unix socket, a stdin/stdout pipe, or both,
// and runs one session per connection until told to shut down.
//
// Run modes:
//
//	--server        serve the pipe on stdin/stdout
//	--multi-server  serve the pipe and listen on a socket
//	--daemon        listen on a socket in the background and print
//	                SCDAEMON_INFO for the calling shell
//
// In daemon mode the process binds the socket, re-executes itself
// with the listening descriptor inherited as fd 3, and prints
//
//	SCDAEMON_INFO=<socket>:<pid>:1; export SCDAEMON_INFO;
//
// (or the csh form). Given a command after the flags it exports the
// variable and execs the command instead.
//
// Signals: SIGHUP reloads, SIGUSR1 dumps state, SIGTERM drains and
// exits once every session has ended (the third SIGTERM exits at
// once), SIGINT exits at once. With --control-socket the same events
// are available over a CBOR control socket, and
//
//	scdaemon --control-socket PATH --control status
//
// queries a running daemon.
package main

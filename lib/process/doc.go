// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

// Package process centralizes how the daemon binary ends: the exit
// code taxonomy and the single place that writes a fatal error to
// stderr before the structured logger may exist.
//
//	0  clean shutdown or informational invocation
//	1  late bootstrap failure (detach, exec, environment)
//	2  fatal configuration or resource error (naming, binding, options)
package process

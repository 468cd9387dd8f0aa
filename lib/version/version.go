// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
)

// Set via -ldflags at build time.
var (
	// Version is the release version.
	Version = "2.0.20-go"

	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"
)

// ProtocolVersion is the third field of the SCDAEMON_INFO string.
const ProtocolVersion = 1

// Name is the program name used in log lines and usage output.
const Name = "scdaemon"

// Info returns "<version> (<commit>)".
func Info() string {
	return fmt.Sprintf("%s (%s)", Version, GitCommit)
}

// Full returns Info plus the Go toolchain and platform.
func Full() string {
	return fmt.Sprintf("%s (GnuPG) %s\n  Go: %s\n  Platform: %s/%s",
		Name, Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Stopped returns the final log message of a clean shutdown.
func Stopped() string {
	return fmt.Sprintf("%s (GnuPG) %s stopped", Name, Version)
}

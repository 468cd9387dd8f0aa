// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports the daemon's build identity. Values are
// injected at link time:
//
//	go build -ldflags "-X github.com/0ndorio/gnupg/lib/version.GitCommit=$(git rev-parse --short HEAD)"
package version

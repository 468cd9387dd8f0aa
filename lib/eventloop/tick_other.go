// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !windows

package eventloop

import "time"

// DefaultTickInterval is the period of the housekeeping tick.
const DefaultTickInterval = 2 * time.Second

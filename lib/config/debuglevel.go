// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
)

// DebugLevel selects how much the daemon logs for debugging.
type DebugLevel int

const (
	DebugNone DebugLevel = iota
	DebugBasic
	DebugAdvanced
	DebugExpert
	DebugGuru
)

var debugLevelNames = []string{"none", "basic", "advanced", "expert", "guru"}

func (l DebugLevel) String() string {
	if l < DebugNone || l > DebugGuru {
		return fmt.Sprintf("DebugLevel(%d)", int(l))
	}
	return debugLevelNames[l]
}

var ErrInvalidDebugLevel = errors.New("invalid debug-level")

// ParseDebugLevel accepts none, basic, advanced, expert or guru. The
// empty string is none.
func ParseDebugLevel(name string) (DebugLevel, error) {
	if name == "" {
		return DebugNone, nil
	}
	for level, candidate := range debugLevelNames {
		if name == candidate {
			return DebugLevel(level), nil
		}
	}
	return DebugNone, fmt.Errorf("%w %q given", ErrInvalidDebugLevel, name)
}

// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"io"
	"strings"
)

// gpgconf option flags.
const (
	gpgconfFlagNone    = 0
	gpgconfFlagDefault = 1 << 4
)

// WriteGPGConfList writes the option table with default values in
// gpgconf's colon-separated format. optionsPath is the file the
// options are read from.
func WriteGPGConfList(w io.Writer, optionsPath string) error {
	lines := []string{
		fmt.Sprintf("gpgconf-scdaemon.conf:%d:\"%s", gpgconfFlagDefault, percentEscape(optionsPath)),
		fmt.Sprintf("verbose:%d:", gpgconfFlagNone),
		fmt.Sprintf("quiet:%d:", gpgconfFlagNone),
		fmt.Sprintf("debug-level:%d:\"none:", gpgconfFlagDefault),
		fmt.Sprintf("log-file:%d:", gpgconfFlagNone),
		fmt.Sprintf("reader-port:%d:", gpgconfFlagNone),
		fmt.Sprintf("ctapi-driver:%d:", gpgconfFlagNone),
		fmt.Sprintf("pcsc-driver:%d:\"%s:", gpgconfFlagDefault, DefaultPCSCDriver),
		fmt.Sprintf("disable-ccid:%d:", gpgconfFlagNone),
		fmt.Sprintf("allow-admin:%d:", gpgconfFlagNone),
		fmt.Sprintf("disable-keypad:%d:", gpgconfFlagNone),
	}
	_, err := io.WriteString(w, strings.Join(lines, "\n")+"\n")
	return err
}

// percentEscape escapes the characters gpgconf treats as field
// syntax.
func percentEscape(value string) string {
	var builder strings.Builder
	for _, r := range value {
		switch r {
		case '%':
			builder.WriteString("%25")
		case ':':
			builder.WriteString("%3a")
		default:
			builder.WriteRune(r)
		}
	}
	return builder.String()
}

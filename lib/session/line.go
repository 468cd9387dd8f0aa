// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/0ndorio/gnupg/lib/version"
)

// Greeting is the first line a client sees.
const Greeting = "OK GNU Privacy Guard's Smartcard server ready"

// maxLineLength is the Assuan line limit, excluding the newline.
const maxLineLength = 1000

// LineRunner serves the line protocol housekeeping commands: NOP, BYE,
// RESTART and GETINFO (version, pid, socket_name, status, deny_admin).
// Card commands are answered with "not implemented".
type LineRunner struct {
	// SocketName returns the listening socket's path, or "" when the
	// daemon has none. May be nil.
	SocketName func() string

	// Status returns the value of GETINFO status. May be nil.
	Status func() string

	// AllowAdmin permits admin card commands. GETINFO deny_admin
	// answers OK only while it is false.
	AllowAdmin bool

	Logger *slog.Logger
}

// RunSession implements Runner.
func (r *LineRunner) RunSession(ctx context.Context, conn io.ReadWriter, state *State) error {
	writer := bufio.NewWriter(conn)
	reply := func(lines ...string) error {
		for _, line := range lines {
			writer.WriteString(line)
			writer.WriteByte('\n')
		}
		return writer.Flush()
	}

	if err := reply(Greeting); err != nil {
		return err
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, maxLineLength+1), maxLineLength+1)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		command, argument, _ := strings.Cut(line, " ")
		command = strings.ToUpper(command)
		argument = strings.TrimSpace(argument)

		if r.Logger != nil {
			r.Logger.Debug("session command", "command", command)
		}

		var err error
		switch command {
		case "NOP":
			err = reply("OK")
		case "BYE":
			return reply("OK closing connection")
		case "RESTART":
			state.Release()
			err = reply("OK")
		case "GETINFO":
			err = reply(r.getInfo(argument)...)
		default:
			err = reply("ERR 69 Not implemented")
		}
		if err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading request: %w", err)
	}
	return nil
}

func (r *LineRunner) getInfo(what string) []string {
	var value string
	switch what {
	case "version":
		value = version.Version
	case "pid":
		value = strconv.Itoa(os.Getpid())
	case "socket_name":
		if r.SocketName != nil {
			value = r.SocketName()
		}
	case "status":
		if r.Status != nil {
			value = r.Status()
		}
	case "deny_admin":
		if r.AllowAdmin {
			return []string{"ERR 1 General error"}
		}
		return []string{"OK"}
	default:
		return []string{"ERR 280 Unknown GETINFO item"}
	}
	if value == "" {
		return []string{"ERR 58 No data"}
	}
	return []string{"D " + escapeData(value), "OK"}
}

// escapeData percent-escapes the bytes that cannot appear raw in a
// data line.
func escapeData(value string) string {
	var builder strings.Builder
	for i := 0; i < len(value); i++ {
		switch c := value[i]; c {
		case '%', '\r', '\n':
			fmt.Fprintf(&builder, "%%%02X", c)
		default:
			builder.WriteByte(c)
		}
	}
	return builder.String()
}

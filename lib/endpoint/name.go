// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

package endpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// StandardName is the socket's basename under the home directory.
	StandardName = "S.scdaemon"

	// DefaultTemplate is the private-directory template used when the
	// standard socket is not requested.
	DefaultTemplate = "/tmp/gpg-XXXXXX/S.scdaemon"

	// MaxPathLength is the size of sockaddr_un.sun_path, including the
	// terminating NUL.
	MaxPathLength = 108

	templateMarker = "XXXXXX"
)

var (
	ErrNameTooLong     = errors.New("name of socket too long")
	ErrSeparatorInName = fmt.Errorf("%q is not allowed in the socket name", string(os.PathListSeparator))
	ErrBadTemplate     = errors.New("socket template needs a directory and a basename")
)

// ComputeName returns the path the daemon should listen on. With
// useStandard the path is configDir/standardName. Otherwise a new
// private directory (mode 0700) is created next to the template's
// directory, named after it with the XXXXXX suffix randomized, and the
// path is that directory joined with the template's basename.
//
// A name that fails ValidateName is an error; a private directory
// created for it is removed again.
func ComputeName(useStandard bool, configDir, standardName, template string) (string, error) {
	if useStandard {
		name := filepath.Join(configDir, standardName)
		if err := ValidateName(name); err != nil {
			return "", err
		}
		return name, nil
	}

	directory, base := filepath.Split(template)
	directory = filepath.Clean(directory)
	if base == "" || directory == "." || directory == string(filepath.Separator) {
		return "", fmt.Errorf("%w: %q", ErrBadTemplate, template)
	}

	parent, pattern := filepath.Split(directory)
	if parent == "" {
		parent = "."
	}
	pattern = strings.TrimSuffix(pattern, templateMarker) + "*"

	created, err := os.MkdirTemp(parent, pattern)
	if err != nil {
		return "", fmt.Errorf("can't create directory %q: %w", directory, err)
	}

	name := filepath.Join(created, base)
	if err := ValidateName(name); err != nil {
		os.Remove(created)
		return "", err
	}
	return name, nil
}

// ValidateName checks that name fits in sun_path and carries no path
// list separator. It performs no I/O.
func ValidateName(name string) error {
	if strings.ContainsRune(name, os.PathListSeparator) {
		return fmt.Errorf("%w: %q", ErrSeparatorInName, name)
	}
	if len(name)+1 >= MaxPathLength {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrNameTooLong, len(name), MaxPathLength-2)
	}
	return nil
}

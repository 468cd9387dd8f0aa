// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the daemon's YAML options file.
//
// The file is scdaemon.yaml in the home directory, or the path given
// by --options. [HomeDir] resolves the home directory from the
// --homedir flag, then $GNUPGHOME, then ~/.gnupg. A missing default
// file is not an error; a missing explicit file is.
//
// Command-line flags override file values. The binary applies them
// after [LoadFile] returns, so this package never sees flags.
//
// Path fields expand ${HOME}, ${GNUPGHOME} and ${VAR:-default}.
//
// [WriteGPGConfList] prints the option table in the colon-separated
// format gpgconf reads.
//
// This package depends on no other daemon packages.
package config

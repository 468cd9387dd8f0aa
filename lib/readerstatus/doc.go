// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

// Package readerstatus maintains the per-reader status files
// (reader_<slot>.status) under the home directory. Other tools poll
// these files instead of talking to the daemon.
//
// Every event-loop tick starts [Updater.UpdateAsync], which skips the
// tick while an earlier scan is still running. An update asks a
// [Scanner] for the current readers and rewrites a status file only when its
// content changed, comparing BLAKE3 digests of what was last written.
// Files are replaced atomically (temporary file, fsync, rename) so a
// reader of the file never sees a partial status.
package readerstatus

// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

package readerstatus

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/zeebo/blake3"
)

// State is the content of a status file.
type State string

const (
	StateUsable  State = "USABLE"
	StatePresent State = "PRESENT"
	StateNoCard  State = "NOCARD"
	StateAbsent  State = "ABSENT"
)

// Reader is one reader slot's observed state. Port is the configured
// reader port, empty for the first available reader.
type Reader struct {
	Slot  int
	Port  string
	State State
}

// Scanner reports the readers currently known.
type Scanner interface {
	Scan() ([]Reader, error)
}

// Updater writes status files for the readers a Scanner reports.
type Updater struct {
	directory string
	scanner   Scanner
	logger    *slog.Logger

	mu      sync.Mutex
	written map[int][32]byte
	readers []Reader

	updating atomic.Bool
}

// NewUpdater returns an Updater writing into directory.
func NewUpdater(directory string, scanner Scanner, logger *slog.Logger) *Updater {
	return &Updater{
		directory: directory,
		scanner:   scanner,
		logger:    logger,
		written:   make(map[int][32]byte),
	}
}

// Path returns the status file path for slot.
func (u *Updater) Path(slot int) string {
	return filepath.Join(u.directory, fmt.Sprintf("reader_%d.status", slot))
}

// Update scans the readers and rewrites the status files whose
// content changed. Errors from individual files are joined; the
// remaining files are still updated.
func (u *Updater) Update() error {
	readers, err := u.scanner.Scan()
	if err != nil {
		return fmt.Errorf("probing readers: %w", err)
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	u.readers = slices.Clone(readers)
	var errs []error
	for _, reader := range readers {
		content := []byte(string(reader.State) + "\n")
		digest := blake3.Sum256(content)
		if previous, ok := u.written[reader.Slot]; ok && previous == digest {
			continue
		}

		path := u.Path(reader.Slot)
		if err := writeAtomic(path, content); err != nil {
			errs = append(errs, err)
			continue
		}
		u.written[reader.Slot] = digest
		u.logger.Debug("reader status changed", "slot", reader.Slot, "state", reader.State, "path", path)
	}
	return errors.Join(errs...)
}

// UpdateAsync runs Update on its own goroutine so a slow scan never
// holds up the caller. It returns nil without starting anything while
// a previous update is still running; otherwise the returned channel
// receives Update's result. Failures are also logged at debug level.
func (u *Updater) UpdateAsync() <-chan error {
	if !u.updating.CompareAndSwap(false, true) {
		return nil
	}
	result := make(chan error, 1)
	go func() {
		err := u.Update()
		u.updating.Store(false)
		if err != nil {
			u.logger.Debug("updating reader status", "error", err)
		}
		result <- err
	}()
	return result
}

// Readers returns the readers seen by the last scan.
func (u *Updater) Readers() []Reader {
	u.mu.Lock()
	defer u.mu.Unlock()
	return slices.Clone(u.readers)
}

// Reset forgets what was written so the next Update rewrites every
// file.
func (u *Updater) Reset() {
	u.mu.Lock()
	defer u.mu.Unlock()
	clear(u.written)
}

// writeAtomic replaces path with content through a temporary file in
// the same directory.
func writeAtomic(path string, content []byte) error {
	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating temporary status file: %w", err)
	}
	if _, err := file.Write(content); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary status file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary status file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary status file: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming status file into place: %w", err)
	}
	return nil
}

// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

package shutdown

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/0ndorio/gnupg/lib/clock"
)

// DefaultForceThreshold is the number of terminate requests after
// which the daemon exits without waiting for live workers.
const DefaultForceThreshold = 3

// Stage is the daemon's position in the shutdown sequence.
type Stage int

const (
	StageRunning Stage = iota
	StageDraining
	StageForced
)

func (s Stage) String() string {
	switch s {
	case StageRunning:
		return "running"
	case StageDraining:
		return "draining"
	case StageForced:
		return "forced"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// WorkerInfo describes one live connection worker.
type WorkerInfo struct {
	ID      uint64
	Primary bool
	Started time.Time
}

// Snapshot is a consistent view of the coordinator for diagnostics.
type Snapshot struct {
	Stage    Stage
	Requests int
	Workers  []WorkerInfo
}

// Coordinator is the process-wide shutdown state. The zero value is
// not usable; call New.
type Coordinator struct {
	forceThreshold int
	clock          clock.Clock

	mu       sync.Mutex
	requests int
	draining bool
	workers  map[uint64]WorkerInfo

	changed chan struct{}
}

// New returns a running Coordinator. A forceThreshold below 1 selects
// DefaultForceThreshold.
func New(forceThreshold int, c clock.Clock) *Coordinator {
	if forceThreshold < 1 {
		forceThreshold = DefaultForceThreshold
	}
	if c == nil {
		c = clock.Real()
	}
	return &Coordinator{
		forceThreshold: forceThreshold,
		clock:          c,
		workers:        make(map[uint64]WorkerInfo),
		changed:        make(chan struct{}, 1),
	}
}

// ForceThreshold returns the configured forced-exit threshold.
func (c *Coordinator) ForceThreshold() int { return c.forceThreshold }

// RequestShutdown records one terminate request and returns the
// resulting stage. The first request starts draining; the
// ForceThreshold-th request yields StageForced.
func (c *Coordinator) RequestShutdown() Stage {
	c.mu.Lock()
	c.requests++
	c.draining = true
	stage := c.stageLocked()
	c.mu.Unlock()

	c.notify()
	return stage
}

// BeginDrain moves to StageDraining without counting as a terminate
// request. The primary pipe worker calls it when its client goes away.
func (c *Coordinator) BeginDrain() {
	c.mu.Lock()
	c.draining = true
	c.mu.Unlock()

	c.notify()
}

// WorkerStarted registers a dispatched worker. The loop calls it
// before starting the worker goroutine.
func (c *Coordinator) WorkerStarted(id uint64, primary bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.workers[id]; exists {
		panic(fmt.Sprintf("shutdown: worker %d registered twice", id))
	}
	c.workers[id] = WorkerInfo{ID: id, Primary: primary, Started: c.clock.Now()}
}

// ReportWorkerDone removes a finished worker. Reporting an unknown or
// already finished worker panics: the live count must never go
// negative.
func (c *Coordinator) ReportWorkerDone(id uint64) {
	c.mu.Lock()
	if _, exists := c.workers[id]; !exists {
		c.mu.Unlock()
		panic(fmt.Sprintf("shutdown: worker %d reported done but is not live", id))
	}
	delete(c.workers, id)
	c.mu.Unlock()

	c.notify()
}

// IsDraining reports whether shutdown has been requested.
func (c *Coordinator) IsDraining() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draining
}

// LiveWorkerCount returns the number of workers currently running.
func (c *Coordinator) LiveWorkerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.workers)
}

// Requests returns how many terminate requests have been recorded.
func (c *Coordinator) Requests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests
}

// Stage returns the current stage.
func (c *Coordinator) Stage() Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stageLocked()
}

// Drained reports whether draining has been requested and no worker
// is left.
func (c *Coordinator) Drained() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draining && len(c.workers) == 0
}

// Snapshot returns the stage, request count and live workers ordered
// by id.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	workers := make([]WorkerInfo, 0, len(c.workers))
	for _, info := range c.workers {
		workers = append(workers, info)
	}
	sort.Slice(workers, func(i, j int) bool { return workers[i].ID < workers[j].ID })
	return Snapshot{Stage: c.stageLocked(), Requests: c.requests, Workers: workers}
}

// Changed returns a channel that receives after the stage or the
// live-worker count changes. Notifications coalesce: several changes
// between two reads produce one receive.
func (c *Coordinator) Changed() <-chan struct{} { return c.changed }

func (c *Coordinator) stageLocked() Stage {
	switch {
	case c.requests >= c.forceThreshold:
		return StageForced
	case c.draining:
		return StageDraining
	default:
		return StageRunning
	}
}

func (c *Coordinator) notify() {
	select {
	case c.changed <- struct{}{}:
	default:
	}
}

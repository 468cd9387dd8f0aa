// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

package shutdown

import (
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/0ndorio/gnupg/lib/clock"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestRequestShutdownCountsTowardsForced(t *testing.T) {
	coordinator := New(DefaultForceThreshold, clock.Fake(epoch))
	coordinator.WorkerStarted(1, false)

	if got := coordinator.Stage(); got != StageRunning {
		t.Fatalf("initial stage = %v, want running", got)
	}
	want := []Stage{StageDraining, StageDraining, StageForced, StageForced}
	for index, expected := range want {
		if got := coordinator.RequestShutdown(); got != expected {
			t.Errorf("request %d: stage = %v, want %v", index+1, got, expected)
		}
	}
	if coordinator.LiveWorkerCount() != 1 {
		t.Errorf("forced stage must not touch live workers, got %d", coordinator.LiveWorkerCount())
	}
}

func TestForceThresholdIsTunable(t *testing.T) {
	coordinator := New(1, nil)
	if got := coordinator.RequestShutdown(); got != StageForced {
		t.Errorf("threshold 1: first request gave %v, want forced", got)
	}

	coordinator = New(0, nil)
	if coordinator.ForceThreshold() != DefaultForceThreshold {
		t.Errorf("threshold 0 should select the default, got %d", coordinator.ForceThreshold())
	}
}

func TestBeginDrainDoesNotCount(t *testing.T) {
	coordinator := New(2, nil)
	coordinator.BeginDrain()
	coordinator.BeginDrain()
	if got := coordinator.Stage(); got != StageDraining {
		t.Fatalf("stage = %v, want draining", got)
	}
	if coordinator.Requests() != 0 {
		t.Errorf("BeginDrain counted as a request: %d", coordinator.Requests())
	}
	if got := coordinator.RequestShutdown(); got != StageDraining {
		t.Errorf("first real request after drain = %v, want draining", got)
	}
}

func TestDrainedRequiresZeroWorkers(t *testing.T) {
	coordinator := New(DefaultForceThreshold, nil)
	coordinator.WorkerStarted(1, false)
	coordinator.WorkerStarted(2, false)
	coordinator.RequestShutdown()

	if coordinator.Drained() {
		t.Fatal("drained with two live workers")
	}
	coordinator.ReportWorkerDone(1)
	if coordinator.Drained() {
		t.Fatal("drained with one live worker")
	}
	coordinator.ReportWorkerDone(2)
	if !coordinator.Drained() {
		t.Fatal("not drained with zero workers")
	}
}

func TestReportUnknownWorkerPanics(t *testing.T) {
	coordinator := New(DefaultForceThreshold, nil)
	defer func() {
		if recover() == nil {
			t.Error("ReportWorkerDone on an unknown worker did not panic")
		}
	}()
	coordinator.ReportWorkerDone(7)
}

func TestChangedCoalesces(t *testing.T) {
	coordinator := New(DefaultForceThreshold, nil)
	coordinator.WorkerStarted(1, false)
	coordinator.ReportWorkerDone(1)
	coordinator.BeginDrain()

	select {
	case <-coordinator.Changed():
	default:
		t.Fatal("no change notification")
	}
	select {
	case <-coordinator.Changed():
		t.Fatal("notifications did not coalesce")
	default:
	}
}

// Workers finishing in any order, from any goroutine, return the live
// count to its starting value.
func TestLiveWorkerCountBalancesUnderRandomFinishOrder(t *testing.T) {
	for round := range 50 {
		coordinator := New(DefaultForceThreshold, nil)
		coordinator.WorkerStarted(0, true)
		before := coordinator.LiveWorkerCount()

		count := 1 + rand.IntN(64)
		ids := make([]uint64, count)
		for index := range ids {
			ids[index] = uint64(index + 1)
			coordinator.WorkerStarted(ids[index], false)
		}
		rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

		var wg sync.WaitGroup
		for _, id := range ids {
			wg.Add(1)
			go func() {
				defer wg.Done()
				coordinator.ReportWorkerDone(id)
				if live := coordinator.LiveWorkerCount(); live < 0 {
					t.Errorf("negative live count %d", live)
				}
			}()
		}
		wg.Wait()

		if after := coordinator.LiveWorkerCount(); after != before {
			t.Fatalf("round %d: live count %d after %d workers finished, want %d", round, after, count, before)
		}
	}
}

func TestSnapshotOrdersWorkers(t *testing.T) {
	fake := clock.Fake(epoch)
	coordinator := New(DefaultForceThreshold, fake)
	coordinator.WorkerStarted(5, false)
	coordinator.WorkerStarted(2, true)
	coordinator.RequestShutdown()

	snapshot := coordinator.Snapshot()
	if snapshot.Stage != StageDraining || snapshot.Requests != 1 {
		t.Errorf("snapshot = %+v", snapshot)
	}
	if len(snapshot.Workers) != 2 || snapshot.Workers[0].ID != 2 || !snapshot.Workers[0].Primary {
		t.Fatalf("workers = %+v", snapshot.Workers)
	}
	if !snapshot.Workers[1].Started.Equal(epoch) {
		t.Errorf("start time = %v, want %v", snapshot.Workers[1].Started, epoch)
	}
}

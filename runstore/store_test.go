package runstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "runs.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	run, err := store.Start(ctx, "cpu", 128, "[model]\nlatent_dim = 128\n")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if run.ID == "" || run.Status != StatusRunning {
		t.Fatalf("unexpected new run %+v", run)
	}
	if run.FinishedAt != nil || run.F1 != nil {
		t.Fatalf("new run should not be finished: %+v", run)
	}

	for i := 0; i < 3; i++ {
		e := Epoch{Epoch: i, TrainLoss: 0.5 / float64(i+1), ValLoss: 0.6 / float64(i+1), Duration: 1500 * time.Millisecond}
		if err := store.RecordEpoch(ctx, run.ID, e); err != nil {
			t.Fatalf("RecordEpoch failed: %v", err)
		}
	}
	if err := store.RecordEpoch(ctx, run.ID, Epoch{Epoch: 1}); err == nil {
		t.Error("expected error recording a duplicate epoch")
	}

	if err := store.Complete(ctx, run.ID, 0.875); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	got, err := store.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusCompleted || got.F1 == nil || *got.F1 != 0.875 {
		t.Errorf("unexpected completed run %+v", got)
	}
	if got.FinishedAt == nil || got.FinishedAt.Before(got.StartedAt) {
		t.Errorf("bad finish time %v (started %v)", got.FinishedAt, got.StartedAt)
	}
	if got.Epochs != 3 || got.LatentDim != 128 || got.Device != "cpu" {
		t.Errorf("unexpected run fields %+v", got)
	}

	epochs, err := store.Epochs(ctx, run.ID)
	if err != nil {
		t.Fatalf("Epochs failed: %v", err)
	}
	if len(epochs) != 3 || epochs[2].Epoch != 2 || epochs[0].Duration != 1500*time.Millisecond {
		t.Errorf("unexpected epochs %+v", epochs)
	}
}

func TestFailAndList(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	first, _ := store.Start(ctx, "cpu", 8, "")
	second, _ := store.Start(ctx, "cpu", 16, "")

	if err := store.Fail(ctx, first.ID, errors.New("non-finite loss")); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	runs, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("List returned %d runs, expected 2", len(runs))
	}
	if runs[0].ID != second.ID {
		t.Errorf("most recent run should come first, got %s", runs[0].ID)
	}
	if runs[1].Status != StatusFailed || runs[1].Error != "non-finite loss" || runs[1].F1 != nil {
		t.Errorf("unexpected failed run %+v", runs[1])
	}

	limited, _ := store.List(ctx, 1)
	if len(limited) != 1 {
		t.Errorf("List(1) returned %d runs", len(limited))
	}
}

func TestNotFound(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get: expected ErrNotFound, got %v", err)
	}
	if err := store.Complete(ctx, "missing", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("Complete: expected ErrNotFound, got %v", err)
	}
	if err := store.RecordEpoch(ctx, "missing", Epoch{}); err == nil {
		t.Error("RecordEpoch: expected foreign key error")
	}
}

func TestReopenKeepsRuns(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	run, _ := store.Start(ctx, "cpu", 4, "")
	_ = store.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	if _, err := reopened.Get(ctx, run.ID); err != nil {
		t.Errorf("run lost across reopen: %v", err)
	}
}

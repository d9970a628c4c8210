package workers

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/tinkeshwar/videopipeline/internal/videojob"
)

func TestMoverReplacesAcceptedJob(t *testing.T) {
	repo := newTestRepoForWorkers(t)
	ctx := context.Background()

	dir := t.TempDir()
	original := filepath.Join(dir, "a.mp4")
	optimized := filepath.Join(dir, "a.mp4.optimized")
	if err := os.WriteFile(original, []byte("original bytes"), 0o644); err != nil {
		t.Fatalf("write original: %v", err)
	}
	if err := os.WriteFile(optimized, []byte("smaller bytes"), 0o644); err != nil {
		t.Fatalf("write optimized: %v", err)
	}

	id, err := repo.Insert(ctx, original, "a.mp4", "{}", "h264", 1000)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	for _, to := range []videojob.Status{videojob.StatusConfirmed, videojob.StatusReady} {
		if err := repo.UpdateStatus(ctx, id, to, nil); err != nil {
			t.Fatalf("advance to %s: %v", to, err)
		}
	}
	if err := repo.UpdateFinalOutput(ctx, id, optimized, "hevc", 500); err != nil {
		t.Fatalf("record optimized output: %v", err)
	}
	if err := repo.UpdateStatus(ctx, id, videojob.StatusAccepted, nil); err != nil {
		t.Fatalf("accept: %v", err)
	}

	m := &Mover{Repo: repo, BatchSize: 10}
	if err := m.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}

	job, err := repo.ByPath(ctx, original)
	if err != nil {
		t.Fatalf("by_path: %v", err)
	}
	if job.Status != videojob.StatusReplaced {
		t.Fatalf("expected replaced, got %s", job.Status)
	}

	data, err := os.ReadFile(original)
	if err != nil {
		t.Fatalf("read replaced original: %v", err)
	}
	if string(data) != "smaller bytes" {
		t.Fatalf("original was not replaced with optimized content, got %q", string(data))
	}
	if _, err := os.Stat(optimized); !os.IsNotExist(err) {
		t.Fatalf("expected optimized_path file to be gone after rename, stat err: %v", err)
	}
}

func TestMoverFailsWhenOptimizedFileMissing(t *testing.T) {
	repo := newTestRepoForWorkers(t)
	ctx := context.Background()

	dir := t.TempDir()
	original := filepath.Join(dir, "a.mp4")
	if err := os.WriteFile(original, []byte("original bytes"), 0o644); err != nil {
		t.Fatalf("write original: %v", err)
	}

	id, err := repo.Insert(ctx, original, "a.mp4", "{}", "h264", 1000)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	for _, to := range []videojob.Status{videojob.StatusConfirmed, videojob.StatusReady} {
		if err := repo.UpdateStatus(ctx, id, to, nil); err != nil {
			t.Fatalf("advance to %s: %v", to, err)
		}
	}
	if err := repo.UpdateFinalOutput(ctx, id, filepath.Join(dir, "missing.mp4"), "hevc", 500); err != nil {
		t.Fatalf("record optimized output: %v", err)
	}
	if err := repo.UpdateStatus(ctx, id, videojob.StatusAccepted, nil); err != nil {
		t.Fatalf("accept: %v", err)
	}

	m := &Mover{Repo: repo, BatchSize: 10}
	if err := m.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}

	job, err := repo.ByPath(ctx, original)
	if err != nil {
		t.Fatalf("by_path: %v", err)
	}
	if job.Status != videojob.StatusFailed {
		t.Fatalf("expected failed when optimized file is missing, got %s", job.Status)
	}
}

func TestMoverCleansUpSkippedJobWithoutChangingStatus(t *testing.T) {
	repo := newTestRepoForWorkers(t)
	ctx := context.Background()

	dir := t.TempDir()
	original := filepath.Join(dir, "a.mp4")
	optimized := filepath.Join(dir, "a.mp4.optimized")
	if err := os.WriteFile(original, []byte("original bytes"), 0o644); err != nil {
		t.Fatalf("write original: %v", err)
	}
	if err := os.WriteFile(optimized, []byte("smaller bytes"), 0o644); err != nil {
		t.Fatalf("write optimized: %v", err)
	}

	id, err := repo.Insert(ctx, original, "a.mp4", "{}", "h264", 1000)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	for _, to := range []videojob.Status{videojob.StatusConfirmed, videojob.StatusReady} {
		if err := repo.UpdateStatus(ctx, id, to, nil); err != nil {
			t.Fatalf("advance to %s: %v", to, err)
		}
	}
	if err := repo.UpdateFinalOutput(ctx, id, optimized, "hevc", 500); err != nil {
		t.Fatalf("record optimized output: %v", err)
	}
	// optimized -> skipped is an operator override, not a worker-issued edge.
	if err := repo.ForceStatus(ctx, id, videojob.StatusSkipped); err != nil {
		t.Fatalf("skip: %v", err)
	}

	m := &Mover{Repo: repo, BatchSize: 10}
	if err := m.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}

	job, err := repo.ByPath(ctx, original)
	if err != nil {
		t.Fatalf("by_path: %v", err)
	}
	if job.Status != videojob.StatusSkipped {
		t.Fatalf("expected status unchanged at skipped, got %s", job.Status)
	}
	if job.OptimizedPath != "" {
		t.Fatalf("expected optimized_path cleared, got %q", job.OptimizedPath)
	}
	if _, err := os.Stat(optimized); !os.IsNotExist(err) {
		t.Fatalf("expected leftover optimized file removed, stat err: %v", err)
	}
	if _, err := os.Stat(original); err != nil {
		t.Fatalf("original should be untouched by skipped cleanup: %v", err)
	}
}

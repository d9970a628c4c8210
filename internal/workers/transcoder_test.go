package workers

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/tinkeshwar/videopipeline/internal/videojob"
)

func TestTranscoderNoReadyJobIsANoop(t *testing.T) {
	repo := newTestRepoForWorkers(t)
	tr := &Transcoder{Repo: repo, Prober: &fakeProber{}, OutputDir: t.TempDir(), MinReductionRatio: 0.2}
	if err := tr.Tick(context.Background()); err != nil {
		t.Fatalf("tick on an empty queue should be a no-op: %v", err)
	}
}

func TestTranscoderFailsJobWithInvalidCommand(t *testing.T) {
	repo := newTestRepoForWorkers(t)
	ctx := context.Background()
	dir := t.TempDir()

	input := filepath.Join(dir, "a.mp4")
	if err := os.WriteFile(input, []byte("x"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	id, err := repo.Insert(ctx, input, "a.mp4", "{}", "h264", 1000)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := repo.UpdateStatus(ctx, id, videojob.StatusConfirmed, nil); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	// Missing the output.mp4 placeholder: BuildArgs must reject it before any process runs.
	if err := repo.UpdateSystemInfoAndCommand(ctx, id, "ffmpeg -i input.mp4 -crf 24 out.mp4", "{}"); err != nil {
		t.Fatalf("synthesize: %v", err)
	}

	tr := &Transcoder{Repo: repo, Prober: &fakeProber{}, OutputDir: dir, MinReductionRatio: 0.2}
	if err := tr.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}

	job, err := repo.ByPath(ctx, input)
	if err != nil {
		t.Fatalf("by_path: %v", err)
	}
	if job.Status != videojob.StatusFailed {
		t.Fatalf("expected failed for an invalid ai_command, got %s", job.Status)
	}
}

func TestTranscoderFailsJobWithMissingInputFile(t *testing.T) {
	repo := newTestRepoForWorkers(t)
	ctx := context.Background()
	dir := t.TempDir()

	// Insert references a file that is never written to disk.
	input := filepath.Join(dir, "gone.mp4")
	id, err := repo.Insert(ctx, input, "gone.mp4", "{}", "h264", 1000)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := repo.UpdateStatus(ctx, id, videojob.StatusConfirmed, nil); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := repo.UpdateSystemInfoAndCommand(ctx, id, "ffmpeg -i input.mp4 -crf 24 output.mp4", "{}"); err != nil {
		t.Fatalf("synthesize: %v", err)
	}

	tr := &Transcoder{Repo: repo, Prober: &fakeProber{}, OutputDir: dir, MinReductionRatio: 0.2}
	if err := tr.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}

	job, err := repo.ByPath(ctx, input)
	if err != nil {
		t.Fatalf("by_path: %v", err)
	}
	if job.Status != videojob.StatusFailed {
		t.Fatalf("expected failed when the input file no longer exists, got %s", job.Status)
	}
}

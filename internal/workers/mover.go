package workers

import (
	"context"
	"log/slog"
	"os"

	"github.com/tinkeshwar/videopipeline/internal/logger"
	"github.com/tinkeshwar/videopipeline/internal/videojob"
)

// Mover replaces originals with their optimized counterpart (spec.md §4.7)
// and sweeps leftover optimized files for jobs the operator skipped.
type Mover struct {
	Repo      *videojob.Repository
	BatchSize int
}

// Tick runs the accepted->replaced pass followed by the skipped-cleanup
// pass. Neither pass is fatal to the other: a failure in one accepted row
// is recorded on that row and does not stop the batch.
func (m *Mover) Tick(ctx context.Context) error {
	log := logger.With("component", "mover")

	accepted, err := m.Repo.ByStatus(ctx, videojob.StatusAccepted, m.BatchSize)
	if err != nil {
		return err
	}
	for _, job := range accepted {
		if err := m.replaceOne(ctx, job, log); err != nil {
			log.Warn("replace failed", "job_id", job.ID, "error", err)
		}
	}

	skipped, err := m.Repo.ByStatus(ctx, videojob.StatusSkipped, 0)
	if err != nil {
		return err
	}
	for _, job := range skipped {
		m.cleanupSkipped(ctx, job, log)
	}

	return nil
}

func (m *Mover) replaceOne(ctx context.Context, job *videojob.Job, log *slog.Logger) error {
	if _, err := os.Stat(job.Filepath); err != nil {
		return m.Repo.UpdateStatus(ctx, job.ID, videojob.StatusFailed, nil)
	}
	if _, err := os.Stat(job.OptimizedPath); err != nil {
		return m.Repo.UpdateStatus(ctx, job.ID, videojob.StatusFailed, nil)
	}

	if err := os.Remove(job.Filepath); err != nil {
		return m.Repo.UpdateStatus(ctx, job.ID, videojob.StatusFailed, nil)
	}
	if err := os.Rename(job.OptimizedPath, job.Filepath); err != nil {
		return m.Repo.UpdateStatus(ctx, job.ID, videojob.StatusFailed, nil)
	}

	log.Info("replaced original with optimized file", "job_id", job.ID, "filename", job.Filename)
	return m.Repo.UpdateStatus(ctx, job.ID, videojob.StatusReplaced, nil)
}

// cleanupSkipped removes a leftover optimized file and clears the column
// without touching status, per the Open Question decision in spec.md §9:
// "skipped" is the stable terminal state for an operator's manual reject of
// an optimized result.
func (m *Mover) cleanupSkipped(ctx context.Context, job *videojob.Job, log *slog.Logger) {
	if job.OptimizedPath == "" {
		return
	}
	if err := os.Remove(job.OptimizedPath); err != nil && !os.IsNotExist(err) {
		log.Warn("skipped cleanup: remove failed", "job_id", job.ID, "path", job.OptimizedPath, "error", err)
		return
	}
	if err := m.Repo.ClearOptimizedPath(ctx, job.ID); err != nil {
		log.Warn("skipped cleanup: clear column failed", "job_id", job.ID, "error", err)
	}
}

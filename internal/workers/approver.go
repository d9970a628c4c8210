package workers

import (
	"context"

	"github.com/tinkeshwar/videopipeline/internal/logger"
	"github.com/tinkeshwar/videopipeline/internal/videojob"
)

// Approver runs the two independent, config-gated bulk promotions of
// spec.md §4.4.
type Approver struct {
	Repo          *videojob.Repository
	AutoConfirmed bool
	AutoAccept    bool
	BatchSize     int
}

// Tick confirms up to BatchSize pending rows (if AutoConfirmed) and accepts
// up to BatchSize optimized rows (if AutoAccept). Neither pass mutates
// anything else.
func (a *Approver) Tick(ctx context.Context) error {
	log := logger.With("component", "approver")

	if a.AutoConfirmed {
		pending, err := a.Repo.ByStatus(ctx, videojob.StatusPending, a.BatchSize)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			log.Info("no pending videos to confirm")
		} else {
			ids := idsOf(pending)
			if err := a.Repo.BulkUpdateStatus(ctx, ids, videojob.StatusConfirmed); err != nil {
				return err
			}
			log.Info("confirmed pending videos", "count", len(ids))
		}
	}

	if a.AutoAccept {
		optimized, err := a.Repo.ByStatus(ctx, videojob.StatusOptimized, a.BatchSize)
		if err != nil {
			return err
		}
		if len(optimized) == 0 {
			log.Info("no optimized videos to accept")
		} else {
			ids := idsOf(optimized)
			if err := a.Repo.BulkUpdateStatus(ctx, ids, videojob.StatusAccepted); err != nil {
				return err
			}
			log.Info("accepted optimized videos", "count", len(ids))
		}
	}

	return nil
}

func idsOf(jobs []*videojob.Job) []int64 {
	ids := make([]int64, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	return ids
}

package videojob

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tinkeshwar/videopipeline/internal/pipeline"
	"github.com/tinkeshwar/videopipeline/internal/store"
)

// Repository is the typed operation set of spec.md §4.2 over the store's
// videos table. It enforces the state machine at the write boundary:
// UpdateStatus rejects any (from, to) pair not present in the transitions
// table, while ForceStatus — used only by the HTTP collaborator's manual
// overrides — bypasses that check entirely.
type Repository struct {
	db             *sqlx.DB
	maxRetries     int
	retryDelay     time.Duration
	historyEnabled bool
}

// New builds a Repository over an already-opened Store.
func New(st *store.Store, maxRetries int, retryDelay time.Duration, historyEnabled bool) *Repository {
	return &Repository{db: st.DB, maxRetries: maxRetries, retryDelay: retryDelay, historyEnabled: historyEnabled}
}

func (r *Repository) retry(ctx context.Context, fn func() error) error {
	return store.WithRetry(ctx, r.maxRetries, r.retryDelay, fn)
}

func (r *Repository) recordHistory(tx *sqlx.Tx, jobID int64, status Status) error {
	if !r.historyEnabled {
		return nil
	}
	_, err := tx.Exec(`INSERT INTO status_history (job_id, status) VALUES (?, ?)`, jobID, string(status))
	return err
}

// Insert creates a new pending job. Returns ErrDuplicate if filepath already
// has a row (spec.md §4.2: "checked by prior lookup", not a unique
// constraint — so the check-then-insert is itself wrapped in the caller's
// retry loop to bound the race against a concurrent Scanner tick).
func (r *Repository) Insert(ctx context.Context, filepath, filename, ffprobeJSON, codec string, size int64) (int64, error) {
	var id int64
	err := r.retry(ctx, func() error {
		tx, err := r.db.Beginx()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var existing int64
		err = tx.Get(&existing, `SELECT id FROM videos WHERE filepath = ?`, filepath)
		if err == nil {
			return &ErrDuplicate{Filepath: filepath}
		}
		if err != sql.ErrNoRows {
			return err
		}

		res, err := tx.Exec(`
			INSERT INTO videos (filename, filepath, ffprobe_data, original_codec, original_size, status)
			VALUES (?, ?, ?, ?, ?, ?)`,
			filename, filepath, ffprobeJSON, codec, size, string(StatusPending))
		if err != nil {
			return err
		}
		newID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if err := r.recordHistory(tx, newID, StatusPending); err != nil {
			return err
		}
		id = newID
		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ByPath returns the job at filepath, or ErrNotFound.
func (r *Repository) ByPath(ctx context.Context, filepath string) (*Job, error) {
	var job Job
	err := r.db.GetContext(ctx, &job, `SELECT * FROM videos WHERE filepath = ?`, filepath)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, pipeline.StoreError("by_path query", err)
	}
	return &job, nil
}

// ByStatus returns jobs with the given status, FIFO by created_at (ties,
// which the 1-second timestamp resolution makes common, broken by id), up to
// limit rows (0 = unlimited).
func (r *Repository) ByStatus(ctx context.Context, status Status, limit int) ([]*Job, error) {
	if !status.Valid() {
		return nil, &ErrInvalidStatus{Status: string(status)}
	}
	query := `SELECT * FROM videos WHERE status = ? ORDER BY created_at ASC, id ASC`
	args := []any{string(status)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	var jobs []*Job
	if err := r.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, pipeline.StoreError("by_status query", err)
	}
	return jobs, nil
}

// NextReady returns the oldest ready job, or nil if none exist.
func (r *Repository) NextReady(ctx context.Context) (*Job, error) {
	jobs, err := r.ByStatus(ctx, StatusReady, 1)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return jobs[0], nil
}

// UpdateStatus writes a new status plus any additional column values in one
// transaction, rejecting transitions outside the worker-issued state
// diagram. fields keys must be bare column names (no placeholders); values
// are bound positionally.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, to Status, fields map[string]any) error {
	if !to.Valid() {
		return &ErrInvalidStatus{Status: string(to)}
	}
	return r.retry(ctx, func() error {
		tx, err := r.db.Beginx()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var from Status
		if err := tx.Get(&from, `SELECT status FROM videos WHERE id = ?`, id); err != nil {
			if err == sql.ErrNoRows {
				return ErrNotFound
			}
			return err
		}
		if !ValidTransition(from, to) {
			return fmt.Errorf("invalid transition %s -> %s for job %d", from, to, id)
		}

		set := "status = ?"
		args := []any{string(to)}
		for col, val := range fields {
			set += fmt.Sprintf(", %s = ?", col)
			args = append(args, val)
		}
		args = append(args, id)
		if _, err := tx.Exec(fmt.Sprintf(`UPDATE videos SET %s WHERE id = ?`, set), args...); err != nil {
			return err
		}
		if err := r.recordHistory(tx, id, to); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// ForceStatus writes a status with no transition validation: the "opaque
// manual override" path reserved for the HTTP collaborator (spec.md §9).
// No worker loop in this repository calls it.
func (r *Repository) ForceStatus(ctx context.Context, id int64, to Status) error {
	if !to.Valid() {
		return &ErrInvalidStatus{Status: string(to)}
	}
	return r.retry(ctx, func() error {
		tx, err := r.db.Beginx()
		if err != nil {
			return err
		}
		defer tx.Rollback()
		res, err := tx.Exec(`UPDATE videos SET status = ? WHERE id = ?`, string(to), id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		if err := r.recordHistory(tx, id, to); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// BulkUpdateStatus transitions every id to the same status in one statement.
// Used by the Approver, which is the single writer for confirmed/accepted.
func (r *Repository) BulkUpdateStatus(ctx context.Context, ids []int64, to Status) error {
	if len(ids) == 0 {
		return nil
	}
	if !to.Valid() {
		return &ErrInvalidStatus{Status: string(to)}
	}
	return r.retry(ctx, func() error {
		tx, err := r.db.Beginx()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		query, args, err := sqlx.In(`UPDATE videos SET status = ? WHERE id IN (?)`, string(to), ids)
		if err != nil {
			return err
		}
		query = tx.Rebind(query)
		if _, err := tx.Exec(query, args...); err != nil {
			return err
		}
		if r.historyEnabled {
			for _, id := range ids {
				if err := r.recordHistory(tx, id, to); err != nil {
					return err
				}
			}
		}
		return tx.Commit()
	})
}

// UpdateProgress writes the last parsed progress line. Best-effort per
// spec.md §4.6: the Transcoder logs, not aborts, on failure here.
func (r *Repository) UpdateProgress(ctx context.Context, id int64, line string) error {
	return r.retry(ctx, func() error {
		_, err := r.db.ExecContext(ctx, `UPDATE videos SET progress = ? WHERE id = ?`, line, id)
		return err
	})
}

// UpdateEstimatedSize persists the Transcoder's rolling size projection.
func (r *Repository) UpdateEstimatedSize(ctx context.Context, id int64, n int64) error {
	return r.retry(ctx, func() error {
		_, err := r.db.ExecContext(ctx, `UPDATE videos SET estimated_size = ? WHERE id = ?`, n, id)
		return err
	})
}

// UpdateFinalOutput records a successful transcode's output metadata and
// transitions the job to optimized in one transaction.
func (r *Repository) UpdateFinalOutput(ctx context.Context, id int64, path, codec string, size int64) error {
	return r.UpdateStatus(ctx, id, StatusOptimized, map[string]any{
		"optimized_path": path,
		"new_codec":      codec,
		"optimized_size": size,
	})
}

// UpdateSystemInfoAndCommand is the Synthesizer's single-transaction write:
// ai_command, system_info, and the ready transition together (spec.md §4.5
// step 4).
func (r *Repository) UpdateSystemInfoAndCommand(ctx context.Context, id int64, command, systemInfo string) error {
	return r.UpdateStatus(ctx, id, StatusReady, map[string]any{
		"ai_command":  command,
		"system_info": systemInfo,
	})
}

// ClearOptimizedPath is used by the Mover's skipped-cleanup pass: it sets
// optimized_path to empty without touching status (spec.md §9).
func (r *Repository) ClearOptimizedPath(ctx context.Context, id int64) error {
	return r.retry(ctx, func() error {
		_, err := r.db.ExecContext(ctx, `UPDATE videos SET optimized_path = '' WHERE id = ?`, id)
		return err
	})
}

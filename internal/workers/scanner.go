package workers

import (
	"context"
	"io/fs"
	"path/filepath"

	"github.com/tinkeshwar/videopipeline/internal/logger"
	"github.com/tinkeshwar/videopipeline/internal/media"
	"github.com/tinkeshwar/videopipeline/internal/videojob"
)

// Scanner walks VideoDir each tick, probing and inserting any file not
// already known to the Repository (spec.md §4.3).
type Scanner struct {
	Repo   *videojob.Repository
	Prober prober
	Dir    string
}

// Tick performs one scan pass. A per-file probe failure is logged and
// skipped; only a failure to walk the tree itself is returned (and drives
// the caller's consecutive-failure backoff).
func (s *Scanner) Tick(ctx context.Context) error {
	log := logger.With("component", "scanner")

	return filepath.WalkDir(s.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.Dir {
				return err // the scan root itself could not be read
			}
			log.Warn("walk error", "path", path, "error", err)
			return nil
		}
		if d.IsDir() || !media.HasAllowedExtension(path) {
			return nil
		}

		absPath, err := filepath.Abs(path)
		if err != nil {
			absPath = path
		}

		if _, err := s.Repo.ByPath(ctx, absPath); err == nil {
			return nil // already known
		} else if err != videojob.ErrNotFound {
			log.Warn("lookup failed", "path", absPath, "error", err)
			return nil
		}

		info, err := d.Info()
		if err != nil {
			log.Warn("stat failed", "path", absPath, "error", err)
			return nil
		}

		result, err := s.Prober.Probe(ctx, absPath)
		if err != nil {
			log.Warn("probe failed, skipping", "path", absPath, "error", err)
			return nil
		}

		if _, err := s.Repo.Insert(ctx, absPath, filepath.Base(absPath), result.Raw, result.Codec, info.Size()); err != nil {
			if _, dup := err.(*videojob.ErrDuplicate); dup {
				return nil // raced with another scanner/process; not fatal
			}
			log.Warn("insert failed, skipping", "path", absPath, "error", err)
			return nil
		}
		log.Info("discovered video", "path", absPath, "size", info.Size(), "codec", result.Codec)
		return nil
	})
}

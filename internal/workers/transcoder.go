package workers

import (
	"context"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/tinkeshwar/videopipeline/internal/logger"
	"github.com/tinkeshwar/videopipeline/internal/media"
	"github.com/tinkeshwar/videopipeline/internal/pipeline"
	"github.com/tinkeshwar/videopipeline/internal/transcode"
	"github.com/tinkeshwar/videopipeline/internal/videojob"
)

// Transcoder runs one ready job per tick (spec.md §4.6): it is the
// pipeline's only strictly serial stage, since a transcode pins a CPU/GPU
// encoder for its whole runtime.
type Transcoder struct {
	Repo              *videojob.Repository
	Prober            prober
	OutputDir         string
	MinReductionRatio float64
}

// Tick picks the oldest ready job and runs it to completion, abort, or
// failure. It returns nil without doing anything when there is no ready job.
func (t *Transcoder) Tick(ctx context.Context) error {
	log := logger.With("component", "transcoder")

	job, err := t.Repo.NextReady(ctx)
	if err != nil {
		return err
	}
	if job == nil {
		return nil
	}

	args, outPath, err := transcode.BuildArgs(job.AICommand, job.Filepath, t.OutputDir)
	if err != nil {
		log.Warn("invalid ai_command, failing job", "job_id", job.ID, "error", err)
		return t.Repo.UpdateStatus(ctx, job.ID, videojob.StatusFailed, nil)
	}

	if _, err := os.Stat(job.Filepath); err != nil {
		log.Warn("input file missing, failing job", "job_id", job.ID, "path", job.Filepath, "error", err)
		return t.Repo.UpdateStatus(ctx, job.ID, videojob.StatusFailed, nil)
	}

	var probeResult *media.Result
	if p, perr := t.Prober.Probe(ctx, job.Filepath); perr == nil {
		probeResult = p
	}
	duration := 0.0
	if probeResult != nil {
		duration = probeResult.DurationS
	}

	opts := transcode.Options{
		Args:              args,
		OutputPath:        outPath,
		OriginalSize:      job.OriginalSize,
		TotalDurationS:    duration,
		MinReductionRatio: t.MinReductionRatio,
		OnProgress: func(line string) {
			if err := t.Repo.UpdateProgress(ctx, job.ID, line); err != nil {
				log.Warn("persist progress failed", "job_id", job.ID, "error", err)
			}
		},
		OnEstimate: func(estimated int64) {
			if err := t.Repo.UpdateEstimatedSize(ctx, job.ID, estimated); err != nil {
				log.Warn("persist estimated size failed", "job_id", job.ID, "error", err)
			}
		},
	}

	log.Info("starting transcode", "job_id", job.ID, "filename", job.Filename, "original_size", humanize.Bytes(uint64(job.OriginalSize)))

	result, runErr := transcode.Run(ctx, opts)
	if runErr != nil {
		if ctx.Err() != nil {
			// Supervisor shutdown killed the child, not a real transcode
			// failure: leave the job ready so the next run picks it back up
			// (spec.md §5: an interrupt aborts the child and exits, it does
			// not fail the job).
			log.Info("transcode interrupted by shutdown, leaving job ready", "job_id", job.ID)
			return nil
		}
		log.Warn("transcode failed", "job_id", job.ID, "error", runErr)
		return t.Repo.UpdateStatus(ctx, job.ID, videojob.StatusFailed, nil)
	}

	if result.Aborted {
		log.Info("transcode aborted: projected reduction below threshold", "job_id", job.ID, "estimated_size", humanize.Bytes(uint64(result.EstimatedSize)))
		_ = os.Remove(outPath)
		return t.Repo.UpdateStatus(ctx, job.ID, videojob.StatusReConfirmed, nil)
	}

	outInfo, err := os.Stat(outPath)
	if err != nil {
		log.Warn("output file missing after transcode", "job_id", job.ID, "error", err)
		return t.Repo.UpdateStatus(ctx, job.ID, videojob.StatusFailed, nil)
	}

	newCodec := "unknown"
	if outProbe, err := t.Prober.Probe(ctx, outPath); err == nil {
		newCodec = outProbe.Codec
	}

	if err := t.Repo.UpdateFinalOutput(ctx, job.ID, outPath, newCodec, outInfo.Size()); err != nil {
		return pipeline.StoreError("persist final output", err)
	}
	log.Info("transcode complete", "job_id", job.ID, "optimized_size", humanize.Bytes(uint64(outInfo.Size())))
	return nil
}

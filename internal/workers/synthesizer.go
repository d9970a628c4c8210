package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/tinkeshwar/videopipeline/internal/aiclient"
	"github.com/tinkeshwar/videopipeline/internal/capability"
	"github.com/tinkeshwar/videopipeline/internal/config"
	"github.com/tinkeshwar/videopipeline/internal/logger"
	"github.com/tinkeshwar/videopipeline/internal/videojob"
)

const systemPrompt = "You are a video processing expert."

// Synthesizer asks the external model for a transcoder invocation for each
// confirmed (then re-confirmed) job, per spec.md §4.5.
type Synthesizer struct {
	Repo               *videojob.Repository
	Client             *aiclient.Client
	Cfg                *config.Config
	Model              string
	BatchSize          int
	PromptOverridePath string
}

// Tick processes up to BatchSize confirmed jobs, then up to BatchSize
// re-confirmed jobs, using one host-capability probe cached for the tick.
func (s *Synthesizer) Tick(ctx context.Context) error {
	log := logger.With("component", "synthesizer")

	info := capability.Probe(ctx, s.Cfg)
	systemInfoJSON, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal system info: %w", err)
	}

	override := s.loadPromptOverride()

	confirmed, err := s.Repo.ByStatus(ctx, videojob.StatusConfirmed, s.BatchSize)
	if err != nil {
		return err
	}
	for _, job := range confirmed {
		s.synthesizeOne(ctx, job, string(systemInfoJSON), override, log)
	}

	reconfirmed, err := s.Repo.ByStatus(ctx, videojob.StatusReConfirmed, s.BatchSize)
	if err != nil {
		return err
	}
	for _, job := range reconfirmed {
		s.synthesizeOne(ctx, job, string(systemInfoJSON), override, log)
	}

	return nil
}

func (s *Synthesizer) synthesizeOne(ctx context.Context, job *videojob.Job, systemInfoJSON, override string, log *slog.Logger) {
	prompt := override
	if prompt == "" {
		prompt = buildPrompt(job, systemInfoJSON)
	}

	raw, err := s.Client.Complete(ctx, s.Model, systemPrompt, prompt)
	if err != nil {
		log.Warn("model call failed, leaving row unchanged", "job_id", job.ID, "error", err)
		return
	}

	command, err := aiclient.Normalize(raw)
	if err != nil {
		log.Warn("model response rejected, leaving row unchanged", "job_id", job.ID, "error", err)
		return
	}

	if err := s.Repo.UpdateSystemInfoAndCommand(ctx, job.ID, command, systemInfoJSON); err != nil {
		log.Warn("persist command failed", "job_id", job.ID, "error", err)
		return
	}
	log.Info("synthesized command", "job_id", job.ID, "filename", job.Filename)
}

// buildPrompt matches the original implementation's send_to_ai prompt,
// extended to carry the previous command and last progress line when the
// job is being re-synthesized after an aborted transcode.
func buildPrompt(job *videojob.Job, systemInfoJSON string) string {
	base := fmt.Sprintf(`Here is the metadata of a video file:
The ffprobe data is: %s
And here is the system information: %s
Based on this information, suggest the most optimal ffmpeg command to compress the video with:
- Best possible space saving, prefer x265 codec.
- Use the same resolution and frame rate as the original video.
- No visible quality loss.
- Optionally using hardware acceleration if available.
- Do not provide any other information or explanation, just the command starting with ffmpeg, example output: ffmpeg -i input.mp4 -c:v libx265 -preset slow -x265-params log-level=error -crf 28 -c:a aac -b:a 192k -movflags +faststart output.mp4, do not add bash or anything.
- The command is run as an argv list, so avoid extra quoting.
- Use input.mp4 as the input file and output.mp4 as the output file.
- The command should be a single line with no newlines or extra spaces.
- The command should be compatible with ffmpeg version 5.0 or higher.`,
		job.FFprobeData, systemInfoJSON)

	if job.Status == videojob.StatusReConfirmed {
		base += fmt.Sprintf(`

The previous attempt did not reduce the file size enough. Its command was:
%s
Its last recorded progress was: %s
Produce a stricter command: cap the bitrate, prefer a hardware encoder tag if one is available, use CRF 22-28, copy the audio stream, keep the output a single line starting with ffmpeg, keep the input.mp4/output.mp4 placeholders, and include the overwrite flag -y.`,
			job.AICommand, job.Progress)
	}

	return base
}

func (s *Synthesizer) loadPromptOverride() string {
	if s.PromptOverridePath == "" {
		return ""
	}
	data, err := os.ReadFile(s.PromptOverridePath)
	if err != nil {
		return ""
	}
	return string(data)
}

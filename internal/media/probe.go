// Package media wraps the external ffprobe-equivalent binary used by the
// Scanner (to classify newly discovered files) and the Transcoder (to
// classify its own output). It is a thin process wrapper, not a container
// parser — the raw format JSON is passed through opaquely to the model.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/tinkeshwar/videopipeline/internal/pipeline"
)

// AllowedExtensions is the Scanner's case-insensitive file-extension
// allow-list (spec.md §4.3).
var AllowedExtensions = []string{".mp4", ".mkv", ".avi", ".mov"}

// HasAllowedExtension reports whether path ends in one of AllowedExtensions,
// compared case-insensitively.
func HasAllowedExtension(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range AllowedExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// Result is what the Scanner and Transcoder need from a probe: the raw
// format object (stored as the ffprobe_data JSON blob), the first video
// stream's codec, and the probed duration used for size projection.
type Result struct {
	Raw       string  // the probe response's "format" object, stored verbatim as ffprobe_data
	Codec     string  // first video stream's codec_name, "unknown" if absent
	DurationS float64 // format.duration, seconds; 0 if absent/unparseable
}

type ffprobeOutput struct {
	Format  json.RawMessage `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
	} `json:"streams"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

// Prober invokes an ffprobe-compatible binary.
type Prober struct {
	Path string
}

// NewProber returns a Prober for the given ffprobe-equivalent binary path.
func NewProber(path string) *Prober {
	return &Prober{Path: path}
}

// Probe runs the probe exactly as spec.md §4.3 specifies:
// -show_format -show_streams -select_streams v:0 -show_entries stream=codec_name -print_format json
func (p *Prober) Probe(ctx context.Context, path string) (*Result, error) {
	cmd := exec.CommandContext(ctx, p.Path,
		"-show_format",
		"-show_streams",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_name",
		"-print_format", "json",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, pipeline.ProbeFailed(fmt.Sprintf("probe exited: %s", string(exitErr.Stderr)), err)
		}
		return nil, pipeline.ProbeFailed("probe failed to run", err)
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, pipeline.ProbeFailed("parse probe output", err)
	}

	result := &Result{Codec: "unknown", Raw: string(parsed.Format)}
	if len(parsed.Format) > 0 {
		var fmtObj ffprobeFormat
		if err := json.Unmarshal(parsed.Format, &fmtObj); err == nil && fmtObj.Duration != "" {
			if d, err := strconv.ParseFloat(fmtObj.Duration, 64); err == nil {
				result.DurationS = d
			}
		}
	}
	for _, s := range parsed.Streams {
		if s.CodecType == "video" || s.CodecType == "" {
			if s.CodecName != "" {
				result.Codec = s.CodecName
			}
			break
		}
	}

	return result, nil
}

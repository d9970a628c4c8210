package workers

import (
	"context"

	"github.com/tinkeshwar/videopipeline/internal/media"
)

// prober is the subset of *media.Prober the Scanner and Transcoder need.
// Declaring it here (rather than depending on the concrete type) lets tests
// substitute a fake instead of shelling out to a real ffprobe binary.
type prober interface {
	Probe(ctx context.Context, path string) (*media.Result, error)
}

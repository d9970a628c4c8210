package workers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tinkeshwar/videopipeline/internal/aiclient"
	"github.com/tinkeshwar/videopipeline/internal/config"
	"github.com/tinkeshwar/videopipeline/internal/store"
	"github.com/tinkeshwar/videopipeline/internal/videojob"
)

func newTestRepoForWorkers(t *testing.T) *videojob.Repository {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "videos.sqlite")
	st, err := store.Open(store.Options{Path: dbPath, TimeoutSec: 5})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return videojob.New(st, 3, time.Millisecond, true)
}

func fakeModelServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestSynthesizerHappyPath(t *testing.T) {
	repo := newTestRepoForWorkers(t)
	ctx := context.Background()

	id, err := repo.Insert(ctx, "/video-input/a.mp4", "a.mp4", `{"format":{"duration":"60"}}`, "h264", 1_000_000)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := repo.UpdateStatus(ctx, id, videojob.StatusConfirmed, nil); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	srv := fakeModelServer(t, "```bash\nffmpeg -i input.mp4 -c:v libx265 -crf 28 output.mp4\n```")
	defer srv.Close()

	s := &Synthesizer{
		Repo:      repo,
		Client:    aiclient.New("test-key", srv.URL),
		Cfg:       &config.Config{},
		Model:     "gpt-4o-mini",
		BatchSize: 10,
	}
	if err := s.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}

	job, err := repo.ByPath(ctx, "/video-input/a.mp4")
	if err != nil {
		t.Fatalf("by_path: %v", err)
	}
	if job.Status != videojob.StatusReady {
		t.Fatalf("expected ready, got %s", job.Status)
	}
	if job.AICommand != "ffmpeg -i input.mp4 -c:v libx265 -crf 28 output.mp4" {
		t.Fatalf("unexpected ai_command: %q", job.AICommand)
	}
	if job.SystemInfo == "" {
		t.Fatal("expected system_info to be persisted")
	}
}

func TestSynthesizerLeavesRowUnchangedOnModelFailure(t *testing.T) {
	repo := newTestRepoForWorkers(t)
	ctx := context.Background()

	id, err := repo.Insert(ctx, "/video-input/a.mp4", "a.mp4", "{}", "h264", 1000)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := repo.UpdateStatus(ctx, id, videojob.StatusConfirmed, nil); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := &Synthesizer{
		Repo:      repo,
		Client:    aiclient.New("test-key", srv.URL),
		Cfg:       &config.Config{},
		Model:     "gpt-4o-mini",
		BatchSize: 10,
	}
	if err := s.Tick(ctx); err != nil {
		t.Fatalf("tick should not propagate a per-job model failure: %v", err)
	}

	job, err := repo.ByPath(ctx, "/video-input/a.mp4")
	if err != nil {
		t.Fatalf("by_path: %v", err)
	}
	if job.Status != videojob.StatusConfirmed {
		t.Fatalf("expected status unchanged at confirmed, got %s", job.Status)
	}
}

func TestSynthesizerReconfirmedPromptIncludesPreviousCommand(t *testing.T) {
	job := &videojob.Job{
		Status:      videojob.StatusReConfirmed,
		FFprobeData: `{"format":{"duration":"60"}}`,
		AICommand:   "ffmpeg -i input.mp4 -crf 30 output.mp4",
		Progress:    "frame=100 time=00:00:30.00",
	}
	prompt := buildPrompt(job, `{"gpu":"none"}`)
	if !strings.Contains(prompt, job.AICommand) || !strings.Contains(prompt, job.Progress) {
		t.Fatalf("expected prompt to reference previous command and progress, got: %s", prompt)
	}
}

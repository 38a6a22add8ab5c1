package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"mvfetch/internal/batch"
	"mvfetch/internal/catalog"
	"mvfetch/internal/config"
	"mvfetch/internal/model"
	"mvfetch/internal/runstore"
)

const fakeYTDLP = `#!/usr/bin/env bash
set -euo pipefail
echo "$*" >> "$YTDLP_CALLS"
if printf '%s ' "$@" | grep -q -- '--dump-json'; then
  case "${FAKE_SEARCH:-official}" in
    official)
      echo '{"id":"vid1","title":"Artist - Song (Official Music Video)","channel":"ArtistVEVO"}' ;;
    ambiguous)
      echo '{"id":"a","title":"Artist - Song","channel":"someone"}'
      echo '{"id":"b","title":"Artist - Song","channel":"someone else"}' ;;
  esac
  exit 0
fi
tmpl=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-o" ]; then tmpl="$2"; shift; fi
  shift
done
out="${tmpl/\%(ext)s/mp4}"
echo "[download] 100.0% of 1.00MiB at 1.00MiB/s ETA 00:00"
: > "$out"
`

type harness struct {
	root      string
	library   string
	outputDir string
	runsDir   string
	catalog   string
	config    string
	calls     string
}

func newHarness(t *testing.T, tracks ...string) harness {
	t.Helper()
	tmp := t.TempDir()
	h := harness{
		root:      tmp,
		library:   filepath.Join(tmp, "music"),
		outputDir: filepath.Join(tmp, "videos"),
		runsDir:   filepath.Join(tmp, "runs"),
		catalog:   filepath.Join(tmp, "history.db"),
		config:    filepath.Join(tmp, "config.json"),
		calls:     filepath.Join(tmp, "calls.txt"),
	}
	fakeBin := filepath.Join(tmp, "bin")
	for _, dir := range []string{fakeBin, h.library} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(fakeBin, "yt-dlp"), []byte(fakeYTDLP), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", fakeBin+":"+os.Getenv("PATH"))
	t.Setenv("YTDLP_CALLS", h.calls)

	for _, name := range tracks {
		if err := os.WriteFile(filepath.Join(h.library, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := map[string]any{
		"music_library":          h.library,
		"output_dir":             h.outputDir,
		"runs_dir":               h.runsDir,
		"catalog_path":           h.catalog,
		"download_delay_seconds": 0,
		"search_rate_per_minute": 0,
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(h.config, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return h
}

func (h harness) run(t *testing.T, args ...string) error {
	t.Helper()
	full := append([]string{args[0], "--config", h.config}, args[1:]...)
	return Run(full)
}

func (h harness) onlyRun(t *testing.T) string {
	t.Helper()
	dirs, err := runstore.ListRunDirs(h.runsDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(dirs) != 1 {
		t.Fatalf("expected one run dir, got %v", dirs)
	}
	return dirs[0]
}

func readManifest(t *testing.T, runDir string) model.ItemsManifest {
	t.Helper()
	var mf model.ItemsManifest
	if err := runstore.ReadJSON(runstore.ItemsPath(runDir), &mf); err != nil {
		t.Fatal(err)
	}
	return mf
}

func TestHarnessRunDownloadsAndRecordsHistory(t *testing.T) {
	h := newHarness(t, "Artist - Song.mp3", "notes.txt")

	if err := h.run(t, "run", "--json"); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(h.outputDir, "Artist - Song.mp4")); err != nil {
		t.Fatalf("expected downloaded video: %v", err)
	}
	runDir := h.onlyRun(t)
	mf := readManifest(t, runDir)
	if mf.Total != 1 || mf.Items[0].Status != model.StatusComplete || mf.Items[0].VideoID != "vid1" {
		t.Fatalf("unexpected manifest: %+v", mf)
	}
	meta, err := runstore.LoadRunMeta(runDir)
	if err != nil {
		t.Fatal(err)
	}
	if meta.Phase != runstore.PhaseDone || meta.Total != 1 {
		t.Fatalf("unexpected run meta: %+v", meta)
	}

	cat, err := catalog.Open(h.catalog)
	if err != nil {
		t.Fatal(err)
	}
	defer cat.Close()
	entries, err := cat.Recent(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Status != model.StatusComplete {
		t.Fatalf("unexpected history: %+v", entries)
	}

	if err := h.run(t, "history", "--json"); err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if err := h.run(t, "status", "--all", "--json"); err != nil {
		t.Fatalf("status failed: %v", err)
	}
}

func TestHarnessExistingVideoSkipsDownload(t *testing.T) {
	h := newHarness(t, "Artist - Song.mp3")
	if err := os.MkdirAll(h.outputDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(h.outputDir, "Artist - Song.mkv"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := h.run(t, "run", "--json"); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	mf := readManifest(t, h.onlyRun(t))
	if mf.Items[0].Status != model.StatusExists {
		t.Fatalf("expected exists, got %+v", mf.Items[0])
	}
	if data, err := os.ReadFile(h.calls); err == nil && len(data) > 0 {
		t.Fatalf("yt-dlp should not run for an existing video:\n%s", data)
	}
}

func TestHarnessDeferredRunQueuesForReview(t *testing.T) {
	h := newHarness(t, "Artist - Song.mp3")
	t.Setenv("FAKE_SEARCH", "ambiguous")

	if err := h.run(t, "run", "--json", "--interactive=false", "--review=false", "--no-history"); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	runDir := h.onlyRun(t)
	mf := readManifest(t, runDir)
	if mf.Items[0].Status != model.StatusNeedsReview {
		t.Fatalf("expected needs_review, got %+v", mf.Items[0])
	}
	q, err := batch.LoadReviewQueue(runstore.ReviewQueuePath(runDir))
	if err != nil {
		t.Fatal(err)
	}
	if q.Len() != 1 {
		t.Fatalf("expected one queued entry, got %d", q.Len())
	}
	meta, err := runstore.LoadRunMeta(runDir)
	if err != nil {
		t.Fatal(err)
	}
	if meta.Phase != runstore.PhaseReview || meta.ReviewQueue != 1 {
		t.Fatalf("unexpected run meta: %+v", meta)
	}
	if _, err := os.Stat(h.catalog); err == nil {
		t.Fatalf("--no-history must not create the catalog")
	}

	if err := h.run(t, "status", "--run-dir", runDir, "--json"); err != nil {
		t.Fatalf("status failed: %v", err)
	}
}

func TestHarnessReviewFailsWhenRunIsLocked(t *testing.T) {
	h := newHarness(t, "Artist - Song.mp3")
	t.Setenv("FAKE_SEARCH", "ambiguous")
	if err := h.run(t, "run", "--json", "--interactive=false", "--review=false", "--no-history"); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	runDir := h.onlyRun(t)

	lock, err := runstore.AcquireRunLock(runDir, "test")
	if err != nil {
		t.Fatalf("acquire lock: %v", err)
	}
	defer func() {
		_ = lock.Release()
	}()

	err = h.run(t, "review", "--run-dir", runDir, "--json")
	if err == nil || !strings.Contains(err.Error(), "locked") {
		t.Fatalf("expected lock error, got %v", err)
	}
}

func TestHarnessReviewWithEmptyQueue(t *testing.T) {
	h := newHarness(t, "Artist - Song.mp3")
	if err := h.run(t, "run", "--json", "--no-history"); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if err := h.run(t, "review", "--runs-dir", h.runsDir, "--json"); err != nil {
		t.Fatalf("review of a finished run should be a no-op: %v", err)
	}
}

func TestHarnessFlagsOverrideConfig(t *testing.T) {
	h := newHarness(t, "Artist - Song.mp3")
	other := filepath.Join(h.root, "elsewhere")

	if err := h.run(t, "run", "--json", "--output-dir", other, "--no-history"); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(other, "Artist - Song.mp4")); err != nil {
		t.Fatalf("expected video in flag output dir: %v", err)
	}
	data, err := os.ReadFile(h.calls)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "ytsearch5:") {
		t.Fatalf("expected default search count in yt-dlp args:\n%s", data)
	}
}

type pickFirst struct{}

func (pickFirst) RequestSelection(ctx context.Context, req batch.SelectionRequest) (batch.Decision, error) {
	return batch.Decision{Kind: batch.DecisionSelect, VideoID: req.Candidates[0].ID}, nil
}

func (pickFirst) RequestQuery(ctx context.Context, req batch.QueryRequest) (batch.Decision, error) {
	return batch.Decision{Kind: batch.DecisionCancel}, nil
}

func TestSessionAsksDeciderInline(t *testing.T) {
	h := newHarness(t, "Artist - Song.mp3")
	t.Setenv("FAKE_SEARCH", "ambiguous")

	cfg, err := config.Load(h.config)
	if err != nil {
		t.Fatal(err)
	}
	opts, err := cfg.ToOptions()
	if err != nil {
		t.Fatal(err)
	}
	runDir, err := runstore.CreateRunDir(h.runsDir, "manual")
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	s := session{
		cfg:       cfg,
		opts:      opts,
		runDir:    runDir,
		meta:      runstore.RunMeta{RunID: "manual"},
		log:       zerolog.Nop(),
		noHistory: true,
		stdout:    &out,
		decider:   pickFirst{},
	}
	items := []model.WorkItem{{ID: filepath.Join(h.library, "Artist - Song.mp3"), Index: 1}}
	if err := s.execute(batch.Plan{Items: items}); err != nil {
		t.Fatalf("execute: %v", err)
	}

	mf := readManifest(t, runDir)
	if mf.Items[0].Status != model.StatusComplete || mf.Items[0].VideoID != "a" {
		t.Fatalf("expected the picked candidate to download, got %+v", mf.Items[0])
	}
	if !strings.Contains(out.String(), "summary: total=1 downloaded=1") {
		t.Fatalf("expected summary in output:\n%s", out.String())
	}
	meta, err := runstore.LoadRunMeta(runDir)
	if err != nil {
		t.Fatal(err)
	}
	if meta.Phase != runstore.PhaseDone {
		t.Fatalf("unexpected phase %q", meta.Phase)
	}
}

func TestHarnessRunRequiresAudioFiles(t *testing.T) {
	h := newHarness(t, "cover.jpg")
	err := h.run(t, "run", "--json")
	if err == nil || !strings.Contains(err.Error(), "no audio files") {
		t.Fatalf("expected empty library error, got %v", err)
	}
}

func TestHarnessDoctorAndConfig(t *testing.T) {
	h := newHarness(t)
	if err := h.run(t, "doctor", "--json"); err != nil {
		t.Fatalf("doctor failed: %v", err)
	}
	if err := h.run(t, "config", "--json"); err != nil {
		t.Fatalf("config failed: %v", err)
	}
	sample := filepath.Join(h.root, "sample.json")
	if err := Run([]string{"config", "--generate", "--config", sample}); err != nil {
		t.Fatalf("config --generate failed: %v", err)
	}
	if err := Run([]string{"config", "--generate", "--config", sample}); err == nil {
		t.Fatalf("expected second --generate to refuse overwrite")
	}
}

func TestHarnessScanListsAudioOnly(t *testing.T) {
	h := newHarness(t, "Artist - Song.mp3", "track01.flac", "cover.jpg")
	if err := h.run(t, "scan", "--json"); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if err := Run([]string{"scan", "--config", h.config, filepath.Join(h.root, "missing")}); err == nil {
		t.Fatalf("expected error for a missing library")
	}
}

func TestRunUnknownCommand(t *testing.T) {
	if err := Run([]string{"bogus"}); err == nil {
		t.Fatalf("expected unknown command error")
	}
}

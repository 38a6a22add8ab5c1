package runstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// RunMeta describes one run directory: runs/<run_id>/{run.json,items.json,review.json,logs/}.
type RunMeta struct {
	RunID       string `json:"run_id"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at,omitempty"`
	LibraryDir  string `json:"library_dir"`
	OutputDir   string `json:"output_dir"`
	Phase       string `json:"phase"`
	Interactive bool   `json:"interactive"`
	NoTrust     bool   `json:"no_trust"`
	Total       int    `json:"total"`
	ReviewQueue int    `json:"review_queue"`
}

const (
	PhaseBatch  = "batch"
	PhaseReview = "review"
	PhaseDone   = "done"
)

func Mkdir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	return nil
}

func WriteBytes(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, ".mvfetch-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("chmod temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("atomic rename for %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o644); err != nil {
		return fmt.Errorf("write file %s: %w", path, err)
	}
	return nil
}

func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON for %s: %w", path, err)
	}
	data = append(data, '\n')
	return WriteBytes(path, data)
}

func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse JSON %s: %w", path, err)
	}
	return nil
}

func LatestRunDir(runsDir string) (string, error) {
	entries, err := os.ReadDir(runsDir)
	if err != nil {
		return "", fmt.Errorf("read runs directory %s: %w", runsDir, err)
	}

	dirs := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	if len(dirs) == 0 {
		return "", fmt.Errorf("no run directories found in %s", runsDir)
	}

	sort.Strings(dirs)
	return filepath.Join(runsDir, dirs[len(dirs)-1]), nil
}

func ListRunDirs(runsDir string) ([]string, error) {
	entries, err := os.ReadDir(runsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read runs directory %s: %w", runsDir, err)
	}

	dirs := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(runsDir, e.Name()))
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

func RunMetaPath(runDir string) string {
	return filepath.Join(runDir, "run.json")
}

func ItemsPath(runDir string) string {
	return filepath.Join(runDir, "items.json")
}

func ReviewQueuePath(runDir string) string {
	return filepath.Join(runDir, "review.json")
}

func LogsDir(runDir string) string {
	return filepath.Join(runDir, "logs")
}

// CreateRunDir makes runs/<run_id> with its logs directory.
func CreateRunDir(runsDir, runID string) (string, error) {
	if strings.TrimSpace(runID) == "" {
		return "", fmt.Errorf("run id is required")
	}
	dir := filepath.Join(runsDir, runID)
	if _, err := os.Stat(dir); err == nil {
		return "", fmt.Errorf("run directory already exists: %s", dir)
	}
	if err := Mkdir(LogsDir(dir)); err != nil {
		return "", err
	}
	return dir, nil
}

// ResolveRunDir picks an explicit run directory, a run id under runsDir, or
// the latest run.
func ResolveRunDir(runsDir, runID, runDir string) (string, error) {
	if strings.TrimSpace(runDir) != "" {
		return strings.TrimSpace(runDir), nil
	}
	if strings.TrimSpace(runsDir) == "" {
		runsDir = "runs"
	}
	if strings.TrimSpace(runID) != "" {
		dir := filepath.Join(runsDir, strings.TrimSpace(runID))
		if _, err := os.Stat(dir); err != nil {
			return "", fmt.Errorf("run %s: %w", runID, err)
		}
		return dir, nil
	}
	return LatestRunDir(runsDir)
}

func LoadRunMeta(runDir string) (RunMeta, error) {
	var meta RunMeta
	if err := ReadJSON(RunMetaPath(runDir), &meta); err != nil {
		return RunMeta{}, err
	}
	return meta, nil
}

func SaveRunMeta(runDir string, meta RunMeta) error {
	return WriteJSON(RunMetaPath(runDir), meta)
}

var invalidIDChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// NewRunID builds a sortable run id from the start time and a label such as
// the library directory name.
func NewRunID(now time.Time, label string) string {
	label = strings.Trim(invalidIDChars.ReplaceAllString(strings.TrimSpace(label), "_"), "_")
	if label == "" {
		label = "library"
	}
	return fmt.Sprintf("%s_%s", now.UTC().Format("20060102T150405Z"), label)
}

package cli

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"mvfetch/internal/batch"
	"mvfetch/internal/catalog"
	"mvfetch/internal/model"
	"mvfetch/internal/runstore"
)

type statusRow struct {
	RunID     string           `json:"run_id"`
	RunDir    string           `json:"run_dir"`
	Phase     string           `json:"phase,omitempty"`
	CreatedAt string           `json:"created_at,omitempty"`
	UpdatedAt string           `json:"updated_at,omitempty"`
	Summary   batch.Summary    `json:"summary"`
	Items     []model.WorkItem `json:"items,omitempty"`
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	common := addCommonFlags(fs)
	runsDir := fs.String("runs-dir", "", "runs directory")
	runID := fs.String("run-id", "", "run id (default: latest run)")
	runDir := fs.String("run-dir", "", "explicit run directory")
	all := fs.Bool("all", false, "one row per run")
	showItems := fs.Bool("items", false, "list every item of the run")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	if strings.TrimSpace(*runsDir) != "" {
		cfg.RunsDir = strings.TrimSpace(*runsDir)
	}

	if *all {
		dirs, err := runstore.ListRunDirs(cfg.RunsDir)
		if err != nil {
			return err
		}
		rows := make([]statusRow, 0, len(dirs))
		for _, dir := range dirs {
			row, err := loadStatusRow(dir, false)
			if err != nil {
				continue
			}
			rows = append(rows, row)
		}
		if *common.jsonOut {
			return printJSON(rows)
		}
		if len(rows) == 0 {
			fmt.Printf("no runs in %s\n", cfg.RunsDir)
			fmt.Println("start here:")
			fmt.Println("  mvfetch run --library <dir>")
			return nil
		}
		fmt.Println(runsTable(rows))
		return nil
	}

	dir, err := runstore.ResolveRunDir(cfg.RunsDir, *runID, *runDir)
	if err != nil {
		return err
	}
	row, err := loadStatusRow(dir, *showItems)
	if err != nil {
		return err
	}
	if *common.jsonOut {
		return printJSON(row)
	}

	fmt.Printf("run: %s\n", row.RunID)
	fmt.Printf("run_dir: %s\n", row.RunDir)
	if row.Phase != "" {
		fmt.Printf("phase: %s\n", row.Phase)
	}
	if row.UpdatedAt != "" {
		fmt.Printf("updated_at: %s\n", row.UpdatedAt)
	}
	fmt.Printf("summary: %s\n", row.Summary.String())
	for _, line := range row.Summary.Lines() {
		fmt.Println("  " + line)
	}
	if *showItems {
		fmt.Println(itemsTable(row.Items))
	}
	if row.Summary.ReviewQueue > 0 {
		fmt.Printf("next: mvfetch review --run-dir %s\n", row.RunDir)
	}
	return nil
}

func loadStatusRow(dir string, withItems bool) (statusRow, error) {
	var manifest model.ItemsManifest
	if err := runstore.ReadJSON(runstore.ItemsPath(dir), &manifest); err != nil {
		return statusRow{}, err
	}
	queue, err := batch.LoadReviewQueue(runstore.ReviewQueuePath(dir))
	if err != nil {
		return statusRow{}, err
	}
	row := statusRow{RunID: manifest.RunID, RunDir: dir, UpdatedAt: manifest.GeneratedAt}
	meta, err := runstore.LoadRunMeta(dir)
	switch {
	case err == nil:
		row.Phase = meta.Phase
		row.CreatedAt = meta.CreatedAt
	case !errors.Is(err, os.ErrNotExist):
		return statusRow{}, err
	}
	if row.RunID == "" {
		row.RunID = filepath.Base(dir)
	}
	row.Summary = batch.Summarize(row.RunID, manifest.Items, queue.Len(), false)
	if withItems {
		row.Items = manifest.Items
	}
	return row, nil
}

func runsTable(rows []statusRow) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("run", "phase", "total", "downloaded", "exists", "skipped", "failed", "review")
	for _, r := range rows {
		s := r.Summary
		t.Row(r.RunID, r.Phase,
			strconv.Itoa(s.Total),
			strconv.Itoa(s.Downloaded()),
			strconv.Itoa(s.Count(model.StatusExists)),
			strconv.Itoa(s.Count(model.StatusSkippedManual)),
			strconv.Itoa(s.Failed()),
			strconv.Itoa(s.ReviewQueue))
	}
	return t.String()
}

func itemsTable(items []model.WorkItem) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("#", "status", "track", "video", "reason")
	for _, it := range items {
		t.Row(strconv.Itoa(it.Index), it.Status, clip(itemLabel(it), 60), it.VideoID, it.Reason)
	}
	return t.String()
}

func runHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	common := addCommonFlags(fs)
	catalogPath := fs.String("catalog", "", "outcome history database path")
	limit := fs.Int("limit", 50, "number of outcomes to show")
	source := fs.String("source", "", "show every recorded outcome for this audio file")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	path := cfg.CatalogPath
	if strings.TrimSpace(*catalogPath) != "" {
		path = strings.TrimSpace(*catalogPath)
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Printf("no history recorded yet (%s)\n", path)
			return nil
		}
		return err
	}
	cat, err := catalog.Open(path)
	if err != nil {
		return err
	}
	defer cat.Close()

	ctx, cancel := signalContext()
	defer cancel()
	var entries []catalog.Entry
	if src := strings.TrimSpace(*source); src != "" {
		if abs, err := filepath.Abs(src); err == nil {
			src = abs
		}
		entries, err = cat.ForSource(ctx, src)
	} else {
		entries, err = cat.Recent(ctx, *limit)
	}
	if err != nil {
		return err
	}

	if *common.jsonOut {
		return printJSON(entries)
	}
	if len(entries) == 0 {
		fmt.Println("no matching outcomes")
		return nil
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("recorded", "status", "track", "video", "run")
	for _, e := range entries {
		t.Row(clip(e.RecordedAt, 19), e.Status, clip(entryLabel(e), 50), e.VideoID, e.RunID)
	}
	fmt.Println(t.String())
	return nil
}

func entryLabel(e catalog.Entry) string {
	return itemLabel(model.WorkItem{ID: filepath.Base(e.SourcePath), Artist: e.Artist, Title: e.Title})
}

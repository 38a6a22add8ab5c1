package batch

import (
	"fmt"
	"slices"
	"strings"

	"mvfetch/internal/model"
)

type Summary struct {
	RunID       string         `json:"run_id"`
	Total       int            `json:"total"`
	Counts      map[string]int `json:"counts"`
	ReviewQueue int            `json:"review_queue"`
	Stopped     bool           `json:"stopped"`
}

func CountStatuses(items []model.WorkItem) map[string]int {
	counts := make(map[string]int)
	for _, it := range items {
		counts[it.Status]++
	}
	return counts
}

func Summarize(runID string, items []model.WorkItem, queued int, stopped bool) Summary {
	return Summary{
		RunID:       runID,
		Total:       len(items),
		Counts:      CountStatuses(items),
		ReviewQueue: queued,
		Stopped:     stopped,
	}
}

func (s Summary) Count(status string) int {
	return s.Counts[status]
}

// Downloaded counts items that ended with a video on disk.
func (s Summary) Downloaded() int {
	return s.Counts[model.StatusComplete]
}

func (s Summary) Failed() int {
	n := 0
	for _, st := range []string{
		model.StatusFailedMetadata,
		model.StatusFailedSearch,
		model.StatusFailedFilter,
		model.StatusFailedDownload,
		model.StatusExhausted,
		model.StatusError,
	} {
		n += s.Counts[st]
	}
	return n
}

// Lines renders per-status counts in a stable order.
func (s Summary) Lines() []string {
	keys := make([]string, 0, len(s.Counts))
	for k, n := range s.Counts {
		if n > 0 {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%-16s %d", k, s.Counts[k]))
	}
	return out
}

func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "total=%d downloaded=%d exists=%d skipped=%d failed=%d",
		s.Total, s.Downloaded(), s.Counts[model.StatusExists], s.Counts[model.StatusSkippedManual], s.Failed())
	if s.ReviewQueue > 0 {
		fmt.Fprintf(&b, " review_queue=%d", s.ReviewQueue)
	}
	if s.Stopped {
		b.WriteString(" (stopped)")
	}
	return b.String()
}

package model

import (
	"fmt"
	"strings"
	"time"
)

// ItemsManifest is the canonical per-run item state file.
type ItemsManifest struct {
	SchemaVersion int            `json:"schema_version"`
	GeneratedAt   string         `json:"generated_at"`
	RunID         string         `json:"run_id"`
	LibraryDir    string         `json:"library_dir"`
	OutputDir     string         `json:"output_dir"`
	Total         int            `json:"total"`
	Counts        map[string]int `json:"counts"`
	Items         []WorkItem     `json:"items"`
}

// WorkItem is one audio file being matched to a video. ID is the source path.
type WorkItem struct {
	ID         string `json:"id"`
	Index      int    `json:"index"`
	Artist     string `json:"artist,omitempty"`
	Title      string `json:"title,omitempty"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	VideoID    string `json:"video_id,omitempty"`
	OutputPath string `json:"output_path,omitempty"`
	Attempts   int    `json:"attempts,omitempty"`
	LastError  string `json:"last_error,omitempty"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

// Candidate is a normalized search result. Score is meaningful only when
// Scored is set; no-trust and override flows leave it unscored.
type Candidate struct {
	ID              string   `json:"id,omitempty"`
	Title           string   `json:"title"`
	Channel         string   `json:"channel"`
	UploaderID      string   `json:"uploader_id,omitempty"`
	Description     string   `json:"description,omitempty"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
	ViewCount       *int64   `json:"view_count,omitempty"`
	Verified        bool     `json:"verified,omitempty"`
	Thumbnail       string   `json:"thumbnail,omitempty"`
	URL             string   `json:"url"`
	Score           int      `json:"score,omitempty"`
	Scored          bool     `json:"scored,omitempty"`
}

func (c Candidate) Selectable() bool {
	return strings.TrimSpace(c.ID) != ""
}

type OutcomeKind string

const (
	OutcomeSelected        OutcomeKind = "selected"
	OutcomeNeedsEscalation OutcomeKind = "needs_escalation"
	OutcomeExhausted       OutcomeKind = "exhausted"
	OutcomeSearchFailed    OutcomeKind = "search_failed"
)

type EscalationReason string

const (
	ReasonSelect   EscalationReason = "select"
	ReasonOverride EscalationReason = "override"
	ReasonSearch   EscalationReason = "search"
)

// Outcome is the result of resolving one item. Only the fields relevant to
// Kind are set.
type Outcome struct {
	Kind       OutcomeKind      `json:"kind"`
	VideoID    string           `json:"video_id,omitempty"`
	Reason     EscalationReason `json:"reason,omitempty"`
	Candidates []Candidate      `json:"candidates,omitempty"`
	Artist     string           `json:"artist,omitempty"`
	Title      string           `json:"title,omitempty"`
	Err        error            `json:"-"`
}

func Selected(videoID string) Outcome {
	return Outcome{Kind: OutcomeSelected, VideoID: videoID}
}

func Escalate(reason EscalationReason, candidates []Candidate, artist, title string) Outcome {
	if candidates == nil {
		candidates = []Candidate{}
	}
	return Outcome{
		Kind:       OutcomeNeedsEscalation,
		Reason:     reason,
		Candidates: candidates,
		Artist:     artist,
		Title:      title,
	}
}

func Exhausted() Outcome {
	return Outcome{Kind: OutcomeExhausted}
}

func SearchFailed(err error) Outcome {
	return Outcome{Kind: OutcomeSearchFailed, Err: err}
}

// Validate checks the shape invariants of an outcome.
func (o Outcome) Validate() error {
	switch o.Kind {
	case OutcomeSelected:
		if strings.TrimSpace(o.VideoID) == "" {
			return fmt.Errorf("selected outcome without video id")
		}
	case OutcomeNeedsEscalation:
		switch o.Reason {
		case ReasonSelect, ReasonOverride:
			if len(o.Candidates) == 0 {
				return fmt.Errorf("escalation %q without candidates", o.Reason)
			}
		case ReasonSearch:
		default:
			return fmt.Errorf("escalation with unknown reason %q", o.Reason)
		}
	case OutcomeExhausted, OutcomeSearchFailed:
	default:
		return fmt.Errorf("unknown outcome kind %q", o.Kind)
	}
	return nil
}

// ReviewEntry is a deferred escalation waiting for the review phase.
type ReviewEntry struct {
	ItemID   string  `json:"item_id"`
	Outcome  Outcome `json:"outcome"`
	QueuedAt string  `json:"queued_at"`
}

func NewReviewEntry(item WorkItem, outcome Outcome) ReviewEntry {
	return ReviewEntry{
		ItemID:   item.ID,
		Outcome:  outcome,
		QueuedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// Options is run-scoped configuration. Treat it as read-only once a run starts.
type Options struct {
	OverrideExisting   bool          `json:"override_existing"`
	NoTrustMode        bool          `json:"no_trust_mode"`
	SearchResultsCount int           `json:"search_results_count"`
	DownloadDelay      time.Duration `json:"download_delay"`
	QualityFormat      string        `json:"quality_format"`
	Interactive        bool          `json:"interactive"`
	LibraryDir         string        `json:"library_dir"`
	OutputDir          string        `json:"output_dir"`
	SearchTimeout      time.Duration `json:"search_timeout"`
	DownloadTimeout    time.Duration `json:"download_timeout"`
}

func (o Options) Validate() error {
	if o.SearchResultsCount < 1 {
		return fmt.Errorf("search results count must be >= 1, got %d", o.SearchResultsCount)
	}
	if o.DownloadDelay < 0 {
		return fmt.Errorf("download delay must be >= 0, got %s", o.DownloadDelay)
	}
	if strings.TrimSpace(o.QualityFormat) == "" {
		return fmt.Errorf("quality format is required")
	}
	if strings.TrimSpace(o.OutputDir) == "" {
		return fmt.Errorf("output directory is required")
	}
	if o.SearchTimeout < 0 || o.DownloadTimeout < 0 {
		return fmt.Errorf("timeouts must be >= 0")
	}
	return nil
}

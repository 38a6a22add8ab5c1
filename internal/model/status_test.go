package model

import (
	"errors"
	"testing"
)

func TestCanTransition_AllowsExpectedPaths(t *testing.T) {
	cases := []struct {
		from string
		to   string
	}{
		{"", StatusQueued},
		{StatusQueued, StatusProcessing},
		{StatusProcessing, StatusFailedMetadata},
		{StatusProcessing, StatusExists},
		{StatusProcessing, StatusSearching},
		{StatusSearching, StatusFiltering},
		{StatusFiltering, StatusSearching},
		{StatusFiltering, StatusDownloading},
		{StatusFiltering, StatusNeedsReview},
		{StatusSearching, StatusFailedSearch},
		{StatusDownloading, StatusComplete},
		{StatusDownloading, StatusFailedDownload},
		{StatusNeedsReview, StatusReviewing},
		{StatusReviewing, StatusDownloading},
		{StatusReviewing, StatusSkippedManual},
		{StatusReviewing, StatusSearching},
	}

	for _, tc := range cases {
		if !CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be allowed", tc.from, tc.to)
		}
	}
}

func TestCanTransition_RejectsInvalidPaths(t *testing.T) {
	cases := []struct {
		from string
		to   string
	}{
		{StatusQueued, StatusComplete},
		{StatusProcessing, StatusDownloading},
		{StatusComplete, StatusQueued},
		{StatusExists, StatusSearching},
		{StatusNeedsReview, StatusDownloading},
		{"not_a_state", StatusQueued},
	}

	for _, tc := range cases {
		if CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be rejected", tc.from, tc.to)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := []string{
		StatusComplete, StatusFailedMetadata, StatusFailedSearch, StatusFailedFilter,
		StatusFailedDownload, StatusExhausted, StatusError, StatusSkippedManual, StatusExists,
	}
	for _, s := range terminal {
		if !IsTerminal(s) {
			t.Fatalf("expected %q to be terminal", s)
		}
	}
	for _, s := range []string{"", StatusQueued, StatusSearching, StatusNeedsReview, StatusReviewing} {
		if IsTerminal(s) {
			t.Fatalf("expected %q to be non-terminal", s)
		}
	}
}

func TestTransitionItemStatus_BlocksIllegalTransition(t *testing.T) {
	item := WorkItem{ID: "/music/a.mp3", Status: StatusQueued}
	if err := TransitionItemStatus(&item, StatusComplete, ""); err == nil {
		t.Fatalf("expected illegal transition error")
	}
	if item.Status != StatusQueued {
		t.Fatalf("status changed on rejected transition: %q", item.Status)
	}
	if err := TransitionItemStatus(&item, StatusProcessing, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOutcomeValidate(t *testing.T) {
	cases := []struct {
		name string
		o    Outcome
		ok   bool
	}{
		{"selected", Selected("abc"), true},
		{"selected empty", Selected(" "), false},
		{"escalate select", Escalate(ReasonSelect, []Candidate{{ID: "a"}}, "A", "T"), true},
		{"escalate select empty", Escalate(ReasonSelect, nil, "A", "T"), false},
		{"escalate search empty", Escalate(ReasonSearch, nil, "A", "T"), true},
		{"escalate no reason", Escalate("", nil, "A", "T"), false},
		{"exhausted", Exhausted(), true},
		{"search failed", SearchFailed(ErrSearchTransport), true},
	}
	for _, tc := range cases {
		err := tc.o.Validate()
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestSearchErrorsWrapTransport(t *testing.T) {
	if !errors.Is(ErrSearchRateLimited, ErrSearchTransport) {
		t.Fatalf("rate limited should be a transport failure")
	}
	if !errors.Is(ErrSearchTimeout, ErrSearchTransport) {
		t.Fatalf("timeout should be a transport failure")
	}
	if errors.Is(ErrSearchTimeout, ErrSearchRateLimited) {
		t.Fatalf("timeout must stay distinct from rate limiting")
	}
	if !errors.Is(ErrDownloadTimeout, ErrDownloadFailed) {
		t.Fatalf("download timeout should be a download failure")
	}
}

func TestOptionsValidate(t *testing.T) {
	opts := Options{SearchResultsCount: 5, QualityFormat: "best", OutputDir: "/tmp/out"}
	if err := opts.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := opts
	bad.SearchResultsCount = 0
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for zero results count")
	}
	bad = opts
	bad.DownloadDelay = -1
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for negative delay")
	}
}

package batch

import (
	"testing"
	"time"

	"mvfetch/internal/model"
)

func TestEventQueueNeverBlocksSender(t *testing.T) {
	q := newEventQueue()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			q.send(Event{Kind: EventStatus, Index: i})
		}
		q.close()
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sender blocked without a reader")
	}

	want := 0
	for ev := range q.out {
		if ev.Index != want {
			t.Fatalf("out of order: got %d want %d", ev.Index, want)
		}
		want++
	}
	if want != 1000 {
		t.Fatalf("expected 1000 events, got %d", want)
	}
}

func TestReviewQueueFIFOAndPersistence(t *testing.T) {
	path := t.TempDir() + "/review.json"
	q := NewReviewQueue(path)
	for _, id := range []string{"a", "b", "c"} {
		if err := q.Push(model.ReviewEntry{ItemID: id, Outcome: model.Escalate(model.ReasonSearch, nil, "x", "y")}); err != nil {
			t.Fatal(err)
		}
	}
	e, ok, err := q.Pop()
	if err != nil || !ok || e.ItemID != "a" {
		t.Fatalf("expected a, got %+v ok=%v err=%v", e, ok, err)
	}

	loaded, err := LoadReviewQueue(path)
	if err != nil {
		t.Fatal(err)
	}
	entries := loaded.Entries()
	if len(entries) != 2 || entries[0].ItemID != "b" || entries[1].ItemID != "c" {
		t.Fatalf("unexpected persisted entries %+v", entries)
	}
	if entries[0].Outcome.Candidates == nil {
		t.Fatalf("search escalation should keep an empty candidate list")
	}
}

func TestLoadReviewQueueMissingFileIsEmpty(t *testing.T) {
	q, err := LoadReviewQueue(t.TempDir() + "/review.json")
	if err != nil {
		t.Fatal(err)
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue")
	}
	if _, ok, _ := q.Pop(); ok {
		t.Fatalf("pop on empty queue must report false")
	}
}

func TestSummaryCounts(t *testing.T) {
	items := []model.WorkItem{
		{Status: model.StatusComplete},
		{Status: model.StatusComplete},
		{Status: model.StatusExists},
		{Status: model.StatusFailedDownload},
		{Status: model.StatusExhausted},
		{Status: model.StatusSkippedManual},
	}
	s := Summarize("run1", items, 2, true)
	if s.Downloaded() != 2 || s.Failed() != 2 || s.Count(model.StatusExists) != 1 {
		t.Fatalf("unexpected summary %+v", s)
	}
	want := "total=6 downloaded=2 exists=1 skipped=1 failed=2 review_queue=2 (stopped)"
	if s.String() != want {
		t.Fatalf("got %q want %q", s.String(), want)
	}
	if lines := s.Lines(); len(lines) != 5 {
		t.Fatalf("expected five status lines, got %v", lines)
	}
}

func TestDecisionKindString(t *testing.T) {
	if DecisionSearchFilename.String() != "search_filename" || DecisionKind(99).String() != "unknown" {
		t.Fatalf("unexpected decision names")
	}
}

package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"mvfetch/internal/model"
)

func TestRecordAndRecent(t *testing.T) {
	ctx := context.Background()
	c, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() {
		_ = c.Close()
	}()

	items := []model.WorkItem{
		{ID: "/music/a.mp3", Artist: "A", Title: "One", Status: model.StatusComplete, VideoID: "v1", OutputPath: "/out/A - One.mp4"},
		{ID: "/music/b.mp3", Artist: "B", Title: "Two", Status: model.StatusExhausted, Reason: "no_candidates"},
	}
	for _, it := range items {
		if err := c.Record(ctx, "run1", it); err != nil {
			t.Fatal(err)
		}
	}

	got, err := c.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].SourcePath != "/music/b.mp3" || got[0].Reason != "no_candidates" {
		t.Fatalf("expected newest first, got %+v", got[0])
	}

	limited, err := c.Recent(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Fatalf("limit not applied: %d", len(limited))
	}
}

func TestRecordUpsertsWithinRun(t *testing.T) {
	ctx := context.Background()
	c, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = c.Close()
	}()

	item := model.WorkItem{ID: "/music/a.mp3", Status: model.StatusNeedsReview, VideoID: "v1"}
	if err := c.Record(ctx, "run1", item); err != nil {
		t.Fatal(err)
	}
	item.Status = model.StatusSkippedManual
	item.VideoID = ""
	if err := c.Record(ctx, "run1", item); err != nil {
		t.Fatal(err)
	}
	if err := c.Record(ctx, "run2", item); err != nil {
		t.Fatal(err)
	}

	got, err := c.ForSource(ctx, "/music/a.mp3")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected one row per run, got %d", len(got))
	}
	for _, e := range got {
		if e.RunID == "run1" && (e.Status != model.StatusSkippedManual || e.VideoID != "v1") {
			t.Fatalf("upsert should update status and keep video id: %+v", e)
		}
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestNilCatalogRecordIsNoop(t *testing.T) {
	var c *Catalog
	if err := c.Record(context.Background(), "run", model.WorkItem{ID: "x"}); err != nil {
		t.Fatalf("nil catalog should ignore records: %v", err)
	}
}

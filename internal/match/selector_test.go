package match

import (
	"testing"

	"github.com/rs/zerolog"

	"mvfetch/internal/model"
)

func newTestSelector() *Selector {
	return NewSelector(DefaultKeywords(), zerolog.Nop())
}

func views(n int64) *int64 { return &n }

func TestSelect_EmptyIsExhausted(t *testing.T) {
	s := newTestSelector()
	for _, mode := range [][2]bool{{false, false}, {true, false}, {false, true}} {
		if out := s.Select(nil, "Artist", "Song", mode[0], mode[1]); out.Kind != model.OutcomeExhausted {
			t.Fatalf("override=%v noTrust=%v: expected exhausted, got %s", mode[0], mode[1], out.Kind)
		}
	}
}

func TestSelect_NoTrustAlwaysEscalatesEverything(t *testing.T) {
	s := newTestSelector()
	cands := []model.Candidate{
		{ID: "b", Title: "Song (cover)", Channel: "x"},
		{ID: "a", Title: "Artist - Song (Official Music Video)", Channel: "ArtistVEVO", Verified: true, ViewCount: views(50_000_000)},
	}
	for _, input := range [][]model.Candidate{cands, cands[1:]} {
		out := s.Select(input, "Artist", "Song", false, true)
		if out.Kind != model.OutcomeNeedsEscalation || out.Reason != model.ReasonSelect {
			t.Fatalf("expected select escalation, got %+v", out)
		}
		if len(out.Candidates) != len(input) {
			t.Fatalf("expected all %d candidates, got %d", len(input), len(out.Candidates))
		}
		for i := range input {
			if out.Candidates[i].ID != input[i].ID || out.Candidates[i].Scored {
				t.Fatalf("candidates must be unfiltered, unsorted and unscored: %+v", out.Candidates)
			}
		}
	}
}

func TestSelect_PriorityPassBeatsHigherScore(t *testing.T) {
	s := newTestSelector()
	cands := []model.Candidate{
		{ID: "audio", Title: "Artist - Song (Official Audio)", Channel: "Artist", Verified: true, ViewCount: views(90_000_000)},
		{ID: "video", Title: "Artist - Song [Official Video]", Channel: "Random Uploads", UploaderID: "ArtistVEVO"},
	}
	out := s.Select(cands, "Artist", "Song", false, false)
	if out.Kind != model.OutcomeSelected || out.VideoID != "video" {
		t.Fatalf("expected priority selection of video, got %+v", out)
	}
}

func TestSelect_PrioritySkipsCandidatesWithoutID(t *testing.T) {
	s := newTestSelector()
	cands := []model.Candidate{
		{Title: "Artist - Song (Official Video)", Channel: "ArtistVEVO"},
		{ID: "second", Title: "Artist - Song (Official Video)", Channel: "Artist"},
	}
	out := s.Select(cands, "Artist", "Song", false, false)
	if out.Kind != model.OutcomeSelected || out.VideoID != "second" {
		t.Fatalf("expected second candidate, got %+v", out)
	}
}

func TestSelect_PriorityExemptKeywords(t *testing.T) {
	s := newTestSelector()
	visual := []model.Candidate{{ID: "v", Title: "Artist - Song (Official Video) Visualizer", Channel: "ArtistVEVO"}}
	if out := s.Select(visual, "Artist", "Song", false, false); out.Kind != model.OutcomeSelected {
		t.Fatalf("visualizer should not block priority pass, got %+v", out)
	}
	live := []model.Candidate{{ID: "l", Title: "Artist - Song (Official Video) Live", Channel: "ArtistVEVO"}}
	if out := s.Select(live, "Artist", "Song", false, false); out.Kind != model.OutcomeExhausted {
		t.Fatalf("live upload should be filtered out, got %+v", out)
	}
}

func TestSelect_NegativeKeywordMechanism(t *testing.T) {
	s := NewSelector(Keywords{Negative: []string{"zzz"}}, zerolog.Nop())
	clean := []model.Candidate{{ID: "a", Title: "Song", Channel: "x"}}
	if out := s.Select(clean, "Artist", "Song", false, false); out.Kind != model.OutcomeNeedsEscalation {
		t.Fatalf("clean candidate should be retained, got %+v", out)
	}
	hit := []model.Candidate{{ID: "a", Title: "Song ZZZ", Channel: "x"}}
	if out := s.Select(hit, "Artist", "Song", false, false); out.Kind != model.OutcomeExhausted {
		t.Fatalf("keyword hit should exclude candidate, got %+v", out)
	}
	inWord := []model.Candidate{{ID: "a", Title: "Song azzz", Channel: "x"}}
	if out := s.Select(inWord, "Artist", "Song", false, false); out.Kind == model.OutcomeExhausted {
		t.Fatalf("keyword inside a word should not hit")
	}
}

func TestSelect_DescriptionNegative(t *testing.T) {
	s := newTestSelector()
	cands := []model.Candidate{{ID: "a", Title: "Artist - Song", Channel: "Artist", Description: "Fan-made edit"}}
	if out := s.Select(cands, "Artist", "Song", false, false); out.Kind != model.OutcomeExhausted {
		t.Fatalf("fan-made upload should be excluded, got %+v", out)
	}
}

// twelve scores 10 (positive phrase) + 2 (title only).
func twelve() model.Candidate {
	return model.Candidate{ID: "top", Title: "Song (Official Audio)", Channel: "Uploader"}
}

func TestSelect_MarginLaw(t *testing.T) {
	s := newTestSelector()
	// Artist Song: +4 title match, +1 for >100k views.
	five := model.Candidate{ID: "five", Title: "Artist Song", Channel: "someone", ViewCount: views(200_000)}
	out := s.Select([]model.Candidate{five, twelve()}, "Artist", "Song", false, false)
	if out.Kind != model.OutcomeSelected || out.VideoID != "top" {
		t.Fatalf("12 vs 5 should auto-select top, got %+v", out)
	}

	six := five
	six.ID = "six"
	six.ViewCount = views(2_000_000)
	out = s.Select([]model.Candidate{six, twelve()}, "Artist", "Song", false, false)
	if out.Kind != model.OutcomeNeedsEscalation || out.Reason != model.ReasonSelect {
		t.Fatalf("12 vs 6 should escalate, got %+v", out)
	}
	if out.Candidates[0].ID != "top" || out.Candidates[0].Score != 12 || out.Candidates[1].Score != 6 {
		t.Fatalf("expected sorted scored candidates, got %+v", out.Candidates)
	}
}

func TestSelect_SingleCandidateFloor(t *testing.T) {
	s := newTestSelector()
	// +2 title only, +5 artist inside channel.
	seven := model.Candidate{ID: "c", Title: "Song", Channel: "Artist Music"}
	if out := s.Select([]model.Candidate{seven}, "Artist", "Song", false, false); out.Kind != model.OutcomeNeedsEscalation {
		t.Fatalf("score 7 should escalate, got %+v", out)
	}
	eight := seven
	eight.ViewCount = views(150_000)
	if out := s.Select([]model.Candidate{eight}, "Artist", "Song", false, false); out.Kind != model.OutcomeSelected {
		t.Fatalf("score 8 should select, got %+v", out)
	}
}

func TestSelect_StableTieOrder(t *testing.T) {
	s := newTestSelector()
	a := model.Candidate{ID: "a", Title: "Song", Channel: "x"}
	b := model.Candidate{ID: "b", Title: "Song", Channel: "y"}
	out := s.Select([]model.Candidate{a, b}, "Artist", "Song", false, false)
	if out.Kind != model.OutcomeNeedsEscalation || out.Candidates[0].ID != "a" || out.Candidates[1].ID != "b" {
		t.Fatalf("equal scores must keep input order, got %+v", out.Candidates)
	}
}

func TestSelect_OverrideNeverSelects(t *testing.T) {
	s := newTestSelector()
	cands := []model.Candidate{
		{ID: "a", Title: "Artist - Song (Official Music Video)", Channel: "ArtistVEVO", Verified: true},
		{ID: "b", Title: "Song (karaoke)", Channel: "x"},
	}
	out := s.Select(cands, "Artist", "Song", true, false)
	if out.Kind != model.OutcomeNeedsEscalation || out.Reason != model.ReasonOverride {
		t.Fatalf("expected override escalation, got %+v", out)
	}
	if len(out.Candidates) != 2 || out.Candidates[1].ID != "b" || out.Candidates[0].Scored {
		t.Fatalf("override must keep every candidate unscored: %+v", out.Candidates)
	}
}

func TestSelect_TopWithoutIDEscalates(t *testing.T) {
	s := newTestSelector()
	c := model.Candidate{Title: "Song", Channel: "Artist", Verified: true}
	out := s.Select([]model.Candidate{c}, "Artist", "Song", false, false)
	if out.Kind != model.OutcomeNeedsEscalation {
		t.Fatalf("unselectable top must escalate, got %+v", out)
	}
}

func TestSimilarity(t *testing.T) {
	exact := Similarity("Artist", "Song", model.Candidate{Title: "Artist - Song"})
	other := Similarity("Artist", "Song", model.Candidate{Title: "Completely different"})
	if exact != 1 {
		t.Fatalf("expected exact similarity 1, got %f", exact)
	}
	if other >= exact {
		t.Fatalf("unrelated title should score lower: %f", other)
	}
}

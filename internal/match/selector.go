package match

import (
	"regexp"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"mvfetch/internal/model"
)

const (
	singleCandidateFloor = 8
	clearWinnerMargin    = 7
	clearWinnerFloor     = 12
)

// Selector scores candidates and decides between auto-selection, escalation
// and exhaustion. It is safe for concurrent use.
type Selector struct {
	kw       Keywords
	negative []*regexp.Regexp
	log      zerolog.Logger
}

func NewSelector(kw Keywords, log zerolog.Logger) *Selector {
	kw = kw.Merge()
	s := &Selector{kw: kw, log: log}
	for _, k := range kw.Negative {
		s.negative = append(s.negative, keywordPattern(k))
	}
	return s
}

// keywordPattern anchors on a leading word boundary so "live" does not fire
// on "alive" while "lyric" still catches "lyrics".
func keywordPattern(k string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(^|[^\pL\pN])` + regexp.QuoteMeta(strings.ToLower(strings.TrimSpace(k))))
}

// Select never returns SearchFailed.
func (s *Selector) Select(cands []model.Candidate, artist, title string, override, noTrust bool) model.Outcome {
	if len(cands) == 0 {
		return model.Exhausted()
	}
	if noTrust {
		return model.Escalate(model.ReasonSelect, unscored(cands), artist, title)
	}
	if override {
		return model.Escalate(model.ReasonOverride, unscored(cands), artist, title)
	}

	artistL := strings.ToLower(strings.TrimSpace(artist))
	titleL := strings.ToLower(strings.TrimSpace(title))

	if c, ok := s.priorityPick(cands, artistL); ok {
		s.log.Debug().Str("video_id", c.ID).Str("title", c.Title).Msg("priority match")
		return model.Selected(c.ID)
	}

	scored := make([]model.Candidate, 0, len(cands))
	for _, c := range cands {
		score, negative := s.score(c, artistL, titleL)
		s.log.Debug().Str("video_id", c.ID).Str("title", c.Title).Int("score", score).Bool("negative", negative).Msg("scored candidate")
		if negative {
			continue
		}
		if !strings.Contains(strings.ToLower(c.Title), titleL) && score <= 2 {
			continue
		}
		c.Score = score
		c.Scored = true
		scored = append(scored, c)
	}
	if len(scored) == 0 {
		return model.Exhausted()
	}

	slices.SortStableFunc(scored, func(a, b model.Candidate) int {
		return b.Score - a.Score
	})
	top := scored[0]
	if top.Selectable() {
		if len(scored) == 1 && top.Score >= singleCandidateFloor {
			return model.Selected(top.ID)
		}
		if len(scored) > 1 && top.Score >= scored[1].Score+clearWinnerMargin && top.Score >= clearWinnerFloor {
			return model.Selected(top.ID)
		}
	}
	return model.Escalate(model.ReasonSelect, scored, artist, title)
}

func (s *Selector) priorityPick(cands []model.Candidate, artistL string) (model.Candidate, bool) {
	for _, c := range cands {
		if !c.Selectable() {
			continue
		}
		titleL := strings.ToLower(c.Title)
		if !containsAny(titleL, s.kw.PriorityPositive) {
			continue
		}
		if !(s.officialChannel(c, artistL) || c.Verified) {
			continue
		}
		if s.hasNegative(c.Title, s.kw.PriorityExempt) {
			continue
		}
		return c, true
	}
	return model.Candidate{}, false
}

func (s *Selector) score(c model.Candidate, artistL, titleL string) (int, bool) {
	score := 0
	vidTitle := strings.ToLower(c.Title)
	channel := strings.ToLower(strings.TrimSpace(c.Channel))
	positive := containsAny(vidTitle, s.kw.Positive)

	negative := s.hasNegative(c.Title, nil)
	if negative {
		if positive {
			score -= 5
		} else {
			score -= 20
		}
	}
	if !negative && containsAny(strings.ToLower(c.Description), s.kw.DescriptionNegative) {
		score -= 5
		negative = true
	}
	if positive {
		score += 10
	}

	switch {
	case s.officialChannel(c, artistL):
		score += 8
	case artistL != "" && strings.Contains(channel, artistL):
		score += 5
	case containsAny(channel, s.kw.WeakChannel):
		score -= 5
	}

	if titleL != "" && strings.Contains(vidTitle, titleL) {
		if artistL != "" && strings.Contains(vidTitle, artistL) {
			score += 4
		} else {
			score += 2
		}
	}

	if c.ViewCount != nil {
		switch v := *c.ViewCount; {
		case v > 10_000_000:
			score += 3
		case v > 1_000_000:
			score += 2
		case v > 100_000:
			score++
		}
	}
	if c.Verified {
		score += 5
	}
	if c.DurationSeconds != nil {
		if *c.DurationSeconds < 90 {
			score -= 2
		}
		if *c.DurationSeconds > 600 {
			score -= 2
		}
	}
	return score, negative
}

func (s *Selector) officialChannel(c model.Candidate, artistL string) bool {
	channel := strings.ToLower(strings.TrimSpace(c.Channel))
	if artistL != "" && channel == artistL {
		return true
	}
	return containsAny(channel, s.kw.OfficialChannel) || containsAny(strings.ToLower(c.UploaderID), s.kw.OfficialChannel)
}

func (s *Selector) hasNegative(title string, exempt []string) bool {
	for i, re := range s.negative {
		if slices.Contains(exempt, s.kw.Negative[i]) {
			continue
		}
		if re.MatchString(title) {
			return true
		}
	}
	return false
}

func unscored(cands []model.Candidate) []model.Candidate {
	out := make([]model.Candidate, len(cands))
	copy(out, cands)
	for i := range out {
		out[i].Score = 0
		out[i].Scored = false
	}
	return out
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

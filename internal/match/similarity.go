package match

import (
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"mvfetch/internal/model"
)

// Similarity is a 0..1 Jaro-Winkler score between the wanted track and a
// candidate title. Display only: auto-selection never looks at it.
func Similarity(artist, title string, c model.Candidate) float64 {
	want := strings.ToLower(strings.TrimSpace(artist) + " - " + strings.TrimSpace(title))
	got := strings.ToLower(strings.TrimSpace(c.Title))
	if got == "" {
		return 0
	}
	return strutil.Similarity(want, got, metrics.NewJaroWinkler())
}

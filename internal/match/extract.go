package match

import (
	"strings"

	"mvfetch/internal/model"
)

const watchURLPrefix = "https://www.youtube.com/watch?v="

// Extract normalizes one raw yt-dlp search record. It never fails: missing or
// mistyped fields become zero values.
func Extract(rec map[string]any) model.Candidate {
	id := stringField(rec, "id")
	c := model.Candidate{
		ID:          id,
		Title:       stringField(rec, "title"),
		Channel:     firstString(rec, "channel", "uploader"),
		UploaderID:  stringField(rec, "uploader_id"),
		Description: stringField(rec, "description"),
		Verified:    boolField(rec, "channel_is_verified"),
		Thumbnail:   thumbnailOf(rec),
	}
	if d, ok := numberField(rec, "duration"); ok {
		c.DurationSeconds = &d
	}
	if v, ok := numberField(rec, "view_count"); ok {
		n := int64(v)
		c.ViewCount = &n
	}

	switch {
	case firstString(rec, "webpage_url", "url") != "":
		c.URL = firstString(rec, "webpage_url", "url")
	case id != "":
		c.URL = watchURLPrefix + id
	default:
		c.URL = "#"
	}
	return c
}

func ExtractAll(recs []map[string]any) []model.Candidate {
	out := make([]model.Candidate, 0, len(recs))
	for _, rec := range recs {
		if rec == nil {
			continue
		}
		out = append(out, Extract(rec))
	}
	return out
}

func thumbnailOf(rec map[string]any) string {
	if list, ok := rec["thumbnails"].([]any); ok && len(list) > 0 {
		// last entry is the largest; walk back past entries without a url
		for i := len(list) - 1; i >= 0; i-- {
			if u := thumbURL(list[i]); u != "" {
				return u
			}
		}
		return ""
	}
	return stringField(rec, "thumbnail")
}

func thumbURL(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	return stringField(m, "url")
}

func stringField(rec map[string]any, key string) string {
	s, ok := rec[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

func firstString(rec map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringField(rec, k); s != "" {
			return s
		}
	}
	return ""
}

func boolField(rec map[string]any, key string) bool {
	b, ok := rec[key].(bool)
	return ok && b
}

func numberField(rec map[string]any, key string) (float64, bool) {
	switch v := rec[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

package match

import "strings"

// Keywords is the tunable vocabulary the selector scores against. All
// entries are compared lowercase.
type Keywords struct {
	// Positive title phrases that earn the official bonus.
	Positive []string `json:"positive"`
	// PriorityPositive is the stricter subset that can short-circuit selection.
	PriorityPositive []string `json:"priority_positive"`
	Negative         []string `json:"negative"`
	// PriorityExempt negative keywords do not disqualify an obviously
	// official upload in the priority pass.
	PriorityExempt      []string `json:"priority_exempt"`
	DescriptionNegative []string `json:"description_negative"`
	OfficialChannel     []string `json:"official_channel"`
	WeakChannel         []string `json:"weak_channel"`
}

func DefaultKeywords() Keywords {
	return Keywords{
		Positive:         []string{"official music video", "official video", "official audio"},
		PriorityPositive: []string{"official music video", "official video"},
		Negative: []string{
			"lyric", "cover", "remix", "live", "reaction", "instrumental", "karaoke",
			"parody", "chipmunk", "slowed", "reverb", "bass boosted", "tutorial",
			"lesson", "interview", "teaser", "trailer", "fan cam", "album version",
			"full album", "topic", "provided to youtube by", "8d audio", "nightcore",
			"extended", "mashup", "megamix", "clean version", "audio only", "visualizer",
		},
		PriorityExempt:      []string{"audio only", "visualizer"},
		DescriptionNegative: []string{"lyrics in description", "fan-made", "unofficial"},
		OfficialChannel:     []string{"official", "vevo"},
		WeakChannel:         []string{"topic", "various artists"},
	}
}

// Merge fills empty lists in k from DefaultKeywords and lowercases entries.
func (k Keywords) Merge() Keywords {
	d := DefaultKeywords()
	pick := func(v, def []string) []string {
		if len(v) == 0 {
			v = def
		}
		out := make([]string, 0, len(v))
		for _, s := range v {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return Keywords{
		Positive:            pick(k.Positive, d.Positive),
		PriorityPositive:    pick(k.PriorityPositive, d.PriorityPositive),
		Negative:            pick(k.Negative, d.Negative),
		PriorityExempt:      pick(k.PriorityExempt, d.PriorityExempt),
		DescriptionNegative: pick(k.DescriptionNegative, d.DescriptionNegative),
		OfficialChannel:     pick(k.OfficialChannel, d.OfficialChannel),
		WeakChannel:         pick(k.WeakChannel, d.WeakChannel),
	}
}

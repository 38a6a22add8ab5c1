package batch

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"mvfetch/internal/ytdlp"
)

var (
	rePct   = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)%`)
	reSpeed = regexp.MustCompile(`\bat\s+([^\s]+)`) // yt-dlp [download] ... at X
	reETA   = regexp.MustCompile(`\bETA\s+([0-9:]+)`)
	reOf    = regexp.MustCompile(`\bof\s+~?\s*([^\s]+)`)
	reFF    = regexp.MustCompile(`\bspeed=\s*([^\s]+)`) // ffmpeg speed=x
	reRate  = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?)\s*([kmgt]?i?b)/s$`)
)

// Progress is the latest known state of one download.
type Progress struct {
	Phase   string  `json:"phase"`
	Percent string  `json:"percent,omitempty"`
	Speed   string  `json:"speed,omitempty"`
	RateMbp float64 `json:"rate_mbps,omitempty"`
	ETA     string  `json:"eta,omitempty"`
	Size    string  `json:"size,omitempty"`
}

// progressTracker folds yt-dlp output lines into a Progress. It is fed from
// both output streams at once.
type progressTracker struct {
	mu  sync.Mutex
	cur Progress
}

func newProgressTracker() *progressTracker {
	return &progressTracker{cur: Progress{Phase: "starting"}}
}

// Handle returns the updated progress and whether the line changed it.
func (p *progressTracker) Handle(stream ytdlp.OutputStream, line string) (Progress, bool) {
	l := strings.TrimSpace(line)
	if l == "" {
		return Progress{}, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	before := p.cur

	switch {
	case strings.HasPrefix(l, "[youtube]"):
		p.cur.Phase = "metadata"
	case strings.HasPrefix(l, "[info]"):
		p.cur.Phase = "preparing"
	case strings.HasPrefix(l, "[Merger]"), strings.HasPrefix(l, "[VideoConvertor]"):
		p.cur.Phase = "merging"
	case strings.HasPrefix(l, "[download]"):
		p.cur.Phase = "downloading"
		if m := rePct.FindStringSubmatch(l); len(m) > 1 {
			p.cur.Percent = m[1] + "%"
		}
		if m := reSpeed.FindStringSubmatch(l); len(m) > 1 {
			p.cur.Speed = m[1]
			p.cur.RateMbp = parseRateToMbp(m[1])
		}
		if m := reETA.FindStringSubmatch(l); len(m) > 1 {
			p.cur.ETA = m[1]
		}
		if m := reOf.FindStringSubmatch(l); len(m) > 1 {
			p.cur.Size = m[1]
		}
	}
	if stream == ytdlp.StreamStderr {
		if m := reFF.FindStringSubmatch(l); len(m) > 1 {
			p.cur.Speed = m[1]
			if p.cur.Phase == "starting" || p.cur.Phase == "metadata" || p.cur.Phase == "preparing" {
				p.cur.Phase = "downloading"
			}
		}
	}
	return p.cur, p.cur != before
}

// Render formats progress as a single status line.
func (p Progress) Render() string {
	parts := []string{p.Phase}
	if p.Percent != "" {
		parts = append(parts, p.Percent)
	}
	if p.Size != "" {
		parts = append(parts, "of "+p.Size)
	}
	if p.RateMbp > 0 {
		parts = append(parts, fmt.Sprintf("%.2f Mb/s", p.RateMbp))
	} else if p.Speed != "" {
		parts = append(parts, p.Speed)
	}
	if p.ETA != "" {
		parts = append(parts, "ETA "+p.ETA)
	}
	return strings.Join(parts, "  ")
}

func parseRateToMbp(s string) float64 {
	x := strings.TrimSpace(strings.ToLower(s))
	// Examples: 12.3MiB/s, 700KiB/s, 5.1MB/s, 40.2KB/s
	m := reRate.FindStringSubmatch(x)
	if len(m) < 3 {
		return 0
	}
	val, err := strconv.ParseFloat(m[1], 64)
	if err != nil || val <= 0 {
		return 0
	}
	var mbPerSec float64
	switch m[2] {
	case "kib":
		mbPerSec = val * 1024 / 1000_000
	case "kb":
		mbPerSec = val * 1000 / 1000_000
	case "mib":
		mbPerSec = val * 1024 * 1024 / 1000_000
	case "mb":
		mbPerSec = val
	case "gib":
		mbPerSec = val * 1024 * 1024 * 1024 / 1000_000
	case "gb":
		mbPerSec = val * 1000
	default:
		return 0
	}
	return mbPerSec * 8 // MB/s -> Mb/s
}

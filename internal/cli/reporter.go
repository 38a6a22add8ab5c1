package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"mvfetch/internal/batch"
	"mvfetch/internal/library"
	"mvfetch/internal/model"
)

var (
	statusOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	statusWarnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	statusErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	statusMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// reporter prints worker events. With live set, working states and
// download progress share one rewritten line; otherwise every transition
// gets its own line and progress is not shown.
type reporter struct {
	mu      sync.Mutex
	out     io.Writer
	live    bool
	quiet   bool
	pending bool
}

func newReporter(out io.Writer, live, quiet bool) *reporter {
	return &reporter{out: out, live: live, quiet: quiet}
}

func (r *reporter) Observe(ev batch.Event) {
	if r.quiet {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Kind {
	case batch.EventStatus:
		line := fmt.Sprintf("[%d/%d] %s %s", ev.Index, ev.Total, styleStatus(ev.Item.Status), itemLabel(ev.Item))
		if extra := statusExtra(ev); extra != "" {
			line += " " + statusMutedStyle.Render("("+extra+")")
		}
		if r.live && !settled(ev.Item.Status) {
			r.rewrite(line)
			return
		}
		r.println(line)
	case batch.EventProgress:
		if r.live {
			r.rewrite(fmt.Sprintf("[%d/%d] %s", ev.Index, ev.Total, ev.Progress.Render()))
		}
	case batch.EventSelectionRequest, batch.EventQueryRequest:
		r.clearLive()
	case batch.EventReviewQueued:
		r.println(statusMutedStyle.Render(fmt.Sprintf("  queued for review (%d waiting)", ev.QueueLen)))
	case batch.EventFatal:
		r.println(statusErrorStyle.Render("fatal: " + errString(ev.Err)))
	case batch.EventPassComplete:
		line := "batch pass complete"
		if ev.QueueLen > 0 {
			line += fmt.Sprintf(", %d queued for review", ev.QueueLen)
		}
		r.println(line)
	case batch.EventReviewComplete:
		line := "review complete"
		if ev.QueueLen > 0 {
			line += fmt.Sprintf(", %d still queued", ev.QueueLen)
		}
		r.println(line)
	}
}

func (r *reporter) PrintSummary(s batch.Summary, runDir string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearLive()
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "summary: "+s.String())
	for _, line := range s.Lines() {
		fmt.Fprintln(r.out, "  "+line)
	}
	fmt.Fprintf(r.out, "run_dir: %s\n", runDir)
	if s.ReviewQueue > 0 {
		fmt.Fprintf(r.out, "next: mvfetch review --run-dir %s\n", runDir)
	}
}

func (r *reporter) println(line string) {
	r.clearLive()
	fmt.Fprintln(r.out, line)
}

func (r *reporter) rewrite(line string) {
	fmt.Fprint(r.out, "\r\033[2K"+line)
	r.pending = true
}

func (r *reporter) clearLive() {
	if r.pending {
		fmt.Fprint(r.out, "\r\033[2K")
		r.pending = false
	}
}

// settled states are worth a permanent line.
func settled(status string) bool {
	return model.IsTerminal(status) || status == model.StatusNeedsReview
}

func styleStatus(status string) string {
	switch status {
	case model.StatusComplete:
		return statusOKStyle.Render(status)
	case model.StatusExists, model.StatusSkippedManual:
		return statusMutedStyle.Render(status)
	case model.StatusNeedsReview:
		return statusWarnStyle.Render(status)
	case model.StatusFailedMetadata, model.StatusFailedSearch, model.StatusFailedFilter,
		model.StatusFailedDownload, model.StatusExhausted, model.StatusError:
		return statusErrorStyle.Render(status)
	default:
		return status
	}
}

func itemLabel(item model.WorkItem) string {
	if item.Artist != "" || item.Title != "" {
		return library.FileBase(item.Artist, item.Title)
	}
	return item.ID
}

func statusExtra(ev batch.Event) string {
	parts := make([]string, 0, 2)
	if ev.Item.Reason != "" {
		parts = append(parts, ev.Item.Reason)
	}
	switch {
	case ev.Item.Status == model.StatusComplete && ev.Item.OutputPath != "":
		parts = append(parts, ev.Item.OutputPath)
	case ev.Detail != "":
		parts = append(parts, clip(ev.Detail, 80))
	}
	return strings.Join(parts, ": ")
}

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

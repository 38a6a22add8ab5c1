package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"mvfetch/internal/batch"
	"mvfetch/internal/match"
)

var (
	pickTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	pickMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	pickPanelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	pickSelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Bold(true)
)

// newTerminalDecider picks the bubbletea dialogs for a terminal and the
// line prompter for anything else.
func newTerminalDecider(in *os.File, out io.Writer) batch.Decider {
	if in != nil && isCharDevice(in) && stdoutIsTTY() {
		return teaDecider{in: in, out: out}
	}
	var r io.Reader = in
	if in == nil {
		r = strings.NewReader("")
	}
	return newLineDecider(r, out)
}

type teaDecider struct {
	in  io.Reader
	out io.Writer
}

func (d teaDecider) RequestSelection(ctx context.Context, req batch.SelectionRequest) (batch.Decision, error) {
	final, err := d.run(ctx, newPickerModel(req))
	if err != nil {
		return batch.Decision{}, err
	}
	return final.(pickerModel).decision, nil
}

func (d teaDecider) RequestQuery(ctx context.Context, req batch.QueryRequest) (batch.Decision, error) {
	final, err := d.run(ctx, newQueryModel(req))
	if err != nil {
		return batch.Decision{}, err
	}
	return final.(queryModel).decision, nil
}

func (d teaDecider) run(ctx context.Context, m tea.Model) (tea.Model, error) {
	p := tea.NewProgram(m, tea.WithContext(ctx), tea.WithInput(d.in), tea.WithOutput(d.out))
	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("decision dialog: %w", err)
	}
	return final, nil
}

// pickerModel lists candidates for one track. Enter selects, s skips, q
// stops the whole run; esc and ctrl+c close the dialog as a skip.
type pickerModel struct {
	req      batch.SelectionRequest
	cursor   int
	width    int
	note     string
	decision batch.Decision
}

func newPickerModel(req batch.SelectionRequest) pickerModel {
	return pickerModel{req: req, width: 100, decision: batch.Decision{Kind: batch.DecisionSkip}}
}

func (m pickerModel) Init() tea.Cmd {
	return nil
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		key := msg.String()
		switch key {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.req.Candidates)-1 {
				m.cursor++
			}
		case "enter":
			if len(m.req.Candidates) == 0 {
				return m, nil
			}
			c := m.req.Candidates[m.cursor]
			if !c.Selectable() {
				m.note = "this result has no video id"
				return m, nil
			}
			m.decision = batch.Decision{Kind: batch.DecisionSelect, VideoID: c.ID}
			return m, tea.Quit
		case "s", "esc", "ctrl+c":
			m.decision = batch.Decision{Kind: batch.DecisionSkip}
			return m, tea.Quit
		case "q":
			m.decision = batch.Decision{Kind: batch.DecisionStop}
			return m, tea.Quit
		default:
			if len(key) == 1 && key[0] >= '1' && key[0] <= '9' {
				if n := int(key[0] - '1'); n < len(m.req.Candidates) {
					m.cursor = n
				}
			}
		}
	}
	return m, nil
}

func (m pickerModel) View() string {
	width := maxInt(m.width-2, 40)
	header := pickTitleStyle.Render("Choose a video for "+trackName(m.req.Artist, m.req.Title)) + "\n"
	if m.req.Unfiltered {
		header += pickMutedStyle.Render("no result passed the filters; showing everything found") + "\n"
	}

	lines := make([]string, 0, len(m.req.Candidates))
	for i, c := range m.req.Candidates {
		line := fmt.Sprintf("%d. %s", i+1, clip(c.Title, width-40))
		meta := fmt.Sprintf("%s | %s | %s", clip(c.Channel, 24), formatDuration(c.DurationSeconds), formatViews(c.ViewCount))
		if c.Scored {
			meta += fmt.Sprintf(" | score %d", c.Score)
		}
		meta += fmt.Sprintf(" | match %.0f%%", 100*match.Similarity(m.req.Artist, m.req.Title, c))
		if i == m.cursor {
			lines = append(lines, pickSelStyle.Render("> "+line))
		} else {
			lines = append(lines, "  "+line)
		}
		lines = append(lines, "   "+pickMutedStyle.Render(meta))
	}
	if len(lines) == 0 {
		lines = append(lines, pickMutedStyle.Render("no candidates"))
	}

	hints := pickMutedStyle.Render("up/down: move | enter: download | s: skip | q: stop run | esc: skip")
	body := pickPanelStyle.Width(width).Render(strings.Join(lines, "\n"))
	view := header + body + "\n" + hints
	if m.note != "" {
		view += "\n" + statusWarnStyle.Render(m.note)
	}
	return view + "\n"
}

// queryModel asks for a custom search. Enter on an empty line searches the
// filename instead; esc cancels the item.
type queryModel struct {
	req      batch.QueryRequest
	input    textinput.Model
	decision batch.Decision
}

func newQueryModel(req batch.QueryRequest) queryModel {
	input := textinput.New()
	input.Prompt = "> "
	input.Placeholder = req.FilenameQuery
	input.CharLimit = 200
	input.Width = 60
	input.Focus()
	return queryModel{req: req, input: input, decision: batch.Decision{Kind: batch.DecisionCancel}}
}

func (m queryModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m queryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "enter":
			if q := strings.TrimSpace(m.input.Value()); q != "" {
				m.decision = batch.Decision{Kind: batch.DecisionQuery, Query: q}
			} else {
				m.decision = batch.Decision{Kind: batch.DecisionSearchFilename}
			}
			return m, tea.Quit
		case "esc", "ctrl+c":
			m.decision = batch.Decision{Kind: batch.DecisionCancel}
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m queryModel) View() string {
	header := pickTitleStyle.Render("Nothing found for "+trackName(m.req.Artist, m.req.Title)) + "\n"
	hints := pickMutedStyle.Render("type a search | enter on empty: search filename \"" + m.req.FilenameQuery + "\" | esc: give up on this track")
	return header + m.input.View() + "\n" + hints + "\n"
}

func trackName(artist, title string) string {
	artist, title = strings.TrimSpace(artist), strings.TrimSpace(title)
	switch {
	case artist == "":
		return title
	case title == "":
		return artist
	}
	return artist + " - " + title
}

package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"mvfetch/internal/batch"
)

// lineDecider asks on plain lines of text, for pipes and dumb terminals.
// End of input answers every request as closed.
type lineDecider struct {
	in  *bufio.Reader
	out io.Writer
}

func newLineDecider(in io.Reader, out io.Writer) *lineDecider {
	return &lineDecider{in: bufio.NewReader(in), out: out}
}

func (d *lineDecider) RequestSelection(ctx context.Context, req batch.SelectionRequest) (batch.Decision, error) {
	fmt.Fprintf(d.out, "Choose a video for %s\n", trackName(req.Artist, req.Title))
	if req.Unfiltered {
		fmt.Fprintln(d.out, "  (no result passed the filters; showing everything found)")
	}
	for i, c := range req.Candidates {
		fmt.Fprintf(d.out, "  %d. %s [%s, %s, %s]\n", i+1, clip(c.Title, 80), clip(c.Channel, 30), formatDuration(c.DurationSeconds), formatViews(c.ViewCount))
	}
	for {
		fmt.Fprint(d.out, "number to download, s to skip, q to stop: ")
		line, err := d.readLine(ctx)
		if err != nil {
			return batch.Decision{}, err
		}
		switch strings.ToLower(line) {
		case "", "s", "skip":
			return batch.Decision{Kind: batch.DecisionSkip}, nil
		case "q", "quit", "stop":
			return batch.Decision{Kind: batch.DecisionStop}, nil
		}
		n, err := strconv.Atoi(line)
		if err != nil || n < 1 || n > len(req.Candidates) {
			fmt.Fprintf(d.out, "enter 1-%d, s or q\n", len(req.Candidates))
			continue
		}
		c := req.Candidates[n-1]
		if !c.Selectable() {
			fmt.Fprintln(d.out, "that result has no video id")
			continue
		}
		return batch.Decision{Kind: batch.DecisionSelect, VideoID: c.ID}, nil
	}
}

func (d *lineDecider) RequestQuery(ctx context.Context, req batch.QueryRequest) (batch.Decision, error) {
	fmt.Fprintf(d.out, "Nothing found for %s\n", trackName(req.Artist, req.Title))
	fmt.Fprintf(d.out, "search for (empty: %q, - to give up): ", req.FilenameQuery)
	line, err := d.readLine(ctx)
	if err != nil {
		return batch.Decision{}, err
	}
	switch line {
	case "":
		return batch.Decision{Kind: batch.DecisionSearchFilename}, nil
	case "-":
		return batch.Decision{Kind: batch.DecisionCancel}, nil
	}
	return batch.Decision{Kind: batch.DecisionQuery, Query: line}, nil
}

// readLine returns one trimmed line. A pending read is abandoned when ctx
// ends; the reader goroutine finishes on the next line or EOF.
func (d *lineDecider) readLine(ctx context.Context) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := d.in.ReadString('\n')
		if err == io.EOF && line != "" {
			err = nil
		}
		ch <- result{line: strings.TrimSpace(line), err: err}
	}()
	select {
	case r := <-ch:
		return r.line, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

package match

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"mvfetch/internal/model"
)

// Searcher runs one free-text search and returns raw result records.
type Searcher interface {
	Search(ctx context.Context, query string, count int) ([]map[string]any, error)
}

// StepFunc observes the pipeline moving between searching and filtering.
type StepFunc func(status, detail string)

type Pipeline struct {
	search   Searcher
	selector *Selector
	opts     model.Options
	log      zerolog.Logger
}

func NewPipeline(search Searcher, selector *Selector, opts model.Options, log zerolog.Logger) *Pipeline {
	return &Pipeline{search: search, selector: selector, opts: opts, log: log}
}

func OfficialQuery(artist, title string) string {
	return PlainQuery(artist, title) + " official music video"
}

func PlainQuery(artist, title string) string {
	return strings.TrimSpace(artist) + " - " + strings.TrimSpace(title)
}

// Resolve runs the official query, the plain query, the unfiltered override
// re-search and finally the no-results escalation, stopping at the first
// attempt that selects or escalates. A transport failure stops all further
// automated attempts.
func (p *Pipeline) Resolve(ctx context.Context, artist, title string, step StepFunc) model.Outcome {
	if step == nil {
		step = func(string, string) {}
	}
	noTrust := p.opts.NoTrustMode
	found := false

	for i, query := range []string{OfficialQuery(artist, title), PlainQuery(artist, title)} {
		if i > 0 && noTrust {
			break
		}
		cands, err := p.searchOnce(ctx, query, step)
		if err != nil {
			return model.SearchFailed(err)
		}
		if len(cands) > 0 {
			found = true
		}
		step(model.StatusFiltering, fmt.Sprintf("%d candidates", len(cands)))
		out := p.selector.Select(cands, artist, title, false, noTrust)
		if out.Kind != model.OutcomeExhausted {
			return out
		}
	}
	if noTrust {
		return model.Exhausted()
	}

	if found {
		query := PlainQuery(artist, title)
		cands, err := p.searchOnce(ctx, query, step)
		if err != nil {
			return model.SearchFailed(err)
		}
		step(model.StatusFiltering, fmt.Sprintf("%d unfiltered candidates", len(cands)))
		return p.selector.Select(cands, artist, title, true, false)
	}

	p.log.Info().Str("artist", artist).Str("title", title).Msg("no search results, asking for a query")
	return model.Escalate(model.ReasonSearch, nil, artist, title)
}

// SearchQuery runs a human-provided query and returns its candidates for an
// unfiltered selection.
func (p *Pipeline) SearchQuery(ctx context.Context, query string, step StepFunc) ([]model.Candidate, error) {
	if step == nil {
		step = func(string, string) {}
	}
	return p.searchOnce(ctx, query, step)
}

func (p *Pipeline) searchOnce(ctx context.Context, query string, step StepFunc) ([]model.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrGlobalStop, err)
	}
	step(model.StatusSearching, query)
	recs, err := p.search.Search(ctx, query, p.opts.SearchResultsCount)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrGlobalStop, ctx.Err())
		}
		p.log.Warn().Err(err).Str("query", query).Msg("search failed")
		return nil, err
	}
	cands := ExtractAll(recs)
	p.log.Debug().Str("query", query).Int("results", len(cands)).Msg("search finished")
	return cands, nil
}

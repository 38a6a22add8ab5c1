package batch

import (
	"context"
)

type DecisionKind int

const (
	// DecisionSkip answers a selection with "none of these".
	DecisionSkip DecisionKind = iota
	DecisionSelect
	DecisionQuery
	DecisionSearchFilename
	// DecisionCancel answers a query request with "give up on this item".
	DecisionCancel
	// DecisionStop halts the whole run.
	DecisionStop
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionSkip:
		return "skip"
	case DecisionSelect:
		return "select"
	case DecisionQuery:
		return "query"
	case DecisionSearchFilename:
		return "search_filename"
	case DecisionCancel:
		return "cancel"
	case DecisionStop:
		return "stop"
	default:
		return "unknown"
	}
}

type Decision struct {
	RequestID int
	Kind      DecisionKind
	VideoID   string
	Query     string
}

// Decider is the human decision surface. Returning an error counts as
// closing the dialog, which is an implicit skip.
type Decider interface {
	RequestSelection(ctx context.Context, req SelectionRequest) (Decision, error)
	RequestQuery(ctx context.Context, req QueryRequest) (Decision, error)
}

// Attend is the foreground loop. It hands every event to observe in receipt
// order and answers every request exactly once. It returns when the worker
// has finished, with the fatal error reported by the worker if any.
// A pending decider call sees its context cancelled once the worker is
// stopped or exits.
func Attend(ctx context.Context, w *Worker, d Decider, observe func(Event)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.halt:
		case <-w.done:
		case <-ctx.Done():
		}
		cancel()
	}()

	var fatal error
	for ev := range w.Events() {
		if observe != nil {
			observe(ev)
		}
		switch ev.Kind {
		case EventSelectionRequest:
			dec, err := d.RequestSelection(ctx, *ev.Selection)
			if err != nil {
				dec = Decision{Kind: DecisionSkip}
			}
			answer(w, ev.RequestID, dec)
		case EventQueryRequest:
			dec, err := d.RequestQuery(ctx, *ev.Query)
			if err != nil {
				dec = Decision{Kind: DecisionCancel}
			}
			answer(w, ev.RequestID, dec)
		case EventFatal:
			if fatal == nil {
				fatal = ev.Err
			}
		}
	}
	return fatal
}

func answer(w *Worker, requestID int, dec Decision) {
	if dec.Kind == DecisionStop {
		w.Stop()
		return
	}
	dec.RequestID = requestID
	w.Answer(dec)
}

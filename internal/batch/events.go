package batch

import (
	"mvfetch/internal/model"
)

type EventKind string

const (
	EventStatus           EventKind = "status"
	EventProgress         EventKind = "progress"
	EventSelectionRequest EventKind = "selection_request"
	EventQueryRequest     EventKind = "query_request"
	EventReviewQueued     EventKind = "review_queued"
	EventFatal            EventKind = "fatal"
	EventPassComplete     EventKind = "pass_complete"
	EventReviewComplete   EventKind = "review_complete"
)

// Event flows from the background worker to the foreground. Item is a
// snapshot; the foreground must not hold on to worker-owned state.
type Event struct {
	Kind      EventKind
	RequestID int
	Index     int
	Total     int
	Item      model.WorkItem
	Detail    string
	Progress  Progress
	Selection *SelectionRequest
	Query     *QueryRequest
	QueueLen  int
	Summary   *Summary
	Err       error
}

type SelectionRequest struct {
	ItemID     string
	Artist     string
	Title      string
	Candidates []model.Candidate
	// Unfiltered marks an override request: candidates were not scored.
	Unfiltered bool
}

type QueryRequest struct {
	ItemID string
	Artist string
	Title  string
	// FilenameQuery is what "search the filename" will run.
	FilenameQuery string
}

// eventQueue is an unbounded FIFO between the worker and the foreground.
// Sends never block on a slow reader.
type eventQueue struct {
	in  chan Event
	out chan Event
}

func newEventQueue() *eventQueue {
	q := &eventQueue{
		in:  make(chan Event),
		out: make(chan Event),
	}
	go q.pump()
	return q
}

func (q *eventQueue) pump() {
	var pending []Event
	for {
		var out chan Event
		var next Event
		if len(pending) > 0 {
			out = q.out
			next = pending[0]
		}
		select {
		case ev, ok := <-q.in:
			if !ok {
				for _, ev := range pending {
					q.out <- ev
				}
				close(q.out)
				return
			}
			pending = append(pending, ev)
		case out <- next:
			pending[0] = Event{}
			pending = pending[1:]
		}
	}
}

func (q *eventQueue) send(ev Event) {
	q.in <- ev
}

func (q *eventQueue) close() {
	close(q.in)
}

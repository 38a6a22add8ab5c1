package batch

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"mvfetch/internal/model"
	"mvfetch/internal/runstore"
)

type reviewQueueFile struct {
	SchemaVersion int                 `json:"schema_version"`
	UpdatedAt     string              `json:"updated_at"`
	Entries       []model.ReviewEntry `json:"entries"`
}

// ReviewQueue holds deferred escalations in FIFO order. When path is set every
// change is written through, so a stopped run can be reviewed later.
type ReviewQueue struct {
	mu      sync.Mutex
	path    string
	entries []model.ReviewEntry
}

func NewReviewQueue(path string) *ReviewQueue {
	return &ReviewQueue{path: path}
}

// LoadReviewQueue reads a saved queue. A missing file is an empty queue.
func LoadReviewQueue(path string) (*ReviewQueue, error) {
	q := NewReviewQueue(path)
	var f reviewQueueFile
	if err := runstore.ReadJSON(path, &f); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return q, nil
		}
		return nil, fmt.Errorf("load review queue: %w", err)
	}
	q.entries = f.Entries
	return q, nil
}

func (q *ReviewQueue) Push(entry model.ReviewEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, entry)
	return q.saveLocked()
}

// Pop removes the oldest entry. The entry is removed before the caller
// processes it.
func (q *ReviewQueue) Pop() (model.ReviewEntry, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return model.ReviewEntry{}, false, nil
	}
	entry := q.entries[0]
	q.entries[0] = model.ReviewEntry{}
	q.entries = q.entries[1:]
	return entry, true, q.saveLocked()
}

func (q *ReviewQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *ReviewQueue) Entries() []model.ReviewEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]model.ReviewEntry, len(q.entries))
	copy(out, q.entries)
	return out
}

func (q *ReviewQueue) saveLocked() error {
	if q.path == "" {
		return nil
	}
	entries := q.entries
	if entries == nil {
		entries = []model.ReviewEntry{}
	}
	return runstore.WriteJSON(q.path, reviewQueueFile{
		SchemaVersion: 1,
		UpdatedAt:     time.Now().UTC().Format(time.RFC3339),
		Entries:       entries,
	})
}

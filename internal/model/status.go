package model

import "fmt"

const (
	StatusQueued         = "queued"
	StatusProcessing     = "processing"
	StatusSearching      = "searching"
	StatusFiltering      = "filtering"
	StatusDownloading    = "downloading"
	StatusComplete       = "complete"
	StatusFailedMetadata = "failed_metadata"
	StatusFailedSearch   = "failed_search"
	StatusFailedFilter   = "failed_filter"
	StatusFailedDownload = "failed_download"
	StatusExhausted      = "exhausted"
	StatusError          = "error"
	StatusSkippedManual  = "skipped_manual"
	StatusExists         = "exists"
	StatusNeedsReview    = "needs_review"
	StatusReviewing      = "reviewing"
)

// resolving states may fall out to any of these once an item is being worked.
var resolvingExits = []string{
	StatusFailedSearch,
	StatusFailedFilter,
	StatusExhausted,
	StatusError,
	StatusSkippedManual,
	StatusNeedsReview,
}

var allowedTransitions = map[string]map[string]bool{
	"": {
		StatusQueued: true,
	},
	StatusQueued: {
		StatusQueued:     true,
		StatusProcessing: true,
	},
	StatusProcessing: {
		StatusFailedMetadata: true,
		StatusExists:         true,
		StatusSearching:      true,
		StatusError:          true,
		StatusSkippedManual:  true,
	},
	StatusSearching: withExits(StatusSearching, StatusFiltering, StatusDownloading),
	StatusFiltering: withExits(StatusFiltering, StatusSearching, StatusDownloading),
	StatusDownloading: {
		StatusComplete:       true,
		StatusFailedDownload: true,
		StatusSkippedManual:  true,
		StatusError:          true,
	},
	StatusNeedsReview: {
		StatusNeedsReview:   true,
		StatusReviewing:     true,
		StatusSkippedManual: true,
	},
	StatusReviewing: withExits(StatusSearching, StatusFiltering, StatusDownloading),
	StatusComplete:       {},
	StatusFailedMetadata: {},
	StatusFailedSearch:   {},
	StatusFailedFilter:   {},
	StatusFailedDownload: {},
	StatusExhausted:      {},
	StatusError:          {},
	StatusSkippedManual:  {},
	StatusExists:         {},
}

func withExits(extra ...string) map[string]bool {
	out := make(map[string]bool, len(resolvingExits)+len(extra))
	for _, s := range resolvingExits {
		out[s] = true
	}
	for _, s := range extra {
		out[s] = true
	}
	return out
}

// IsTerminal reports whether an item in this status will not be touched again
// within the run. needs_review is not terminal: the review phase revisits it.
func IsTerminal(status string) bool {
	next, ok := allowedTransitions[status]
	return ok && status != "" && len(next) == 0
}

func CanTransition(from, to string) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

func TransitionItemStatus(item *WorkItem, toStatus string, reason string) error {
	from := item.Status
	if !CanTransition(from, toStatus) {
		return fmt.Errorf("invalid item status transition: %q -> %q (item=%s)", from, toStatus, item.ID)
	}
	item.Status = toStatus
	item.Reason = reason
	return nil
}

package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mvfetch/internal/library"
	"mvfetch/internal/match"
	"mvfetch/internal/model"
	"mvfetch/internal/runstore"
	"mvfetch/internal/ytdlp"
)

type Downloader interface {
	Download(ctx context.Context, req ytdlp.DownloadRequest) (string, error)
}

// MetadataFunc reads artist and title for one source file.
type MetadataFunc func(path string) (artist, title string, err error)

// Recorder keeps a history of finished items outside the run directory.
type Recorder interface {
	Record(ctx context.Context, runID string, item model.WorkItem) error
}

type Config struct {
	RunID      string
	RunDir     string
	Options    model.Options
	Searcher   match.Searcher
	Downloader Downloader
	Selector   *match.Selector
	Metadata   MetadataFunc
	Recorder   Recorder
	// Queue defaults to an empty queue persisted in the run directory.
	Queue *ReviewQueue
	Log   zerolog.Logger
}

// Plan says what a worker should do once started.
type Plan struct {
	Items []model.WorkItem
	// SkipBatch goes straight to the review phase, for a saved run.
	SkipBatch bool
	Review    bool
}

// Worker processes items on one background goroutine. All item state is
// owned by that goroutine; the foreground sees snapshots through Events and
// talks back only through Answer and Stop.
type Worker struct {
	cfg      Config
	opts     model.Options
	pipeline *match.Pipeline
	metadata MetadataFunc
	queue    *ReviewQueue
	log      zerolog.Logger

	events    *eventQueue
	decisions chan Decision
	done      chan struct{}
	halt      chan struct{}
	haltOnce  sync.Once

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
	stopped bool

	items   []model.WorkItem
	byID    map[string]int
	nextReq int
	stepErr error
	fatal   bool
	summary Summary
}

func NewWorker(cfg Config) (*Worker, error) {
	if err := cfg.Options.Validate(); err != nil {
		return nil, err
	}
	if cfg.Searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if cfg.Downloader == nil {
		return nil, fmt.Errorf("downloader is required")
	}
	if cfg.Selector == nil {
		cfg.Selector = match.NewSelector(match.DefaultKeywords(), cfg.Log)
	}
	if cfg.Metadata == nil {
		cfg.Metadata = library.ReadMetadata
	}
	if cfg.Queue == nil {
		path := ""
		if cfg.RunDir != "" {
			path = runstore.ReviewQueuePath(cfg.RunDir)
		}
		cfg.Queue = NewReviewQueue(path)
	}
	if cfg.RunID == "" && cfg.RunDir != "" {
		cfg.RunID = filepath.Base(cfg.RunDir)
	}
	return &Worker{
		cfg:       cfg,
		opts:      cfg.Options,
		pipeline:  match.NewPipeline(cfg.Searcher, cfg.Selector, cfg.Options, cfg.Log),
		metadata:  cfg.Metadata,
		queue:     cfg.Queue,
		log:       cfg.Log,
		events:    newEventQueue(),
		decisions: make(chan Decision, 1),
		done:      make(chan struct{}),
		halt:      make(chan struct{}),
	}, nil
}

// Start launches the worker goroutine. Events is closed once the plan has
// run to completion or been stopped.
func (w *Worker) Start(ctx context.Context, plan Plan) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return fmt.Errorf("worker already started")
	}
	w.started = true
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	if w.stopped {
		cancel()
	}
	w.mu.Unlock()

	w.items = append([]model.WorkItem(nil), plan.Items...)
	w.byID = make(map[string]int, len(w.items))
	for i := range w.items {
		w.byID[w.items[i].ID] = i
	}

	go func() {
		defer close(w.done)
		defer w.events.close()
		defer cancel()
		if !plan.SkipBatch {
			w.runPass(ctx)
		}
		if plan.Review && ctx.Err() == nil && !w.fatal {
			w.runReview(ctx)
		}
		w.summary = w.summarize(ctx)
	}()
	return nil
}

func (w *Worker) Events() <-chan Event {
	return w.events.out
}

// Answer delivers the foreground's decision for an outstanding request.
func (w *Worker) Answer(d Decision) {
	select {
	case w.decisions <- d:
	case <-w.done:
	}
}

// Stop halts the run: the current item ends as skipped, remaining items are
// left queued. Safe to call from any goroutine, any number of times.
func (w *Worker) Stop() {
	w.mu.Lock()
	w.stopped = true
	if w.cancel != nil {
		w.cancel()
	}
	w.mu.Unlock()
	w.haltOnce.Do(func() { close(w.halt) })
	select {
	case w.decisions <- Decision{Kind: DecisionStop}:
	default:
	}
}

func (w *Worker) Stopped() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopped
}

// Wait blocks until the worker goroutine exits and returns the final summary.
func (w *Worker) Wait() Summary {
	<-w.done
	return w.summary
}

// Items returns the final item states. Valid only after Wait.
func (w *Worker) Items() []model.WorkItem {
	<-w.done
	return append([]model.WorkItem(nil), w.items...)
}

func (w *Worker) Queue() *ReviewQueue {
	return w.queue
}

func (w *Worker) runPass(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.reportFatal(fmt.Errorf("batch worker panic: %v", r))
		}
		s := w.summarize(ctx)
		w.emit(Event{Kind: EventPassComplete, Total: len(w.items), Summary: &s, QueueLen: w.queue.Len()})
	}()

	if err := runstore.Mkdir(w.opts.OutputDir); err != nil {
		w.reportFatal(err)
		return
	}
	for i := range w.items {
		if w.items[i].Status == "" {
			if err := model.TransitionItemStatus(&w.items[i], model.StatusQueued, ""); err != nil {
				w.reportFatal(err)
				return
			}
		}
	}
	if err := w.persist(); err != nil {
		w.reportFatal(err)
		return
	}

	for i := range w.items {
		if ctx.Err() != nil {
			w.log.Info().Int("remaining", len(w.items)-i).Msg("batch stopped")
			return
		}
		if w.items[i].Status != model.StatusQueued {
			continue
		}
		delay, err := w.processItem(ctx, &w.items[i])
		if err != nil {
			w.reportFatal(err)
			return
		}
		if delay && i < len(w.items)-1 {
			w.politeDelay(ctx)
		}
	}
}

func (w *Worker) runReview(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.reportFatal(fmt.Errorf("review worker panic: %v", r))
		}
		s := w.summarize(ctx)
		w.emit(Event{Kind: EventReviewComplete, Total: len(w.items), Summary: &s, QueueLen: w.queue.Len()})
	}()

	if err := runstore.Mkdir(w.opts.OutputDir); err != nil {
		w.reportFatal(err)
		return
	}
	for w.queue.Len() > 0 {
		if ctx.Err() != nil {
			w.log.Info().Int("remaining", w.queue.Len()).Msg("review stopped")
			return
		}
		entry, ok, err := w.queue.Pop()
		if err != nil {
			w.reportFatal(fmt.Errorf("persist review queue: %w", err))
			return
		}
		if !ok {
			return
		}
		idx, found := w.byID[entry.ItemID]
		if !found {
			w.log.Warn().Str("item", entry.ItemID).Msg("review entry for unknown item, dropping")
			continue
		}
		item := &w.items[idx]
		if item.Status != model.StatusNeedsReview {
			w.log.Warn().Str("item", item.ID).Str("status", item.Status).Msg("review entry for item not awaiting review, dropping")
			continue
		}
		if err := w.transition(item, model.StatusReviewing, string(entry.Outcome.Reason), ""); err != nil {
			w.reportFatal(err)
			return
		}
		delay, err := w.escalate(ctx, item, entry.Outcome)
		if err != nil {
			w.reportFatal(err)
			return
		}
		if delay && w.queue.Len() > 0 {
			w.politeDelay(ctx)
		}
	}
}

// processItem runs one item from queued to a resolution. The bool reports
// whether the item touched the network enough to warrant the polite delay.
// A returned error is fatal for the run.
func (w *Worker) processItem(ctx context.Context, item *model.WorkItem) (bool, error) {
	item.Attempts++
	if err := w.transition(item, model.StatusProcessing, "", ""); err != nil {
		return false, err
	}

	artist, title, err := w.metadata(item.ID)
	if err != nil {
		item.LastError = err.Error()
		return false, w.transition(item, model.StatusFailedMetadata, "no_metadata", "")
	}
	item.Artist, item.Title = artist, title

	if !w.opts.OverrideExisting {
		dirs := []string{filepath.Dir(item.ID), w.opts.OutputDir}
		if path, ok := library.FindExisting(dirs, library.FileBase(artist, title)); ok {
			item.OutputPath = path
			return false, w.transition(item, model.StatusExists, "", path)
		}
	}

	out := w.pipeline.Resolve(ctx, artist, title, w.stepper(item))
	if err := w.takeStepErr(); err != nil {
		return false, err
	}
	return w.apply(ctx, item, out)
}

func (w *Worker) apply(ctx context.Context, item *model.WorkItem, out model.Outcome) (bool, error) {
	if err := out.Validate(); err != nil {
		return false, err
	}
	switch out.Kind {
	case model.OutcomeSelected:
		return w.download(ctx, item, out.VideoID)
	case model.OutcomeExhausted:
		return w.fail(item, model.ErrNoCandidates, "")
	case model.OutcomeSearchFailed:
		if out.Err == nil {
			return w.fail(item, model.ErrSearchTransport, "")
		}
		return w.fail(item, out.Err, "")
	case model.OutcomeNeedsEscalation:
		if !w.opts.Interactive {
			return false, w.deferReview(item, out)
		}
		return w.escalate(ctx, item, out)
	}
	return false, fmt.Errorf("unhandled outcome kind %q", out.Kind)
}

func (w *Worker) deferReview(item *model.WorkItem, out model.Outcome) error {
	if err := w.transition(item, model.StatusNeedsReview, string(out.Reason), ""); err != nil {
		return err
	}
	if err := w.queue.Push(model.NewReviewEntry(*item, out)); err != nil {
		return fmt.Errorf("persist review queue: %w", err)
	}
	w.emit(Event{Kind: EventReviewQueued, Index: item.Index, Total: len(w.items), Item: *item, QueueLen: w.queue.Len()})
	return nil
}

// escalate resolves an escalation with the human, both inline during the
// batch pass and from the review queue.
func (w *Worker) escalate(ctx context.Context, item *model.WorkItem, out model.Outcome) (bool, error) {
	cands := out.Candidates
	reason := out.Reason
	for {
		if reason == model.ReasonSelect || reason == model.ReasonOverride {
			dec, err := w.ask(ctx, Event{
				Kind: EventSelectionRequest,
				Selection: &SelectionRequest{
					ItemID:     item.ID,
					Artist:     item.Artist,
					Title:      item.Title,
					Candidates: cands,
					Unfiltered: reason == model.ReasonOverride,
				},
			}, item)
			if err != nil {
				return w.fail(item, err, "")
			}
			if dec.Kind != DecisionSelect {
				return w.fail(item, model.ErrUserSkip, "")
			}
			if !offered(cands, dec.VideoID) {
				item.LastError = fmt.Sprintf("video %q was not among the offered candidates", dec.VideoID)
				return true, w.transition(item, model.StatusFailedFilter, "unknown_candidate", "")
			}
			return w.download(ctx, item, dec.VideoID)
		}

		stem := filenameQuery(item.ID)
		dec, err := w.ask(ctx, Event{
			Kind: EventQueryRequest,
			Query: &QueryRequest{
				ItemID:        item.ID,
				Artist:        item.Artist,
				Title:         item.Title,
				FilenameQuery: stem,
			},
		}, item)
		if err != nil {
			return w.fail(item, err, "")
		}
		query := ""
		switch dec.Kind {
		case DecisionQuery:
			query = strings.TrimSpace(dec.Query)
		case DecisionSearchFilename:
			query = stem
		}
		if query == "" {
			return w.fail(item, model.ErrUserCancel, "")
		}

		found, err := w.pipeline.SearchQuery(ctx, query, w.stepper(item))
		if stepErr := w.takeStepErr(); stepErr != nil {
			return false, stepErr
		}
		if err != nil {
			return w.fail(item, err, "")
		}
		if len(found) == 0 {
			return w.fail(item, fmt.Errorf("%w for %q", model.ErrNoCandidates, query), query)
		}
		if err := w.transition(item, model.StatusFiltering, "", fmt.Sprintf("%d candidates", len(found))); err != nil {
			return false, err
		}
		cands, reason = found, model.ReasonOverride
	}
}

// fail ends an item that did not reach a download. The error kind picks the
// status and reason; the message is kept as the item's last error.
func (w *Worker) fail(item *model.WorkItem, err error, detail string) (bool, error) {
	item.LastError = truncate(err.Error(), 1200)
	switch {
	case errors.Is(err, model.ErrGlobalStop):
		return false, w.transition(item, model.StatusSkippedManual, "stopped", detail)
	case errors.Is(err, model.ErrUserSkip):
		return false, w.transition(item, model.StatusSkippedManual, "user_skip", detail)
	case errors.Is(err, model.ErrUserCancel):
		return false, w.transition(item, model.StatusSkippedManual, "user_cancel", detail)
	case errors.Is(err, model.ErrNoCandidates):
		return true, w.transition(item, model.StatusExhausted, "no_candidates", detail)
	case errors.Is(err, model.ErrSearchTimeout):
		return true, w.transition(item, model.StatusFailedSearch, "search_timeout", detail)
	case errors.Is(err, model.ErrSearchRateLimited):
		return true, w.transition(item, model.StatusError, "rate_limited", detail)
	default:
		return true, w.transition(item, model.StatusError, "search_error", detail)
	}
}

func (w *Worker) download(ctx context.Context, item *model.WorkItem, videoID string) (bool, error) {
	item.VideoID = videoID
	if err := w.transition(item, model.StatusDownloading, "", videoID); err != nil {
		return false, err
	}

	logFile := w.openItemLog(item)
	if logFile != nil {
		defer func() {
			_ = logFile.Close()
		}()
	}
	snapshot := *item
	total := len(w.items)
	tracker := newProgressTracker()
	req := ytdlp.DownloadRequest{
		VideoID:   videoID,
		FileBase:  library.FileBase(item.Artist, item.Title),
		OutputDir: w.opts.OutputDir,
		Format:    w.opts.QualityFormat,
		Progress: func(stream ytdlp.OutputStream, line string) {
			if p, changed := tracker.Handle(stream, line); changed {
				w.emit(Event{Kind: EventProgress, Index: snapshot.Index, Total: total, Item: snapshot, Progress: p})
			}
		},
	}
	if logFile != nil {
		req.LogWriter = logFile
	}

	path, err := w.cfg.Downloader.Download(ctx, req)
	if err != nil {
		item.LastError = truncate(err.Error(), 1200)
		switch {
		case errors.Is(err, model.ErrGlobalStop) || ctx.Err() != nil:
			return false, w.transition(item, model.StatusSkippedManual, "stopped", "")
		case errors.Is(err, model.ErrDownloadTimeout):
			return true, w.transition(item, model.StatusFailedDownload, "download_timeout", "")
		default:
			return true, w.transition(item, model.StatusFailedDownload, "download_error", "")
		}
	}
	item.OutputPath = path
	item.LastError = ""
	return true, w.transition(item, model.StatusComplete, "", path)
}

// ask emits a request and blocks until the matching answer, a stop or
// cancellation of ctx.
func (w *Worker) ask(ctx context.Context, ev Event, item *model.WorkItem) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, fmt.Errorf("%w: %v", model.ErrGlobalStop, err)
	}
	w.nextReq++
	id := w.nextReq
	ev.RequestID = id
	ev.Index = item.Index
	ev.Total = len(w.items)
	ev.Item = *item
	w.emit(ev)

	for {
		select {
		case d := <-w.decisions:
			if d.Kind == DecisionStop {
				return Decision{}, model.ErrGlobalStop
			}
			if d.RequestID != id {
				w.log.Debug().Int("want", id).Int("got", d.RequestID).Msg("dropping stale decision")
				continue
			}
			return d, nil
		case <-ctx.Done():
			return Decision{}, fmt.Errorf("%w: %v", model.ErrGlobalStop, ctx.Err())
		}
	}
}

func (w *Worker) stepper(item *model.WorkItem) match.StepFunc {
	return func(status, detail string) {
		if w.stepErr != nil {
			return
		}
		w.stepErr = w.transition(item, status, "", detail)
	}
}

func (w *Worker) takeStepErr() error {
	err := w.stepErr
	w.stepErr = nil
	return err
}

// transition moves an item, persists the manifest and tells the foreground.
func (w *Worker) transition(item *model.WorkItem, to, reason, detail string) error {
	if err := model.TransitionItemStatus(item, to, reason); err != nil {
		return err
	}
	item.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	if err := w.persist(); err != nil {
		return fmt.Errorf("persist items manifest: %w", err)
	}

	ev := w.log.Debug()
	if model.IsTerminal(to) || to == model.StatusNeedsReview {
		ev = w.log.Info()
	}
	ev.Int("index", item.Index).Str("item", item.ID).Str("status", to).Str("reason", reason).Msg("item status")

	w.emit(Event{Kind: EventStatus, Index: item.Index, Total: len(w.items), Item: *item, Detail: detail})
	if model.IsTerminal(to) {
		w.record(*item)
	}
	return nil
}

func (w *Worker) record(item model.WorkItem) {
	if w.cfg.Recorder == nil {
		return
	}
	if err := w.cfg.Recorder.Record(context.Background(), w.cfg.RunID, item); err != nil {
		w.log.Warn().Err(err).Str("item", item.ID).Msg("history record failed")
	}
}

func (w *Worker) persist() error {
	if w.cfg.RunDir == "" {
		return nil
	}
	return runstore.WriteJSON(runstore.ItemsPath(w.cfg.RunDir), model.ItemsManifest{
		SchemaVersion: 1,
		GeneratedAt:   time.Now().UTC().Format(time.RFC3339),
		RunID:         w.cfg.RunID,
		LibraryDir:    w.opts.LibraryDir,
		OutputDir:     w.opts.OutputDir,
		Total:         len(w.items),
		Counts:        CountStatuses(w.items),
		Items:         w.items,
	})
}

func (w *Worker) openItemLog(item *model.WorkItem) io.WriteCloser {
	if w.cfg.RunDir == "" {
		return nil
	}
	dir := runstore.LogsDir(w.cfg.RunDir)
	if err := runstore.Mkdir(dir); err != nil {
		w.log.Warn().Err(err).Msg("create logs dir")
		return nil
	}
	name := fmt.Sprintf("%04d_%s.log", item.Index, library.SanitizeFilename(library.FileBase(item.Artist, item.Title)))
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		w.log.Warn().Err(err).Str("item", item.ID).Msg("create item log")
		return nil
	}
	return f
}

func (w *Worker) politeDelay(ctx context.Context) {
	if w.opts.DownloadDelay <= 0 {
		return
	}
	t := time.NewTimer(w.opts.DownloadDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (w *Worker) reportFatal(err error) {
	if w.fatal {
		w.log.Error().Err(err).Msg("additional worker failure")
		return
	}
	w.fatal = true
	w.log.Error().Err(err).Msg("worker failed")
	w.emit(Event{Kind: EventFatal, Err: err})
}

func (w *Worker) emit(ev Event) {
	w.events.send(ev)
}

func (w *Worker) summarize(ctx context.Context) Summary {
	return Summarize(w.cfg.RunID, w.items, w.queue.Len(), w.Stopped() || ctx.Err() != nil)
}

func offered(cands []model.Candidate, id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	for _, c := range cands {
		if c.ID == id {
			return true
		}
	}
	return false
}

func filenameQuery(path string) string {
	base := filepath.Base(path)
	return strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mvfetch/internal/batch"
	"mvfetch/internal/catalog"
	"mvfetch/internal/config"
	"mvfetch/internal/library"
	"mvfetch/internal/match"
	"mvfetch/internal/model"
	"mvfetch/internal/runstore"
	"mvfetch/internal/ytdlp"
)

func runRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	common := addCommonFlags(fs)
	rf := addRunFlags(fs)
	review := fs.Bool("review", true, "after a deferred pass, review the queued items")
	limit := fs.Int("limit", 0, "process at most this many files (0 = all)")
	noHistory := fs.Bool("no-history", false, "do not record outcomes in the history database")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	if fs.NArg() > 0 {
		cfg.MusicLibrary = fs.Arg(0)
	}
	rf.apply(fs, &cfg)
	opts, err := cfg.ToOptions()
	if err != nil {
		return err
	}
	// Item ids are source paths; keep them stable across working directories.
	opts.LibraryDir = absPath(opts.LibraryDir)
	opts.OutputDir = absPath(opts.OutputDir)
	log, closeLog, err := common.logger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	if err := ytdlp.CheckDependencies(cfg.YTDLPPath); err != nil {
		return err
	}
	files, err := library.Scan(opts.LibraryDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no audio files found in %s", opts.LibraryDir)
	}
	if *limit > 0 && len(files) > *limit {
		files = files[:*limit]
	}

	if err := runstore.Mkdir(cfg.RunsDir); err != nil {
		return err
	}
	now := time.Now().UTC()
	runID := runstore.NewRunID(now, filepath.Base(opts.LibraryDir))
	runDir, err := runstore.CreateRunDir(cfg.RunsDir, runID)
	if err != nil {
		return err
	}
	lock, err := runstore.AcquireRunLock(runDir, "run")
	if err != nil {
		return err
	}
	defer lock.Release()

	meta := runstore.RunMeta{
		RunID:       runID,
		CreatedAt:   now.Format(time.RFC3339),
		LibraryDir:  opts.LibraryDir,
		OutputDir:   opts.OutputDir,
		Phase:       runstore.PhaseBatch,
		Interactive: opts.Interactive,
		NoTrust:     opts.NoTrustMode,
		Total:       len(files),
	}
	if err := runstore.SaveRunMeta(runDir, meta); err != nil {
		return err
	}

	items := make([]model.WorkItem, len(files))
	for i, path := range files {
		items[i] = model.WorkItem{ID: path, Index: i + 1}
	}

	s := session{
		cfg:       cfg,
		opts:      opts,
		runDir:    runDir,
		meta:      meta,
		log:       log,
		noHistory: *noHistory,
		jsonOut:   *common.jsonOut,
		stdin:     os.Stdin,
		stdout:    os.Stdout,
	}
	if !*common.jsonOut {
		fmt.Fprintf(s.stdout, "run: %s (%d files)\n", runID, len(files))
	}
	return s.execute(batch.Plan{Items: items, Review: !opts.Interactive && *review})
}

// session is one worker run attached to the terminal.
type session struct {
	cfg       config.Config
	opts      model.Options
	runDir    string
	meta      runstore.RunMeta
	log       zerolog.Logger
	noHistory bool
	jsonOut   bool
	queue     *batch.ReviewQueue
	stdin     *os.File
	stdout    io.Writer

	// decider replaces the terminal decider when set.
	decider batch.Decider
}

func (s session) execute(plan batch.Plan) error {
	client := ytdlp.NewClient(ytdlp.Config{
		Binary:            s.cfg.YTDLPPath,
		SearchTimeout:     s.opts.SearchTimeout,
		DownloadTimeout:   s.opts.DownloadTimeout,
		SearchesPerMinute: s.cfg.SearchRatePerMinute,
		Log:               s.log,
	})

	var recorder batch.Recorder
	if !s.noHistory && strings.TrimSpace(s.cfg.CatalogPath) != "" {
		cat, err := catalog.Open(s.cfg.CatalogPath)
		if err != nil {
			s.log.Warn().Err(err).Str("path", s.cfg.CatalogPath).Msg("history disabled for this run")
		} else {
			defer cat.Close()
			recorder = cat
		}
	}

	w, err := batch.NewWorker(batch.Config{
		RunID:      s.meta.RunID,
		RunDir:     s.runDir,
		Options:    s.opts,
		Searcher:   client,
		Downloader: client,
		Selector:   match.NewSelector(s.cfg.SelectorKeywords(), s.log),
		Recorder:   recorder,
		Queue:      s.queue,
		Log:        s.log,
	})
	if err != nil {
		return err
	}

	decider := s.decider
	if decider == nil {
		decider = newTerminalDecider(s.stdin, s.stdout)
	}
	rep := newReporter(s.stdout, !s.jsonOut && stdoutIsTTY(), s.jsonOut)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopSignals := stopOnInterrupt(w, s.stdout, s.jsonOut)
	defer stopSignals()

	if err := w.Start(ctx, plan); err != nil {
		return err
	}
	fatal := batch.Attend(ctx, w, decider, rep.Observe)
	summary := w.Wait()

	s.meta.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	s.meta.ReviewQueue = summary.ReviewQueue
	s.meta.Phase = runstore.PhaseDone
	if summary.ReviewQueue > 0 {
		s.meta.Phase = runstore.PhaseReview
	}
	if err := runstore.SaveRunMeta(s.runDir, s.meta); err != nil {
		s.log.Warn().Err(err).Msg("save run metadata")
	}

	if s.jsonOut {
		if err := printJSON(summary); err != nil {
			return err
		}
	} else {
		rep.PrintSummary(summary, s.runDir)
	}
	if fatal != nil {
		return fmt.Errorf("run aborted: %w", fatal)
	}
	return nil
}

// stopOnInterrupt turns the first SIGINT into a global stop. A second one
// falls through to the default handler.
func stopOnInterrupt(w *batch.Worker, out io.Writer, quiet bool) func() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	done := make(chan struct{})
	go func() {
		select {
		case <-sig:
			if !quiet {
				fmt.Fprintln(out, "\nstopping after the current item (press ^C again to abort)")
			}
			w.Stop()
			signal.Reset(os.Interrupt)
		case <-done:
		}
	}()
	return func() {
		close(done)
		signal.Stop(sig)
	}
}

func runReview(args []string) error {
	fs := flag.NewFlagSet("review", flag.ContinueOnError)
	common := addCommonFlags(fs)
	runsDir := fs.String("runs-dir", "", "runs directory")
	runID := fs.String("run-id", "", "run id (default: latest run)")
	runDir := fs.String("run-dir", "", "explicit run directory")
	noHistory := fs.Bool("no-history", false, "do not record outcomes in the history database")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	if strings.TrimSpace(*runsDir) != "" {
		cfg.RunsDir = strings.TrimSpace(*runsDir)
	}
	dir, err := runstore.ResolveRunDir(cfg.RunsDir, *runID, *runDir)
	if err != nil {
		return err
	}
	lock, err := runstore.AcquireRunLock(dir, "review")
	if err != nil {
		return err
	}
	defer lock.Release()

	var manifest model.ItemsManifest
	if err := runstore.ReadJSON(runstore.ItemsPath(dir), &manifest); err != nil {
		return err
	}
	queue, err := batch.LoadReviewQueue(runstore.ReviewQueuePath(dir))
	if err != nil {
		return err
	}
	meta, err := runstore.LoadRunMeta(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		meta = runstore.RunMeta{RunID: filepath.Base(dir), LibraryDir: manifest.LibraryDir, OutputDir: manifest.OutputDir}
	}
	if queue.Len() == 0 {
		if *common.jsonOut {
			return printJSON(batch.Summarize(meta.RunID, manifest.Items, 0, false))
		}
		fmt.Printf("nothing to review in %s\n", dir)
		return nil
	}

	// The run's own directories win over the current config.
	if manifest.LibraryDir != "" {
		cfg.MusicLibrary = manifest.LibraryDir
	}
	if manifest.OutputDir != "" {
		cfg.OutputDir = manifest.OutputDir
	}
	cfg.NoTrust = meta.NoTrust
	cfg.Interactive = true
	opts, err := cfg.ToOptions()
	if err != nil {
		return err
	}
	log, closeLog, err := common.logger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()
	if err := ytdlp.CheckDependencies(cfg.YTDLPPath); err != nil {
		return err
	}

	if meta.RunID == "" {
		meta.RunID = filepath.Base(dir)
	}
	meta.Phase = runstore.PhaseReview
	if !*common.jsonOut {
		fmt.Printf("review: %s (%d queued)\n", meta.RunID, queue.Len())
	}
	s := session{
		cfg:       cfg,
		opts:      opts,
		runDir:    dir,
		meta:      meta,
		log:       log,
		noHistory: *noHistory,
		jsonOut:   *common.jsonOut,
		queue:     queue,
		stdin:     os.Stdin,
		stdout:    os.Stdout,
	}
	return s.execute(batch.Plan{Items: manifest.Items, SkipBatch: true, Review: true})
}

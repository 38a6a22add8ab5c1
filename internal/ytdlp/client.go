package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"mvfetch/internal/library"
	"mvfetch/internal/model"
)

const (
	DefaultBinary          = "yt-dlp"
	DefaultSearchTimeout   = 60 * time.Second
	DefaultDownloadTimeout = 600 * time.Second
	DefaultVerifyAttempts  = 5
	DefaultVerifyBackoff   = 300 * time.Millisecond

	searchMatchFilter = "!is_live & duration > 60 & duration < 1200"
)

type OutputStream string

const (
	StreamStdout OutputStream = "stdout"
	StreamStderr OutputStream = "stderr"
)

type Config struct {
	Binary          string
	SearchTimeout   time.Duration
	DownloadTimeout time.Duration
	// SearchesPerMinute throttles search calls; 0 disables throttling.
	SearchesPerMinute float64
	VerifyAttempts    int
	VerifyBackoff     time.Duration
	Log               zerolog.Logger
}

// Client wraps the yt-dlp binary for searching and downloading.
type Client struct {
	binary          string
	searchTimeout   time.Duration
	downloadTimeout time.Duration
	limiter         *rate.Limiter
	verifyAttempts  int
	verifyBackoff   time.Duration
	log             zerolog.Logger
}

func NewClient(cfg Config) *Client {
	c := &Client{
		binary:          strings.TrimSpace(cfg.Binary),
		searchTimeout:   cfg.SearchTimeout,
		downloadTimeout: cfg.DownloadTimeout,
		verifyAttempts:  cfg.VerifyAttempts,
		verifyBackoff:   cfg.VerifyBackoff,
		log:             cfg.Log,
	}
	if c.binary == "" {
		c.binary = DefaultBinary
	}
	if c.searchTimeout <= 0 {
		c.searchTimeout = DefaultSearchTimeout
	}
	if c.downloadTimeout <= 0 {
		c.downloadTimeout = DefaultDownloadTimeout
	}
	if c.verifyAttempts <= 0 {
		c.verifyAttempts = DefaultVerifyAttempts
	}
	if c.verifyBackoff <= 0 {
		c.verifyBackoff = DefaultVerifyBackoff
	}
	if cfg.SearchesPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.SearchesPerMinute/60), 1)
	}
	return c
}

func (c *Client) Binary() string {
	return c.binary
}

type DownloadRequest struct {
	VideoID   string
	FileBase  string
	OutputDir string
	Format    string
	LogWriter io.Writer
	Progress  func(stream OutputStream, line string)
}

type DependencyReport struct {
	YTDLPFound  bool   `json:"yt_dlp_found"`
	YTDLPPath   string `json:"yt_dlp_path,omitempty"`
	FFmpegFound bool   `json:"ffmpeg_found"`
	FFmpegPath  string `json:"ffmpeg_path,omitempty"`
}

func DependencyStatus(binary string) DependencyReport {
	if strings.TrimSpace(binary) == "" {
		binary = DefaultBinary
	}
	report := DependencyReport{}
	if path, err := exec.LookPath(binary); err == nil {
		report.YTDLPFound = true
		report.YTDLPPath = path
	}
	if path, err := exec.LookPath("ffmpeg"); err == nil {
		report.FFmpegFound = true
		report.FFmpegPath = path
	}
	return report
}

// CheckDependencies fails when yt-dlp cannot be found. ffmpeg is only
// needed to merge split formats, so doctor reports it without failing here.
func CheckDependencies(binary string) error {
	report := DependencyStatus(binary)
	if !report.YTDLPFound {
		return fmt.Errorf("missing dependency: %s is not installed or not on PATH", binaryOrDefault(binary))
	}
	return nil
}

// Search returns up to count raw result records for query.
func (c *Client) Search(ctx context.Context, query string, count int) ([]map[string]any, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", model.ErrSearchTransport)
	}
	if count < 1 {
		count = 1
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrGlobalStop, err)
		}
	}

	args := []string{
		"--dump-json",
		"--no-playlist",
		"--match-filter", searchMatchFilter,
		"--ignore-errors",
		"--no-warnings",
		"--extractor-args", "youtube:player_client=web",
		fmt.Sprintf("ytsearch%d:%s", count, query),
	}

	runCtx, cancel := context.WithTimeout(ctx, c.searchTimeout)
	defer cancel()
	cmd := exec.CommandContext(runCtx, c.binary, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 2 * time.Second

	c.log.Debug().Str("query", query).Int("count", count).Msg("yt-dlp search")
	if err := cmd.Run(); err != nil {
		switch {
		case ctx.Err() != nil:
			return nil, fmt.Errorf("%w: %v", model.ErrGlobalStop, ctx.Err())
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			return nil, fmt.Errorf("%w after %s: %q", model.ErrSearchTimeout, c.searchTimeout, query)
		}
		msg := strings.TrimSpace(stderr.String())
		if isRateLimited(msg) {
			c.log.Warn().Str("query", query).Str("stderr", truncate(msg, 400)).Msg("search rate limited")
			return nil, fmt.Errorf("%w: %s", model.ErrSearchRateLimited, truncate(msg, 1200))
		}
		return nil, fmt.Errorf("%w: yt-dlp failed: %v: %s", model.ErrSearchTransport, err, truncate(msg, 1200))
	}
	return c.parseRecords(stdout.Bytes(), query), nil
}

func (c *Client) parseRecords(out []byte, query string) []map[string]any {
	records := make([]map[string]any, 0, 8)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal(raw, &rec); err != nil {
			c.log.Warn().Err(err).Str("query", query).Int("line", line).Msg("skipping malformed search record")
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		c.log.Warn().Err(err).Str("query", query).Msg("search output truncated")
	}
	return records
}

// Download fetches one video and returns the path of the file it produced.
func (c *Client) Download(ctx context.Context, req DownloadRequest) (string, error) {
	if strings.TrimSpace(req.VideoID) == "" {
		return "", fmt.Errorf("%w: video id is required", model.ErrDownloadFailed)
	}
	if strings.TrimSpace(req.OutputDir) == "" {
		return "", fmt.Errorf("%w: output directory is required", model.ErrDownloadFailed)
	}
	if strings.TrimSpace(req.FileBase) == "" {
		return "", fmt.Errorf("%w: file name is required", model.ErrDownloadFailed)
	}

	args := []string{
		"-f", req.Format,
		"-o", outputTemplate(req.OutputDir, req.FileBase),
		"--no-warnings",
		"--newline",
		"--force-overwrites",
		"--no-part",
		"--concurrent-fragments", "4",
		"--",
		"https://www.youtube.com/watch?v=" + strings.TrimSpace(req.VideoID),
	}
	if strings.TrimSpace(req.Format) == "" {
		args = args[2:]
	}

	runCtx, cancel := context.WithTimeout(ctx, c.downloadTimeout)
	defer cancel()
	c.log.Info().Str("video_id", req.VideoID).Str("file", req.FileBase).Msg("yt-dlp download")
	if err := c.runCommand(runCtx, args, req); err != nil {
		switch {
		case ctx.Err() != nil:
			return "", fmt.Errorf("%w: %v", model.ErrGlobalStop, ctx.Err())
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			return "", fmt.Errorf("%w after %s: %s", model.ErrDownloadTimeout, c.downloadTimeout, req.VideoID)
		}
		return "", fmt.Errorf("%w: %v", model.ErrDownloadFailed, err)
	}
	return c.verify(ctx, req.OutputDir, req.FileBase)
}

// verify waits for the output file to show up; yt-dlp can exit before the
// final rename is visible.
func (c *Client) verify(ctx context.Context, dir, base string) (string, error) {
	for attempt := 1; attempt <= c.verifyAttempts; attempt++ {
		if path, ok := library.FindDownloaded(dir, base); ok {
			return path, nil
		}
		if attempt == c.verifyAttempts {
			break
		}
		t := time.NewTimer(time.Duration(attempt) * c.verifyBackoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", fmt.Errorf("%w: %v", model.ErrGlobalStop, ctx.Err())
		case <-t.C:
		}
	}
	return "", fmt.Errorf("%w: no file matching %q in %s", model.ErrDownloadFailed, base+".", dir)
}

func outputTemplate(dir, base string) string {
	return filepath.Join(dir, base+".%(ext)s")
}

func (c *Client) runCommand(ctx context.Context, args []string, req DownloadRequest) error {
	cmd := exec.CommandContext(ctx, c.binary, args...)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("setup stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("setup stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", c.binary, err)
	}

	var outBuf strings.Builder
	var errBuf strings.Builder
	var mu sync.Mutex
	var wg sync.WaitGroup

	read := func(stream OutputStream, r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 1024*1024)
		scanner.Split(splitByNewlineOrCR)
		for scanner.Scan() {
			line := scanner.Text()
			mu.Lock()
			appendLimited(&outBuf, &errBuf, stream, line)
			if req.LogWriter != nil {
				_, _ = io.WriteString(req.LogWriter, line+"\n")
			}
			mu.Unlock()

			if req.Progress != nil {
				req.Progress(stream, line)
			}
		}
	}

	wg.Add(2)
	go read(StreamStdout, stdoutPipe)
	go read(StreamStderr, stderrPipe)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		mu.Lock()
		defer mu.Unlock()
		return fmt.Errorf("yt-dlp failed: %w\n%s\n%s", err, strings.TrimSpace(errBuf.String()), strings.TrimSpace(outBuf.String()))
	}
	return nil
}

func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func appendLimited(outBuf, errBuf *strings.Builder, stream OutputStream, line string) {
	const maxKeep = 8192
	b := outBuf
	if stream == StreamStderr {
		b = errBuf
	}
	if b.Len() >= maxKeep {
		return
	}
	toWrite := line + "\n"
	remain := maxKeep - b.Len()
	if len(toWrite) > remain {
		toWrite = toWrite[:remain]
	}
	b.WriteString(toWrite)
}

func isRateLimited(s string) bool {
	text := strings.ToLower(s)
	hints := []string{
		"429",
		"too many requests",
		"rate limit",
		"rate-limit",
		"not a bot",
	}
	for _, h := range hints {
		if strings.Contains(text, h) {
			return true
		}
	}
	return false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func binaryOrDefault(binary string) string {
	if strings.TrimSpace(binary) == "" {
		return DefaultBinary
	}
	return binary
}

package cli

import (
	"flag"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"mvfetch/internal/config"
)

// commonFlags are accepted by every command that reads the config.
type commonFlags struct {
	config   *string
	logLevel *string
	logFile  *string
	jsonOut  *bool
}

func addCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		config:   fs.String("config", "", "config file path (default: $XDG_CONFIG_HOME/mvfetch/config.json)"),
		logLevel: fs.String("log-level", "", "log level: debug|info|warn|error (default: config log_level)"),
		logFile:  fs.String("log-file", "", "append JSON logs to this file"),
		jsonOut:  fs.Bool("json", false, "print JSON output"),
	}
}

func (c commonFlags) configPath() string {
	return strings.TrimSpace(*c.config)
}

func (c commonFlags) load() (config.Config, error) {
	return config.Load(c.configPath())
}

func (c commonFlags) logger(cfg config.Config) (zerolog.Logger, func() error, error) {
	level := cfg.LogLevel
	if strings.TrimSpace(*c.logLevel) != "" {
		level = *c.logLevel
	}
	return newLogger(level, *c.logFile, os.Stderr)
}

// runFlags override config values, but only when given on the command line.
type runFlags struct {
	library       *string
	outputDir     *string
	runsDir       *string
	ytdlpPath     *string
	quality       *string
	catalogPath   *string
	searchResults *int
	delay         *float64
	noTrust       *bool
	override      *bool
	interactive   *bool
}

func addRunFlags(fs *flag.FlagSet) runFlags {
	return runFlags{
		library:       fs.String("library", "", "music library directory"),
		outputDir:     fs.String("output-dir", "", "directory videos are written to"),
		runsDir:       fs.String("runs-dir", "", "runs directory"),
		ytdlpPath:     fs.String("yt-dlp", "", "yt-dlp binary name or path"),
		quality:       fs.String("quality", "", "yt-dlp format selector"),
		catalogPath:   fs.String("catalog", "", "outcome history database path"),
		searchResults: fs.Int("search-results", 0, "results requested per search"),
		delay:         fs.Float64("delay", 0, "polite delay between items, in seconds"),
		noTrust:       fs.Bool("no-trust", false, "never auto-select; always ask"),
		override:      fs.Bool("override", false, "search and download even when a video already exists"),
		interactive:   fs.Bool("interactive", true, "ask inline; false defers escalations to the review queue"),
	}
}

func (r runFlags) apply(fs *flag.FlagSet, cfg *config.Config) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "library":
			cfg.MusicLibrary = *r.library
		case "output-dir":
			cfg.OutputDir = *r.outputDir
		case "runs-dir":
			cfg.RunsDir = *r.runsDir
		case "yt-dlp":
			cfg.YTDLPPath = *r.ytdlpPath
		case "quality":
			cfg.VideoQuality = *r.quality
		case "catalog":
			cfg.CatalogPath = *r.catalogPath
		case "search-results":
			cfg.SearchResults = *r.searchResults
		case "delay":
			cfg.DownloadDelaySeconds = *r.delay
		case "no-trust":
			cfg.NoTrust = *r.noTrust
		case "override":
			cfg.OverrideExisting = *r.override
		case "interactive":
			cfg.Interactive = *r.interactive
		}
	})
	*cfg = config.Normalize(*cfg)
}

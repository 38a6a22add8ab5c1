package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"

	"mvfetch/internal/match"
	"mvfetch/internal/model"
	"mvfetch/internal/runstore"
	"mvfetch/internal/ytdlp"
)

const (
	AppName             = "mvfetch"
	EnvPrefix           = "MVFETCH_"
	configFileName      = "config.json"
	configSchemaVersion = 1

	DefaultVideoQuality        = "bestvideo[height<=1080][ext=mp4]+bestaudio[ext=m4a]/best[height<=1080][ext=mp4]/bestvideo[height<=1080]+bestaudio/best[height<=1080]"
	DefaultSearchResults       = 5
	DefaultDownloadDelaySecs   = 2.0
	DefaultSearchRatePerMinute = 20.0
	DefaultLogLevel            = "warn"
	DefaultRunsDir             = "runs"
)

// Config is the on-disk configuration. Zero values mean "use the default".
type Config struct {
	SchemaVersion          int             `json:"schema_version"`
	MusicLibrary           string          `json:"music_library"`
	OutputDir              string          `json:"output_dir"`
	YTDLPPath              string          `json:"yt_dlp_path"`
	VideoQuality           string          `json:"video_quality"`
	SearchResults          int             `json:"search_results"`
	DownloadDelaySeconds   float64         `json:"download_delay_seconds"`
	SearchTimeoutSeconds   int             `json:"search_timeout_seconds"`
	DownloadTimeoutSeconds int             `json:"download_timeout_seconds"`
	SearchRatePerMinute    float64         `json:"search_rate_per_minute"`
	NoTrust                bool            `json:"no_trust"`
	OverrideExisting       bool            `json:"override_existing"`
	Interactive            bool            `json:"interactive"`
	RunsDir                string          `json:"runs_dir"`
	CatalogPath            string          `json:"catalog_path"`
	LogLevel               string          `json:"log_level"`
	Keywords               *match.Keywords `json:"keywords,omitempty"`
}

func Defaults() Config {
	return Config{
		SchemaVersion:          configSchemaVersion,
		MusicLibrary:           xdg.UserDirs.Music,
		OutputDir:              filepath.Join(xdg.UserDirs.Videos, "Music Videos"),
		YTDLPPath:              ytdlp.DefaultBinary,
		VideoQuality:           DefaultVideoQuality,
		SearchResults:          DefaultSearchResults,
		DownloadDelaySeconds:   DefaultDownloadDelaySecs,
		SearchTimeoutSeconds:   int(ytdlp.DefaultSearchTimeout / time.Second),
		DownloadTimeoutSeconds: int(ytdlp.DefaultDownloadTimeout / time.Second),
		SearchRatePerMinute:    DefaultSearchRatePerMinute,
		Interactive:            true,
		RunsDir:                DefaultRunsDir,
		CatalogPath:            filepath.Join(xdg.DataHome, AppName, "history.db"),
		LogLevel:               DefaultLogLevel,
	}
}

// DefaultPath is the config file under the XDG config home.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, configFileName)
}

// ResolvePath returns path, or the default location when path is empty.
func ResolvePath(path string) string {
	return normalizeConfigPath(path)
}

func normalizeConfigPath(path string) string {
	p := strings.TrimSpace(path)
	if p == "" {
		return DefaultPath()
	}
	return p
}

// Load reads the config file, then applies .env and MVFETCH_* overrides.
// A missing file is not an error unless the path was given explicitly.
func Load(path string) (Config, error) {
	explicit := strings.TrimSpace(path) != ""
	path = normalizeConfigPath(path)

	// Keys absent from the file keep their defaults.
	cfg := Defaults()
	if err := runstore.ReadJSON(path, &cfg); err != nil {
		if !errors.Is(err, os.ErrNotExist) || explicit {
			return Config{}, err
		}
		cfg = Defaults()
	}

	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	return Normalize(cfg), nil
}

// loadDotEnv loads ./.env without overriding variables already set.
func loadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	if err := godotenv.Load(); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []error
	boolean := func(key string, dst *bool) {
		v, ok := lookup(EnvPrefix + key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			return
		}
		*dst = b
	}
	integer := func(key string, dst *int) {
		v, ok := lookup(EnvPrefix + key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			return
		}
		*dst = n
	}
	float := func(key string, dst *float64) {
		v, ok := lookup(EnvPrefix + key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			return
		}
		*dst = f
	}

	str("MUSIC_LIBRARY", &cfg.MusicLibrary)
	str("OUTPUT_DIR", &cfg.OutputDir)
	str("YT_DLP_PATH", &cfg.YTDLPPath)
	str("VIDEO_QUALITY", &cfg.VideoQuality)
	str("RUNS_DIR", &cfg.RunsDir)
	str("CATALOG_PATH", &cfg.CatalogPath)
	str("LOG_LEVEL", &cfg.LogLevel)
	integer("SEARCH_RESULTS", &cfg.SearchResults)
	integer("SEARCH_TIMEOUT_SECONDS", &cfg.SearchTimeoutSeconds)
	integer("DOWNLOAD_TIMEOUT_SECONDS", &cfg.DownloadTimeoutSeconds)
	float("DOWNLOAD_DELAY_SECONDS", &cfg.DownloadDelaySeconds)
	float("SEARCH_RATE_PER_MINUTE", &cfg.SearchRatePerMinute)
	boolean("NO_TRUST", &cfg.NoTrust)
	boolean("OVERRIDE_EXISTING", &cfg.OverrideExisting)
	boolean("INTERACTIVE", &cfg.Interactive)
	return errors.Join(errs...)
}

// Normalize trims fields and replaces invalid values with defaults.
func Normalize(raw Config) Config {
	def := Defaults()
	norm := raw
	norm.SchemaVersion = configSchemaVersion
	norm.MusicLibrary = expandHome(strings.TrimSpace(norm.MusicLibrary))
	norm.OutputDir = expandHome(strings.TrimSpace(norm.OutputDir))
	norm.RunsDir = expandHome(strings.TrimSpace(norm.RunsDir))
	norm.CatalogPath = expandHome(strings.TrimSpace(norm.CatalogPath))
	norm.YTDLPPath = strings.TrimSpace(norm.YTDLPPath)
	norm.VideoQuality = strings.TrimSpace(norm.VideoQuality)
	norm.LogLevel = strings.ToLower(strings.TrimSpace(norm.LogLevel))

	if norm.YTDLPPath == "" {
		norm.YTDLPPath = def.YTDLPPath
	}
	if norm.VideoQuality == "" {
		norm.VideoQuality = def.VideoQuality
	}
	if norm.SearchResults < 1 {
		norm.SearchResults = def.SearchResults
	}
	if norm.DownloadDelaySeconds < 0 {
		norm.DownloadDelaySeconds = def.DownloadDelaySeconds
	}
	if norm.SearchTimeoutSeconds <= 0 {
		norm.SearchTimeoutSeconds = def.SearchTimeoutSeconds
	}
	if norm.DownloadTimeoutSeconds <= 0 {
		norm.DownloadTimeoutSeconds = def.DownloadTimeoutSeconds
	}
	if norm.SearchRatePerMinute < 0 {
		norm.SearchRatePerMinute = 0
	}
	if norm.RunsDir == "" {
		norm.RunsDir = def.RunsDir
	}
	switch norm.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		norm.LogLevel = def.LogLevel
	}
	if norm.Keywords != nil {
		kw := norm.Keywords.Merge()
		norm.Keywords = &kw
	}
	return norm
}

// ToOptions builds the run options. Library and output directories are
// required here even though the file may leave them empty.
func (c Config) ToOptions() (model.Options, error) {
	opts := model.Options{
		OverrideExisting:   c.OverrideExisting,
		NoTrustMode:        c.NoTrust,
		SearchResultsCount: c.SearchResults,
		DownloadDelay:      time.Duration(c.DownloadDelaySeconds * float64(time.Second)),
		QualityFormat:      c.VideoQuality,
		Interactive:        c.Interactive,
		LibraryDir:         c.MusicLibrary,
		OutputDir:          c.OutputDir,
		SearchTimeout:      time.Duration(c.SearchTimeoutSeconds) * time.Second,
		DownloadTimeout:    time.Duration(c.DownloadTimeoutSeconds) * time.Second,
	}
	if strings.TrimSpace(opts.LibraryDir) == "" {
		return model.Options{}, fmt.Errorf("music library is required (set music_library or --library)")
	}
	if err := opts.Validate(); err != nil {
		return model.Options{}, err
	}
	return opts, nil
}

func (c Config) SelectorKeywords() match.Keywords {
	if c.Keywords == nil {
		return match.DefaultKeywords()
	}
	return c.Keywords.Merge()
}

// Save writes cfg to path, creating parent directories.
func Save(path string, cfg Config) error {
	path = normalizeConfigPath(path)
	if err := runstore.Mkdir(filepath.Dir(path)); err != nil {
		return err
	}
	return runstore.WriteJSON(path, Normalize(cfg))
}

// WriteSample writes a commented-by-example config containing every field,
// including the default keyword lists. It refuses to overwrite a file.
func WriteSample(path string) (string, error) {
	path = normalizeConfigPath(path)
	if _, err := os.Stat(path); err == nil {
		return path, fmt.Errorf("config already exists: %s", path)
	}
	cfg := Defaults()
	kw := match.DefaultKeywords()
	cfg.Keywords = &kw
	if err := Save(path, cfg); err != nil {
		return path, err
	}
	return path, nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

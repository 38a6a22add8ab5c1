package config

import (
	"os"
	"path/filepath"
	"strings"

	"mvfetch/internal/runstore"
	"mvfetch/internal/ytdlp"
)

type DoctorOptions struct {
	ConfigPath string
	Config     Config
}

type DoctorResult struct {
	OK     bool          `json:"ok"`
	Checks []DoctorCheck `json:"checks"`
}

type DoctorCheck struct {
	Name     string `json:"name"`
	OK       bool   `json:"ok"`
	Required bool   `json:"required"`
	Message  string `json:"message"`
}

type InitWorkspaceOptions struct {
	ConfigPath string
	RunsDir    string
}

type InitWorkspaceResult struct {
	RunsDir        string       `json:"runs_dir"`
	ConfigPath     string       `json:"config_path"`
	CreatedRunsDir bool         `json:"created_runs_dir"`
	CreatedConfig  bool         `json:"created_config"`
	DoctorResult   DoctorResult `json:"doctor"`
}

// Doctor checks tools and directories. Only required checks affect OK;
// ffmpeg and the library directory are advisory.
func Doctor(opts DoctorOptions) (DoctorResult, error) {
	cfg := Normalize(opts.Config)
	configPath := normalizeConfigPath(opts.ConfigPath)

	checks := make([]DoctorCheck, 0, 6)
	dep := ytdlp.DependencyStatus(cfg.YTDLPPath)
	checks = append(checks, DoctorCheck{
		Name:     "dependency:yt-dlp",
		OK:       dep.YTDLPFound,
		Required: true,
		Message:  dependencyMessage(dep.YTDLPFound, dep.YTDLPPath, cfg.YTDLPPath),
	})
	checks = append(checks, DoctorCheck{
		Name:    "dependency:ffmpeg",
		OK:      dep.FFmpegFound,
		Message: dependencyMessage(dep.FFmpegFound, dep.FFmpegPath, "ffmpeg"),
	})

	libOK, libMessage := readableDir(cfg.MusicLibrary)
	checks = append(checks, DoctorCheck{
		Name:    "directory:library",
		OK:      libOK,
		Message: libMessage,
	})

	for _, d := range []struct {
		name string
		path string
	}{
		{"directory:output", cfg.OutputDir},
		{"directory:runs", cfg.RunsDir},
		{"directory:config", filepath.Dir(configPath)},
	} {
		ok, msg := ensureWritableDir(d.path)
		checks = append(checks, DoctorCheck{Name: d.name, OK: ok, Required: true, Message: msg})
	}

	ok := true
	for _, c := range checks {
		if c.Required && !c.OK {
			ok = false
			break
		}
	}
	return DoctorResult{OK: ok, Checks: checks}, nil
}

// InitWorkspace creates the runs directory and, if missing, a sample config,
// then runs Doctor against the result.
func InitWorkspace(opts InitWorkspaceOptions) (InitWorkspaceResult, error) {
	configPath := normalizeConfigPath(opts.ConfigPath)

	createdConfig := false
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if _, err := WriteSample(configPath); err != nil {
			return InitWorkspaceResult{}, err
		}
		createdConfig = true
	}
	cfg, err := Load(configPath)
	if err != nil {
		return InitWorkspaceResult{}, err
	}
	runsDir := strings.TrimSpace(opts.RunsDir)
	if runsDir == "" {
		runsDir = cfg.RunsDir
	}
	cfg.RunsDir = runsDir

	createdRunsDir := false
	if _, err := os.Stat(runsDir); os.IsNotExist(err) {
		createdRunsDir = true
	}
	if err := runstore.Mkdir(runsDir); err != nil {
		return InitWorkspaceResult{}, err
	}

	doc, err := Doctor(DoctorOptions{ConfigPath: configPath, Config: cfg})
	if err != nil {
		return InitWorkspaceResult{}, err
	}
	return InitWorkspaceResult{
		RunsDir:        runsDir,
		ConfigPath:     configPath,
		CreatedRunsDir: createdRunsDir,
		CreatedConfig:  createdConfig,
		DoctorResult:   doc,
	}, nil
}

func dependencyMessage(ok bool, path, name string) string {
	if ok {
		return name + " found at " + path
	}
	return name + " not found on PATH"
}

func readableDir(path string) (bool, string) {
	if strings.TrimSpace(path) == "" {
		return false, "not configured"
	}
	info, err := os.Stat(path)
	if err != nil {
		return false, err.Error()
	}
	if !info.IsDir() {
		return false, path + " is not a directory"
	}
	return true, "readable"
}

func ensureWritableDir(path string) (bool, string) {
	if strings.TrimSpace(path) == "" {
		return false, "empty path"
	}
	if err := runstore.Mkdir(path); err != nil {
		return false, err.Error()
	}
	f, err := os.CreateTemp(path, "mvfetch-check-*.tmp")
	if err != nil {
		return false, err.Error()
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	return true, "writable"
}

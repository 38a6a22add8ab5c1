package cli

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"mvfetch/internal/config"
	"mvfetch/internal/library"
)

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (default: $XDG_CONFIG_HOME/mvfetch/config.json)")
	runsDir := fs.String("runs-dir", "", "runs directory (default: config runs_dir)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	res, err := config.InitWorkspace(config.InitWorkspaceOptions{
		ConfigPath: strings.TrimSpace(*cfgPath),
		RunsDir:    strings.TrimSpace(*runsDir),
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(res)
	}

	fmt.Println("workspace initialized")
	fmt.Printf("config: %s\n", res.ConfigPath)
	fmt.Printf("runs_dir: %s\n", res.RunsDir)
	fmt.Printf("created_config: %t\n", res.CreatedConfig)
	fmt.Printf("created_runs_dir: %t\n", res.CreatedRunsDir)
	fmt.Println("checks:")
	printChecks(res.DoctorResult, "  ")
	if !res.DoctorResult.OK {
		return errors.New("doctor checks failed")
	}
	fmt.Println("next: mvfetch run --library <music dir>")
	return nil
}

func runDoctor(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	common := addCommonFlags(fs)
	rf := addRunFlags(fs)
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	rf.apply(fs, &cfg)
	res, err := config.Doctor(config.DoctorOptions{ConfigPath: common.configPath(), Config: cfg})
	if err != nil {
		return err
	}
	if *common.jsonOut {
		return printJSON(res)
	}

	printChecks(res, "")
	if !res.OK {
		return errors.New("doctor checks failed")
	}
	fmt.Println("doctor: all required checks passed")
	return nil
}

func printChecks(res config.DoctorResult, indent string) {
	for _, c := range res.Checks {
		status := "ok"
		if !c.OK {
			status = "fail"
			if !c.Required {
				status = "warn"
			}
		}
		fmt.Printf("%s%s: %s (%s)\n", indent, c.Name, status, c.Message)
	}
}

func runConfig(args []string) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	common := addCommonFlags(fs)
	rf := addRunFlags(fs)
	generate := fs.Bool("generate", false, "write a sample config file with every setting")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *generate {
		path, err := config.WriteSample(common.configPath())
		if err != nil {
			return err
		}
		if *common.jsonOut {
			return printJSON(map[string]string{"config": path})
		}
		fmt.Printf("wrote sample config: %s\n", path)
		return nil
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	rf.apply(fs, &cfg)
	if cfg.Keywords == nil {
		kw := cfg.SelectorKeywords()
		cfg.Keywords = &kw
	}
	if *common.jsonOut {
		return printJSON(cfg)
	}

	fmt.Printf("config_file: %s\n", config.ResolvePath(common.configPath()))
	fmt.Printf("music_library: %s\n", cfg.MusicLibrary)
	fmt.Printf("output_dir: %s\n", cfg.OutputDir)
	fmt.Printf("runs_dir: %s\n", cfg.RunsDir)
	fmt.Printf("catalog_path: %s\n", cfg.CatalogPath)
	fmt.Printf("yt_dlp_path: %s\n", cfg.YTDLPPath)
	fmt.Printf("video_quality: %s\n", cfg.VideoQuality)
	fmt.Printf("search_results: %d\n", cfg.SearchResults)
	fmt.Printf("search_rate_per_minute: %g\n", cfg.SearchRatePerMinute)
	fmt.Printf("search_timeout_seconds: %d\n", cfg.SearchTimeoutSeconds)
	fmt.Printf("download_timeout_seconds: %d\n", cfg.DownloadTimeoutSeconds)
	fmt.Printf("download_delay_seconds: %g\n", cfg.DownloadDelaySeconds)
	fmt.Printf("interactive: %t\n", cfg.Interactive)
	fmt.Printf("no_trust: %t\n", cfg.NoTrust)
	fmt.Printf("override_existing: %t\n", cfg.OverrideExisting)
	fmt.Printf("log_level: %s\n", cfg.LogLevel)
	fmt.Printf("keywords: %d priority, %d positive, %d negative\n",
		len(cfg.Keywords.PriorityPositive), len(cfg.Keywords.Positive), len(cfg.Keywords.Negative))
	return nil
}

type scanRow struct {
	Path   string `json:"path"`
	Artist string `json:"artist,omitempty"`
	Title  string `json:"title,omitempty"`
	Error  string `json:"error,omitempty"`
}

func runScan(args []string) error {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	common := addCommonFlags(fs)
	dir := fs.String("library", "", "music library directory (default: config music_library)")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	root := cfg.MusicLibrary
	if strings.TrimSpace(*dir) != "" {
		root = strings.TrimSpace(*dir)
	}
	if fs.NArg() > 0 {
		root = fs.Arg(0)
	}
	if root == "" {
		return errors.New("music library is required (set music_library or --library)")
	}
	files, err := library.Scan(absPath(root))
	if err != nil {
		return err
	}

	rows := make([]scanRow, 0, len(files))
	unreadable := 0
	for _, path := range files {
		artist, title, err := library.ReadMetadata(path)
		row := scanRow{Path: path, Artist: artist, Title: title}
		if err != nil {
			row.Error = err.Error()
			unreadable++
		}
		rows = append(rows, row)
	}
	if *common.jsonOut {
		return printJSON(rows)
	}
	for _, r := range rows {
		if r.Error != "" {
			fmt.Printf("%s: %s\n", r.Path, statusErrorStyle.Render(r.Error))
			continue
		}
		fmt.Printf("%s: %s\n", r.Path, library.FileBase(r.Artist, r.Title))
	}
	fmt.Printf("files: %d (unreadable: %d)\n", len(rows), unreadable)
	return nil
}

package library

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"
)

var caseProbe sync.Map // dir -> bool

// FindExisting looks for a video file named base.<ext> in any of dirs and
// returns its path. Matching folds case on case-insensitive file systems.
func FindExisting(dirs []string, base string) (string, bool) {
	prefix := base + "."
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		fold := caseInsensitive(dir, entries)
		for _, e := range entries {
			if e.IsDir() || !IsVideoFile(e.Name()) {
				continue
			}
			if hasPrefix(e.Name(), prefix, fold) {
				return filepath.Join(dir, e.Name()), true
			}
		}
	}
	return "", false
}

// FindDownloaded is FindExisting for a single output directory and any
// extension, used to confirm yt-dlp's output landed.
func FindDownloaded(dir, base string) (string, bool) {
	prefix := base + "."
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	fold := caseInsensitive(dir, entries)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".part") || strings.HasSuffix(name, ".ytdl") {
			continue
		}
		if hasPrefix(name, prefix, fold) {
			return filepath.Join(dir, name), true
		}
	}
	return "", false
}

func hasPrefix(name, prefix string, fold bool) bool {
	if len(name) < len(prefix) {
		return false
	}
	if fold {
		return strings.EqualFold(name[:len(prefix)], prefix)
	}
	return name[:len(prefix)] == prefix
}

// caseInsensitive reports whether dir folds case, by looking up an existing
// entry under its case-swapped name. Nothing is written to dir. A directory
// with no entry to test stays undecided and is asked again later.
func caseInsensitive(dir string, entries []os.DirEntry) bool {
	if v, ok := caseProbe.Load(dir); ok {
		return v.(bool)
	}
	for _, e := range entries {
		name := e.Name()
		swapped := swapCase(name)
		if swapped == name {
			continue
		}
		fold := false
		orig, err := os.Stat(filepath.Join(dir, name))
		if err == nil {
			if alt, err := os.Stat(filepath.Join(dir, swapped)); err == nil {
				fold = os.SameFile(orig, alt)
			}
		}
		caseProbe.Store(dir, fold)
		return fold
	}
	return false
}

func swapCase(s string) string {
	return strings.Map(func(r rune) rune {
		if u := unicode.ToUpper(r); u != r {
			return u
		}
		return unicode.ToLower(r)
	}, s)
}

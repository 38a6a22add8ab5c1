package library

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxFilenameBytes = 200
	untitledName     = "Untitled"
)

var (
	reIllegalChars = regexp.MustCompile(`[\\/*?:"<>|]`)
	reDotRun       = regexp.MustCompile(`\.+`)
)

// SanitizeFilename makes name safe to use as a single path element.
func SanitizeFilename(name string) string {
	name = reIllegalChars.ReplaceAllString(name, "")
	name = reDotRun.ReplaceAllString(name, ".")
	name = strings.Trim(strings.TrimSpace(name), ".- ")
	if name == "" {
		return untitledName
	}
	if len(name) <= MaxFilenameBytes {
		return name
	}
	ext := filepath.Ext(name)
	if len(ext) >= MaxFilenameBytes {
		ext = ""
	}
	base := truncateUTF8(strings.TrimSuffix(name, ext), MaxFilenameBytes-len(ext))
	return base + ext
}

// FileBase is the output name stem shared by the duplicate check and the
// downloader: "Artist - Title". The joined stem is held to MaxFilenameBytes
// so the extension and yt-dlp's temporary suffixes still fit in a filename.
func FileBase(artist, title string) string {
	base := SanitizeFilename(artist) + " - " + SanitizeFilename(title)
	if len(base) <= MaxFilenameBytes {
		return base
	}
	return strings.TrimRight(truncateUTF8(base, MaxFilenameBytes), ".- ")
}

func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

package library

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	id3v2 "github.com/bogem/id3v2/v2"

	"mvfetch/internal/model"
)

var reNameSplit = regexp.MustCompile(`\s+-\s+|\s+–\s+|\s*_\s*-\s*_\s*`)

// ReadMetadata returns artist and title for an audio file. ID3 tags win for
// mp3 files; any field still missing is taken from an "Artist - Title" file
// name.
func ReadMetadata(path string) (string, string, error) {
	var artist, title string
	if strings.EqualFold(filepath.Ext(path), ".mp3") {
		artist, title = readID3(path)
	}
	if artist == "" || title == "" {
		fa, ft := ParseFilename(path)
		if artist == "" {
			artist = fa
		}
		if title == "" {
			title = ft
		}
	}
	if artist == "" || title == "" {
		return "", "", fmt.Errorf("%w: %s", model.ErrNoMetadata, filepath.Base(path))
	}
	return artist, title, nil
}

// ParseFilename splits "Artist - Title.ext" on the first separator.
func ParseFilename(path string) (string, string) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	parts := reNameSplit.Split(base, 2)
	if len(parts) != 2 {
		return "", ""
	}
	artist := strings.TrimSpace(parts[0])
	title := strings.TrimSpace(parts[1])
	if artist == "" || title == "" {
		return "", ""
	}
	return artist, title
}

func readID3(path string) (string, string) {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return "", ""
	}
	defer tag.Close()

	artist := strings.TrimSpace(tag.Artist())
	if artist == "" {
		artist = strings.TrimSpace(tag.GetTextFrame("TPE2").Text)
	}
	title := strings.TrimSpace(tag.Title())
	if title == "" {
		title = strings.TrimSpace(tag.GetTextFrame("TIT1").Text)
	}
	return artist, title
}

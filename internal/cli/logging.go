package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// newLogger builds the command logger. Without a log file, records go to
// stderr through a console writer; with one, the file gets JSON lines and
// stderr only sees warnings and errors.
func newLogger(level, file string, stderr io.Writer) (zerolog.Logger, func() error, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.Nop(), nil, fmt.Errorf("invalid log level %q (use debug|info|warn|error)", level)
	}
	console := zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.Kitchen}

	file = strings.TrimSpace(file)
	if file == "" {
		log := zerolog.New(console).Level(lvl).With().Timestamp().Logger()
		return log, func() error { return nil }, nil
	}

	f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("open log file %s: %w", file, err)
	}
	sinks := zerolog.MultiLevelWriter(f, levelFloor{w: console, min: zerolog.WarnLevel})
	log := zerolog.New(sinks).Level(lvl).With().Timestamp().Logger()
	return log, f.Close, nil
}

// levelFloor drops records below min.
type levelFloor struct {
	w   io.Writer
	min zerolog.Level
}

func (l levelFloor) Write(p []byte) (int, error) {
	return l.w.Write(p)
}

func (l levelFloor) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < l.min {
		return len(p), nil
	}
	return l.w.Write(p)
}

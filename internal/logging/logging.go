// Package logging builds the slog logger shared by deskhook's packages.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options selects level and destinations.
type Options struct {
	Level     string
	FilePath  string // empty: stderr only
	MaxSizeMB int
	MaxFiles  int
	// Stderr overrides the console destination (tests).
	Stderr io.Writer
}

// ParseLevel converts a config level name to a slog level. Unknown names
// map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a text logger writing to stderr and, when FilePath is set,
// also to a rotating log file. The returned closer releases the file.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	var out io.Writer = os.Stderr
	if opts.Stderr != nil {
		out = opts.Stderr
	}

	var closer io.Closer = nopCloser{}
	if opts.FilePath != "" {
		f, err := OpenRotating(opts.FilePath, opts.MaxSizeMB, opts.MaxFiles)
		if err != nil {
			return nil, nil, err
		}
		out = io.MultiWriter(out, f)
		closer = f
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: ParseLevel(opts.Level)})
	return slog.New(handler), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Package logging provides a zerolog-backed logger shared by the simulator
// binaries, with a human-readable console writer by default and a
// verbosity knob each cmd/ tool exposes through its own flag (-v for
// rvsim, -d for checker and cachecheck).
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns a console logger writing to w. verbose raises the level to
// debug; otherwise only info and above are emitted.
func New(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	console := zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen, NoColor: true}
	return zerolog.New(console).Level(level).With().Timestamp().Logger()
}

// Default returns a console logger on stderr at the given verbosity.
func Default(verbose bool) zerolog.Logger {
	return New(os.Stderr, verbose)
}

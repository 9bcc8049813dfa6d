// Package clog provides pass-scoped structured logging, standing in for
// the global debug-trace flag (dbg(...)) threaded through every pass of
// original_source. Grounded in spirit on that call-site density: each
// optimization or codegen decision that original_source logged gets a
// Debug-level log keyed by pass name here.
package clog

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu     sync.Mutex
	base   = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: false}).With().Timestamp().Logger()
	active = base.Level(zerolog.InfoLevel)
)

// SetVerbose raises the global level to Debug when true, matching the
// CLI's -v flag (SPEC_FULL.md §4.14).
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	if v {
		active = base.Level(zerolog.DebugLevel)
	} else {
		active = base.Level(zerolog.InfoLevel)
	}
}

// SetOutput redirects where log records are written; used by tests to
// capture output instead of polluting stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	base = zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true}).With().Timestamp().Logger()
	active = base.Level(active.GetLevel())
}

// For returns a logger scoped to a single pass name, e.g. clog.For("gvn_gcm").
func For(pass string) zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return active.With().Str("pass", pass).Logger()
}

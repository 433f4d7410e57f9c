package shredder

import (
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// logHolder holds the package-level logger that log returns. It defaults
// to a disabled logger so
// importing this package doesn't write to stderr unless a caller opts in
// with SetLogger — the same default-silent posture libraries built on
// zerolog in this ecosystem generally take.
var logHolder atomic.Pointer[zerolog.Logger]

func init() {
	disabled := zerolog.Nop()
	logHolder.Store(&disabled)
}

// SetLogger replaces the package-level logger: fail-fast misuse is
// logged through it at Error immediately before the accompanying panic.
// The background dropper, whose enqueue/sync failures log at Warn and
// destructor panics at Error, keeps a copy of the logger that was in
// effect when the collector was first constructed; a later SetLogger
// does not reach it.
func SetLogger(l zerolog.Logger) {
	logHolder.Store(&l)
}

func log() *zerolog.Logger {
	return logHolder.Load()
}

// DefaultLogger returns a human-readable console logger writing to
// stderr, for callers that want visibility without wiring up their own
// zerolog sink.
func DefaultLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

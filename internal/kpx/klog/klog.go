// Package klog wires the proxy's structured logging onto
// github.com/joeycumines/logiface, writing through the
// github.com/joeycumines/logiface-slog (islog) adapter to a log/slog JSON
// handler, matching the usage pattern shown throughout that adapter's own
// example tests (islog.L.New(islog.L.WithSlogHandler(handler))).
package klog

import (
	"log/slog"
	"os"

	"github.com/joeycumines/logiface"
	islog "github.com/joeycumines/logiface-slog"
)

// Level mirrors the CLI's --debug verbosity.
type Level int

const (
	LevelSilent   Level = 0
	LevelCritical Level = 1
	LevelWarn     Level = 2
	LevelInfo     Level = 3
)

// ParseLevel validates a raw --debug value.
func ParseLevel(v int) (Level, bool) {
	if v < 0 || v > 3 {
		return 0, false
	}
	return Level(v), true
}

// toLogifaceLevel maps the proxy's 0-3 debug scale onto logiface's syslog
// style Level, so a silent debug level disables the logger outright rather
// than merely filtering at the handler.
func (l Level) toLogifaceLevel() logiface.Level {
	switch l {
	case LevelSilent:
		return logiface.LevelDisabled
	case LevelCritical:
		return logiface.LevelCritical
	case LevelWarn:
		return logiface.LevelWarning
	default:
		return logiface.LevelInformational
	}
}

// New builds a logger writing JSON to stderr, gated at the given debug
// level. Level 3 additionally enables per-step byte dumps (see DumpEnabled).
func New(level Level) *logiface.Logger[*islog.Event] {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{})
	return islog.L.New(
		islog.L.WithSlogHandler(handler),
		logiface.WithLevel[*islog.Event](level.toLogifaceLevel()),
	)
}

// DumpEnabled reports whether per-step byte dumps should be emitted
// (level 3 only).
func (l Level) DumpEnabled() bool { return l >= LevelInfo }

// AnnounceEnabled reports whether accepted connections should be logged
// (level 2 and up).
func (l Level) AnnounceEnabled() bool { return l >= LevelWarn }

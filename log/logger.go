package log

import (
	"fmt"
	"path/filepath"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"pkgsynth/config"
)

// Logger is the rotating diagnostics sink every Service opens, in
// either progress mode: one growing, size-rotated log file recording the planner's
// collection/negotiation/backtrack trace, in addition to whatever the
// active progress.Reporter prints. It implements LibraryLogger so it
// can be handed to the collector's context object directly.
type Logger struct {
	out *lumberjack.Logger
}

// NewLogger creates a rotating logger writing to <cfg.LogsDir>/pkgsynth.log,
// rotating at 50MB and keeping 5 backups for up to 28 days.
func NewLogger(cfg *config.Config) (*Logger, error) {
	l := &Logger{
		out: &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogsDir, "pkgsynth.log"),
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		},
	}
	fmt.Fprintf(l.out, "pkgsynth run started %s\n", time.Now().Format(time.RFC3339))
	return l, nil
}

// Close closes the underlying rotating file.
func (l *Logger) Close() error {
	return l.out.Close()
}

func (l *Logger) writeLine(level, format string, args ...any) {
	timestamp := time.Now().Format("15:04:05")
	fmt.Fprintf(l.out, "[%s] %s %s\n", timestamp, level, fmt.Sprintf(format, args...))
}

func (l *Logger) Info(format string, args ...any)  { l.writeLine("INFO", format, args...) }
func (l *Logger) Debug(format string, args ...any) { l.writeLine("DEBUG", format, args...) }
func (l *Logger) Warn(format string, args ...any)  { l.writeLine("WARN", format, args...) }
func (l *Logger) Error(format string, args ...any) { l.writeLine("ERROR", format, args...) }

// Collected records a package entering the build map via the recursive
// collector.
func (l *Logger) Collected(pkgKey string, version string) {
	l.writeLine("COLLECT", "%s %s", pkgKey, version)
}

// Postponed records a package whose collection was deferred (repository
// lookup, alternative selection, or recommendation).
func (l *Logger) Postponed(pkgKey string, reason string) {
	l.writeLine("POSTPONE", "%s: %s", pkgKey, reason)
}

// Negotiated records the outcome of negotiating a postponed-configuration
// cluster.
func (l *Logger) Negotiated(clusterID string, accepted bool) {
	if accepted {
		l.writeLine("NEGOTIATE", "%s: accepted", clusterID)
		return
	}
	l.writeLine("NEGOTIATE", "%s: rejected, widening", clusterID)
}

// Backtrack records a backtracking signal being caught and handled at a
// given collector depth.
func (l *Logger) Backtrack(signal string, depth int) {
	l.writeLine("BACKTRACK", "%s at depth %d", signal, depth)
}

// ResolutionFailure records a terminal resolution failure together with
// its "while satisfying" dependency chain.
func (l *Logger) ResolutionFailure(chain []string, reason string) {
	l.writeLine("FAILURE", "%s (while satisfying: %v)", reason, chain)
}

// WriteSummary appends a one-shot summary of a completed run.
func (l *Logger) WriteSummary(collected, postponed, backtracks int, duration time.Duration) {
	fmt.Fprintf(l.out, "\nsummary: collected=%d postponed=%d backtracks=%d duration=%s\n",
		collected, postponed, backtracks, duration)
}

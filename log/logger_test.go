package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pkgsynth/config"
)

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	tempDir := t.TempDir()
	cfg := &config.Config{LogsDir: filepath.Join(tempDir, "logs")}
	if err := os.MkdirAll(cfg.LogsDir, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	logger, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger
}

func readLogFile(t *testing.T, logger *Logger) string {
	t.Helper()
	content, err := os.ReadFile(logger.out.Filename)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	return string(content)
}

func TestNewLoggerCreatesRotatingFile(t *testing.T) {
	logger := newTestLogger(t)
	content := readLogFile(t, logger)
	if !strings.Contains(content, "pkgsynth run started") {
		t.Error("log file missing run-started banner")
	}
}

func TestLoggerInfoDebugWarnErrorWriteLeveledLines(t *testing.T) {
	logger := newTestLogger(t)

	logger.Info("resolving %s", "libfoo")
	logger.Debug("candidate %s", "1.2.3")
	logger.Warn("retrying %s", "fetch")
	logger.Error("giving up on %s", "libbar")

	content := readLogFile(t, logger)
	for _, want := range []string{"INFO resolving libfoo", "DEBUG candidate 1.2.3", "WARN retrying fetch", "ERROR giving up on libbar"} {
		if !strings.Contains(content, want) {
			t.Errorf("log missing %q, got:\n%s", want, content)
		}
	}
}

func TestLoggerCollectedPostponedNegotiatedBacktrack(t *testing.T) {
	logger := newTestLogger(t)

	logger.Collected("default/libfoo", "1.2.3")
	logger.Postponed("default/libbar", "repository lookup deferred")
	logger.Negotiated("cluster-1", true)
	logger.Negotiated("cluster-2", false)
	logger.Backtrack("unaccept_alternative", 3)

	content := readLogFile(t, logger)
	for _, want := range []string{
		"COLLECT default/libfoo 1.2.3",
		"POSTPONE default/libbar: repository lookup deferred",
		"NEGOTIATE cluster-1: accepted",
		"NEGOTIATE cluster-2: rejected, widening",
		"BACKTRACK unaccept_alternative at depth 3",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("log missing %q, got:\n%s", want, content)
		}
	}
}

func TestLoggerResolutionFailureIncludesChain(t *testing.T) {
	logger := newTestLogger(t)

	logger.ResolutionFailure([]string{"default/app", "default/libfoo"}, "no satisfying alternative")

	content := readLogFile(t, logger)
	if !strings.Contains(content, "no satisfying alternative") {
		t.Error("log missing failure reason")
	}
	if !strings.Contains(content, "default/app") || !strings.Contains(content, "default/libfoo") {
		t.Error("log missing while-satisfying chain")
	}
}

func TestLoggerWriteSummary(t *testing.T) {
	logger := newTestLogger(t)

	logger.WriteSummary(5, 2, 1, 3*time.Second)

	content := readLogFile(t, logger)
	if !strings.Contains(content, "collected=5 postponed=2 backtracks=1") {
		t.Errorf("log missing summary line, got:\n%s", content)
	}
}

package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"pkgsynth/config"
)

// PackageLogger is a per-package trace: one file per package key that
// service.Checkout checks out, recording phase transitions, the
// commands run on its behalf, and the terminal outcome (success or
// failure). The key's
// "/" separator (database/name, see plan.PackageKey.String) is rewritten
// to "___" since it would otherwise be read as a path separator.
type PackageLogger struct {
	cfg    *config.Config
	pkgKey string
	file   *os.File
	mu     sync.Mutex
}

// NewPackageLogger opens (creating if necessary) the trace log for
// pkgKey under cfg.LogsDir. A failure to open the file is swallowed,
// leaving file nil — every method degrades to a no-op rather than
// panicking, so a logging failure never aborts a build.
func NewPackageLogger(cfg *config.Config, pkgKey string) *PackageLogger {
	pl := &PackageLogger{cfg: cfg, pkgKey: pkgKey}

	filename := strings.ReplaceAll(pkgKey, "/", "___") + ".log"
	file, err := os.Create(filepath.Join(cfg.LogsDir, filename))
	if err == nil {
		pl.file = file
	}
	return pl
}

func (pl *PackageLogger) WriteHeader() {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.file == nil {
		return
	}

	fmt.Fprintf(pl.file, "%s\n", strings.Repeat("=", 70))
	fmt.Fprintf(pl.file, "Planning Log: %s\n", pl.pkgKey)
	fmt.Fprintf(pl.file, "Started: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(pl.file, "%s\n\n", strings.Repeat("=", 70))
	pl.file.Sync()
}

func (pl *PackageLogger) WritePhase(phase string) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.file == nil {
		return
	}

	fmt.Fprintf(pl.file, "\n%s\n", strings.Repeat("=", 70))
	fmt.Fprintf(pl.file, "Phase: %s\n", phase)
	fmt.Fprintf(pl.file, "Time: %s\n", time.Now().Format("15:04:05"))
	fmt.Fprintf(pl.file, "%s\n", strings.Repeat("=", 70))
	pl.file.Sync()
}

// Write satisfies io.Writer so a PackageLogger can be handed directly
// to exec.Cmd's Stdout/Stderr when source/syspkg shell out on this
// package's behalf.
func (pl *PackageLogger) Write(p []byte) (int, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.file == nil {
		return len(p), nil
	}
	n, err := pl.file.Write(p)
	pl.file.Sync()
	return n, err
}

func (pl *PackageLogger) WriteString(s string) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.file == nil {
		return
	}
	pl.file.WriteString(s)
	pl.file.Sync()
}

// WriteCommand records an external command (git clone, dpkg-query, ...)
// issued while materializing or verifying this package.
func (pl *PackageLogger) WriteCommand(cmd string) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.file == nil {
		return
	}
	fmt.Fprintf(pl.file, ">>> %s\n", cmd)
	pl.file.Sync()
}

func (pl *PackageLogger) WriteWarning(msg string) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.file == nil {
		return
	}
	fmt.Fprintf(pl.file, "WARNING: %s\n", msg)
	pl.file.Sync()
}

func (pl *PackageLogger) WriteError(msg string) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.file == nil {
		return
	}
	fmt.Fprintf(pl.file, "ERROR: %s\n", msg)
	pl.file.Sync()
}

func (pl *PackageLogger) WriteSuccess(duration time.Duration) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.file == nil {
		return
	}

	fmt.Fprintf(pl.file, "\n%s\n", strings.Repeat("=", 70))
	fmt.Fprintf(pl.file, "BUILD SUCCESS\n")
	fmt.Fprintf(pl.file, "Completed: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(pl.file, "Duration: %s\n", duration)
	fmt.Fprintf(pl.file, "%s\n", strings.Repeat("=", 70))
	pl.file.Sync()
}

func (pl *PackageLogger) WriteFailure(duration time.Duration, reason string) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.file == nil {
		return
	}

	fmt.Fprintf(pl.file, "\n%s\n", strings.Repeat("=", 70))
	fmt.Fprintf(pl.file, "BUILD FAILED\n")
	fmt.Fprintf(pl.file, "Reason: %s\n", reason)
	fmt.Fprintf(pl.file, "Completed: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(pl.file, "Duration: %s\n", duration)
	fmt.Fprintf(pl.file, "%s\n", strings.Repeat("=", 70))
	pl.file.Sync()
}

func (pl *PackageLogger) Close() {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.file == nil {
		return
	}
	pl.file.Close()
	pl.file = nil
}

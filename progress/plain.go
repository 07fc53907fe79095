package progress

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/term"
)

// PlainReporter prints a single overwritten progress line sized to
// the terminal width, used for --no-progress and for any run whose
// stdout isn't a terminal tview could take over.
type PlainReporter struct {
	mu        sync.Mutex
	lastPrint time.Time
	width     int
}

// NewPlainReporter creates a fallback reporter, probing the terminal
// width once up front (falling back to 80 columns when stdout isn't a
// terminal, e.g. when output is piped to a file).
func NewPlainReporter() *PlainReporter {
	width := 80
	if w, _, err := term.GetSize(1); err == nil && w > 0 {
		width = w
	}
	return &PlainReporter{width: width}
}

func (r *PlainReporter) Start() error { return nil }

func (r *PlainReporter) Stop() {
	fmt.Println()
}

func (r *PlainReporter) UpdatePass(s Stats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Throttle to avoid spamming a redirected-to-file output with one
	// line per pass when collection iterates quickly.
	now := time.Now()
	if now.Sub(r.lastPrint) < 200*time.Millisecond {
		return
	}
	r.lastPrint = now

	line := fmt.Sprintf("pass %d: collected %d, postponed %d, clusters %d/%d negotiated, %d backtracks",
		s.Pass, s.PackagesCollected, s.PackagesPostponed, s.ClustersNegotiated, s.ClustersTotal, s.Backtracks)
	if len(line) > r.width {
		line = line[:r.width]
	}
	fmt.Printf("\r%-*s", r.width, line)
}

func (r *PlainReporter) LogEvent(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Printf("\r%-*s\n", r.width, message)
}

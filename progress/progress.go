// Package progress reports live planning progress: clusters negotiated,
// packages collected and postponed, and backtrack counts as the
// recursive collector runs. It has two implementations — a tview/tcell
// dashboard for --progress and a plain-text fallback for --no-progress
// — selected by NewReporter.
package progress

// Stats is a snapshot of the driver's fixed-point loop, reported once
// per pass.
type Stats struct {
	PackagesCollected  int
	PackagesPostponed  int
	ClustersTotal      int
	ClustersNegotiated int
	Backtracks         int
	Pass               int
}

// Reporter receives planning progress as the driver iterates. All
// methods must be safe to call from a single goroutine (the driver
// runs single-threaded), so implementations don't need their
// own locking beyond what their UI toolkit requires internally.
type Reporter interface {
	// Start begins reporting, returning an error if the UI couldn't be
	// initialized (e.g. no terminal attached).
	Start() error

	// Stop cleanly shuts the reporter down, restoring the terminal if
	// it took it over.
	Stop()

	// UpdatePass reports progress after one driver pass has completed.
	UpdatePass(s Stats)

	// LogEvent records a one-line event — a package entering collection,
	// a cluster negotiation outcome, a backtrack signal being caught —
	// for the scrolling event log.
	LogEvent(message string)
}

// NewReporter returns a tview dashboard Reporter when useDashboard is
// true, or the plain-text fallback otherwise. useDashboard should be
// false whenever --no-progress is given or stdout isn't a terminal.
func NewReporter(useDashboard bool) Reporter {
	if useDashboard {
		return NewDashboard()
	}
	return NewPlainReporter()
}

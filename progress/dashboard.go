package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Dashboard implements Reporter with a tview/tcell TUI: a header
// summarizing the current pass, a progress panel breaking down
// collected/postponed/negotiated counts, and a scrolling event log.
type Dashboard struct {
	app          *tview.Application
	headerText   *tview.TextView
	progressText *tview.TextView
	eventsText   *tview.TextView
	layout       *tview.Flex

	mu            sync.Mutex
	eventLines    []string
	maxEventLines int
	stopped       bool
}

// NewDashboard creates a dashboard reporter.
func NewDashboard() *Dashboard {
	return &Dashboard{maxEventLines: 200}
}

func (d *Dashboard) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.app = tview.NewApplication()

	d.headerText = tview.NewTextView().SetDynamicColors(true).SetTextAlign(tview.AlignLeft)
	d.headerText.SetBorder(true).SetTitle(" pkgsynth planning ").SetTitleAlign(tview.AlignLeft)
	d.headerText.SetText("[yellow]Starting collection...[white]")

	d.progressText = tview.NewTextView().SetDynamicColors(true).SetTextAlign(tview.AlignLeft)
	d.progressText.SetBorder(true).SetTitle(" Progress ").SetTitleAlign(tview.AlignLeft)
	d.progressText.SetText("Waiting for the first pass...")

	d.eventsText = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetChangedFunc(func() { d.app.Draw() })
	d.eventsText.SetBorder(true).SetTitle(" Events ").SetTitleAlign(tview.AlignLeft)
	d.eventsText.SetText("No events yet...")

	d.layout = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(d.headerText, 3, 0, false).
		AddItem(d.progressText, 6, 0, false).
		AddItem(d.eventsText, 0, 1, false)

	d.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyCtrlC || event.Rune() == 'q' || event.Rune() == 'Q' {
			d.app.Stop()
			return nil
		}
		return event
	})

	go func() {
		d.app.SetRoot(d.layout, true).EnableMouse(true).Run()
	}()

	time.Sleep(100 * time.Millisecond)
	return nil
}

func (d *Dashboard) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	if d.app != nil {
		d.app.Stop()
	}
	time.Sleep(100 * time.Millisecond)
}

func (d *Dashboard) UpdatePass(s Stats) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.app == nil || d.stopped {
		return
	}

	header := fmt.Sprintf("[yellow]Pass:[white] %d | [green]Collected:[white] %d | [red]Postponed:[white] %d",
		s.Pass, s.PackagesCollected, s.PackagesPostponed)

	progress := fmt.Sprintf(
		"[green]Clusters negotiated:[white] %d / %d\n"+
			"[red]Backtracks:[white]          %d",
		s.ClustersNegotiated, s.ClustersTotal, s.Backtracks,
	)

	d.app.QueueUpdateDraw(func() {
		d.headerText.SetText(header)
		d.progressText.SetText(progress)
	})
}

func (d *Dashboard) LogEvent(message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.app == nil || d.stopped {
		return
	}

	timestamp := time.Now().Format("15:04:05")
	d.eventLines = append(d.eventLines, fmt.Sprintf("[%s] %s", timestamp, message))
	if len(d.eventLines) > d.maxEventLines {
		d.eventLines = d.eventLines[len(d.eventLines)-d.maxEventLines:]
	}

	text := ""
	for _, line := range d.eventLines {
		text += line + "\n"
	}
	d.app.QueueUpdateDraw(func() {
		d.eventsText.SetText(text)
		d.eventsText.ScrollToEnd()
	})
}

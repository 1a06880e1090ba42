// Package dashboard is a live terminal view of in-flight live-sync
// activity (`nsbuild watch --ui`), grounded on the teacher's own
// interactive TUI (internal/view/presenter_tui.go,
// cmd/internal/view/interactive.go): a tview.Application driving a
// Flex-backed layout, log output suppressed for the TUI's lifetime so
// it cannot corrupt the terminal, and background updates delivered
// through app.QueueUpdateDraw rather than touching widgets directly
// from another goroutine.
package dashboard

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// DeviceState is one device row's current activity.
type DeviceState string

const (
	StateIdle      DeviceState = "idle"
	StateSyncing   DeviceState = "syncing"
	StateDeploying DeviceState = "deploying"
	StateError     DeviceState = "error"
)

// DeviceStatus is one row of the device table.
type DeviceStatus struct {
	DeviceID string
	Platform string
	State    DeviceState
	LastSync time.Time
	Detail   string // last error message, or the file currently transferring
}

// Update is one snapshot the dashboard redraws from. Devices is keyed
// by DeviceID; LogLine, if non-empty, is appended to the scrolling log
// panel.
type Update struct {
	Devices map[string]DeviceStatus
	LogLine string
}

// Dashboard renders Update values delivered over a channel as a
// two-pane TUI: a device status table and a scrolling event log.
type Dashboard struct {
	app         *tview.Application
	table       *tview.Table
	logView     *tview.TextView
	footer      *tview.TextView
	maxLogLines int
	logLines    []string
}

// New constructs a Dashboard. Call Run to start it.
func New() *Dashboard {
	d := &Dashboard{
		app:         tview.NewApplication(),
		table:       tview.NewTable().SetBorders(false).SetSelectable(true, false),
		logView:     tview.NewTextView().SetDynamicColors(true).SetScrollable(true),
		footer:      tview.NewTextView().SetTextAlign(tview.AlignLeft).SetText(" q quit"),
		maxLogLines: 500,
	}
	d.table.SetBorder(true).SetTitle(" Devices ")
	d.logView.SetBorder(true).SetTitle(" Activity ")
	d.renderEmptyTable()
	return d
}

func (d *Dashboard) renderEmptyTable() {
	headers := []string{"Device", "Platform", "State", "Last Sync", "Detail"}
	for col, h := range headers {
		d.table.SetCell(0, col, tview.NewTableCell(h).SetSelectable(false).SetTextColor(tcell.ColorYellow))
	}
}

// Run suppresses the default slog logger for its duration (so a
// concurrently-logging Coordinator can't scribble over the terminal),
// lays out the table above the activity log above a one-line footer,
// and redraws on every Update received from updates until ctx is
// canceled or the user presses q.
func (d *Dashboard) Run(ctx context.Context, updates <-chan Update) error {
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(math.MaxInt),
	})))
	defer slog.SetDefault(prev)

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(d.table, 0, 2, true).
		AddItem(d.logView, 0, 3, false).
		AddItem(d.footer, 1, 0, false)

	d.table.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyRune && event.Rune() == 'q' {
			d.app.Stop()
			return nil
		}
		return event
	})

	go func() {
		for {
			select {
			case <-ctx.Done():
				d.app.Stop()
				return
			case up, ok := <-updates:
				if !ok {
					d.app.Stop()
					return
				}
				d.app.QueueUpdateDraw(func() { d.apply(up) })
			}
		}
	}()

	d.app.SetRoot(layout, true)
	return d.app.Run()
}

// apply mutates the table and log widgets for one Update. Must only be
// called from within a QueueUpdateDraw callback.
func (d *Dashboard) apply(up Update) {
	if up.LogLine != "" {
		d.logLines = append(d.logLines, up.LogLine)
		if len(d.logLines) > d.maxLogLines {
			d.logLines = d.logLines[len(d.logLines)-d.maxLogLines:]
		}
		d.logView.SetText(strings.Join(d.logLines, "\n"))
		d.logView.ScrollToEnd()
	}
	if up.Devices != nil {
		renderDeviceRows(d.table, up.Devices)
	}
}

// renderDeviceRows rewrites the table body (row 0 stays the header) in
// deterministic DeviceID order, so a redraw doesn't jitter the row a
// user has selected.
func renderDeviceRows(table *tview.Table, devices map[string]DeviceStatus) {
	ids := make([]string, 0, len(devices))
	for id := range devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for row := table.GetRowCount() - 1; row >= 1; row-- {
		table.RemoveRow(row)
	}
	for i, id := range ids {
		st := devices[id]
		row := i + 1
		table.SetCell(row, 0, tview.NewTableCell(st.DeviceID))
		table.SetCell(row, 1, tview.NewTableCell(st.Platform))
		table.SetCell(row, 2, tview.NewTableCell(string(st.State)).SetTextColor(colorForState(st.State)))
		lastSync := "-"
		if !st.LastSync.IsZero() {
			lastSync = st.LastSync.Format("15:04:05")
		}
		table.SetCell(row, 3, tview.NewTableCell(lastSync))
		table.SetCell(row, 4, tview.NewTableCell(st.Detail))
	}
}

func colorForState(s DeviceState) tcell.Color {
	switch s {
	case StateError:
		return tcell.ColorRed
	case StateSyncing, StateDeploying:
		return tcell.ColorYellow
	default:
		return tcell.ColorGreen
	}
}

// FormatLogLine is the log-panel line format for one coordinator event;
// cmd/nsbuild's watch command uses it to build the dashboard's log lines.
func FormatLogLine(t time.Time, deviceID, message string) string {
	return fmt.Sprintf("[gray]%s[white] %s: %s", t.Format("15:04:05"), deviceID, message)
}

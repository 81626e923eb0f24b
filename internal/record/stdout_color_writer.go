// ColorStdoutWriter prints human-friendly, colorized rows to STDOUT.
package record

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"droneops-scheduler/internal/protocol"
)

const (
	colorReset   = "\x1b[0m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorWhite   = "\x1b[37m"
	colorGray    = "\x1b[90m"
)

// Overview describes the run being recorded. It is printed once before the
// first row.
type Overview struct {
	EntryName string
	Track     string
	Dialect   string
	Planner   string
	URL       string
}

// ColorStdoutWriter prints rows using ANSI colors.
type ColorStdoutWriter struct {
	ov   *Overview
	out  io.Writer
	once sync.Once
}

// NewColorStdoutWriter creates a ColorStdoutWriter writing to os.Stdout.
func NewColorStdoutWriter(ov *Overview) *ColorStdoutWriter {
	return &ColorStdoutWriter{ov: ov, out: os.Stdout}
}

func (w *ColorStdoutWriter) printOverview() {
	if w.ov == nil {
		return
	}
	fmt.Fprintln(w.out, "Scheduler Configuration:")
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Entry:\t%s\n", w.ov.EntryName)
	fmt.Fprintf(tw, "Track:\t%s\n", w.ov.Track)
	fmt.Fprintf(tw, "Dialect:\t%s\n", w.ov.Dialect)
	fmt.Fprintf(tw, "Planner:\t%s\n", w.ov.Planner)
	if w.ov.URL != "" {
		fmt.Fprintf(tw, "Server:\t%s\n", w.ov.URL)
	}
	tw.Flush()
	fmt.Fprintln(w.out)
}

func stamp(ts time.Time) string {
	return fmt.Sprintf("%s[%s]%s", colorGray, ts.Format(time.RFC3339), colorReset)
}

// FormatLaunches renders a plan as "d1->[o1] d2->[o2,o3]".
func FormatLaunches(ls []protocol.Launch) string {
	if len(ls) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(ls))
	for _, l := range ls {
		ids := make([]string, 0, len(l.OrderIds))
		for _, id := range l.OrderIds {
			ids = append(ids, id.String())
		}
		parts = append(parts, fmt.Sprintf("%s->[%s]", l.DroneId, strings.Join(ids, ",")))
	}
	return strings.Join(parts, " ")
}

func tickLine(row TickRow) string {
	launchColor := colorGreen
	if row.Launched == 0 {
		launchColor = colorGray
	}
	line := fmt.Sprintf("%s %sTICK%s %sscenario=%d%s %stick=%d%s %stime=%d%s %spending=%d%s %savailable=%d%s %slaunched=%d%s %sdecide=%dus%s %s%s%s",
		stamp(row.Timestamp),
		colorBlue, colorReset,
		colorWhite, row.Scenario, colorReset,
		colorWhite, row.Tick, colorReset,
		colorCyan, row.TimeOfDay, colorReset,
		colorYellow, row.Pending, colorReset,
		colorMagenta, row.Available, colorReset,
		launchColor, row.Launched, colorReset,
		colorGray, row.DecisionMicros, colorReset,
		launchColor, FormatLaunches(row.Launches), colorReset,
	)
	if row.DeadlineMissed {
		line += fmt.Sprintf(" %sdeadline-missed%s", colorRed, colorReset)
	}
	return line
}

func eventLine(row EventRow) string {
	c := colorCyan
	switch row.Type {
	case EventViolation, EventMalformed:
		c = colorYellow
	case EventServer, EventChannel:
		c = colorRed
	}
	line := fmt.Sprintf("%s %s%s%s phase=%s", stamp(row.Timestamp), c, strings.ToUpper(string(row.Type)), colorReset, row.Phase)
	if row.Kind != "" {
		line += " kind=" + row.Kind
	}
	if row.Message != "" {
		line += fmt.Sprintf(" msg=%q", row.Message)
	}
	return line
}

func runLine(row RunRow) string {
	c := colorGreen
	if row.Outcome != OutcomeCompleted {
		c = colorRed
	}
	line := fmt.Sprintf("%s %sRUN%s id=%s outcome=%s%s%s scenarios=%d ticks=%d launches=%d violations=%d deadline_misses=%d",
		stamp(row.EndedAt), colorBlue, colorReset, row.RunID, c, row.Outcome, colorReset,
		row.Scenarios, row.Ticks, row.Launches, row.Violations, row.DeadlineMisses)
	if row.Error != "" {
		line += fmt.Sprintf(" err=%q", row.Error)
	}
	return line
}

// WriteTick outputs a single tick row in colorized format.
func (w *ColorStdoutWriter) WriteTick(row TickRow) error {
	w.once.Do(w.printOverview)
	_, err := fmt.Fprintln(w.out, tickLine(row))
	return err
}

// WriteEvent prints a lifecycle event.
func (w *ColorStdoutWriter) WriteEvent(row EventRow) error {
	w.once.Do(w.printOverview)
	_, err := fmt.Fprintln(w.out, eventLine(row))
	return err
}

// WriteStats prints the stats of a finished scenario run as a table.
func (w *ColorStdoutWriter) WriteStats(row StatsRow) error {
	w.once.Do(w.printOverview)
	fmt.Fprintf(w.out, "%s %sSTATS%s scenario=%d\n", stamp(row.Timestamp), colorMagenta, colorReset, row.Scenario)
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	for _, v := range row.Values {
		fmt.Fprintf(tw, "  %s:\t%v\n", v.Label, v.Value)
	}
	return tw.Flush()
}

// WriteRun prints the run summary.
func (w *ColorStdoutWriter) WriteRun(row RunRow) error {
	w.once.Do(w.printOverview)
	_, err := fmt.Fprintln(w.out, runLine(row))
	return err
}

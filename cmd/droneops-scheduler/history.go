package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"droneops-scheduler/internal/history"
	"droneops-scheduler/internal/record"
)

var (
	historyDB    string
	historyLimit int
	historyRun   string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past runs",
	Long:  "history prints the runs recorded in the SQLite history, newest first, or the scenario stats of one run.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := history.Open(historyDB)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer store.Close()

		if historyRun != "" {
			stats, err := store.Stats(cmd.Context(), historyRun)
			if err != nil {
				return err
			}
			return printStats(cmd.OutOrStdout(), historyRun, stats)
		}
		runs, err := store.Runs(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		return printRuns(cmd.OutOrStdout(), runs)
	},
}

var headerStyle = lipgloss.NewStyle().Bold(true)

func printRuns(w io.Writer, runs []record.RunRow) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "no runs recorded")
		return err
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("STARTED", "RUN", "TRACK", "PLANNER", "OUTCOME", "SCENARIOS", "TICKS", "LAUNCHES", "VIOLATIONS", "DURATION").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return lipgloss.NewStyle()
		})
	for _, r := range runs {
		t.Row(
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.RunID,
			r.Track,
			r.Planner,
			outcomeText(r),
			strconv.Itoa(r.Scenarios),
			strconv.Itoa(r.Ticks),
			strconv.Itoa(r.Launches),
			strconv.Itoa(r.Violations),
			r.EndedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
		)
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}

func outcomeText(r record.RunRow) string {
	if r.Error == "" {
		return string(r.Outcome)
	}
	return string(r.Outcome) + ": " + r.Error
}

func printStats(w io.Writer, runID string, stats []record.StatsRow) error {
	if len(stats) == 0 {
		_, err := fmt.Fprintf(w, "no stats recorded for run %s\n", runID)
		return err
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("SCENARIO", "STAT", "VALUE")
	for _, s := range stats {
		for _, v := range s.Values {
			t.Row(strconv.Itoa(s.Scenario), v.Label, fmt.Sprint(v.Value))
		}
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}

func init() {
	historyCmd.Flags().StringVar(&historyDB, "history-db", "droneops-history.db", "SQLite history file")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs to list (0 for all)")
	historyCmd.Flags().StringVar(&historyRun, "run", "", "Show the scenario stats of this run instead")
}

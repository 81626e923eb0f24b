package main

import (
	"fmt"
	"io"
	"reflect"

	"github.com/spf13/cobra"

	"droneops-scheduler/internal/config"
	"droneops-scheduler/internal/logging"
	"droneops-scheduler/internal/planner"
	"droneops-scheduler/internal/protocol"
	"droneops-scheduler/internal/record"
)

var (
	replayInput     string
	replayPlanner   string
	replaySpeed     float64
	replayForward   bool
	replayPrintOnly bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Re-plan a recorded tick log",
	Long:  "replay feeds every recorded state through a planner and prints the ticks where the new plan differs from the recorded one.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		pl, err := planner.ByName(replayPlanner)
		if err != nil {
			return err
		}
		rw := &replanWriter{planner: pl, out: cmd.OutOrStdout()}

		var sink record.TickWriter = rw
		if replayForward {
			log := logging.FromContext(cmd.Context())
			fwd, cleanup, err := newWriters(config.RecordConfig{PrintOnly: replayPrintOnly}, nil, log)
			if err != nil {
				return err
			}
			defer cleanup()
			sink = record.NewMultiWriter(rw, fwd)
		}
		if err := record.ReplayLogFile(replayInput, sink, replaySpeed); err != nil {
			return err
		}
		rw.summary()
		return nil
	},
}

// replanWriter runs each recorded state through a planner and reports
// ticks whose plan changed.
type replanWriter struct {
	planner planner.Planner
	out     io.Writer
	ticks   int
	diffs   int
}

func (w *replanWriter) WriteTick(row record.TickRow) error {
	w.ticks++
	plan := w.planner.Plan(nil, row.State)
	if samePlan(plan, row.Launches) {
		return nil
	}
	w.diffs++
	_, err := fmt.Fprintf(w.out, "scenario %d tick %d (t=%d): recorded %s, replanned %s\n",
		row.Scenario, row.Tick, row.TimeOfDay, record.FormatLaunches(row.Launches), record.FormatLaunches(plan))
	return err
}

func (w *replanWriter) summary() {
	fmt.Fprintf(w.out, "%d ticks replayed, %d differ\n", w.ticks, w.diffs)
}

func samePlan(a, b []protocol.Launch) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to tick log file (JSONL, optionally .zst)")
	replayCmd.Flags().StringVar(&replayPlanner, "planner", planner.PolicyGreedy, "Planner policy to replay with")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 0, "Playback speed multiplier (0 replays without delay)")
	replayCmd.Flags().BoolVar(&replayForward, "forward", false, "Also forward recorded rows to STDOUT or GreptimeDB")
	replayCmd.Flags().BoolVar(&replayPrintOnly, "print-only", false, "Forward to STDOUT even when GREPTIMEDB_ENDPOINT is set")
	replayCmd.MarkFlagRequired("input")
}

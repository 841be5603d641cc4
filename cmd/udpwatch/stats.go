package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"udpwatch/internal/metrics"
	"udpwatch/internal/model"
)

func newStatsCmd(opts *cliOptions) *cobra.Command {
	var window time.Duration
	var path string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the outcome history per channel",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := loadSettings(cmd, opts)
			if err != nil {
				return exitWith(exitFailure, err)
			}
			if path == "" {
				path = settings.HistoryPath
			}
			if path == "" {
				return exitWith(exitFailure, errors.New("history path required (history_path or --path)"))
			}

			items, err := metrics.ReadHistory(path)
			if err != nil {
				return exitWith(exitFailure, err)
			}
			summaries := metrics.Summarize(items, time.Now().UTC().Add(-window))
			out := cmd.OutOrStdout()
			if len(summaries) == 0 {
				fmt.Fprintln(out, "no runs in window")
				return nil
			}
			for _, s := range summaries {
				fmt.Fprintf(out, "%s runs=%d from=%s to=%s\n", s.Channel, s.Count, s.From.Format(time.RFC3339), s.To.Format(time.RFC3339))
				fmt.Fprintf(out, "  healthy=%d remediated=%d not_running=%d degraded=%d\n",
					s.Counts[model.Healthy], s.Counts[model.Remediated], s.Counts[model.NotRunning], s.Counts[model.Degraded])
				fmt.Fprintf(out, "  last=%s pid=%d duration avg=%s p95=%s\n", s.LastOutcome, s.LastPID, s.AvgDuration, s.P95Duration)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&window, "window", 24*time.Hour, "time window")
	cmd.Flags().StringVar(&path, "path", "", "history CSV path override")
	return cmd
}

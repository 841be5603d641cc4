package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"udpwatch/internal/config"
)

func newWatchCmd(opts *cliOptions) *cobra.Command {
	var timeoutSec, probeSec int
	cmd := &cobra.Command{
		Use:     "watch CHANNEL_NAME",
		Short:   "Probe a channel using its definition file",
		Example: "  udpwatch watch RCKTV --timeout 5 --probe-time 10",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 || args[0] == "" {
				return usageError(cmd, fmt.Errorf("expected 1 channel name, got %d arguments", len(args)))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd, opts)
			if err != nil {
				return exitWith(exitFailure, err)
			}
			ch, err := config.FindChannel(settings.ChannelsDir, args[0])
			if errors.Is(err, config.ErrChannelNotFound) {
				return usageError(cmd, err)
			}
			if err != nil {
				return exitWith(exitFailure, err)
			}
			ep, err := ch.Endpoint()
			if err != nil {
				return exitWith(exitFailure, err)
			}

			parsed := checkArgs{
				channel:    ch.Name,
				endpoint:   ep,
				timeoutSec: settings.DefaultTimeoutSec,
				probeSec:   settings.DefaultProbeSec,
			}
			if cmd.Flags().Changed("timeout") {
				parsed.timeoutSec = timeoutSec
			}
			if cmd.Flags().Changed("probe-time") {
				parsed.probeSec = probeSec
			}
			if parsed.timeoutSec <= 0 || parsed.probeSec <= 0 {
				return usageError(cmd, errors.New("--timeout and --probe-time must be positive"))
			}
			return probeChannel(cmd, opts, settings, parsed)
		},
	}
	cmd.Flags().IntVar(&timeoutSec, "timeout", config.DefaultTimeoutSec, "per-receive timeout in seconds")
	cmd.Flags().IntVar(&probeSec, "probe-time", config.DefaultProbeSec, "total probe duration in seconds")
	return cmd
}

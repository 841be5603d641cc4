package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"udpwatch/internal/config"
)

func newChannelsCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "channels",
		Short: "List channel definitions and the PID producing each one",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := loadSettings(cmd, opts)
			if err != nil {
				return exitWith(exitFailure, err)
			}
			channels, err := config.LoadChannels(settings.ChannelsDir)
			if err != nil {
				return exitWith(exitFailure, err)
			}
			loc, err := opts.newLocator(settings, zap.NewNop())
			if err != nil {
				return exitWith(exitFailure, err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CHANNEL\tENDPOINT\tPID\tCODEC")
			for _, ch := range channels {
				ep, err := ch.Endpoint()
				if err != nil {
					fmt.Fprintf(w, "%s\t%s:%d\tinvalid\t%s\n", ch.Name, ch.McastIP, ch.McastPort, ch.Codec)
					continue
				}
				pid := "-"
				if handle := loc.Locate(cmd.Context(), ep); handle.Found() {
					pid = fmt.Sprint(handle.PID)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ch.Name, ep, pid, ch.Codec)
			}
			return w.Flush()
		},
	}
}

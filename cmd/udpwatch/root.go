package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"udpwatch/internal/config"
	"udpwatch/internal/locator"
	"udpwatch/internal/model"
	"udpwatch/internal/probe"
	"udpwatch/internal/watchdog"
)

type cliOptions struct {
	configPath       string
	logDir           string
	lockDir          string
	logLevel         string
	console          bool
	outcomeExitCodes bool

	// Overrides for tests; nil selects the production implementation.
	locator locator.Locator
	opener  probe.Opener
	killer  watchdog.Killer
}

func newRootCommand() *cobra.Command {
	return newRootCommandWith(&cliOptions{})
}

func newRootCommandWith(opts *cliOptions) *cobra.Command {
	root := &cobra.Command{
		Use:           "udpwatch CHANNEL_NAME MCAST_IP MCAST_PORT UDP_DATA_TIMEOUT PROBE_TIME",
		Short:         "Kill a transcoder whose multicast output has stopped",
		Example:       "  udpwatch RCKTV 239.255.14.5 3199 5 10",
		Args:          checkArgsValidator,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, opts, args)
		},
	}
	root.SetFlagErrorFunc(usageError)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to settings YAML")
	flags.StringVar(&opts.logDir, "log-dir", "", "log directory (overrides log_dir)")
	flags.StringVar(&opts.lockDir, "lock-dir", "", "lock directory (overrides lock_dir)")
	flags.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (overrides log_level)")
	flags.BoolVar(&opts.console, "console", false, "also log to stderr")
	flags.BoolVar(&opts.outcomeExitCodes, "outcome-exit-codes", false, "exit 3 remediated, 4 not running, 5 degraded")

	root.AddCommand(
		newCheckCmd(opts),
		newWatchCmd(opts),
		newChannelsCmd(opts),
		newStatsCmd(opts),
	)
	return root
}

func newCheckCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "check CHANNEL_NAME MCAST_IP MCAST_PORT UDP_DATA_TIMEOUT PROBE_TIME",
		Short:   "Probe an explicit multicast endpoint once",
		Example: "  udpwatch check RCKTV 239.255.14.5 3199 5 10",
		Args:    checkArgsValidator,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, opts, args)
		},
	}
}

type checkArgs struct {
	channel    string
	endpoint   model.Endpoint
	timeoutSec int
	probeSec   int
}

func checkArgsValidator(cmd *cobra.Command, args []string) error {
	if _, err := parseCheckArgs(args); err != nil {
		return usageError(cmd, err)
	}
	return nil
}

func parseCheckArgs(args []string) (checkArgs, error) {
	if len(args) != 5 {
		return checkArgs{}, fmt.Errorf("expected 5 arguments, got %d", len(args))
	}
	if args[0] == "" {
		return checkArgs{}, errors.New("channel name is empty")
	}
	port, err := strconv.Atoi(args[2])
	if err != nil {
		return checkArgs{}, fmt.Errorf("MCAST_PORT %q is not a number", args[2])
	}
	ep, err := model.NewEndpoint(args[1], port)
	if err != nil {
		return checkArgs{}, err
	}
	timeout, err := positiveSeconds("UDP_DATA_TIMEOUT", args[3])
	if err != nil {
		return checkArgs{}, err
	}
	probeTime, err := positiveSeconds("PROBE_TIME", args[4])
	if err != nil {
		return checkArgs{}, err
	}
	return checkArgs{channel: args[0], endpoint: ep, timeoutSec: timeout, probeSec: probeTime}, nil
}

func positiveSeconds(name, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s %q must be a positive number of seconds", name, value)
	}
	return n, nil
}

func runCheck(cmd *cobra.Command, opts *cliOptions, args []string) error {
	parsed, err := parseCheckArgs(args)
	if err != nil {
		return usageError(cmd, err)
	}
	settings, err := loadSettings(cmd, opts)
	if err != nil {
		return exitWith(exitFailure, err)
	}
	return probeChannel(cmd, opts, settings, parsed)
}

// loadSettings reads the settings file and applies explicitly set flags on top.
func loadSettings(cmd *cobra.Command, opts *cliOptions) (config.Settings, error) {
	settings, err := config.Load(opts.configPath)
	if err != nil {
		return config.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "log-dir":
			settings.LogDir = opts.logDir
		case "lock-dir":
			settings.LockDir = opts.lockDir
		case "log-level":
			settings.LogLevel = opts.logLevel
		}
	})
	if err := config.Validate(settings); err != nil {
		return config.Settings{}, err
	}
	return settings, nil
}

func (o *cliOptions) newLocator(settings config.Settings, logger *zap.Logger) (locator.Locator, error) {
	if o.locator != nil {
		return o.locator, nil
	}
	return locator.New(settings.Locator, logger)
}

func (o *cliOptions) newOpener(settings config.Settings) probe.Opener {
	if o.opener != nil {
		return o.opener
	}
	return probe.MulticastOpener{Interface: settings.Interface}
}

func (o *cliOptions) newKiller() watchdog.Killer {
	if o.killer != nil {
		return o.killer
	}
	return watchdog.SignalKiller{}
}

func signalAwareContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

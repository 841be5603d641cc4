package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"udpwatch/internal/config"
	"udpwatch/internal/lock"
	"udpwatch/internal/logging"
	"udpwatch/internal/metrics"
	"udpwatch/internal/model"
	"udpwatch/internal/watchdog"
)

// probeChannel runs one watchdog cycle under the channel lock.
func probeChannel(cmd *cobra.Command, opts *cliOptions, settings config.Settings, args checkArgs) error {
	logger, cleanup, err := logging.New(logging.Options{
		Dir:     settings.LogDir,
		Level:   settings.LogLevel,
		Console: opts.console,
	})
	if err != nil {
		return exitWith(exitFailure, err)
	}
	defer cleanup()

	fields := []zap.Field{zap.String("channel", args.channel), zap.Stringer("endpoint", args.endpoint)}

	held, err := lock.Acquire(settings.LockDir, args.channel)
	if errors.Is(err, lock.ErrHeld) {
		logger.Warn(fmt.Sprintf("%s Script is already running - exiting...", args.channel), fields...)
		return nil
	}
	if err != nil {
		logger.Error("cannot take channel lock", append(fields, zap.Error(err))...)
		return exitWith(exitFailure, err)
	}
	defer func() {
		if err := held.Release(); err != nil {
			logger.Warn("release channel lock", append(fields, zap.Error(err))...)
		}
	}()

	loc, err := opts.newLocator(settings, logger)
	if err != nil {
		return exitWith(exitFailure, err)
	}
	cycle := &watchdog.Cycle{
		Locator: loc,
		Opener:  opts.newOpener(settings),
		Killer:  opts.newKiller(),
		Logger:  logger,
	}

	ctx, cancel := signalAwareContext(cmd.Context())
	defer cancel()

	started := time.Now()
	outcome, err := cycle.Run(ctx, watchdog.Request{
		Channel:        args.channel,
		Endpoint:       args.endpoint,
		ReceiveTimeout: time.Duration(args.timeoutSec) * time.Second,
		ProbeTime:      time.Duration(args.probeSec) * time.Second,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info(fmt.Sprintf("%s Script terminated", args.channel), fields...)
			return exitSilent(exitInterrupted)
		}
		return exitWith(exitFailure, err)
	}

	recordOutcome(settings, model.HistoryRecord{
		Timestamp: started.UTC(),
		Channel:   args.channel,
		Endpoint:  args.endpoint.String(),
		Outcome:   outcome.Kind,
		PID:       outcome.PID,
		Bytes:     outcome.Bytes,
		Duration:  time.Since(started),
		Reason:    errString(outcome.Err),
	}, logger.With(fields...))

	if opts.outcomeExitCodes {
		if code := outcomeExitCode(outcome.Kind); code != exitOK {
			return exitSilent(code)
		}
	}
	return nil
}

// recordOutcome persists the run. Failures are logged and do not change
// the exit status.
func recordOutcome(settings config.Settings, record model.HistoryRecord, logger *zap.Logger) {
	if settings.HistoryPath != "" {
		if err := metrics.AppendHistory(settings.HistoryPath, []model.HistoryRecord{record}); err != nil {
			logger.Warn("append outcome history", zap.String("path", settings.HistoryPath), zap.Error(err))
		}
	}
	if settings.MetricsDir != "" {
		if err := metrics.WriteTextfile(settings.MetricsDir, record); err != nil {
			logger.Warn("write metrics textfile", zap.String("dir", settings.MetricsDir), zap.Error(err))
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

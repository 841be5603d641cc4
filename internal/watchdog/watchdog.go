package watchdog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"udpwatch/internal/locator"
	"udpwatch/internal/logging"
	"udpwatch/internal/model"
	"udpwatch/internal/probe"
)

// ErrInvalidRequest is returned for non-positive timeouts or a zero endpoint.
var ErrInvalidRequest = errors.New("invalid watchdog request")

// Killer terminates a process.
type Killer interface {
	Kill(pid int) error
}

// SignalKiller sends SIGKILL. The producer gets no chance to clean up.
type SignalKiller struct{}

func (SignalKiller) Kill(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("refusing to signal pid %d", pid)
	}
	return unix.Kill(pid, unix.SIGKILL)
}

// Request describes one probe cycle.
type Request struct {
	Channel        string
	Endpoint       model.Endpoint
	ReceiveTimeout time.Duration
	ProbeTime      time.Duration
}

func (r Request) validate() error {
	if r.Endpoint.IsZero() {
		return fmt.Errorf("%w: endpoint required", ErrInvalidRequest)
	}
	if r.ReceiveTimeout <= 0 {
		return fmt.Errorf("%w: receive timeout must be positive", ErrInvalidRequest)
	}
	if r.ProbeTime <= 0 {
		return fmt.Errorf("%w: probe time must be positive", ErrInvalidRequest)
	}
	return nil
}

// window is the longest a receive may block: the per-receive timeout,
// capped by the total probe budget.
func (r Request) window() time.Duration {
	return min(r.ReceiveTimeout, r.ProbeTime)
}

// Cycle runs the locate, listen, relocate and kill sequence for one channel.
type Cycle struct {
	Locator locator.Locator
	Opener  probe.Opener
	Killer  Killer
	Logger  *zap.Logger
}

// Run executes one cycle. The error is non-nil only for an invalid request
// or when ctx is cancelled mid-probe; every other result is an Outcome.
func (c *Cycle) Run(ctx context.Context, req Request) (model.Outcome, error) {
	if err := req.validate(); err != nil {
		return model.Outcome{}, err
	}
	logger := c.logger().With(zap.String("channel", req.Channel), zap.Stringer("endpoint", req.Endpoint))
	logger.Debug("check output started")

	handle := c.Locator.Locate(ctx, req.Endpoint)
	if err := ctx.Err(); err != nil {
		return model.Outcome{}, fmt.Errorf("probe interrupted: %w", err)
	}
	if !handle.Found() {
		logger.Error(fmt.Sprintf("%s %s is not running", req.Channel, req.Endpoint))
		return model.NotRunningOutcome(), nil
	}
	pid := handle.PID
	logger.Debug(fmt.Sprintf("%s PID %d is already running with %s", req.Channel, pid, req.Endpoint), zap.Int("pid", pid))

	silent, outcome, err := c.listen(ctx, logger, req, pid)
	if err != nil || !silent {
		return outcome, err
	}

	// The producer may have died on its own while we listened; act on what
	// is running now, not on the pid seen before the probe.
	handle = c.Locator.Locate(ctx, req.Endpoint)
	if err := ctx.Err(); err != nil {
		return model.Outcome{}, fmt.Errorf("probe interrupted: %w", err)
	}
	if !handle.Found() {
		logger.Error(fmt.Sprintf("%s %s is not running", req.Channel, req.Endpoint), zap.Int("previous_pid", pid))
		return model.NotRunningOutcome(), nil
	}
	return c.kill(logger, req, handle.PID), nil
}

// listen probes the endpoint. silent is true when the receive timed out and
// the caller should move on to remediation.
func (c *Cycle) listen(ctx context.Context, logger *zap.Logger, req Request, pid int) (bool, model.Outcome, error) {
	pidField := zap.Int("pid", pid)
	if err := ctx.Err(); err != nil {
		return false, model.Outcome{}, fmt.Errorf("probe interrupted: %w", err)
	}

	conn, err := c.Opener.Open(ctx, req.Endpoint, req.window())
	if err != nil {
		logger.Error(fmt.Sprintf("%s cannot open UDP socket", req.Channel), pidField, zap.Error(err))
		return false, model.DegradedOutcome(pid, err), nil
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Debug("close UDP socket", zap.Error(closeErr))
		}
	}()

	// The first datagram settles the question and a single missed window is
	// the failure being watched for, so one receive decides the probe.
	res := conn.Receive(ctx)
	switch res.Kind {
	case model.ProbeData:
		logger.Debug(fmt.Sprintf("%s PID %d Received %d bytes on %s", req.Channel, pid, res.Bytes, req.Endpoint),
			pidField, zap.Int("bytes", res.Bytes), zap.Int("ts_packets", res.TSPackets))
		logging.Normal(logger, fmt.Sprintf("%s PID %d is running with %s", req.Channel, pid, req.Endpoint),
			pidField, zap.Int("bytes", res.Bytes), zap.Int("ts_packets", res.TSPackets))
		return false, model.HealthyOutcome(pid, res.Bytes), nil
	case model.ProbeTimeout:
		logger.Error(fmt.Sprintf("%s PID %d - No mcast output on %s", req.Channel, pid, req.Endpoint),
			pidField, zap.Duration("timeout", req.window()))
		return true, model.Outcome{}, nil
	default:
		if ctxErr := ctx.Err(); ctxErr != nil {
			logger.Info("closing UDP socket", pidField)
			return false, model.Outcome{}, fmt.Errorf("probe interrupted: %w", ctxErr)
		}
		logger.Error(fmt.Sprintf("%s Socket error", req.Channel), pidField, zap.Error(res.Err))
		return false, model.DegradedOutcome(pid, res.Err), nil
	}
}

func (c *Cycle) kill(logger *zap.Logger, req Request, pid int) model.Outcome {
	logger.Warn(fmt.Sprintf("%s Killing PID %d", req.Channel, pid), zap.Int("pid", pid))
	if err := c.Killer.Kill(pid); err != nil {
		logger.Error(fmt.Sprintf("%s kill PID %d failed", req.Channel, pid), zap.Int("pid", pid), zap.Error(err))
		return model.RemediatedOutcome(pid, err)
	}
	return model.RemediatedOutcome(pid, nil)
}

func (c *Cycle) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

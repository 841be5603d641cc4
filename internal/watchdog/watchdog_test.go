package watchdog

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"udpwatch/internal/locator"
	"udpwatch/internal/logging"
	"udpwatch/internal/model"
	"udpwatch/internal/probe"
)

// scriptedLocator returns one handle per call, then absent.
type scriptedLocator struct {
	pids  []int
	calls int
}

func (l *scriptedLocator) Locate(_ context.Context, _ model.Endpoint) model.ProcessHandle {
	l.calls++
	if len(l.pids) == 0 {
		return model.ProcessHandle{}
	}
	pid := l.pids[0]
	l.pids = l.pids[1:]
	return model.ProcessHandle{PID: pid}
}

type fakeConn struct {
	results  []model.ProbeResult
	block    bool
	receives int
	closed   int
}

func (c *fakeConn) Receive(ctx context.Context) model.ProbeResult {
	c.receives++
	if c.block {
		<-ctx.Done()
		return model.Errored(ctx.Err())
	}
	if len(c.results) == 0 {
		return model.TimedOut()
	}
	res := c.results[0]
	c.results = c.results[1:]
	return res
}

func (c *fakeConn) Close() error {
	c.closed++
	return nil
}

type fakeOpener struct {
	conn     *fakeConn
	err      error
	opens    int
	timeouts []time.Duration
}

func (o *fakeOpener) Open(_ context.Context, _ model.Endpoint, timeout time.Duration) (probe.Conn, error) {
	o.opens++
	o.timeouts = append(o.timeouts, timeout)
	if o.err != nil {
		return nil, o.err
	}
	return o.conn, nil
}

type recordKiller struct {
	pids []int
	err  error
}

func (k *recordKiller) Kill(pid int) error {
	k.pids = append(k.pids, pid)
	return k.err
}

var (
	_ locator.Locator = (*scriptedLocator)(nil)
	_ probe.Opener    = (*fakeOpener)(nil)
	_ Killer          = (*recordKiller)(nil)
)

type harness struct {
	locator *scriptedLocator
	opener  *fakeOpener
	killer  *recordKiller
	logs    *observer.ObservedLogs
	cycle   *Cycle
}

func newHarness(pids []int, conn *fakeConn) *harness {
	core, logs := observer.New(zapcore.DebugLevel)
	h := &harness{
		locator: &scriptedLocator{pids: pids},
		opener:  &fakeOpener{conn: conn},
		killer:  &recordKiller{},
		logs:    logs,
	}
	h.cycle = &Cycle{Locator: h.locator, Opener: h.opener, Killer: h.killer, Logger: zap.New(core)}
	return h
}

func request(t *testing.T) Request {
	t.Helper()
	ep, err := model.NewEndpoint("239.255.14.5", 3199)
	require.NoError(t, err)
	return Request{Channel: "RCKTV", Endpoint: ep, ReceiveTimeout: 5 * time.Second, ProbeTime: 10 * time.Second}
}

func TestRun_HealthyWhenDatagramArrives(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{results: []model.ProbeResult{model.DataReceived(500, 0)}}
	h := newHarness([]int{4242}, conn)

	out, err := h.cycle.Run(context.Background(), request(t))
	require.NoError(t, err)
	assert.Equal(t, model.Healthy, out.Kind)
	assert.Equal(t, 4242, out.PID)
	assert.Equal(t, 500, out.Bytes)
	assert.Empty(t, h.killer.pids)
	assert.Equal(t, 1, conn.closed)
	assert.Equal(t, 1, h.locator.calls)

	normal := h.logs.FilterField(zap.String("severity", logging.SeverityNormal)).All()
	require.Len(t, normal, 1)
	ctx := normal[0].ContextMap()
	assert.Equal(t, "RCKTV", ctx["channel"])
	assert.Equal(t, "239.255.14.5:3199", ctx["endpoint"])
	assert.EqualValues(t, 4242, ctx["pid"])
	assert.EqualValues(t, 500, ctx["bytes"])
}

func TestRun_TimeoutKillsCurrentPID(t *testing.T) {
	t.Parallel()

	h := newHarness([]int{4242, 4242}, &fakeConn{results: []model.ProbeResult{model.TimedOut()}})

	out, err := h.cycle.Run(context.Background(), request(t))
	require.NoError(t, err)
	assert.Equal(t, model.Remediated, out.Kind)
	assert.Equal(t, 4242, out.PID)
	assert.Equal(t, []int{4242}, h.killer.pids)
	assert.Equal(t, 2, h.locator.calls)

	warn := h.logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warn, 1)
	assert.Equal(t, "RCKTV Killing PID 4242", warn[0].Message)
}

func TestRun_TimeoutKillsRestartedPID(t *testing.T) {
	t.Parallel()

	h := newHarness([]int{100, 200}, &fakeConn{})

	out, err := h.cycle.Run(context.Background(), request(t))
	require.NoError(t, err)
	assert.Equal(t, model.Remediated, out.Kind)
	assert.Equal(t, 200, out.PID)
	assert.Equal(t, []int{200}, h.killer.pids)
}

func TestRun_TimeoutAfterProducerExitedIsNotRunning(t *testing.T) {
	t.Parallel()

	h := newHarness([]int{100}, &fakeConn{})

	out, err := h.cycle.Run(context.Background(), request(t))
	require.NoError(t, err)
	assert.Equal(t, model.NotRunning, out.Kind)
	assert.Empty(t, h.killer.pids)
	assert.Equal(t, 2, h.locator.calls)
}

func TestRun_NoProcessOpensNoSocket(t *testing.T) {
	t.Parallel()

	h := newHarness(nil, &fakeConn{})

	out, err := h.cycle.Run(context.Background(), request(t))
	require.NoError(t, err)
	assert.Equal(t, model.NotRunning, out.Kind)
	assert.Zero(t, h.opener.opens)
	assert.Empty(t, h.killer.pids)

	errs := h.logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, errs, 1)
	assert.Equal(t, "RCKTV 239.255.14.5:3199 is not running", errs[0].Message)
}

func TestRun_BindErrorIsDegraded(t *testing.T) {
	t.Parallel()

	h := newHarness([]int{4242, 4242}, nil)
	h.opener.err = &probe.BindError{Addr: "0.0.0.0:3199", Err: syscall.EADDRINUSE}

	out, err := h.cycle.Run(context.Background(), request(t))
	require.NoError(t, err)
	assert.Equal(t, model.Degraded, out.Kind)
	var bindErr *probe.BindError
	assert.ErrorAs(t, out.Err, &bindErr)
	assert.Empty(t, h.killer.pids)
	assert.Equal(t, 1, h.locator.calls)
}

func TestRun_JoinErrorIsDegraded(t *testing.T) {
	t.Parallel()

	h := newHarness([]int{4242, 4242}, nil)
	h.opener.err = &probe.JoinError{Group: "239.255.14.5", Err: syscall.ENODEV}

	out, err := h.cycle.Run(context.Background(), request(t))
	require.NoError(t, err)
	assert.Equal(t, model.Degraded, out.Kind)
	assert.Equal(t, 4242, out.PID)
	var joinErr *probe.JoinError
	assert.ErrorAs(t, out.Err, &joinErr)
	assert.Empty(t, h.killer.pids)
	assert.Equal(t, 1, h.locator.calls)
	assert.Equal(t, 1, h.logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestRun_InterruptDuringLookupIsNotReportedAsNotRunning(t *testing.T) {
	t.Parallel()

	h := newHarness(nil, &fakeConn{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := h.cycle.Run(ctx, request(t))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, model.Outcome{}, out)
	assert.Equal(t, 1, h.locator.calls)
	assert.Zero(t, h.opener.opens)
	assert.Zero(t, h.logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestRun_SocketErrorNeverKills(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{results: []model.ProbeResult{model.Errored(syscall.ECONNREFUSED)}}
	h := newHarness([]int{4242, 4242}, conn)

	out, err := h.cycle.Run(context.Background(), request(t))
	require.NoError(t, err)
	assert.Equal(t, model.Degraded, out.Kind)
	assert.ErrorIs(t, out.Err, syscall.ECONNREFUSED)
	assert.Empty(t, h.killer.pids)
	assert.Equal(t, 1, conn.closed)
}

func TestRun_InterruptReleasesSocket(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{block: true}
	h := newHarness([]int{4242, 4242}, conn)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := h.cycle.Run(ctx, request(t))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, conn.closed)
	assert.Empty(t, h.killer.pids)
	assert.Equal(t, 1, h.logs.FilterMessage("closing UDP socket").Len())
}

func TestRun_KillFailureStillRemediated(t *testing.T) {
	t.Parallel()

	h := newHarness([]int{4242, 4242}, &fakeConn{})
	h.killer.err = syscall.ESRCH

	out, err := h.cycle.Run(context.Background(), request(t))
	require.NoError(t, err)
	assert.Equal(t, model.Remediated, out.Kind)
	assert.ErrorIs(t, out.Err, syscall.ESRCH)
}

func TestRun_ReceiveWindowCappedByProbeTime(t *testing.T) {
	t.Parallel()

	h := newHarness([]int{1}, &fakeConn{results: []model.ProbeResult{model.DataReceived(1, 0)}})
	req := request(t)
	req.ReceiveTimeout = 30 * time.Second
	req.ProbeTime = 3 * time.Second

	_, err := h.cycle.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{3 * time.Second}, h.opener.timeouts)
}

func TestRun_InvalidRequest(t *testing.T) {
	t.Parallel()

	h := newHarness([]int{1}, &fakeConn{})
	req := request(t)
	req.ProbeTime = 0

	_, err := h.cycle.Run(context.Background(), req)
	assert.True(t, errors.Is(err, ErrInvalidRequest))
	assert.Zero(t, h.locator.calls)

	_, err = h.cycle.Run(context.Background(), Request{ReceiveTimeout: time.Second, ProbeTime: time.Second})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSignalKiller_RejectsNonPositivePID(t *testing.T) {
	t.Parallel()

	assert.Error(t, SignalKiller{}.Kill(0))
	assert.Error(t, SignalKiller{}.Kill(-1))
}

package model

import (
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"time"
)

var (
	ErrNotMulticast = errors.New("address is not an IPv4 multicast group")
	ErrInvalidPort  = errors.New("port must be in range 1-65535")
)

// Endpoint is a multicast group and UDP port identifying one stream.
// The locator and the probe socket must be keyed by the same Endpoint.
type Endpoint struct {
	ip   netip.Addr
	port int
}

// NewEndpoint validates ip and port and returns an immutable Endpoint.
func NewEndpoint(ip string, port int) (Endpoint, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parse multicast ip %q: %w", ip, err)
	}
	if !addr.Is4() || !addr.IsMulticast() {
		return Endpoint{}, fmt.Errorf("%s: %w", addr, ErrNotMulticast)
	}
	if port < 1 || port > 65535 {
		return Endpoint{}, fmt.Errorf("%d: %w", port, ErrInvalidPort)
	}
	return Endpoint{ip: addr, port: port}, nil
}

func (e Endpoint) IP() netip.Addr { return e.ip }

func (e Endpoint) Port() int { return e.port }

// Pattern is the literal "<ip>:<port>" a producer's command line must contain.
func (e Endpoint) Pattern() string {
	return e.ip.String() + ":" + strconv.Itoa(e.port)
}

func (e Endpoint) String() string { return e.Pattern() }

// IsZero reports whether e was never constructed.
func (e Endpoint) IsZero() bool { return !e.ip.IsValid() }

// ProcessHandle is the result of one process lookup. PID 0 means absent.
type ProcessHandle struct {
	PID int
}

// Found reports whether a process was located.
func (h ProcessHandle) Found() bool { return h.PID > 0 }

type ProbeKind int

const (
	ProbeData ProbeKind = iota
	ProbeTimeout
	ProbeError
)

func (k ProbeKind) String() string {
	switch k {
	case ProbeData:
		return "data"
	case ProbeTimeout:
		return "timeout"
	case ProbeError:
		return "error"
	default:
		return "unknown"
	}
}

// ProbeResult is the outcome of a single blocking receive.
type ProbeResult struct {
	Kind      ProbeKind
	Bytes     int
	TSPackets int // MPEG-TS packets recognised in the payload
	Err       error
}

func DataReceived(n, tsPackets int) ProbeResult {
	return ProbeResult{Kind: ProbeData, Bytes: n, TSPackets: tsPackets}
}

func TimedOut() ProbeResult { return ProbeResult{Kind: ProbeTimeout} }

func Errored(err error) ProbeResult { return ProbeResult{Kind: ProbeError, Err: err} }

type OutcomeKind int

const (
	Healthy OutcomeKind = iota
	Remediated
	NotRunning
	Degraded
)

func (k OutcomeKind) String() string {
	switch k {
	case Healthy:
		return "healthy"
	case Remediated:
		return "remediated"
	case NotRunning:
		return "not_running"
	case Degraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// OutcomeKinds lists every terminal classification in a stable order.
var OutcomeKinds = []OutcomeKind{Healthy, Remediated, NotRunning, Degraded}

// ParseOutcomeKind is the inverse of OutcomeKind.String.
func ParseOutcomeKind(s string) (OutcomeKind, error) {
	for _, k := range OutcomeKinds {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown outcome %q", s)
}

// Outcome is the final, loggable result of one watchdog invocation.
type Outcome struct {
	Kind  OutcomeKind
	PID   int
	Bytes int
	Err   error
}

func HealthyOutcome(pid, bytes int) Outcome { return Outcome{Kind: Healthy, PID: pid, Bytes: bytes} }

func RemediatedOutcome(pid int, err error) Outcome {
	return Outcome{Kind: Remediated, PID: pid, Err: err}
}

func NotRunningOutcome() Outcome { return Outcome{Kind: NotRunning} }

func DegradedOutcome(pid int, err error) Outcome {
	return Outcome{Kind: Degraded, PID: pid, Err: err}
}

// HistoryRecord is one row of the outcome history.
type HistoryRecord struct {
	Timestamp time.Time
	Channel   string
	Endpoint  string
	Outcome   OutcomeKind
	PID       int
	Bytes     int
	Duration  time.Duration
	Reason    string
}

package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"

	"udpwatch/internal/model"
)

// recvBufferSize matches the largest datagram a transcoder is expected to emit.
const recvBufferSize = 10240

// BindError means the wildcard bind on the endpoint port failed, usually
// because another listener holds the port without SO_REUSEADDR.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string { return fmt.Sprintf("bind %s: %v", e.Addr, e.Err) }

func (e *BindError) Unwrap() error { return e.Err }

// JoinError means the multicast group could not be joined.
type JoinError struct {
	Group string
	Err   error
}

func (e *JoinError) Error() string { return fmt.Sprintf("join group %s: %v", e.Group, e.Err) }

func (e *JoinError) Unwrap() error { return e.Err }

// Conn is an open probe socket. Close must be called on every path.
type Conn interface {
	Receive(ctx context.Context) model.ProbeResult
	Close() error
}

// Opener acquires probe sockets for an endpoint.
type Opener interface {
	Open(ctx context.Context, ep model.Endpoint, timeout time.Duration) (Conn, error)
}

// MulticastOpener opens real multicast receivers. Interface selects the
// NIC used for the group join; empty lets the kernel route it.
type MulticastOpener struct {
	Interface string
}

func (o MulticastOpener) Open(ctx context.Context, ep model.Endpoint, timeout time.Duration) (Conn, error) {
	r, err := Open(ctx, ep, timeout, o.Interface)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Receiver is a UDP socket bound to the endpoint port and joined to its group.
type Receiver struct {
	conn    *net.UDPConn
	pc      *ipv4.PacketConn
	ifi     *net.Interface
	group   *net.UDPAddr
	timeout time.Duration
	buf     []byte

	closeOnce sync.Once
	closeErr  error
}

// Open binds 0.0.0.0:<port> with SO_REUSEADDR and joins ep's group.
func Open(ctx context.Context, ep model.Endpoint, timeout time.Duration, ifaceName string) (*Receiver, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("receive timeout must be positive, got %s", timeout)
	}

	var ifi *net.Interface
	group := &net.UDPAddr{IP: net.IP(ep.IP().AsSlice()), Port: ep.Port()}
	if ifaceName != "" {
		var err error
		ifi, err = net.InterfaceByName(ifaceName)
		if err != nil {
			return nil, &JoinError{Group: group.IP.String(), Err: err}
		}
	}

	addr := net.JoinHostPort("0.0.0.0", strconv.Itoa(ep.Port()))
	lc := net.ListenConfig{Control: reuseAddr}
	pconn, err := lc.ListenPacket(ctx, "udp4", addr)
	if err != nil {
		return nil, &BindError{Addr: addr, Err: err}
	}
	conn := pconn.(*net.UDPConn)

	pc := ipv4.NewPacketConn(conn)
	if err := pc.JoinGroup(ifi, group); err != nil {
		_ = conn.Close()
		return nil, &JoinError{Group: group.IP.String(), Err: err}
	}

	return &Receiver{
		conn:    conn,
		pc:      pc,
		ifi:     ifi,
		group:   group,
		timeout: timeout,
		buf:     make([]byte, recvBufferSize),
	}, nil
}

func reuseAddr(_, _ string, c syscall.RawConn) error {
	var sockErr error
	if err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	}); err != nil {
		return err
	}
	return sockErr
}

// LocalAddr returns the bound address.
func (r *Receiver) LocalAddr() net.Addr {
	return r.conn.LocalAddr()
}

// Receive waits up to the receive timeout for one datagram. Cancelling ctx
// aborts the wait and yields an error result carrying ctx.Err().
func (r *Receiver) Receive(ctx context.Context) model.ProbeResult {
	if err := ctx.Err(); err != nil {
		return model.Errored(err)
	}
	if err := r.conn.SetReadDeadline(time.Now().Add(r.timeout)); err != nil {
		return model.Errored(err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = r.conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	n, _, err := r.conn.ReadFrom(r.buf)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.Errored(ctxErr)
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return model.TimedOut()
		}
		return model.Errored(err)
	}
	return model.DataReceived(n, countTSPackets(r.buf[:n]))
}

// Close leaves the group and closes the socket. Safe to call more than once.
func (r *Receiver) Close() error {
	r.closeOnce.Do(func() {
		leaveErr := r.pc.LeaveGroup(r.ifi, r.group)
		closeErr := r.conn.Close()
		if closeErr != nil {
			r.closeErr = closeErr
		} else if leaveErr != nil && !errors.Is(leaveErr, net.ErrClosed) {
			r.closeErr = fmt.Errorf("leave group %s: %w", r.group.IP, leaveErr)
		}
	})
	return r.closeErr
}

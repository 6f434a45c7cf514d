package mnet

import (
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/hurricane1026/mnet/endpoint"
	merrors "github.com/hurricane1026/mnet/errors"
	"github.com/hurricane1026/mnet/internal/callback"
	"github.com/hurricane1026/mnet/internal/verify"
	"github.com/hurricane1026/mnet/netstate"
)

// ConnState is a ClientSocket's position in its connect state machine.
type ConnState int32

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

// ConnectCallback receives (socket, resulting state) once a non-blocking
// connect either completes or fails.
type ConnectCallback func(s *ClientSocket, state netstate.NetState)

// ClientSocket extends Socket with a three-state connect machine:
// DISCONNECTED -> CONNECTING -> CONNECTED.
type ClientSocket struct {
	*Socket
	state  ConnState
	connCB callback.Holder[ConnectCallback]
}

// NewClientSocket allocates a ClientSocket bound to m, initially
// Disconnected.
func NewClientSocket(m *IOManager) *ClientSocket {
	return &ClientSocket{Socket: NewSocket(m), state: Disconnected}
}

// State returns the current connect-state-machine position.
func (c *ClientSocket) State() ConnState { return c.state }

// AsyncConnect creates a non-blocking TCP socket with TCP_NODELAY and
// SO_REUSEADDR set, initiates connect(2) toward ep, and arms for write
// readiness — the edge that signals connect completion on Linux. cb fires
// exactly once, either from this call (on an immediate non-EINPROGRESS
// failure) or later from OnWriteNotify/OnException.
func (c *ClientSocket) AsyncConnect(ep endpoint.Endpoint, cb ConnectCallback) error {
	if c.state != Disconnected {
		return merrors.ErrAlreadyConnecting
	}

	fd, err := newNonblockingCloexecFD(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return err
	}
	setTCPNoDelay(fd)
	setReuseAddr(fd)
	if c.manager.opts.TCPKeepAlive > 0 {
		setKeepAlive(fd, true)
	}

	c.attachFD(fd)
	c.connCB.Set(cb)

	sa := ep.ToSockaddr()
	connErr := unix.Connect(fd, &sa)
	if connErr != nil && connErr != unix.EINPROGRESS {
		c.state = Disconnected
		state := netstate.System(connErr.(syscall.Errno))
		callback.Invoke(&c.connCB, func(fn ConnectCallback) { fn(c, state) })
		return nil
	}

	c.state = Connecting
	c.manager.WatchWrite(c)
	return nil
}

// AsyncRead overrides Socket.AsyncRead so the reactor registration names
// the ClientSocket itself rather than its embedded Socket — Go's
// composition has no virtual dispatch, so a registration naming the
// embedded Socket would call Socket's OnReadNotify/OnWriteNotify directly
// and bypass ClientSocket's connect-state filtering.
func (c *ClientSocket) AsyncRead(cb ReadCallback) error {
	if c.lifecycle == socketClosed {
		return merrors.ErrSocketClosed
	}
	if c.manager.shutdown {
		return merrors.ErrIOManagerShutdown
	}
	c.readCB.Set(cb)
	c.manager.WatchRead(c)
	return nil
}

// AsyncWrite overrides Socket.AsyncWrite for the same reason as AsyncRead.
func (c *ClientSocket) AsyncWrite(p []byte, cb WriteCallback) error {
	if c.lifecycle != socketOpen {
		return merrors.ErrSocketClosed
	}
	if !c.writeBuf.Write(p) {
		return merrors.ErrWatermarkExceeded
	}
	c.writeCB.Set(cb)
	c.manager.WatchWrite(c)
	if c.CanWrite() {
		c.flushWrite()
	}
	return nil
}

// OnReadNotify overrides Socket's: reads arriving before CONNECTED are
// silently dropped.
func (c *ClientSocket) OnReadNotify() {
	switch c.state {
	case Connected:
		c.Socket.OnReadNotify()
	default:
		// DISCONNECTED or CONNECTING: ignored.
	}
}

// OnWriteNotify overrides Socket's: the first writable edge while
// CONNECTING means connect(2) finished, successfully or not — getsockopt
// SO_ERROR disambiguates, relying on the dispatcher's EPOLLERR handling for
// the failure case and plain writability for success.
func (c *ClientSocket) OnWriteNotify() {
	switch c.state {
	case Connected:
		c.Socket.OnWriteNotify()
	case Connecting:
		errno, err := unix.GetsockoptInt(c.Fd(), unix.SOL_SOCKET, unix.SO_ERROR)
		verify.NoError(err, "getsockopt SO_ERROR on connecting socket")
		if errno != 0 {
			c.state = Disconnected
			state := netstate.System(syscall.Errno(errno))
			callback.Invoke(&c.connCB, func(fn ConnectCallback) { fn(c, state) })
			return
		}
		c.SetCanWrite(true)
		c.state = Connected
		callback.Invoke(&c.connCB, func(fn ConnectCallback) { fn(c, netstate.OK()) })
	}
}

// OnException overrides Socket's: while CONNECTING, a failure means
// connect(2) failed and the state machine falls back to DISCONNECTED.
func (c *ClientSocket) OnException(state netstate.NetState) {
	switch c.state {
	case Connected:
		c.Socket.OnException(state)
	case Connecting:
		c.state = Disconnected
		if !c.connCB.IsNull() {
			callback.Invoke(&c.connCB, func(fn ConnectCallback) { fn(c, state) })
		}
	}
}

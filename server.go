package mnet

import (
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/hurricane1026/mnet/endpoint"
	merrors "github.com/hurricane1026/mnet/errors"
	"github.com/hurricane1026/mnet/internal/callback"
	"github.com/hurricane1026/mnet/internal/netpoll"
	"github.com/hurricane1026/mnet/internal/verify"
	"github.com/hurricane1026/mnet/logging"
	"github.com/hurricane1026/mnet/netstate"
)

// AcceptCallback receives the populated socket and the resulting state.
// On success, newSocket is the slot previously handed to AsyncAccept, now
// holding the accepted connection's fd.
type AcceptCallback func(newSocket *Socket, state netstate.NetState)

// ServerSocket is a listening TCP socket with file-descriptor-exhaustion
// recovery.
type ServerSocket struct {
	netpoll.Pollable

	manager *IOManager

	bound      bool
	localEP    endpoint.Endpoint
	dummyFD    int
	acceptSlot *Socket
	acceptCB   callback.Holder[AcceptCallback]
}

// NewServerSocket allocates an unbound ServerSocket, opening its reserved
// dummy fd immediately so the fd is always available for EMFILE/ENFILE
// recovery.
func NewServerSocket(m *IOManager) *ServerSocket {
	dummy, err := unix.Open("/dev/null", unix.O_RDONLY, 0)
	verify.True(err == nil, "open /dev/null for dummy fd: %v", err)
	return &ServerSocket{
		Pollable: netpoll.NewPollable(-1),
		manager:  m,
		dummyFD:  dummy,
	}
}

// Endpoint returns the socket's bound local address, if Bind succeeded.
func (s *ServerSocket) Endpoint() (endpoint.Endpoint, bool) { return s.localEP, s.bound }

// Fd returns the listening socket's file descriptor, or -1 if unbound.
func (s *ServerSocket) Fd() int { return s.FD() }

// Bind creates a listening TCP fd with SO_REUSEADDR, binds it to ep, and
// listens with the OS maximum backlog. Returns false (closing the fd) on
// any failure.
func (s *ServerSocket) Bind(ep endpoint.Endpoint) bool {
	if s.bound {
		return false
	}
	fd, err := newNonblockingCloexecFD(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return false
	}
	setReuseAddr(fd)

	sa := ep.ToSockaddr()
	if err := unix.Bind(fd, &sa); err != nil {
		unix.Close(fd)
		return false
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return false
	}

	s.SetFD(fd)
	s.bound = true

	actual, serr := unix.Getsockname(fd)
	if serr == nil {
		if in4, ok := actual.(*unix.SockaddrInet4); ok {
			s.localEP = endpoint.FromSockaddr(in4)
		}
	}
	s.manager.WatchRead(s)
	return true
}

// AsyncAccept installs the accept callback and the socket slot that the
// next successful accept populates with the new connection's fd.
func (s *ServerSocket) AsyncAccept(slot *Socket, cb AcceptCallback) error {
	if !s.bound {
		return merrors.ErrInvalidEndpoint
	}
	s.acceptSlot = slot
	s.acceptCB.Set(cb)
	return nil
}

// HandleRunOutOfFD recovers from EMFILE/ENFILE on an edge-triggered
// listener: close the reserved dummy fd, accept-and-immediately-close one
// pending connection so its client sees a reset instead of hanging, then
// reopen the dummy fd. Every other errno is a no-op — intentional
// fallthrough.
func (s *ServerSocket) HandleRunOutOfFD(errno unix.Errno) {
	switch errno {
	case unix.EMFILE, unix.ENFILE:
		verify.NoError(unix.Close(s.dummyFD), "close dummy fd during EMFILE recovery")
		if f, _, aerr := unix.Accept(s.Fd()); aerr == nil && f > 0 {
			verify.NoError(unix.Close(f), "close recovered-slot fd during EMFILE recovery")
		}
		dummy, oerr := unix.Open("/dev/null", unix.O_RDONLY, 0)
		verify.True(oerr == nil && dummy >= 0, "reopen dummy fd during EMFILE recovery: %v", oerr)
		s.dummyFD = dummy
	default:
		return
	}
}

// DoAccept calls accept4 with non-blocking + close-on-exec set atomically,
// retrying EINTR internally. Returns -1 with an OK state on EAGAIN/
// EWOULDBLOCK (nothing pending); -1 with a System state on any other
// error, after triggering HandleRunOutOfFD.
func (s *ServerSocket) DoAccept() (int, netstate.NetState) {
	for {
		nfd, _, err := unix.Accept4(s.Fd(), unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				s.SetCanRead(false)
				return -1, netstate.OK()
			}
			if err == unix.EINTR {
				continue
			}
			errno := err.(syscall.Errno)
			s.HandleRunOutOfFD(errno)
			return -1, netstate.System(errno)
		}
		return nfd, netstate.OK()
	}
}

// OnReadNotify implements netpoll.EventHandler: drain every connection
// already queued on the listening fd, handing each to the installed slot in
// turn, until either the accept queue is empty (DoAccept reports EAGAIN) or
// the accept callback's own invocation fails to install a new slot. The fd
// is armed edge-triggered, so a single notification can correspond to more
// than one backlogged connection; looping here — rather than waiting for a
// fresh edge that an already-"ready" fd will never deliver — is this
// module's way of draining carried-over accept work before the reactor
// goes back to waiting, since the slot/callback pair it drains already
// lives on the ServerSocket rather than in a separate queue.
func (s *ServerSocket) OnReadNotify() {
	s.SetCanRead(true)
	for {
		if s.acceptCB.IsNull() {
			return
		}

		nfd, state := s.DoAccept()
		if nfd < 0 {
			if !state.IsOK() {
				slot := s.acceptSlot
				s.acceptSlot = nil
				callback.Invoke(&s.acceptCB, func(cb AcceptCallback) { cb(slot, state) })
			}
			return
		}

		slot := s.acceptSlot
		s.acceptSlot = nil
		if slot == nil {
			// No slot installed for this accept; nothing to hand the fd to.
			unix.Close(nfd)
			continue
		}
		setTCPNoDelay(nfd)
		if s.manager.opts.TCPKeepAlive > 0 {
			setKeepAlive(nfd, true)
		}
		slot.attachFD(nfd)
		callback.Invoke(&s.acceptCB, func(cb AcceptCallback) { cb(slot, netstate.OK()) })
	}
}

// OnWriteNotify implements netpoll.EventHandler. A listening socket is
// never armed for write; this exists only to satisfy the interface.
func (s *ServerSocket) OnWriteNotify() {}

// OnException implements netpoll.EventHandler.
func (s *ServerSocket) OnException(state netstate.NetState) {
	s.HandleRunOutOfFD(unix.Errno(state.Code()))
	if !s.acceptCB.IsNull() {
		slot := s.acceptSlot
		s.acceptSlot = nil
		callback.Invoke(&s.acceptCB, func(cb AcceptCallback) { cb(slot, state) })
	}
}

// Close closes the listening fd and the reserved dummy fd.
func (s *ServerSocket) Close() error {
	if s.Fd() >= 0 {
		fd := s.Fd()
		s.Pollable.Destroy()
		s.manager.forget(fd)
		if err := unix.Close(fd); err != nil {
			logging.Warnf("close listener fd: %v", err)
		}
	}
	if s.dummyFD >= 0 {
		unix.Close(s.dummyFD)
		s.dummyFD = -1
	}
	return nil
}

package mnet

import (
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/hurricane1026/mnet/buffer"
	"github.com/hurricane1026/mnet/endpoint"
	merrors "github.com/hurricane1026/mnet/errors"
	"github.com/hurricane1026/mnet/internal/callback"
	"github.com/hurricane1026/mnet/internal/netpoll"
	"github.com/hurricane1026/mnet/internal/verify"
	"github.com/hurricane1026/mnet/logging"
	"github.com/hurricane1026/mnet/netstate"
)

type socketLifecycle int32

const (
	socketOpen socketLifecycle = iota
	socketClosing
	socketClosed
)

// ReadCallback receives (socket, bytes read, resulting state).
type ReadCallback func(s *Socket, n int, state netstate.NetState)

// WriteCallback receives (socket, bytes written for this write request, resulting state).
type WriteCallback func(s *Socket, n int, state netstate.NetState)

// CloseHandler is the two-hook close callback for an asynchronous close: a
// socket closing asynchronously may still deliver trailing data before the
// final close notification.
type CloseHandler interface {
	InvokeData(n int)
	InvokeClose(state netstate.NetState)
}

const defaultBufferSize = 4096

// Socket is a connected TCP endpoint: owns a read buffer, a write buffer,
// and read/write/close callback slots. It is inert (no fd) until a
// ClientSocket connects it or a ServerSocket accepts into it.
type Socket struct {
	netpoll.Pollable

	manager *IOManager

	readBuf  *buffer.Buffer
	writeBuf *buffer.Buffer

	prevWriteSize int
	lifecycle     socketLifecycle
	eof           bool

	readCB  callback.Holder[ReadCallback]
	writeCB callback.Holder[WriteCallback]
	closeCB callback.Holder[CloseHandler]
}

// NewSocket allocates a Socket bound to m but not yet connected to any fd.
func NewSocket(m *IOManager) *Socket {
	return &Socket{
		Pollable: netpoll.NewPollable(-1),
		manager:  m,
		readBuf:  buffer.New(defaultBufferSize),
		writeBuf: buffer.New(defaultBufferSize),
	}
}

// Fd returns the underlying file descriptor, or -1 if this Socket isn't
// attached to one yet.
func (s *Socket) Fd() int { return s.FD() }

// IsClosed reports whether Close has completed.
func (s *Socket) IsClosed() bool { return s.lifecycle == socketClosed }

// ReadBuffer exposes the socket's read-side Buffer.
func (s *Socket) ReadBuffer() *buffer.Buffer { return s.readBuf }

// WriteBuffer exposes the socket's write-side Buffer.
func (s *Socket) WriteBuffer() *buffer.Buffer { return s.writeBuf }

// IsOverWatermark reports whether the write buffer has grown past the
// IOManager's configured high watermark (advisory only, see options.go).
func (s *Socket) IsOverWatermark() bool {
	if s.manager.opts.WatermarkHigh <= 0 {
		return false
	}
	return s.writeBuf.ReadableSize() > s.manager.opts.WatermarkHigh
}

func (s *Socket) attachFD(fd int) {
	s.SetFD(fd)
	s.lifecycle = socketOpen
	s.eof = false
}

// GetLocalEndpoint returns the socket's local address.
func (s *Socket) GetLocalEndpoint() (endpoint.Endpoint, netstate.NetState) {
	sa, err := unix.Getsockname(s.Fd())
	if err != nil {
		return endpoint.Endpoint{}, netstate.System(err.(syscall.Errno))
	}
	in4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return endpoint.Endpoint{}, netstate.System(unix.EAFNOSUPPORT)
	}
	return endpoint.FromSockaddr(in4), netstate.OK()
}

// GetPeerEndpoint returns the socket's remote address.
func (s *Socket) GetPeerEndpoint() (endpoint.Endpoint, netstate.NetState) {
	sa, err := unix.Getpeername(s.Fd())
	if err != nil {
		return endpoint.Endpoint{}, netstate.System(err.(syscall.Errno))
	}
	in4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return endpoint.Endpoint{}, netstate.System(unix.EAFNOSUPPORT)
	}
	return endpoint.FromSockaddr(in4), netstate.OK()
}

// AsyncRead installs the read callback. It does not itself trigger a read;
// delivery happens the next time the reactor observes a readability edge
// on this fd. Bytes already buffered in the kernel when the callback is
// installed are not read until such an edge arrives.
func (s *Socket) AsyncRead(cb ReadCallback) error {
	if s.lifecycle == socketClosed {
		return merrors.ErrSocketClosed
	}
	if s.manager.shutdown {
		return merrors.ErrIOManagerShutdown
	}
	s.readCB.Set(cb)
	s.manager.WatchRead(s)
	return nil
}

// AsyncWrite queues p for sending and installs the write callback that
// fires once the entire queued write has been flushed (or failed). If the
// socket is currently believed writable, this attempts to flush
// immediately rather than waiting for a future edge-triggered wakeup that
// may never arrive if the kernel send buffer never fills.
func (s *Socket) AsyncWrite(p []byte, cb WriteCallback) error {
	if s.lifecycle != socketOpen {
		return merrors.ErrSocketClosed
	}
	if !s.writeBuf.Write(p) {
		return merrors.ErrWatermarkExceeded
	}
	s.writeCB.Set(cb)
	s.manager.WatchWrite(s)
	if s.CanWrite() {
		s.flushWrite()
	}
	return nil
}

// AsyncClose arranges for h to be notified once any remaining read data is
// drained and the peer has been observed to close (or an error occurs),
// then closes the fd. Use Close for an immediate, synchronous close.
func (s *Socket) AsyncClose(h CloseHandler) error {
	if s.lifecycle != socketOpen {
		return merrors.ErrSocketClosed
	}
	s.lifecycle = socketClosing
	s.closeCB.Set(h)
	return nil
}

// Close closes the underlying fd immediately and releases buffer storage.
// Safe to call from within a callback running on this socket.
func (s *Socket) Close() error {
	if s.lifecycle == socketClosed {
		return nil
	}
	fd := s.Fd()
	s.lifecycle = socketClosed
	s.readBuf.Release()
	s.writeBuf.Release()
	s.Pollable.Destroy()
	if fd >= 0 {
		s.manager.forget(fd)
		return unix.Close(fd)
	}
	return nil
}

// DoRead drains the kernel's receive buffer for this socket using a
// two-segment scatter read: the read buffer's own writable region plus the
// reactor's shared scratch buffer, so a single readv call empties the
// kernel in the common case.
func (s *Socket) DoRead() (int, netstate.NetState) {
	if s.eof {
		return 0, netstate.OK()
	}

	total := 0
	scratch := s.manager.scratchBuffer()

	for {
		wa := s.readBuf.GetWriteAccessor()

		n, err := readv2(s.Fd(), wa.Address(), scratch)
		if n < 0 {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				s.SetCanRead(false)
				return total, netstate.OK()
			}
			if err == unix.EINTR {
				continue
			}
			return total, netstate.System(err)
		}

		if n == 0 {
			s.eof = true
			return total, netstate.OK()
		}

		seg0 := wa.Size()
		if n <= seg0 {
			wa.SetCommittedSize(n)
			wa.Commit()
		} else {
			wa.SetCommittedSize(seg0)
			wa.Commit()
			overflow := scratch[:n-seg0]
			if !s.readBuf.Inject(overflow) {
				return total, netstate.System(unix.ENOBUFS)
			}
		}
		total += n

		if n < seg0+len(scratch) {
			s.SetCanRead(false)
			return total, netstate.OK()
		}
	}
}

// readv2 performs a readv(2) across exactly two buffers, returning the
// total bytes read and the errno on failure (0 on success).
func readv2(fd int, a, b []byte) (int, unix.Errno) {
	iovecs := make([][]byte, 0, 2)
	if len(a) > 0 {
		iovecs = append(iovecs, a)
	}
	if len(b) > 0 {
		iovecs = append(iovecs, b)
	}
	if len(iovecs) == 0 {
		return 0, 0
	}
	n, err := unix.Readv(fd, iovecs)
	if err != nil {
		errno, _ := err.(unix.Errno)
		return -1, errno
	}
	return n, 0
}

// DoWrite attempts a single write of the write buffer's readable span.
func (s *Socket) DoWrite() (int, netstate.NetState) {
	for {
		ra := s.writeBuf.GetReadAccessor()
		n, err := unix.Write(s.Fd(), ra.Address())
		if n <= 0 {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				s.SetCanWrite(false)
				return 0, netstate.OK()
			}
			if err == unix.EINTR {
				continue
			}
			return s.prevWriteSize, netstate.System(err.(syscall.Errno))
		}

		ra.SetCommittedSize(n)
		ra.Commit()
		if n < ra.Size() {
			s.SetCanWrite(false)
		}
		return n, netstate.OK()
	}
}

// flushWrite is the shared tail of AsyncWrite's immediate attempt and
// OnWriteNotify's edge-triggered continuation.
func (s *Socket) flushWrite() {
	if s.writeBuf.ReadableSize() == 0 {
		return
	}
	n, state := s.DoWrite()
	if state.IsOK() {
		if s.writeBuf.ReadableSize() == 0 {
			total := s.prevWriteSize + n
			s.prevWriteSize = 0
			callback.Invoke(&s.writeCB, func(cb WriteCallback) { cb(s, total, state) })
		} else {
			s.prevWriteSize += n
		}
		return
	}
	total := s.prevWriteSize
	s.prevWriteSize = 0
	callback.Invoke(&s.writeCB, func(cb WriteCallback) { cb(s, total, state) })
}

// OnReadNotify implements netpoll.EventHandler.
func (s *Socket) OnReadNotify() {
	s.SetCanRead(true)
	if s.readCB.IsNull() {
		return
	}
	n, state := s.DoRead()

	if s.lifecycle != socketClosing {
		callback.Invoke(&s.readCB, func(cb ReadCallback) { cb(s, n, state) })
		return
	}

	if state.IsOK() {
		if n > 0 {
			if h, ok := peekCloseHandler(&s.closeCB); ok {
				h.InvokeData(n)
			}
			return
		}
		if s.eof {
			s.finishClose(netstate.OK())
		}
		return
	}
	s.finishClose(state)
}

// peekCloseHandler inspects the close holder without releasing it — the
// InvokeData hook, unlike InvokeClose, is not a one-shot release.
func peekCloseHandler(h *callback.Holder[CloseHandler]) (CloseHandler, bool) {
	v, ok := h.Release()
	if ok {
		h.Set(v)
	}
	return v, ok
}

func (s *Socket) finishClose(state netstate.NetState) {
	deleted := false
	s.SetNotifyFlag(&deleted)
	callback.Invoke(&s.closeCB, func(cb CloseHandler) { cb.InvokeClose(state) })
	if !deleted {
		_ = s.Close()
	}
}

// OnWriteNotify implements netpoll.EventHandler.
func (s *Socket) OnWriteNotify() {
	s.SetCanWrite(true)
	s.flushWrite()
}

// OnException implements netpoll.EventHandler.
func (s *Socket) OnException(state netstate.NetState) {
	deleted := false
	s.SetNotifyFlag(&deleted)

	if !s.readCB.IsNull() {
		callback.Invoke(&s.readCB, func(cb ReadCallback) { cb(s, 0, state) })
	}
	if deleted {
		return
	}
	if !s.writeCB.IsNull() {
		callback.Invoke(&s.writeCB, func(cb WriteCallback) { cb(s, 0, state) })
	}
}

// setTCPNoDelay is shared by client-connect and server-accept paths.
func setTCPNoDelay(fd int) {
	verify.NoError(unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1), "setsockopt TCP_NODELAY")
}

func setReuseAddr(fd int) {
	verify.NoError(unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1), "setsockopt SO_REUSEADDR")
}

func setKeepAlive(fd int, enabled bool) {
	v := 0
	if enabled {
		v = 1
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, v); err != nil {
		logging.Warnf("setsockopt SO_KEEPALIVE failed: %v", err)
	}
}

func newNonblockingCloexecFD(domain, typ, proto int) (int, error) {
	fd, err := unix.Socket(domain, typ|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, proto)
	if err != nil {
		return -1, err
	}
	return fd, nil
}

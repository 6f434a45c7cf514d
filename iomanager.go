// Package mnet implements a single-threaded, edge-triggered TCP reactor:
// one IOManager runs the readiness-wait/dispatch loop on whichever
// goroutine calls RunMainLoop, and every Socket/ClientSocket/ServerSocket
// registered with it must be driven from that same goroutine. Cross-thread
// code only ever calls Interrupt.
package mnet

import (
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	merrors "github.com/hurricane1026/mnet/errors"
	"github.com/hurricane1026/mnet/internal/netpoll"
	"github.com/hurricane1026/mnet/internal/verify"
	"github.com/hurricane1026/mnet/logging"
	"github.com/hurricane1026/mnet/netstate"
	"github.com/hurricane1026/mnet/timer"
)

// pollableHandler is satisfied by every registered object: the three
// readiness hooks plus the embedded netpoll.Pollable's bookkeeping
// accessors. Socket/ClientSocket/ServerSocket all implement it.
type pollableHandler interface {
	netpoll.EventHandler
	FD() int
	IsEpollRead() bool
	IsEpollWrite() bool
	SetEpollRead(bool)
	SetEpollWrite(bool)
	SetNotifyFlag(*bool)
}

// TimeoutFunc receives the number of milliseconds the timer overshot its
// target by.
type TimeoutFunc func(overshootMS int64)

// TimerHandle lets a caller cancel a timer it scheduled.
type TimerHandle struct{ h timer.Handle }

// Cancel prevents the timer from firing, if it hasn't already.
func (h TimerHandle) Cancel(m *IOManager) { m.timers.Cancel(h.h) }

// ctrlDatagramLen is the size of the wake-up datagram sent to the loopback
// control socket.
const ctrlDatagramLen = 8

// IOManager is the reactor: it owns the epoll instance, the loopback
// control socket used for cross-thread wakeup, the shared scratch buffer
// lent to every draining read, and the timer queue.
type IOManager struct {
	opts *Options

	poller   *netpoll.Poller
	handlers map[int]pollableHandler

	ctrlFD      int
	ctrlLocalSA unix.SockaddrInet4
	wakeUp      bool

	scratch []byte

	timers   *timer.Queue
	prevTime time.Time

	shutdown bool
}

// NewIOManager constructs a reactor: an epoll instance, a bound loopback
// UDP control socket armed level-triggered for read (the only
// level-triggered registration in the system), and the shared scratch
// buffer. Conditions treated as environmentally impossible (bind/
// getsockname on the control socket failing, epoll_ctl failing) abort via
// verify; a failure to create the epoll instance or the control socket
// (e.g. descriptor-table exhaustion) returns an error instead, since that's
// plausible for a library embedded in a larger process.
func NewIOManager(options ...Option) (*IOManager, error) {
	opts := initOptions(options...)
	if opts.Logger != nil {
		logging.SetLogger(opts.Logger)
	} else if opts.LogPath != "" {
		logging.SetLogger(logging.New(opts.LogPath, opts.LogLevel))
	}

	poller, err := netpoll.Open()
	if err != nil {
		return nil, err
	}

	ctrlFD, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		poller.Close()
		return nil, err
	}
	verify.NoError(unix.SetNonblock(ctrlFD, true), "set control socket non-blocking")
	unix.CloseOnExec(ctrlFD)

	bindAddr := unix.SockaddrInet4{Port: 0}
	bindAddr.Addr = [4]byte{127, 0, 0, 1}
	verify.True(unix.Bind(ctrlFD, &bindAddr) == nil, "bind loopback control socket")

	sa, err := unix.Getsockname(ctrlFD)
	verify.True(err == nil, "getsockname on control socket: %v", err)
	localSA, ok := sa.(*unix.SockaddrInet4)
	verify.True(ok, "control socket is not AF_INET")

	m := &IOManager{
		opts:        opts,
		poller:      poller,
		handlers:    make(map[int]pollableHandler),
		ctrlFD:      ctrlFD,
		ctrlLocalSA: *localSA,
		scratch:     make([]byte, opts.ScratchBufferSize),
		timers:      timer.New(),
		prevTime:    opts.Now(),
	}

	verify.NoError(poller.AddReadLevelTriggered(ctrlFD), "epoll_ctl add control socket")
	return m, nil
}

// scratchBuffer returns the reactor's shared scratch buffer, borrowed
// synchronously for the duration of a single DoRead call and never
// retained past it.
func (m *IOManager) scratchBuffer() []byte { return m.scratch }

// WatchRead arms p for edge-triggered readability. Idempotent: once armed,
// the registration is never implicitly removed.
func (m *IOManager) WatchRead(p pollableHandler) {
	if p.IsEpollRead() {
		return
	}
	var err error
	if p.IsEpollWrite() {
		err = m.poller.ModReadWrite(p.FD())
	} else {
		err = m.poller.AddRead(p.FD())
	}
	verify.NoError(err, "epoll_ctl watch-read fd=%d", p.FD())
	p.SetEpollRead(true)
	m.handlers[p.FD()] = p
}

// WatchWrite arms p for edge-triggered writability. Idempotent.
func (m *IOManager) WatchWrite(p pollableHandler) {
	if p.IsEpollWrite() {
		return
	}
	var err error
	if p.IsEpollRead() {
		err = m.poller.ModReadWrite(p.FD())
	} else {
		err = m.poller.AddReadWrite(p.FD())
	}
	verify.NoError(err, "epoll_ctl watch-write fd=%d", p.FD())
	p.SetEpollWrite(true)
	m.handlers[p.FD()] = p
}

// forget removes a closed fd's handler entry so a reused fd number can't
// be resolved to a stale handler.
func (m *IOManager) forget(fd int) { delete(m.handlers, fd) }

// Interrupt is the only method safe to call from a thread other than the
// one running RunMainLoop: it sends a short datagram to the control
// socket's own bound address, causing the current or next readiness wait
// to return promptly. Fire-and-forget and idempotent.
func (m *IOManager) Interrupt() error {
	buf := make([]byte, ctrlDatagramLen)
	err := unix.Sendto(m.ctrlFD, buf, 0, &m.ctrlLocalSA)
	if err != nil {
		return err
	}
	return nil
}

// onControlReadable drains the wake-up datagram and records that the main
// loop should return OK once the current dispatch pass finishes.
func (m *IOManager) onControlReadable() {
	buf := make([]byte, ctrlDatagramLen)
	for {
		_, _, err := unix.Recvfrom(m.ctrlFD, buf, 0)
		if err == nil {
			continue
		}
		break
	}
	m.wakeUp = true
}

// ScheduleTimeout schedules cb to fire after ms milliseconds, relative to
// now. Returns a handle that can cancel it before it fires.
func (m *IOManager) ScheduleTimeout(ms int64, cb TimeoutFunc) TimerHandle {
	// The queue's next Advance subtracts all time elapsed since prevTime, so
	// credit the part of it that has already passed before this call.
	if ms >= 0 {
		ms += m.opts.Now().Sub(m.prevTime).Milliseconds()
	}
	return TimerHandle{h: m.timers.Schedule(ms, func(overshoot int64) { cb(overshoot) })}
}

// dispatch processes one batch of epoll_wait results.
func (m *IOManager) dispatch(events []netpoll.PolledEvent) {
	for _, ev := range events {
		if ev.FD == m.ctrlFD {
			m.onControlReadable()
			continue
		}

		h, ok := m.handlers[ev.FD]
		if !ok {
			continue
		}

		bits := ev.Events
		if bits&netpoll.EventError != 0 {
			errno, serr := unix.GetsockoptInt(ev.FD, unix.SOL_SOCKET, unix.SO_ERROR)
			verify.NoError(serr, "getsockopt SO_ERROR fd=%d", ev.FD)
			if errno != 0 {
				h.OnException(netstate.System(syscall.Errno(errno)))
				continue
			}
			bits &^= netpoll.EventError
		}

		if bits&netpoll.EventHangup != 0 {
			h.OnReadNotify()
			continue
		}

		deleted := false
		h.SetNotifyFlag(&deleted)

		if bits&netpoll.EventReadable != 0 {
			h.OnReadNotify()
			bits &^= netpoll.EventReadable
		}
		if !deleted && bits&netpoll.EventWritable != 0 {
			h.OnWriteNotify()
			bits &^= netpoll.EventWritable
		}
	}
}

// RunMainLoop blocks until Interrupt is observed or an unrecoverable
// system error occurs, driving readiness dispatch and the timer queue in
// the meantime. There is no separate step here to drain accept work carried
// over from the previous iteration: ServerSocket.OnReadNotify loops until
// its accept queue is empty or its callback stops re-arming. Connections
// still queued when the callback stops re-arming, or that arrived while no
// accept callback was installed, are not accepted until the listener's next
// readability edge.
func (m *IOManager) RunMainLoop() netstate.NetState {
	buf := netpoll.NewEventBuffer(128)

	for {
		timeoutMS := int(m.timers.NextDeadlineMS())

		events, err := m.poller.Wait(buf, timeoutMS)
		if err != nil {
			return netstate.System(err.(syscall.Errno))
		}

		if events == nil {
			continue
		}

		m.dispatch(events)

		now := m.opts.Now()
		elapsed := now.Sub(m.prevTime).Milliseconds()
		m.prevTime = now
		m.timers.Advance(elapsed)

		if m.wakeUp {
			m.wakeUp = false
			return netstate.OK()
		}
	}
}

// Shutdown requests that RunMainLoop return at its next readiness-wait
// wakeup. Safe to call from another goroutine, like Interrupt.
func (m *IOManager) Shutdown() error {
	if m.shutdown {
		return merrors.ErrAlreadyShuttingDown
	}
	m.shutdown = true
	return m.Interrupt()
}

// Close releases the epoll fd, control socket, and scratch buffer.
func (m *IOManager) Close() error {
	if err := unix.Close(m.ctrlFD); err != nil {
		logging.Warnf("close control socket: %v", err)
	}
	m.scratch = nil
	return m.poller.Close()
}

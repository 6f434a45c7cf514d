// Package netpoll wraps the raw epoll(7) syscalls this module's reactor
// runs on. It is grounded on gnet's own epoll wrapper
// (internal/netpoll/epoll_default_poller.go) for the AddRead/AddReadWrite/
// ModRead/ModReadWrite/Delete shape and the EpollWait drive loop, but it
// drops gnet's lock-free async task queue and eventfd wakeup entirely: this
// module is single-threaded and owns its own cross-thread wakeup primitive
// (a loopback UDP control socket, see iomanager.go in package mnet), so the poller
// here only ever reports raw fd/event pairs back to its caller.
//
// Go cannot stash a pointer in epoll_data the way a C reactor would
// (epoll_data.ptr, pointing straight at a Pollable) because the Go garbage
// collector can move or reclaim objects a C struct has no way to keep
// alive. Instead the poller keys epoll_data.fd and resolves it to a
// Handler through a map owned by the caller; Poller itself holds no
// handler state.
package netpoll

import (
	"os"

	"golang.org/x/sys/unix"
)

// Event is the subset of epoll event bits this module ever needs to look at.
type Event uint32

const (
	EventReadable Event = unix.EPOLLIN | unix.EPOLLPRI
	EventWritable Event = unix.EPOLLOUT
	EventError    Event = unix.EPOLLERR
	EventHangup   Event = unix.EPOLLHUP
)

// Poller wraps a single epoll instance operated in edge-triggered mode.
type Poller struct {
	fd int
}

// Open creates a new epoll instance.
func Open() (*Poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	return &Poller{fd: fd}, nil
}

// Close closes the underlying epoll fd.
func (p *Poller) Close() error {
	return os.NewSyscallError("close", unix.Close(p.fd))
}

// FD returns the raw epoll file descriptor.
func (p *Poller) FD() int { return p.fd }

func ctl(epfd, op, fd int, events uint32) error {
	return unix.EpollCtl(epfd, op, fd, &unix.EpollEvent{Fd: int32(fd), Events: events})
}

// AddRead registers fd for edge-triggered readability.
func (p *Poller) AddRead(fd int) error {
	return os.NewSyscallError("epoll_ctl add", ctl(p.fd, unix.EPOLL_CTL_ADD, fd, uint32(EventReadable)|unix.EPOLLET))
}

// AddReadLevelTriggered registers fd for level-triggered readability. Used
// only for the reactor's loopback control socket, which must never be
// missed by a spurious edge.
func (p *Poller) AddReadLevelTriggered(fd int) error {
	return os.NewSyscallError("epoll_ctl add", ctl(p.fd, unix.EPOLL_CTL_ADD, fd, uint32(EventReadable)))
}

// ModReadWrite switches an already-registered fd to watch both readability
// and writability, edge-triggered.
func (p *Poller) ModReadWrite(fd int) error {
	events := uint32(EventReadable|EventWritable) | unix.EPOLLET
	return os.NewSyscallError("epoll_ctl mod", ctl(p.fd, unix.EPOLL_CTL_MOD, fd, events))
}

// ModRead switches an already-registered fd back to watching only
// readability, edge-triggered.
func (p *Poller) ModRead(fd int) error {
	return os.NewSyscallError("epoll_ctl mod", ctl(p.fd, unix.EPOLL_CTL_MOD, fd, uint32(EventReadable)|unix.EPOLLET))
}

// AddReadWrite registers a brand-new fd watching both directions at once,
// edge-triggered.
func (p *Poller) AddReadWrite(fd int) error {
	events := uint32(EventReadable|EventWritable) | unix.EPOLLET
	return os.NewSyscallError("epoll_ctl add", ctl(p.fd, unix.EPOLL_CTL_ADD, fd, events))
}

// Delete removes fd from the poller entirely.
func (p *Poller) Delete(fd int) error {
	return os.NewSyscallError("epoll_ctl del", unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil))
}

// PolledEvent is one fd/event-mask pair returned by a single Wait call.
type PolledEvent struct {
	FD     int
	Events Event
}

// Wait blocks for up to timeoutMillis (-1 blocks indefinitely, 0 returns
// immediately), lets the kernel fill buf with ready events, and returns
// them copied into a newly allocated slice. buf itself is reused across
// calls, mirroring gnet's reusable eventList. An interrupted wait (EINTR)
// returns a nil slice and a nil error. The returned error, when
// non-nil, is always a syscall.Errno (not wrapped in os.SyscallError like
// this package's other methods) so a caller can feed it directly to
// netstate.System.
func (p *Poller) Wait(buf []unix.EpollEvent, timeoutMillis int) ([]PolledEvent, error) {
	n, err := unix.EpollWait(p.fd, buf, timeoutMillis)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	out := make([]PolledEvent, n)
	for i := 0; i < n; i++ {
		out[i] = PolledEvent{FD: int(buf[i].Fd), Events: Event(buf[i].Events)}
	}
	return out, nil
}

// NewEventBuffer allocates a reusable slice for Wait, sized to cap initial
// simultaneous events.
func NewEventBuffer(cap int) []unix.EpollEvent {
	return make([]unix.EpollEvent, cap)
}

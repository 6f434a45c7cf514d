package netpoll

import "github.com/hurricane1026/mnet/netstate"

// EventHandler is the set of readiness hooks the reactor drives on every
// registered object: OnReadNotify, OnWriteNotify, OnException. Socket,
// ClientSocket and ServerSocket implement it; the reactor's control socket
// is handled inline by the reactor and does not.
type EventHandler interface {
	OnReadNotify()
	OnWriteNotify()
	OnException(state netstate.NetState)
}

// Pollable is the embeddable bookkeeping every reactor-registered object
// carries, grounded on gnet's PollAttachment. Socket and ServerSocket embed
// this directly (ClientSocket through its embedded Socket) instead of each
// duplicating fd/readiness-flag state.
type Pollable struct {
	fd          int
	isEpollRead bool
	isEpollWrite bool
	canRead     bool
	canWrite    bool
	notifyFlag  *bool
}

// NewPollable wraps fd for registration with the reactor.
func NewPollable(fd int) Pollable {
	return Pollable{fd: fd}
}

// FD returns the underlying file descriptor, or -1 if unset.
func (p *Pollable) FD() int { return p.fd }

// SetFD installs or clears the underlying file descriptor.
func (p *Pollable) SetFD(fd int) { p.fd = fd }

// Valid reports whether this Pollable owns a live file descriptor.
func (p *Pollable) Valid() bool { return p.fd >= 0 }

// IsEpollRead / IsEpollWrite report whether this Pollable is currently
// armed for the corresponding edge-triggered event; the reactor never
// clears these implicitly.
func (p *Pollable) IsEpollRead() bool  { return p.isEpollRead }
func (p *Pollable) IsEpollWrite() bool { return p.isEpollWrite }

func (p *Pollable) SetEpollRead(v bool)  { p.isEpollRead = v }
func (p *Pollable) SetEpollWrite(v bool) { p.isEpollWrite = v }

// CanRead / CanWrite track whether the kernel is currently believed to
// have bytes/space available.
func (p *Pollable) CanRead() bool  { return p.canRead }
func (p *Pollable) CanWrite() bool { return p.canWrite }

func (p *Pollable) SetCanRead(v bool)  { p.canRead = v }
func (p *Pollable) SetCanWrite(v bool) { p.canWrite = v }

// SetNotifyFlag installs the address of a bool the caller owns; Destroy
// will set *flag = true so the caller can detect this Pollable died during
// a callback it invoked.
func (p *Pollable) SetNotifyFlag(flag *bool) { p.notifyFlag = flag }

// Destroy marks this Pollable dead, tripping any registered notify flag.
// Must be called from Close paths so in-flight dispatch loops observe it.
func (p *Pollable) Destroy() {
	if p.notifyFlag != nil {
		*p.notifyFlag = true
		p.notifyFlag = nil
	}
	p.fd = -1
}

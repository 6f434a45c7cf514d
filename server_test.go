package mnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/hurricane1026/mnet/endpoint"
	merrors "github.com/hurricane1026/mnet/errors"
	"github.com/hurricane1026/mnet/netstate"
)

// lowestFreeFD returns the descriptor number the kernel would hand out next
// (it always picks the lowest free one), used to pin RLIMIT_NOFILE to an
// exact value in TestHandleRunOutOfFDRecoversFromEMFILE. The limit bounds
// descriptor numbers, not how many are open, so this is the value that makes
// the next allocation fail.
func lowestFreeFD(t *testing.T) int {
	t.Helper()
	fd, err := unix.Open("/dev/null", unix.O_RDONLY, 0)
	require.NoError(t, err)
	require.NoError(t, unix.Close(fd))
	return fd
}

func mustParseLoopback(t *testing.T, port uint16) endpoint.Endpoint {
	t.Helper()
	var e endpoint.Endpoint
	require.GreaterOrEqual(t, e.StringToIpv4("127.0.0.1"), 0)
	return endpoint.New(e.Ipv4(), port)
}

func TestBindAssignsEphemeralPortAndArmsForRead(t *testing.T) {
	m := newTestIOManager(t)
	ln := NewServerSocket(m)
	t.Cleanup(func() { ln.Close() })

	ok := ln.Bind(mustParseLoopback(t, 0))
	require.True(t, ok)

	ep, bound := ln.Endpoint()
	require.True(t, bound)
	assert.NotZero(t, ep.Port())
	assert.Equal(t, "127.0.0.1", ep.Ipv4ToString())
	assert.True(t, ln.IsEpollRead())
}

func TestBindTwiceFails(t *testing.T) {
	m := newTestIOManager(t)
	ln := NewServerSocket(m)
	t.Cleanup(func() { ln.Close() })

	require.True(t, ln.Bind(mustParseLoopback(t, 0)))
	assert.False(t, ln.Bind(mustParseLoopback(t, 0)))
}

func TestAsyncAcceptWithoutBindFails(t *testing.T) {
	m := newTestIOManager(t)
	ln := NewServerSocket(m)
	t.Cleanup(func() { ln.Close() })

	slot := NewSocket(m)
	err := ln.AsyncAccept(slot, func(*Socket, netstate.NetState) {})
	assert.ErrorIs(t, err, merrors.ErrInvalidEndpoint)
}

// TestHandleRunOutOfFDIgnoresOtherErrno documents the intentional
// fallthrough: any errno other than EMFILE/ENFILE is a no-op, matching the
// reference implementation's behavior.
func TestHandleRunOutOfFDIgnoresOtherErrno(t *testing.T) {
	m := newTestIOManager(t)
	ln := NewServerSocket(m)
	t.Cleanup(func() { ln.Close() })

	dummyBefore := ln.dummyFD
	ln.HandleRunOutOfFD(unix.ECONNRESET)
	assert.Equal(t, dummyBefore, ln.dummyFD)
}

// TestHandleRunOutOfFDRecoversFromEMFILE drives the real EMFILE recovery
// branch of HandleRunOutOfFD, not just its no-op fallthrough: it pins the
// process's open-fd limit to the lowest free descriptor number so the next accept4
// against a genuinely backlogged loopback connection fails with EMFILE,
// then checks the listener's dummy fd still works afterward.
func TestHandleRunOutOfFDRecoversFromEMFILE(t *testing.T) {
	var before unix.Rlimit
	require.NoError(t, unix.Getrlimit(unix.RLIMIT_NOFILE, &before))
	t.Cleanup(func() { unix.Setrlimit(unix.RLIMIT_NOFILE, &before) })

	m := newTestIOManager(t)
	ln := NewServerSocket(m)
	t.Cleanup(func() { ln.Close() })
	require.True(t, ln.Bind(mustParseLoopback(t, 0)))
	ep, _ := ln.Endpoint()

	client := NewClientSocket(m)
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.AsyncConnect(ep, func(*ClientSocket, netstate.NetState) {}))

	// The loopback handshake completes kernel-side without any help from
	// this process's reactor; wait for the listener to actually report a
	// backlogged connection before starving the fd table, so DoAccept below
	// is guaranteed to attempt a real accept4 rather than hit EAGAIN first.
	pfds := []unix.PollFd{{Fd: int32(ln.Fd()), Events: unix.POLLIN}}
	n, err := unix.Poll(pfds, 2000)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	limit := uint64(lowestFreeFD(t))
	require.NoError(t, unix.Setrlimit(unix.RLIMIT_NOFILE, &unix.Rlimit{Cur: limit, Max: before.Max}))

	_, state := ln.DoAccept()
	assert.False(t, state.IsOK())
	assert.ErrorIs(t, state, unix.EMFILE)

	// HandleRunOutOfFD closed the dummy fd, accepted and closed the one
	// backlogged connection to free a slot, then reopened the dummy fd in
	// that freed slot — confirm it refers to a live, open file afterward.
	var stat unix.Stat_t
	assert.NoError(t, unix.Fstat(ln.dummyFD, &stat))
	assert.True(t, ln.Valid())
}

func TestCloseReleasesListenerAndDummyFD(t *testing.T) {
	m := newTestIOManager(t)
	ln := NewServerSocket(m)

	require.True(t, ln.Bind(mustParseLoopback(t, 0)))
	require.NoError(t, ln.Close())
	assert.False(t, ln.Valid())
}

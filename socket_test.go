package mnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	merrors "github.com/hurricane1026/mnet/errors"
	"github.com/hurricane1026/mnet/netstate"
)

func TestAsyncReadOnClosedSocketFails(t *testing.T) {
	m := newTestIOManager(t)
	s := NewSocket(m)
	require.NoError(t, s.Close())
	err := s.AsyncRead(func(*Socket, int, netstate.NetState) {})
	assert.ErrorIs(t, err, merrors.ErrSocketClosed)
}

func TestAsyncWriteOnClosedSocketFails(t *testing.T) {
	m := newTestIOManager(t)
	s := NewSocket(m)
	require.NoError(t, s.Close())
	err := s.AsyncWrite([]byte("x"), func(*Socket, int, netstate.NetState) {})
	assert.ErrorIs(t, err, merrors.ErrSocketClosed)
}

// TestIsOverWatermarkIsAdvisoryOnly confirms a backlogged write buffer past
// the configured high watermark is observable but never itself refused —
// WatermarkHigh only informs callers who choose to throttle.
func TestIsOverWatermarkIsAdvisoryOnly(t *testing.T) {
	m, err := NewIOManager(WithWatermarkHigh(4))
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })

	s := NewSocket(m)
	require.True(t, s.writeBuf.Write([]byte("abcdef")))
	assert.True(t, s.IsOverWatermark())
}

func TestIsOverWatermarkDisabledByDefault(t *testing.T) {
	m := newTestIOManager(t)
	s := NewSocket(m)
	require.True(t, s.writeBuf.Write(make([]byte, 1<<20)))
	assert.False(t, s.IsOverWatermark())
}

func TestCloseIsIdempotent(t *testing.T) {
	m := newTestIOManager(t)
	s := NewSocket(m)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.True(t, s.IsClosed())
}

// TestAsyncWriteFailsOnceSocketIsClosing confirms AsyncClose transitions a
// socket out of the state AsyncWrite requires. A freshly allocated Socket
// starts in socketOpen even without an attached fd, so this needs no real
// connection.
func TestAsyncWriteFailsOnceSocketIsClosing(t *testing.T) {
	m := newTestIOManager(t)
	s := NewSocket(m)

	require.NoError(t, s.AsyncClose(closeRecorder{}))

	err := s.AsyncWrite([]byte("x"), func(*Socket, int, netstate.NetState) {})
	assert.ErrorIs(t, err, merrors.ErrSocketClosed)
}

type closeRecorder struct {
	onData  func(int)
	onClose func(netstate.NetState)
}

func (c closeRecorder) InvokeData(n int) {
	if c.onData != nil {
		c.onData(n)
	}
}

func (c closeRecorder) InvokeClose(state netstate.NetState) {
	if c.onClose != nil {
		c.onClose(state)
	}
}

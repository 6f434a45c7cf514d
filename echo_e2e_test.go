package mnet

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurricane1026/mnet/netstate"
)

// runLoopUntil drives RunMainLoop on its own goroutine and fails the test if
// it hasn't returned within timeout. Every test in this file arranges for
// some callback, running on that same goroutine, to call m.Interrupt() once
// its scenario is complete.
func runLoopUntil(t *testing.T, m *IOManager, timeout time.Duration) netstate.NetState {
	t.Helper()
	done := make(chan netstate.NetState, 1)
	go func() { done <- m.RunMainLoop() }()
	select {
	case state := <-done:
		return state
	case <-time.After(timeout):
		t.Fatal("RunMainLoop did not return in time")
		return netstate.NetState{}
	}
}

// TestEchoRoundTrip wires a listener that echoes back whatever it reads
// against a client that writes once and waits for the echo.
func TestEchoRoundTrip(t *testing.T) {
	m := newTestIOManager(t)

	ln := NewServerSocket(m)
	t.Cleanup(func() { ln.Close() })
	require.True(t, ln.Bind(mustParseLoopback(t, 0)))
	ep, _ := ln.Endpoint()

	payload := []byte("the quick brown fox")

	var echoSocket *Socket
	var onServerRead ReadCallback
	onServerRead = func(s *Socket, n int, state netstate.NetState) {
		require.True(t, state.IsOK())
		if n > 0 {
			data := append([]byte(nil), s.ReadBuffer().Read(n)...)
			require.NoError(t, s.AsyncWrite(data, func(*Socket, int, netstate.NetState) {}))
		}
		s.AsyncRead(onServerRead)
	}
	require.NoError(t, ln.AsyncAccept(NewSocket(m), func(s *Socket, state netstate.NetState) {
		require.True(t, state.IsOK())
		echoSocket = s
		s.AsyncRead(onServerRead)
	}))

	client := NewClientSocket(m)
	t.Cleanup(func() { client.Close() })

	received := make([]byte, 0, len(payload))
	var onClientRead ReadCallback
	onClientRead = func(s *Socket, n int, state netstate.NetState) {
		require.True(t, state.IsOK())
		if n > 0 {
			received = append(received, s.ReadBuffer().Read(n)...)
		}
		if len(received) >= len(payload) {
			m.Interrupt()
			return
		}
		s.AsyncRead(onClientRead)
	}

	require.NoError(t, client.AsyncConnect(ep, func(c *ClientSocket, state netstate.NetState) {
		require.True(t, state.IsOK())
		require.NoError(t, c.AsyncWrite(payload, func(*Socket, int, netstate.NetState) {}))
		require.NoError(t, c.AsyncRead(onClientRead))
	}))

	state := runLoopUntil(t, m, 5*time.Second)
	assert.True(t, state.IsOK())
	assert.Equal(t, payload, received)
	_ = echoSocket
}

// TestLargeWriteCompletesAcrossMultipleEdges pushes enough bytes through a
// loopback socket to guarantee at least one EAGAIN in the middle of DoWrite,
// exercising flushWrite's partial-completion accumulation.
func TestLargeWriteCompletesAcrossMultipleEdges(t *testing.T) {
	m := newTestIOManager(t)

	ln := NewServerSocket(m)
	t.Cleanup(func() { ln.Close() })
	require.True(t, ln.Bind(mustParseLoopback(t, 0)))
	ep, _ := ln.Endpoint()

	payload := bytes.Repeat([]byte("0123456789abcdef"), 1024*1024) // 16 MiB

	received := 0
	var onServerRead ReadCallback
	onServerRead = func(s *Socket, n int, state netstate.NetState) {
		require.True(t, state.IsOK())
		if n > 0 {
			s.ReadBuffer().Read(n)
			received += n
		}
		if received >= len(payload) {
			m.Interrupt()
			return
		}
		s.AsyncRead(onServerRead)
	}
	require.NoError(t, ln.AsyncAccept(NewSocket(m), func(s *Socket, state netstate.NetState) {
		require.True(t, state.IsOK())
		s.AsyncRead(onServerRead)
	}))

	client := NewClientSocket(m)
	t.Cleanup(func() { client.Close() })

	writeCalls := 0
	writtenTotal := 0
	require.NoError(t, client.AsyncConnect(ep, func(c *ClientSocket, state netstate.NetState) {
		require.True(t, state.IsOK())
		require.NoError(t, c.AsyncWrite(payload, func(_ *Socket, n int, wstate netstate.NetState) {
			writeCalls++
			writtenTotal = n
			_ = wstate
		}))
	}))

	state := runLoopUntil(t, m, 10*time.Second)
	assert.True(t, state.IsOK())
	assert.Equal(t, len(payload), received)
	assert.Equal(t, 16*1024*1024, len(payload))
	assert.Equal(t, 1, writeCalls)
	assert.Equal(t, 16*1024*1024, writtenTotal)
}

// TestPeerCloseDeliversEOF confirms a hard Close on one side surfaces as a
// zero-length, OK-state read on the other.
func TestPeerCloseDeliversEOF(t *testing.T) {
	m := newTestIOManager(t)

	ln := NewServerSocket(m)
	t.Cleanup(func() { ln.Close() })
	require.True(t, ln.Bind(mustParseLoopback(t, 0)))
	ep, _ := ln.Endpoint()

	sawEOF := false
	require.NoError(t, ln.AsyncAccept(NewSocket(m), func(s *Socket, state netstate.NetState) {
		require.True(t, state.IsOK())
		var onRead ReadCallback
		onRead = func(s *Socket, n int, rstate netstate.NetState) {
			if n == 0 && rstate.IsOK() {
				sawEOF = true
				m.Interrupt()
				return
			}
			s.AsyncRead(onRead)
		}
		s.AsyncRead(onRead)
	}))

	client := NewClientSocket(m)
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.AsyncConnect(ep, func(c *ClientSocket, state netstate.NetState) {
		require.True(t, state.IsOK())
		require.NoError(t, c.Close())
	}))

	state := runLoopUntil(t, m, 5*time.Second)
	assert.True(t, state.IsOK())
	assert.True(t, sawEOF)
}

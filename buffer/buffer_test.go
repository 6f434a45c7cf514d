package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteReadRoundTrip(t *testing.T) {
	b := New(4)
	data := []byte("hello, world")
	assert.True(t, b.Write(data))
	assert.Equal(t, len(data), b.ReadableSize())

	got := b.Read(len(data))
	assert.Equal(t, data, got)
	assert.Equal(t, 0, b.ReadableSize())
}

func TestInterleavedWritesPreserveFIFOOrder(t *testing.T) {
	b := New(8)
	assert.True(t, b.Write([]byte("abc")))
	first := b.Read(2)
	assert.Equal(t, []byte("ab"), first)
	assert.True(t, b.Write([]byte("def")))
	rest := b.Read(100)
	assert.Equal(t, []byte("cdef"), rest)
}

func TestRewindOnEmpty(t *testing.T) {
	b := New(8)
	assert.True(t, b.Write([]byte("xy")))
	_ = b.Read(2)
	assert.Equal(t, 0, b.ReadableSize())
	// After draining, cursors should have rewound to 0,0 so the head of
	// the buffer is reusable without growth.
	acc := b.GetWriteAccessor()
	assert.Equal(t, b.Capacity(), acc.Size())
}

func TestFixedBufferNeverGrows(t *testing.T) {
	b := NewFixed(4)
	assert.True(t, b.Write([]byte("ab")))
	ok := b.Write([]byte("abc"))
	assert.False(t, ok)
	assert.Equal(t, 4, b.Capacity())
	assert.Equal(t, 2, b.ReadableSize())
}

func TestFillNeverGrows(t *testing.T) {
	b := New(4)
	n := b.Fill([]byte("abcdef"))
	assert.Equal(t, 4, n)
	assert.Equal(t, 4, b.Capacity())
}

func TestInjectGrowsExactlyToCapacity(t *testing.T) {
	b := New(4)
	assert.True(t, b.Write([]byte("ab")))
	ok := b.Inject([]byte("cdefgh"))
	assert.True(t, ok)
	assert.Equal(t, b.Capacity(), 8) // readable(2) + injected(6)
	assert.Equal(t, b.Capacity(), b.writePtr)
}

func TestFixedInjectOverflowFails(t *testing.T) {
	b := NewFixed(4)
	assert.True(t, b.Write([]byte("ab")))
	ok := b.Inject([]byte("cdef"))
	assert.False(t, ok)
}

func TestAccessorCommitAdvancesCursors(t *testing.T) {
	b := New(8)
	wa := b.GetWriteAccessor()
	n := copy(wa.Address(), []byte("hi"))
	wa.SetCommittedSize(n)
	wa.Commit()
	assert.Equal(t, 2, b.ReadableSize())

	ra := b.GetReadAccessor()
	assert.Equal(t, []byte("hi"), ra.Address())
	ra.SetCommittedSize(2)
	ra.Commit()
	assert.Equal(t, 0, b.ReadableSize())
}

func TestInvariantOrdering(t *testing.T) {
	b := New(4)
	assert.True(t, b.Write([]byte("abcdefgh")))
	assert.LessOrEqual(t, 0, b.readPtr)
	assert.LessOrEqual(t, b.readPtr, b.writePtr)
	assert.LessOrEqual(t, b.writePtr, b.Capacity())
}

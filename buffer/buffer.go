// Package buffer implements the staged-I/O byte buffer used by every socket
// in this module: a contiguous region with independent read and write
// cursors, grown by doubling for streaming sockets or held fixed for
// bounded scratch use, backed by a pooled slab from bytebufferpool instead
// of a raw heap allocation
// so repeated connection churn doesn't hit the allocator on every grow.
package buffer

import "github.com/valyala/bytebufferpool"

// Buffer is a growable (or fixed-capacity) byte buffer with distinct read
// and write cursors. Invariant: 0 <= readPtr <= writePtr <= len(mem).
type Buffer struct {
	bb       *bytebufferpool.ByteBuffer
	mem      []byte
	readPtr  int
	writePtr int
	fixed    bool
}

func backing(capacity int) (*bytebufferpool.ByteBuffer, []byte) {
	bb := bytebufferpool.Get()
	if cap(bb.B) < capacity {
		bb.B = append(bb.B[:0], make([]byte, capacity)...)
	} else {
		bb.B = bb.B[:capacity]
	}
	return bb, bb.B[:capacity]
}

// New returns a growable Buffer with the given initial capacity.
func New(capacity int) *Buffer {
	bb, mem := backing(capacity)
	return &Buffer{bb: bb, mem: mem}
}

// NewFixed returns a Buffer that never grows: Write/Inject fail (return
// false) rather than reallocate once capacity is exhausted.
func NewFixed(capacity int) *Buffer {
	bb, mem := backing(capacity)
	return &Buffer{bb: bb, mem: mem, fixed: true}
}

// Release returns the backing slab to the pool. The Buffer must not be used
// afterward — a consequence of backing every Buffer with a pooled slab
// instead of a private allocation.
func (b *Buffer) Release() {
	if b.bb != nil {
		bytebufferpool.Put(b.bb)
		b.bb = nil
		b.mem = nil
		b.readPtr, b.writePtr = 0, 0
	}
}

// ReadableSize is the length of the [readPtr, writePtr) span.
func (b *Buffer) ReadableSize() int { return b.writePtr - b.readPtr }

// WritableSize is the length of the [writePtr, capacity) span.
func (b *Buffer) WritableSize() int { return len(b.mem) - b.writePtr }

// Capacity is the total size of the backing region.
func (b *Buffer) Capacity() int { return len(b.mem) }

// IsFixed reports whether this buffer refuses to grow.
func (b *Buffer) IsFixed() bool { return b.fixed }

// rewind resets both cursors to zero once the readable region is empty, so
// the head of the buffer is reusable without a reallocation.
func (b *Buffer) rewind() {
	if b.readPtr == b.writePtr {
		b.readPtr, b.writePtr = 0, 0
	}
}

// Grow reallocates to exactly newCapacity, copying only the readable
// portion to the head of the new region and resetting readPtr to 0.
// newCapacity below the current readable size is rounded up to it so the
// copy never truncates live data.
func (b *Buffer) Grow(newCapacity int) {
	readable := b.ReadableSize()
	if newCapacity < readable {
		newCapacity = readable
	}
	newBB, newMem := backing(newCapacity)
	copy(newMem, b.mem[b.readPtr:b.writePtr])
	if b.bb != nil {
		bytebufferpool.Put(b.bb)
	}
	b.bb, b.mem = newBB, newMem
	b.writePtr = readable
	b.readPtr = 0
}

// Read returns a slice into the buffer's internal memory holding up to
// maxSize readable bytes (fewer if that's all there is), advances readPtr
// by that amount, and rewinds if the buffer is now empty. The returned
// slice is valid only until the next mutating call on this Buffer.
func (b *Buffer) Read(maxSize int) []byte {
	avail := b.ReadableSize()
	n := maxSize
	if n > avail {
		n = avail
	}
	out := b.mem[b.readPtr : b.readPtr+n]
	b.readPtr += n
	b.rewind()
	return out
}

// Write appends p, growing a non-fixed buffer to max(len(p), Capacity())*2
// if there isn't enough writable space. Returns false only when a fixed
// buffer can't hold p; a false return never mutates the buffer.
func (b *Buffer) Write(p []byte) bool {
	n := len(p)
	if b.WritableSize() < n {
		if b.fixed {
			return false
		}
		newCap := n
		if b.Capacity() > newCap {
			newCap = b.Capacity()
		}
		b.Grow(newCap * 2)
	}
	copy(b.mem[b.writePtr:], p)
	b.writePtr += n
	return true
}

// Fill appends up to the current writable capacity of p without growing
// the buffer, returning the number of bytes actually written.
func (b *Buffer) Fill(p []byte) int {
	avail := b.WritableSize()
	if avail == 0 {
		return 0
	}
	n := len(p)
	if n > avail {
		n = avail
	}
	copy(b.mem[b.writePtr:], p[:n])
	b.writePtr += n
	return n
}

// Inject appends p, growing to exactly ReadableSize()+len(p) if needed so
// that WritePtr lands exactly at capacity afterward. Used to absorb the
// overflow segment of a scatter read out of the reactor's shared scratch
// buffer. Returns false only on fixed-buffer overflow.
func (b *Buffer) Inject(p []byte) bool {
	n := len(p)
	if b.WritableSize() < n {
		if b.fixed {
			return false
		}
		b.Grow(b.ReadableSize() + n)
	}
	copy(b.mem[b.writePtr:], p)
	b.writePtr += n
	return true
}

// Accessor is a transient borrow of a buffer's readable or writable region,
// used for zero-copy scatter/gather I/O: the caller reads or writes
// directly into Address(), then reports how much it actually consumed via
// SetCommittedSize before Commit advances the cursor.
type Accessor struct {
	buf       *Buffer
	forRead   bool
	window    []byte
	committed int
}

// Address returns the raw region backing this accessor.
func (a *Accessor) Address() []byte { return a.window }

// Size is len(Address()).
func (a *Accessor) Size() int { return len(a.window) }

// SetCommittedSize records how many bytes of Address() were actually used.
func (a *Accessor) SetCommittedSize(n int) { a.committed = n }

// Commit advances the buffer's read or write cursor by the committed size,
// rewinding the buffer if a read commit drains it empty.
func (a *Accessor) Commit() {
	if a.forRead {
		a.buf.readPtr += a.committed
		a.buf.rewind()
	} else {
		a.buf.writePtr += a.committed
	}
}

// GetReadAccessor borrows the current readable span [readPtr, writePtr).
func (b *Buffer) GetReadAccessor() Accessor {
	return Accessor{buf: b, forRead: true, window: b.mem[b.readPtr:b.writePtr]}
}

// GetWriteAccessor borrows the current writable span [writePtr, capacity).
func (b *Buffer) GetWriteAccessor() Accessor {
	return Accessor{buf: b, forRead: false, window: b.mem[b.writePtr:len(b.mem)]}
}

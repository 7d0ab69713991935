// Package queue implements a lock-free single-producer/single-consumer byte
// ring buffer sized at init time, with an optional overwrite-oldest mode for
// producers that must never block (interrupt handlers, sampling loops).
package queue

import "sync/atomic"

// ByteQueue is an SPSC ring buffer of bytes. One goroutine may call the push
// methods and a different goroutine may call the pop methods concurrently
// without further synchronization; head/tail indices are atomics with the
// one writer / one reader discipline the teacher's atomic-counter idioms
// rely on elsewhere in this module.
type ByteQueue struct {
	buf       []byte
	headIx    atomic.Uint64 // next write slot; always an unused sentinel
	tailIx    atomic.Uint64 // next read slot
	overwrite bool
}

// New creates a ByteQueue backed by a buffer of the given capacity. One slot
// is always left empty to distinguish full from empty, so the queue holds
// at most capacity-1 bytes at once.
func New(capacity int, overwrite bool) *ByteQueue {
	return &ByteQueue{buf: make([]byte, capacity), overwrite: overwrite}
}

func incModulo(v uint64, mod uint64) uint64 {
	v++
	if v == mod {
		return 0
	}
	return v
}

// PushOne enqueues a single byte, returning false if the queue was full and
// not in overwrite mode.
func (q *ByteQueue) PushOne(b byte) bool {
	endIx := uint64(len(q.buf))
	headIx := q.headIx.Load()
	next := incModulo(headIx, endIx)
	tailIx := q.tailIx.Load()

	if next != tailIx { // not full
		q.buf[headIx] = b
		q.headIx.Store(next)
		return true
	}

	if !q.overwrite {
		return false
	}

	q.buf[headIx] = b
	q.headIx.Store(next)

	advanced := incModulo(tailIx, endIx)
	q.tailIx.CompareAndSwap(tailIx, advanced)
	return true
}

// PopOne dequeues a single byte, returning false if the queue was empty.
func (q *ByteQueue) PopOne() (byte, bool) {
	tailIx := q.tailIx.Load()
	if tailIx == q.headIx.Load() {
		return 0, false
	}
	b := q.buf[tailIx]
	q.tailIx.Store(incModulo(tailIx, uint64(len(q.buf))))
	return b, true
}

// Push enqueues as many of elements as fit, stopping early (or, in
// overwrite mode, evicting the oldest bytes) once the queue fills. It
// returns the number of bytes actually written.
func (q *ByteQueue) Push(elements []byte) int {
	endIx := uint64(len(q.buf))
	remaining := elements

	for len(remaining) > 0 {
		headIx := q.headIx.Load()
		tailIx := q.tailIx.Load()

		var chunk uint64
		if headIx >= tailIx {
			chunk = endIx - headIx
		} else {
			chunk = tailIx - 1 - headIx
		}
		if uint64(len(remaining)) < chunk {
			chunk = uint64(len(remaining))
		}
		if chunk == 0 {
			break
		}

		copy(q.buf[headIx:headIx+chunk], remaining[:chunk])

		next := headIx + chunk
		if next >= endIx {
			if tailIx != 0 {
				next = 0
			} else {
				next = endIx - 1
				chunk--
			}
		}
		q.headIx.Store(next)
		remaining = remaining[chunk:]
	}

	written := len(elements) - len(remaining)

	if q.overwrite && len(remaining) > 0 {
		for len(remaining) > 0 {
			if !q.PushOne(remaining[0]) {
				break
			}
			remaining = remaining[1:]
			written++
		}
	}

	return written
}

// Pop dequeues up to len(out) bytes into out, returning the number read.
func (q *ByteQueue) Pop(out []byte) int {
	endIx := uint64(len(q.buf))
	available := q.Count()
	want := len(out)
	if uint64(want) > available {
		want = int(available)
	}

	popped := 0
	for popped < want {
		headIx := q.headIx.Load()
		tailIx := q.tailIx.Load()
		if headIx == tailIx {
			break
		}

		var chunk uint64
		if headIx >= tailIx {
			chunk = headIx - tailIx
		} else {
			chunk = endIx - tailIx
		}
		remaining := uint64(want - popped)
		if chunk > remaining {
			chunk = remaining
		}

		copy(out[popped:uint64(popped)+chunk], q.buf[tailIx:tailIx+chunk])

		next := tailIx + chunk
		if next >= endIx {
			next = 0
		}
		q.tailIx.Store(next)
		popped += int(chunk)
	}

	return popped
}

// Discard drops up to n queued bytes without copying them out, returning the
// number actually discarded.
func (q *ByteQueue) Discard(n int) int {
	endIx := uint64(len(q.buf))
	available := q.Count()
	if uint64(n) > available {
		n = int(available)
	}

	discarded := 0
	for discarded < n {
		headIx := q.headIx.Load()
		tailIx := q.tailIx.Load()
		if headIx == tailIx {
			break
		}

		var chunk uint64
		if headIx >= tailIx {
			chunk = headIx - tailIx
		} else {
			chunk = endIx - tailIx
		}
		remaining := uint64(n - discarded)
		if chunk > remaining {
			chunk = remaining
		}

		next := tailIx + chunk
		if next >= endIx {
			next = 0
		}
		q.tailIx.Store(next)
		discarded += int(chunk)
	}

	return discarded
}

// PeekOne returns the oldest queued byte without removing it.
func (q *ByteQueue) PeekOne() (byte, bool) {
	tailIx := q.tailIx.Load()
	if tailIx == q.headIx.Load() {
		return 0, false
	}
	return q.buf[tailIx], true
}

// Count returns the number of bytes currently queued.
func (q *ByteQueue) Count() uint64 {
	endIx := uint64(len(q.buf))
	headIx := q.headIx.Load()
	tailIx := q.tailIx.Load()
	if headIx >= tailIx {
		return headIx - tailIx
	}
	return endIx - (tailIx - headIx)
}

// Flush discards all queued data.
func (q *ByteQueue) Flush() {
	q.tailIx.Store(0)
	q.headIx.Store(0)
}

// IsFull reports whether the queue has no room for another byte.
func (q *ByteQueue) IsFull() bool {
	next := incModulo(q.headIx.Load(), uint64(len(q.buf)))
	return next == q.tailIx.Load()
}

// IsEmpty reports whether the queue holds no data.
func (q *ByteQueue) IsEmpty() bool {
	return q.headIx.Load() == q.tailIx.Load()
}

// Package pool is the Frame Delivery Pool: a bounded set of fixed-shape
// frame descriptors that transfer ownership of decoded pixel
// buffers across the callback boundary to the host. Acquire copies pixels
// into a pool-owned buffer and hands out a Handle; Release returns the slot
// to the free-list.
package pool

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Handle is a stable reference to a Descriptor: a slot index plus a
// generation tag, replacing a raw pointer release so that a
// released-and-reused slot can never satisfy a late/duplicate Release call
// for the old occupant, the generation won't match.
type Handle struct {
	Index      int
	Generation uuid.UUID
}

// Descriptor is the pool-owned record handed to the host for one delivered
// frame.
type Descriptor struct {
	Width, Height int
	PixelFormat   int // media.BGR24's underlying value; pool doesn't import media to avoid a cycle
	PTS           int64
	CameraID      int

	Pix    []byte
	Stride int

	generation uuid.UUID
	refCount   int // 0 = free, 1 = host owns the read
}

// Pool is the fixed-size slot table plus free-list, guarded by one mutex for
// the free-list only, pixel allocation/copy happens outside the lock.
type Pool struct {
	mu        sync.Mutex
	slots     []Descriptor
	free      []int
	destroyed bool
}

// New allocates size descriptors and their index array, returning an owned
// value so tests and the Registry can each hold independent pools.
func New(size int) *Pool {
	p := &Pool{
		slots: make([]Descriptor, size),
		free:  make([]int, size),
	}
	for i := range p.free {
		p.free[i] = size - 1 - i
	}
	return p
}

// Acquire pops a free slot under lock, then fills metadata and copies src
// into the slot's buffer outside the lock. It returns ok=false when the
// pool is empty, in which case the caller drops the frame.
//
// src is copied line-by-line so srcStride may differ from the destination's
// own (tight) stride.
func (p *Pool) Acquire(src []byte, srcStride, width, height int, pixelFormat int, pts int64, cameraID int) (Handle, bool) {
	idx, ok := p.popFree()
	if !ok {
		return Handle{}, false
	}

	dstStride := width * 3
	d := &p.slots[idx]
	if cap(d.Pix) < dstStride*height {
		d.Pix = make([]byte, dstStride*height)
	} else {
		d.Pix = d.Pix[:dstStride*height]
	}
	copyRows(d.Pix, dstStride, src, srcStride, height)

	gen := uuid.New()
	d.Width, d.Height = width, height
	d.Stride = dstStride
	d.PixelFormat = pixelFormat
	d.PTS = pts
	d.CameraID = cameraID
	d.generation = gen
	d.refCount = 1

	return Handle{Index: idx, Generation: gen}, true
}

func copyRows(dst []byte, dstStride int, src []byte, srcStride, height int) {
	rowLen := dstStride
	if srcStride < rowLen {
		rowLen = srcStride
	}
	for y := 0; y < height; y++ {
		ds := y * dstStride
		ss := y * srcStride
		if ss+rowLen > len(src) || ds+rowLen > len(dst) {
			break
		}
		copy(dst[ds:ds+rowLen], src[ss:ss+rowLen])
	}
}

func (p *Pool) popFree() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed || len(p.free) == 0 {
		return 0, false
	}
	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	return idx, true
}

// Descriptor returns the live descriptor for h, or ok=false if h is stale
// (already released, slot reused, or out of range), a foreign/stale handle
// never dereferences pool memory, it just fails the generation check.
func (p *Pool) Descriptor(h Handle) (Descriptor, bool) {
	if h.Index < 0 || h.Index >= len(p.slots) {
		return Descriptor{}, false
	}
	d := &p.slots[h.Index]
	if d.refCount != 1 || d.generation != h.Generation {
		return Descriptor{}, false
	}
	return *d, true
}

// Release frees h's pixel buffer metadata and returns its slot to the
// free-list. A double-release or a stale/foreign handle is a no-op that
// returns false so the caller can log a warning; it never panics or
// corrupts pool state.
func (p *Pool) Release(h Handle) bool {
	if h.Index < 0 || h.Index >= len(p.slots) {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	d := &p.slots[h.Index]
	if d.refCount != 1 || d.generation != h.Generation {
		return false
	}
	d.refCount = 0
	d.Stride = 0
	d.PTS = 0
	p.free = append(p.free, h.Index)
	return true
}

// Len reports the pool's fixed slot count.
func (p *Pool) Len() int { return len(p.slots) }

// Available reports how many slots are currently free, for diagnostics.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Destroy frees any still-held pixel buffers (returning a count so the
// caller can log a warning per held slot) and marks the pool unusable.
// Safe to call more than once.
func (p *Pool) Destroy() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return 0
	}
	held := 0
	for i := range p.slots {
		if p.slots[i].refCount != 0 {
			held++
		}
		p.slots[i] = Descriptor{}
	}
	p.free = nil
	p.destroyed = true
	return held
}

func (p *Pool) String() string {
	return fmt.Sprintf("pool(size=%d, free=%d)", p.Len(), p.Available())
}

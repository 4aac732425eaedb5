// Package frame defines the in-memory slots the buffer pool manager fills
// with page contents, grounded on the upstream engine's FrameHeader and
// page latch design.
package frame

import (
	"sync"
	"sync/atomic"

	"github.com/gojodb/bufferpool/internal/page"
)

// ID identifies a slot in the buffer pool's fixed-size frame table.
type ID int32

// Frame holds one page's worth of bytes plus the bookkeeping the buffer
// pool manager and replacer need: which page (if any) it currently holds,
// how many guards have it pinned, whether it has unflushed writes, and a
// reader/writer latch serializing access to Data.
type Frame struct {
	Data []byte

	PageID   page.ID
	pinCount atomic.Int32
	dirty    atomic.Bool

	Latch sync.RWMutex
}

// New allocates a zeroed frame with a page.Size buffer.
func New() *Frame {
	return &Frame{Data: make([]byte, page.Size)}
}

// PinCount returns the number of outstanding guards on this frame.
func (f *Frame) PinCount() int32 { return f.pinCount.Load() }

// Pin increments the pin count and returns the new value.
func (f *Frame) Pin() int32 { return f.pinCount.Add(1) }

// Unpin decrements the pin count and returns the new value. It never
// drops below zero; callers must not unpin an unpinned frame.
func (f *Frame) Unpin() int32 {
	for {
		cur := f.pinCount.Load()
		if cur <= 0 {
			return 0
		}
		if f.pinCount.CompareAndSwap(cur, cur-1) {
			return cur - 1
		}
	}
}

// IsDirty reports whether the frame has writes not yet flushed to disk.
func (f *Frame) IsDirty() bool { return f.dirty.Load() }

// SetDirty sets or clears the frame's dirty flag.
func (f *Frame) SetDirty(dirty bool) { f.dirty.Store(dirty) }

// Reset clears a frame for reuse by a different page. Callers must hold
// Latch exclusively and know the frame is unpinned before calling this.
func (f *Frame) Reset() {
	for i := range f.Data {
		f.Data[i] = 0
	}
	f.PageID = page.InvalidID
	f.pinCount.Store(0)
	f.dirty.Store(false)
}

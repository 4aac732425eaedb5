package bufferpool

import (
	"context"
	"sync/atomic"

	"github.com/gojodb/bufferpool/internal/frame"
	"github.com/gojodb/bufferpool/internal/page"
	"github.com/gojodb/bufferpool/internal/replacer"
	"github.com/gojodb/bufferpool/pkg/dberrors"
)

// noCopy trips go vet's copylocks check when embedded in a struct that is
// accidentally passed by value instead of by pointer, the same idiom
// sync.WaitGroup uses. A guard's pointer identity is its ownership token;
// copying one by value would let two call sites believe they each owned
// the drop.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// ReadPageGuard is a scoped, shared-read lease on a frame's bytes. The
// frame stays pinned and unevictable for as long as the guard is valid.
// Call Drop exactly once (directly, or via Release, its synonym) when
// done; using the guard's accessors afterward panics.
type ReadPageGuard struct {
	_ noCopy

	mgr   *Manager
	fr    *frame.Frame
	fid   replacer.FrameID
	valid atomic.Bool
}

func newReadPageGuard(mgr *Manager, fr *frame.Frame, fid replacer.FrameID) *ReadPageGuard {
	g := &ReadPageGuard{mgr: mgr, fr: fr, fid: fid}
	g.valid.Store(true)
	return g
}

// PageID returns the page this guard leases.
func (g *ReadPageGuard) PageID() page.ID {
	g.mustValid()
	return g.fr.PageID
}

// Data returns the frame's bytes. The slice must not be retained past the
// guard's lifetime.
func (g *ReadPageGuard) Data() []byte {
	g.mustValid()
	return g.fr.Data
}

// Drop releases the guard's latch and pin. Calling it more than once is a
// no-op; the first call wins.
func (g *ReadPageGuard) Drop() {
	if !g.valid.CompareAndSwap(true, false) {
		return
	}
	g.fr.Latch.RUnlock()
	g.mgr.unpin(context.Background(), g.fid)
}

// Release is a synonym for Drop, matching the Go standard library's
// preference for Close/Release over destructor-flavored names.
func (g *ReadPageGuard) Release() { g.Drop() }

func (g *ReadPageGuard) mustValid() {
	if !g.valid.Load() {
		panic(dberrors.ErrGuardInvalidated)
	}
}

// WritePageGuard is a scoped, exclusive-write lease on a frame's bytes.
// Acquiring one marks the frame dirty immediately, since spec compliance
// favors simplicity over precisely tracking whether the caller actually
// mutated the bytes.
type WritePageGuard struct {
	_ noCopy

	mgr   *Manager
	fr    *frame.Frame
	fid   replacer.FrameID
	valid atomic.Bool
}

func newWritePageGuard(mgr *Manager, fr *frame.Frame, fid replacer.FrameID) *WritePageGuard {
	g := &WritePageGuard{mgr: mgr, fr: fr, fid: fid}
	g.valid.Store(true)
	return g
}

// PageID returns the page this guard leases.
func (g *WritePageGuard) PageID() page.ID {
	g.mustValid()
	return g.fr.PageID
}

// Data returns the frame's bytes for in-place mutation.
func (g *WritePageGuard) Data() []byte {
	g.mustValid()
	return g.fr.Data
}

// Drop releases the guard's latch and pin. Calling it more than once is a
// no-op.
func (g *WritePageGuard) Drop() {
	if !g.valid.CompareAndSwap(true, false) {
		return
	}
	g.fr.Latch.Unlock()
	g.mgr.unpin(context.Background(), g.fid)
}

// Release is a synonym for Drop.
func (g *WritePageGuard) Release() { g.Drop() }

func (g *WritePageGuard) mustValid() {
	if !g.valid.Load() {
		panic(dberrors.ErrGuardInvalidated)
	}
}

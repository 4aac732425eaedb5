// Package bufferpool implements the buffer pool manager: the frame table,
// page table, and fetch/evict/flush algorithm that together make up the
// in-memory page cache, grounded on the upstream engine's
// write_engine/memtable buffer pool manager and the original checked-fetch
// routine it was distilled from.
package bufferpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/gojodb/bufferpool/internal/disk"
	"github.com/gojodb/bufferpool/internal/frame"
	"github.com/gojodb/bufferpool/internal/page"
	"github.com/gojodb/bufferpool/internal/replacer"
	"github.com/gojodb/bufferpool/pkg/dberrors"
	"github.com/gojodb/bufferpool/pkg/telemetry"
)

// DiskScheduler is the subset of *disk.Scheduler the manager depends on.
// Any type honoring this contract is substitutable, e.g. for testing
// against a fake that never touches a real file.
type DiskScheduler interface {
	Schedule(req *disk.Request)
	CreatePromise() *disk.Promise
	IncreaseDiskSpace(upTo page.ID) error
	DeallocatePage(id page.ID) error
}

// Manager is the buffer pool manager: it admits pages into a fixed number
// of frames, evicts via LRU-K when full, and hands out scoped read/write
// guards that serialize access to a frame's bytes.
type Manager struct {
	latch sync.Mutex

	frames   []*frame.Frame
	pageTbl  map[page.ID]replacer.FrameID
	freeList []replacer.FrameID
	replacer *replacer.LRUK

	disk   DiskScheduler
	logger *zap.Logger
	tel    *telemetry.Instruments

	nextPageID atomic.Uint64
}

// NewManager constructs a pool of numFrames frames backed by disk, using
// an LRU-K replacer with the given k lookback.
func NewManager(numFrames int, disk DiskScheduler, k int, logger *zap.Logger, tel *telemetry.Instruments) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	tel = telemetry.OrNoop(tel)

	frames := make([]*frame.Frame, numFrames)
	freeList := make([]replacer.FrameID, numFrames)
	for i := 0; i < numFrames; i++ {
		frames[i] = frame.New()
		freeList[i] = replacer.FrameID(numFrames - 1 - i) // pop from back -> frame 0 first
	}

	m := &Manager{
		frames:   frames,
		pageTbl:  make(map[page.ID]replacer.FrameID),
		freeList: freeList,
		replacer: replacer.New(numFrames, k),
		disk:     disk,
		logger:   logger,
		tel:      tel,
	}
	m.nextPageID.Store(1) // page 0 is reserved; NewPage starts at 1.
	logger.Info("buffer pool manager constructed", zap.Int("num_frames", numFrames), zap.Int("k", k))
	return m
}

// Size reports the configured number of frames.
func (m *Manager) Size() int { return len(m.frames) }

// NewPage allocates a fresh page id and grows the backing file to host it.
// It does not admit the page into any frame.
func (m *Manager) NewPage() (page.ID, error) {
	id := page.ID(m.nextPageID.Add(1) - 1)
	if err := m.disk.IncreaseDiskSpace(id); err != nil {
		return page.InvalidID, fmt.Errorf("allocating page %d: %w", id, err)
	}
	m.logger.Debug("new page allocated", zap.Uint64("page_id", uint64(id)))
	return id, nil
}

// DeletePage evicts id from the pool (if resident) and marks it free.
// It refuses to delete a pinned page. Disk-space reclamation itself is a
// best-effort hint only.
func (m *Manager) DeletePage(id page.ID) error {
	m.latch.Lock()
	defer m.latch.Unlock()

	fid, resident := m.pageTbl[id]
	if resident {
		fr := m.frames[fid]
		if fr.PinCount() > 0 {
			return fmt.Errorf("%w: page %d", dberrors.ErrPagePinned, id)
		}
		fr.Latch.Lock()
		fr.Reset()
		fr.Latch.Unlock()
		delete(m.pageTbl, id)
		_ = m.replacer.Remove(fid)
		m.freeList = append(m.freeList, fid)
	}
	if err := m.disk.DeallocatePage(id); err != nil {
		m.logger.Warn("deallocate page hint failed", zap.Uint64("page_id", uint64(id)), zap.Error(err))
	}
	m.logger.Debug("page deleted", zap.Uint64("page_id", uint64(id)))
	return nil
}

// acquireFrame implements the shared core of CheckedReadPage/CheckedWritePage:
// find or admit id into a frame, pin it, and record the access. The pool
// latch is held for the duration, including across the disk await, per the
// documented concurrency model. Callers must hold m.latch.
func (m *Manager) acquireFrame(ctx context.Context, id page.ID) (*frame.Frame, replacer.FrameID, error) {
	if fid, ok := m.pageTbl[id]; ok {
		fr := m.frames[fid]
		fr.Pin()
		_ = m.replacer.RecordAccess(fid)
		_ = m.replacer.SetEvictable(fid, false)
		m.tel.Hits.Add(ctx, 1)
		return fr, fid, nil
	}

	m.tel.Misses.Add(ctx, 1)

	var fid replacer.FrameID
	if n := len(m.freeList); n > 0 {
		fid = m.freeList[n-1]
		m.freeList = m.freeList[:n-1]
	} else {
		victim, ok := m.replacer.Evict()
		if !ok {
			return nil, 0, dberrors.ErrBufferPoolExhausted
		}
		fid = victim
		victimFrame := m.frames[fid]
		if victimFrame.IsDirty() {
			if err := m.flushFrame(ctx, victimFrame); err != nil {
				return nil, 0, err
			}
		}
		delete(m.pageTbl, victimFrame.PageID)
		m.tel.Evictions.Add(ctx, 1)
	}

	fr := m.frames[fid]
	fr.Latch.Lock()
	p := m.disk.CreatePromise()
	m.disk.Schedule(&disk.Request{IsWrite: false, PageID: id, Data: fr.Data, Promise: p})
	err := p.Await(ctx)
	if err != nil {
		fr.Latch.Unlock()
		m.logger.Error("fatal disk read failure", zap.Uint64("page_id", uint64(id)), zap.Error(err))
		return nil, 0, err
	}
	fr.PageID = id
	fr.SetDirty(false)
	fr.Latch.Unlock()

	m.pageTbl[id] = fid
	fr.Pin()
	_ = m.replacer.RecordAccess(fid)
	_ = m.replacer.SetEvictable(fid, false)
	return fr, fid, nil
}

// CheckedReadPage fetches id, pins it, and returns a shared-read guard.
// ok is false only when the pool is exhausted; disk I/O failure is fatal
// and returned as an error.
func (m *Manager) CheckedReadPage(ctx context.Context, id page.ID) (*ReadPageGuard, bool, error) {
	m.latch.Lock()
	fr, fid, err := m.acquireFrame(ctx, id)
	if err != nil {
		m.latch.Unlock()
		if errors.Is(err, dberrors.ErrBufferPoolExhausted) {
			return nil, false, nil
		}
		return nil, false, err
	}
	fr.Latch.RLock()
	m.latch.Unlock()

	m.tel.PinCount.Add(ctx, 1)
	return newReadPageGuard(m, fr, fid), true, nil
}

// CheckedWritePage fetches id, pins it, and returns an exclusive-write
// guard. The guard eagerly marks the frame dirty at construction.
func (m *Manager) CheckedWritePage(ctx context.Context, id page.ID) (*WritePageGuard, bool, error) {
	m.latch.Lock()
	fr, fid, err := m.acquireFrame(ctx, id)
	if err != nil {
		m.latch.Unlock()
		if errors.Is(err, dberrors.ErrBufferPoolExhausted) {
			return nil, false, nil
		}
		return nil, false, err
	}
	fr.Latch.Lock()
	m.latch.Unlock()

	fr.SetDirty(true)
	m.tel.PinCount.Add(ctx, 1)
	return newWritePageGuard(m, fr, fid), true, nil
}

// ReadPage is a test convenience wrapper over CheckedReadPage that aborts
// the process when the pool cannot service the request, matching the
// upstream engine's abort-on-none test helpers. Production callers should
// use CheckedReadPage instead.
func (m *Manager) ReadPage(ctx context.Context, id page.ID) *ReadPageGuard {
	g, ok, err := m.CheckedReadPage(ctx, id)
	if err != nil {
		m.logger.Fatal("fatal disk failure servicing ReadPage", zap.Uint64("page_id", uint64(id)), zap.Error(err))
	}
	if !ok {
		m.logger.Fatal("buffer pool exhausted servicing ReadPage", zap.Uint64("page_id", uint64(id)))
	}
	return g
}

// WritePage is the write-side counterpart to ReadPage.
func (m *Manager) WritePage(ctx context.Context, id page.ID) *WritePageGuard {
	g, ok, err := m.CheckedWritePage(ctx, id)
	if err != nil {
		m.logger.Fatal("fatal disk failure servicing WritePage", zap.Uint64("page_id", uint64(id)), zap.Error(err))
	}
	if !ok {
		m.logger.Fatal("buffer pool exhausted servicing WritePage", zap.Uint64("page_id", uint64(id)))
	}
	return g
}

// flushFrame writes fr's bytes to disk and clears its dirty flag. Callers
// must hold m.latch; fr's latch is acquired internally.
func (m *Manager) flushFrame(ctx context.Context, fr *frame.Frame) error {
	fr.Latch.Lock()
	defer fr.Latch.Unlock()
	id := fr.PageID
	p := m.disk.CreatePromise()
	m.disk.Schedule(&disk.Request{IsWrite: true, PageID: id, Data: fr.Data, Promise: p})
	err := p.Await(ctx)
	if err != nil {
		m.logger.Error("fatal disk write failure", zap.Uint64("page_id", uint64(id)), zap.Error(err))
		return err
	}
	fr.SetDirty(false)
	m.tel.DirtyFlushes.Add(ctx, 1)
	return nil
}

// FlushPage forces id's frame to disk if resident, regardless of its dirty
// flag, and clears the dirty flag on success. It reports false if id is
// not resident.
func (m *Manager) FlushPage(ctx context.Context, id page.ID) (bool, error) {
	m.latch.Lock()
	defer m.latch.Unlock()
	fid, ok := m.pageTbl[id]
	if !ok {
		return false, nil
	}
	if err := m.flushFrame(ctx, m.frames[fid]); err != nil {
		return false, err
	}
	return true, nil
}

// FlushAllPages flushes every resident page, returning the first error
// encountered (if any) after attempting the rest.
func (m *Manager) FlushAllPages(ctx context.Context) error {
	m.latch.Lock()
	defer m.latch.Unlock()
	var firstErr error
	for id, fid := range m.pageTbl {
		if err := m.flushFrame(ctx, m.frames[fid]); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("flushing page %d: %w", id, err)
		}
	}
	return firstErr
}

// GetPinCount returns the pin count of id if resident.
func (m *Manager) GetPinCount(id page.ID) (int32, bool) {
	m.latch.Lock()
	defer m.latch.Unlock()
	fid, ok := m.pageTbl[id]
	if !ok {
		return 0, false
	}
	return m.frames[fid].PinCount(), true
}

// unpin is called by a guard's Drop to release its pin and, if the pin
// count reaches zero, mark the frame evictable again.
func (m *Manager) unpin(ctx context.Context, fid replacer.FrameID) {
	m.latch.Lock()
	defer m.latch.Unlock()
	fr := m.frames[fid]
	if fr.Unpin() == 0 {
		_ = m.replacer.SetEvictable(fid, true)
	}
	m.tel.PinCount.Add(ctx, -1)
}

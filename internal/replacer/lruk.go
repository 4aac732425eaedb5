// Package replacer implements the LRU-K frame replacement policy used by
// the buffer pool manager to pick eviction victims.
package replacer

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/gojodb/bufferpool/pkg/dberrors"
)

// FrameID identifies a slot in the buffer pool's frame table.
type FrameID int32

type accessType int

const (
	accessGet accessType = iota
	accessScan
)

// entry tracks one frame's access history. timestamps holds up to K most
// recent access timestamps, oldest first, so timestamps[0] is the
// k-distance reference once the frame has K accesses.
type entry struct {
	frameID    FrameID
	timestamps []int64
	evictable  bool
}

// LRUK replaces frames using the LRU-K policy: a frame with fewer than K
// historical accesses is always preferred for eviction over one with K or
// more, on the theory that its access pattern is not yet established.
// Among frames with fewer than K accesses, the one with the oldest single
// access (the New list, scanned back to front) is evicted first. Among
// frames with K or more accesses, the one with the oldest K-th most recent
// access (the Cache list, scanned back to front) is evicted first.
//
// This mirrors the upstream engine's dual-list replacer: newFrames holds
// entries with <K accesses in insertion order, cacheFrames holds entries
// with >=K accesses ordered by backward k-distance, and both use a locator
// map for O(1) lookup by frame id.
type LRUK struct {
	mu sync.Mutex

	k int

	newFrames    *list.List // front = most recently inserted
	cacheFrames  *list.List // front = newest k-th most recent access
	newLocator   map[FrameID]*list.Element
	cacheLocator map[FrameID]*list.Element
	entries      map[FrameID]*entry

	currentTimestamp int64
	curSize          int // number of evictable frames tracked
	replacerSize     int // max frame id (exclusive) this replacer will track
}

// New constructs an LRUK replacer for a pool with numFrames frames and a
// lookback window of k accesses.
func New(numFrames int, k int) *LRUK {
	return &LRUK{
		k:            k,
		newFrames:    list.New(),
		cacheFrames:  list.New(),
		newLocator:   make(map[FrameID]*list.Element),
		cacheLocator: make(map[FrameID]*list.Element),
		entries:      make(map[FrameID]*entry),
		replacerSize: numFrames,
	}
}

func (r *LRUK) checkFrameID(id FrameID) error {
	if id < 0 || int(id) >= r.replacerSize {
		return fmt.Errorf("%w: %d", dberrors.ErrInvalidFrameID, id)
	}
	return nil
}

// RecordAccess records that frame id was just accessed, advancing its
// access history and moving it between the new and cache lists as its
// access count crosses k.
func (r *LRUK) RecordAccess(id FrameID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkFrameID(id); err != nil {
		return err
	}

	r.currentTimestamp++
	now := r.currentTimestamp

	e, ok := r.entries[id]
	if !ok {
		e = &entry{frameID: id}
		r.entries[id] = e
		e.timestamps = append(e.timestamps, now)
		if len(e.timestamps) >= r.k {
			r.insertIntoCacheList(e)
			return nil
		}
		elem := r.newFrames.PushFront(e)
		r.newLocator[id] = elem
		return nil
	}

	e.timestamps = append(e.timestamps, now)
	if len(e.timestamps) > r.k {
		e.timestamps = e.timestamps[len(e.timestamps)-r.k:]
	}

	if elem, inNew := r.newLocator[id]; inNew {
		if len(e.timestamps) < r.k {
			// Still building history: append the timestamp but leave the
			// New list position untouched. Moving it to front would make
			// this behave like plain LRU instead of arrival-order.
			return nil
		}
		// crossed the K threshold: promote to the cache list.
		r.newFrames.Remove(elem)
		delete(r.newLocator, id)
		r.insertIntoCacheList(e)
		return nil
	}

	if elem, inCache := r.cacheLocator[id]; inCache {
		r.cacheFrames.Remove(elem)
		r.insertIntoCacheList(e)
		return nil
	}

	return nil
}

// insertIntoCacheList places e into the cache list ordered by backward
// k-distance: the frame whose k-th most recent access is oldest sits at
// the back, matching Evict's back-to-front scan.
func (r *LRUK) insertIntoCacheList(e *entry) {
	kDist := e.timestamps[0]
	var at *list.Element
	for el := r.cacheFrames.Front(); el != nil; el = el.Next() {
		other := el.Value.(*entry)
		if other.timestamps[0] <= kDist {
			at = el
			break
		}
	}
	var elem *list.Element
	if at != nil {
		elem = r.cacheFrames.InsertBefore(e, at)
	} else {
		elem = r.cacheFrames.PushBack(e)
	}
	r.cacheLocator[e.frameID] = elem
}

// SetEvictable marks a frame as eligible (or ineligible) for Evict. Pinned
// frames are not evictable; the buffer pool manager calls this as a
// frame's pin count transitions to or from zero.
func (r *LRUK) SetEvictable(id FrameID, evictable bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkFrameID(id); err != nil {
		return err
	}
	e, ok := r.entries[id]
	if !ok {
		return nil
	}
	if e.evictable == evictable {
		return nil
	}
	e.evictable = evictable
	if evictable {
		r.curSize++
	} else {
		r.curSize--
	}
	return nil
}

// Evict selects a victim frame per the LRU-K policy and removes it from
// tracking. It reports ok=false when no evictable frame exists.
func (r *LRUK) Evict() (id FrameID, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for el := r.newFrames.Back(); el != nil; el = el.Prev() {
		e := el.Value.(*entry)
		if e.evictable {
			r.removeLocked(e.frameID)
			return e.frameID, true
		}
	}
	for el := r.cacheFrames.Back(); el != nil; el = el.Prev() {
		e := el.Value.(*entry)
		if e.evictable {
			r.removeLocked(e.frameID)
			return e.frameID, true
		}
	}
	return 0, false
}

// Remove clears all access history for frame id. It returns
// ErrFrameNotEvictable if the frame is currently pinned.
func (r *LRUK) Remove(id FrameID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkFrameID(id); err != nil {
		return err
	}
	e, ok := r.entries[id]
	if !ok {
		return nil
	}
	if !e.evictable {
		return fmt.Errorf("%w: frame %d", dberrors.ErrFrameNotEvictable, id)
	}
	r.removeLocked(id)
	return nil
}

func (r *LRUK) removeLocked(id FrameID) {
	if elem, ok := r.newLocator[id]; ok {
		r.newFrames.Remove(elem)
		delete(r.newLocator, id)
	}
	if elem, ok := r.cacheLocator[id]; ok {
		r.cacheFrames.Remove(elem)
		delete(r.cacheLocator, id)
	}
	if e, ok := r.entries[id]; ok {
		if e.evictable {
			r.curSize--
		}
		delete(r.entries, id)
	}
}

// Size reports the number of frames currently evictable.
func (r *LRUK) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.curSize
}

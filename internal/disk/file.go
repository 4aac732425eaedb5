package disk

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/gojodb/bufferpool/internal/page"
	"github.com/gojodb/bufferpool/pkg/dberrors"
)

// File is the backing store for the page cache: a single contiguous file
// indexed by page_id * page.Size. The disk scheduler's worker goroutine
// serves page reads and writes through it, while Scheduler.IncreaseDiskSpace
// and Scheduler.Close call Grow and Close from the caller's goroutine; every
// method takes mu.
type File struct {
	mu       sync.Mutex
	f        *os.File
	numPages uint64
}

// OpenFile opens (creating if necessary) the backing file at path.
func OpenFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, fmt.Errorf("%w: opening backing file %s: %v", dberrors.ErrIO, path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: stat backing file %s: %v", dberrors.ErrIO, path, err)
	}
	return &File{f: f, numPages: uint64(info.Size()) / uint64(page.Size)}, nil
}

// ReadPage reads exactly one page's worth of bytes into buf.
func (df *File) ReadPage(id page.ID, buf []byte) error {
	if len(buf) != page.Size {
		return fmt.Errorf("page buffer size %d does not match page size %d", len(buf), page.Size)
	}
	df.mu.Lock()
	defer df.mu.Unlock()
	offset := int64(id) * int64(page.Size)
	n, err := df.f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return fmt.Errorf("%w: reading page %d: %v", dberrors.ErrIO, id, err)
	}
	if n != page.Size {
		return fmt.Errorf("%w: short read for page %d: got %d of %d bytes", dberrors.ErrIO, id, n, page.Size)
	}
	return nil
}

// WritePage writes buf to the page's location on disk.
func (df *File) WritePage(id page.ID, buf []byte) error {
	if len(buf) != page.Size {
		return fmt.Errorf("page buffer size %d does not match page size %d", len(buf), page.Size)
	}
	df.mu.Lock()
	defer df.mu.Unlock()
	offset := int64(id) * int64(page.Size)
	n, err := df.f.WriteAt(buf, offset)
	if err != nil {
		return fmt.Errorf("%w: writing page %d: %v", dberrors.ErrIO, id, err)
	}
	if n != page.Size {
		return fmt.Errorf("%w: short write for page %d: wrote %d of %d bytes", dberrors.ErrIO, id, n, page.Size)
	}
	return nil
}

// Grow ensures the backing file can host every page up to and including
// upTo, zero-filling any newly created pages.
func (df *File) Grow(upTo page.ID) error {
	df.mu.Lock()
	defer df.mu.Unlock()
	want := uint64(upTo) + 1
	if want <= df.numPages {
		return nil
	}
	zero := make([]byte, page.Size)
	for pid := df.numPages; pid < want; pid++ {
		offset := int64(pid) * int64(page.Size)
		if _, err := df.f.WriteAt(zero, offset); err != nil {
			return fmt.Errorf("%w: extending backing file to page %d: %v", dberrors.ErrIO, pid, err)
		}
	}
	df.numPages = want
	return nil
}

// Sync flushes the backing file's contents to stable storage.
func (df *File) Sync() error {
	df.mu.Lock()
	defer df.mu.Unlock()
	if err := df.f.Sync(); err != nil {
		return fmt.Errorf("%w: syncing backing file: %v", dberrors.ErrIO, err)
	}
	return nil
}

// Close closes the underlying file handle.
func (df *File) Close() error {
	df.mu.Lock()
	defer df.mu.Unlock()
	if err := df.f.Close(); err != nil {
		return fmt.Errorf("%w: closing backing file: %v", dberrors.ErrIO, err)
	}
	return nil
}

// Package page defines the identifiers and sizing constants shared by the
// disk scheduler, the frame table, and the buffer pool manager.
package page

// ID identifies a page on the backing file. Page ids are allocated
// monotonically by the buffer pool manager and are never reused, even
// after a DeletePage.
type ID uint64

// InvalidID marks a frame that holds no page. Page 0 is reserved for the
// header page of the top-level index and is never returned by NewPage.
const InvalidID ID = 0

// Size is the fixed byte length of every page and every frame's buffer.
const Size = 4096

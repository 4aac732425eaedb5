package disk

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gojodb/bufferpool/internal/page"
	"github.com/gojodb/bufferpool/pkg/dberrors"
	"github.com/gojodb/bufferpool/pkg/telemetry"
)

// Promise is the completion handle a caller awaits to observe the result
// of a scheduled request. It is fulfilled exactly once.
type Promise struct {
	done chan error
}

// NewPromise returns a fresh, unfulfilled completion handle.
func NewPromise() *Promise {
	return &Promise{done: make(chan error, 1)}
}

// Fulfill completes the promise. A second call panics while the first
// result is still unreceived, since that indicates a bug in the scheduler
// itself; a second call made after Await has received the first result is
// not detected.
func (p *Promise) Fulfill(err error) {
	select {
	case p.done <- err:
	default:
		panic("disk scheduler: promise fulfilled more than once")
	}
}

// Await blocks until the promise is fulfilled, or ctx is done.
func (p *Promise) Await(ctx context.Context) error {
	select {
	case err := <-p.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Request carries everything the scheduler's worker needs to serve one
// page read or write against the backing file.
type Request struct {
	IsWrite bool
	PageID  page.ID
	Data    []byte // read target or write source, exactly page.Size bytes
	Promise *Promise
	ReqID   uuid.UUID
}

// Scheduler serves read/write requests against a backing File from a single
// background worker, in FIFO submission order. This keeps disk access
// single-threaded even though many buffer pool callers may submit
// concurrently.
type Scheduler struct {
	file   *File
	logger *zap.Logger
	tel    *telemetry.Instruments

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []*Request
	closed bool
	wg     sync.WaitGroup
}

// NewScheduler starts the background worker and returns a ready Scheduler.
func NewScheduler(file *File, logger *zap.Logger, tel *telemetry.Instruments) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	tel = telemetry.OrNoop(tel)
	s := &Scheduler{file: file, logger: logger, tel: tel}
	s.cond = sync.NewCond(&s.mu)
	s.wg.Add(1)
	go s.worker()
	return s
}

// CreatePromise returns a fresh completion handle for use with Schedule.
func (s *Scheduler) CreatePromise() *Promise {
	return NewPromise()
}

// Schedule enqueues req for asynchronous service and returns immediately.
// req.Promise must have been created via CreatePromise.
func (s *Scheduler) Schedule(req *Request) {
	if req.ReqID == uuid.Nil {
		req.ReqID = uuid.New()
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		req.Promise.Fulfill(dberrors.ErrDiskSchedulerClosed)
		return
	}
	s.queue = append(s.queue, req)
	s.mu.Unlock()
	s.cond.Signal()
}

// IncreaseDiskSpace ensures the backing file is large enough to host upTo.
func (s *Scheduler) IncreaseDiskSpace(upTo page.ID) error {
	return s.file.Grow(upTo)
}

// DeallocatePage is a best-effort hint; the core never reclaims disk space
// (spec Non-goal), so this only logs.
func (s *Scheduler) DeallocatePage(id page.ID) error {
	s.logger.Debug("deallocate page hint (no-op)", zap.Uint64("page_id", uint64(id)))
	return nil
}

// Close stops the worker goroutine after draining any queued requests.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
	s.wg.Wait()
	return s.file.Close()
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 && s.closed {
			s.mu.Unlock()
			return
		}
		req := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.serve(req)
	}
}

func (s *Scheduler) serve(req *Request) {
	var err error
	if req.IsWrite {
		err = s.file.WritePage(req.PageID, req.Data)
		if err != nil {
			s.logger.Error("write request failed", zap.String("request_id", req.ReqID.String()),
				zap.Uint64("page_id", uint64(req.PageID)), zap.Error(err))
		} else {
			s.tel.DiskWrites.Add(context.Background(), 1)
			s.logger.Debug("write request served", zap.String("request_id", req.ReqID.String()),
				zap.Uint64("page_id", uint64(req.PageID)))
		}
	} else {
		err = s.file.ReadPage(req.PageID, req.Data)
		if err != nil {
			s.logger.Error("read request failed", zap.String("request_id", req.ReqID.String()),
				zap.Uint64("page_id", uint64(req.PageID)), zap.Error(err))
		} else {
			s.tel.DiskReads.Add(context.Background(), 1)
			s.logger.Debug("read request served", zap.String("request_id", req.ReqID.String()),
				zap.Uint64("page_id", uint64(req.PageID)))
		}
	}
	if err != nil {
		err = fmt.Errorf("disk scheduler: %w", err)
	}
	req.Promise.Fulfill(err)
}

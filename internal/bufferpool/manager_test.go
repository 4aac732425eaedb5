package bufferpool_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/gojodb/bufferpool/internal/bufferpool"
	"github.com/gojodb/bufferpool/internal/disk"
	"github.com/gojodb/bufferpool/internal/page"
)

func newTestManager(t *testing.T, numFrames, k int) *bufferpool.Manager {
	t.Helper()
	f, err := disk.OpenFile(filepath.Join(t.TempDir(), "pages.db"))
	require.NoError(t, err)
	sched := disk.NewScheduler(f, zaptest.NewLogger(t), nil)
	t.Cleanup(func() { sched.Close() })
	return bufferpool.NewManager(numFrames, sched, k, zaptest.NewLogger(t), nil)
}

func TestNewPageStartsAtOneNotZero(t *testing.T) {
	mgr := newTestManager(t, 4, 2)
	id, err := mgr.NewPage()
	require.NoError(t, err)
	require.NotEqual(t, page.InvalidID, id)
	require.Equal(t, page.ID(1), id)
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	mgr := newTestManager(t, 4, 2)
	ctx := context.Background()

	id, err := mgr.NewPage()
	require.NoError(t, err)

	wg, ok, err := mgr.CheckedWritePage(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	copy(wg.Data(), []byte("hello"))
	wg.Drop()

	rg, ok, err := mgr.CheckedReadPage(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hello", string(rg.Data()[:5]))
	rg.Drop()
}

func TestFetchingAPinnedPageAgainIncrementsPinCount(t *testing.T) {
	mgr := newTestManager(t, 4, 2)
	ctx := context.Background()

	id, err := mgr.NewPage()
	require.NoError(t, err)

	g1, ok, err := mgr.CheckedReadPage(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	pc, resident := mgr.GetPinCount(id)
	require.True(t, resident)
	require.Equal(t, int32(1), pc)

	g2, ok, err := mgr.CheckedReadPage(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	pc, resident = mgr.GetPinCount(id)
	require.True(t, resident)
	require.Equal(t, int32(2), pc)

	g1.Drop()
	g2.Drop()
	pc, resident = mgr.GetPinCount(id)
	require.True(t, resident)
	require.Equal(t, int32(0), pc)
}

func TestPoolExhaustedWhenAllFramesPinned(t *testing.T) {
	mgr := newTestManager(t, 2, 2)
	ctx := context.Background()

	id1, _ := mgr.NewPage()
	id2, _ := mgr.NewPage()
	id3, _ := mgr.NewPage()

	g1, ok, err := mgr.CheckedReadPage(ctx, id1)
	require.NoError(t, err)
	require.True(t, ok)
	g2, ok, err := mgr.CheckedReadPage(ctx, id2)
	require.NoError(t, err)
	require.True(t, ok)

	// Both frames are pinned: the third page cannot be admitted.
	g3, ok, err := mgr.CheckedReadPage(ctx, id3)
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, g3)

	g1.Drop()
	g2.Drop()
}

func TestEvictionPrefersUnpinnedVictimAndFlushesDirtyPage(t *testing.T) {
	mgr := newTestManager(t, 2, 2)
	ctx := context.Background()

	id1, _ := mgr.NewPage()
	id2, _ := mgr.NewPage()
	id3, _ := mgr.NewPage()

	wg1, ok, err := mgr.CheckedWritePage(ctx, id1)
	require.NoError(t, err)
	require.True(t, ok)
	copy(wg1.Data(), []byte("dirty page one"))
	wg1.Drop() // unpinned, evictable, and dirty

	g2, ok, err := mgr.CheckedReadPage(ctx, id2)
	require.NoError(t, err)
	require.True(t, ok)

	// Admitting id3 must evict id1 (the only unpinned frame) and flush it
	// first since it is dirty.
	g3, ok, err := mgr.CheckedReadPage(ctx, id3)
	require.NoError(t, err)
	require.True(t, ok)

	_, resident := mgr.GetPinCount(id1)
	require.False(t, resident)

	g2.Drop()
	g3.Drop()

	// id1's contents survived the flush-before-reuse round trip.
	rg1, ok, err := mgr.CheckedReadPage(ctx, id1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "dirty page one", string(rg1.Data()[:len("dirty page one")]))
	rg1.Drop()
}

func TestDeletePinnedPageFails(t *testing.T) {
	mgr := newTestManager(t, 4, 2)
	ctx := context.Background()

	id, _ := mgr.NewPage()
	g, ok, err := mgr.CheckedReadPage(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	require.Error(t, mgr.DeletePage(id))

	g.Drop()
	require.NoError(t, mgr.DeletePage(id))
}

func TestConcurrentReadersShareAFrame(t *testing.T) {
	mgr := newTestManager(t, 4, 2)
	ctx := context.Background()

	id, err := mgr.NewPage()
	require.NoError(t, err)

	wg, ok, err := mgr.CheckedWritePage(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	copy(wg.Data(), []byte("shared contents"))
	wg.Drop()

	var (
		start  sync.WaitGroup
		done   sync.WaitGroup
		guards [2]*bufferpool.ReadPageGuard
	)
	start.Add(1)
	done.Add(2)
	for i := 0; i < 2; i++ {
		i := i
		go func() {
			defer done.Done()
			start.Wait()
			g, ok, err := mgr.CheckedReadPage(ctx, id)
			require.NoError(t, err)
			require.True(t, ok)
			guards[i] = g
		}()
	}
	start.Done()
	done.Wait()

	require.Equal(t, "shared contents", string(guards[0].Data()[:len("shared contents")]))
	require.Equal(t, "shared contents", string(guards[1].Data()[:len("shared contents")]))

	pc, resident := mgr.GetPinCount(id)
	require.True(t, resident)
	require.Equal(t, int32(2), pc)

	guards[0].Drop()
	guards[1].Drop()
}

func TestFlushPageSucceedsAfterFlushAllPages(t *testing.T) {
	mgr := newTestManager(t, 4, 2)
	ctx := context.Background()

	id, _ := mgr.NewPage()
	wg, ok, err := mgr.CheckedWritePage(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	copy(wg.Data(), []byte("flush me"))
	wg.Drop()

	require.NoError(t, mgr.FlushAllPages(ctx))

	flushed, err := mgr.FlushPage(ctx, id)
	require.NoError(t, err)
	require.True(t, flushed)
}

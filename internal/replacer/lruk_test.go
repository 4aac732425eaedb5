package replacer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gojodb/bufferpool/internal/replacer"
)

func TestNewFrameEvictedBeforeEstablishedFrame(t *testing.T) {
	r := replacer.New(8, 2)

	// Frame 1 gets two accesses, crossing into the cache list.
	require.NoError(t, r.RecordAccess(1))
	require.NoError(t, r.RecordAccess(1))
	// Frame 2 gets only one access: it stays on the new list.
	require.NoError(t, r.RecordAccess(2))

	require.NoError(t, r.SetEvictable(1, true))
	require.NoError(t, r.SetEvictable(2, true))
	require.Equal(t, 2, r.Size())

	// A frame with fewer than k accesses is always preferred for eviction
	// over one that has reached k, regardless of recency.
	victim, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, replacer.FrameID(2), victim)

	victim, ok = r.Evict()
	require.True(t, ok)
	require.Equal(t, replacer.FrameID(1), victim)

	_, ok = r.Evict()
	require.False(t, ok)
}

func TestProbationaryReaccessDoesNotReorderNewList(t *testing.T) {
	r := replacer.New(8, 3)

	// F0 then F1, both still short of k=3: New list front->back is [F1, F0].
	require.NoError(t, r.RecordAccess(0))
	require.NoError(t, r.RecordAccess(1))
	require.NoError(t, r.SetEvictable(0, true))
	require.NoError(t, r.SetEvictable(1, true))

	// Re-accessing F0 appends to its history (now length 2, still < k=3)
	// but must NOT move its New list position: arrival order is
	// preserved, not touch order.
	require.NoError(t, r.RecordAccess(0))

	// F0 is still the older arrival, so it evicts first.
	victim, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, replacer.FrameID(0), victim)

	victim, ok = r.Evict()
	require.True(t, ok)
	require.Equal(t, replacer.FrameID(1), victim)
}

func TestCacheListOrderedByBackwardKDistance(t *testing.T) {
	r := replacer.New(8, 2)

	// Frame 3: accesses at t=1,2 -> k-distance reference is t=1.
	require.NoError(t, r.RecordAccess(3))
	require.NoError(t, r.RecordAccess(3))
	// Frame 4: accesses at t=3,4 -> k-distance reference is t=3.
	require.NoError(t, r.RecordAccess(4))
	require.NoError(t, r.RecordAccess(4))

	require.NoError(t, r.SetEvictable(3, true))
	require.NoError(t, r.SetEvictable(4, true))

	// Frame 3's k-th most recent access is older, so it is evicted first.
	victim, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, replacer.FrameID(3), victim)

	victim, ok = r.Evict()
	require.True(t, ok)
	require.Equal(t, replacer.FrameID(4), victim)
}

func TestNonEvictableFramesAreSkipped(t *testing.T) {
	r := replacer.New(4, 2)

	require.NoError(t, r.RecordAccess(0))
	require.NoError(t, r.RecordAccess(1))
	require.NoError(t, r.SetEvictable(0, true))
	// Frame 1 is pinned: never evictable until SetEvictable(1, true).

	victim, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, replacer.FrameID(0), victim)

	_, ok = r.Evict()
	require.False(t, ok)
}

func TestRemoveRequiresEvictable(t *testing.T) {
	r := replacer.New(4, 2)
	require.NoError(t, r.RecordAccess(0))
	require.Error(t, r.Remove(0))

	require.NoError(t, r.SetEvictable(0, true))
	require.NoError(t, r.Remove(0))
	require.Equal(t, 0, r.Size())
}

func TestSetEvictableIsIdempotentForSize(t *testing.T) {
	r := replacer.New(4, 2)
	require.NoError(t, r.RecordAccess(0))
	require.NoError(t, r.SetEvictable(0, true))
	require.NoError(t, r.SetEvictable(0, true))
	require.Equal(t, 1, r.Size())
	require.NoError(t, r.SetEvictable(0, false))
	require.Equal(t, 0, r.Size())
}

func TestInvalidFrameIDRejected(t *testing.T) {
	r := replacer.New(4, 2)
	require.Error(t, r.RecordAccess(replacer.FrameID(99)))
	require.Error(t, r.SetEvictable(replacer.FrameID(-1), true))
}

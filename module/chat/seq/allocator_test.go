package seq

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// memDAO is a mutex-serialized stand-in for the mongo $inc lease document.
type memDAO struct {
	mu        sync.Mutex
	issued    map[string]int64
	committed map[string]int64
}

func newMemDAO() *memDAO {
	return &memDAO{issued: make(map[string]int64), committed: make(map[string]int64)}
}

func (d *memDAO) AllocSegment(_ context.Context, conversationID string, block int64) (int64, int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	old := d.issued[conversationID]
	d.issued[conversationID] = old + block
	return old + 1, old + block, nil
}

func (d *memDAO) AdvanceCommit(_ context.Context, conversationID string, toSeq int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if toSeq > d.committed[conversationID] {
		d.committed[conversationID] = toSeq
	}
	return nil
}

func newTestAllocator(t *testing.T, dao *memDAO, rdb *redis.Client, block int64) *Allocator {
	t.Helper()
	a := NewAllocator(rdb, dao)
	a.Block = block
	return a
}

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestNextContiguousAcrossSegments(t *testing.T) {
	ctx := context.Background()
	a := newTestAllocator(t, newMemDAO(), testRedis(t), 4)

	for want := int64(1); want <= 10; want++ {
		got, err := a.Next(ctx, "c1")
		if err != nil {
			t.Fatalf("Next #%d: %v", want, err)
		}
		if got != want {
			t.Fatalf("Next #%d = %d", want, got)
		}
	}
}

func TestNextIsolatedPerConversation(t *testing.T) {
	ctx := context.Background()
	a := newTestAllocator(t, newMemDAO(), testRedis(t), 8)

	if seq, _ := a.Next(ctx, "c1"); seq != 1 {
		t.Fatalf("c1 first seq = %d", seq)
	}
	if seq, _ := a.Next(ctx, "c2"); seq != 1 {
		t.Fatalf("c2 first seq = %d, conversations must not share a counter", seq)
	}
}

func TestStaleSegmentLoadNeverRollsBack(t *testing.T) {
	ctx := context.Background()
	rdb := testRedis(t)
	dao := newMemDAO()
	a := newTestAllocator(t, dao, rdb, 256)
	const conv = "c1"

	// a slow node leases the first segment but stalls before installing it
	staleStart, staleEnd, err := dao.AllocSegment(ctx, conv, 256)
	if err != nil {
		t.Fatalf("stale lease: %v", err)
	}
	if staleStart != 1 || staleEnd != 256 {
		t.Fatalf("stale lease = [%d,%d], want [1,256]", staleStart, staleEnd)
	}

	// meanwhile this node leases the next segment and issues from it
	first, err := a.Next(ctx, conv)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if first != 257 {
		t.Fatalf("first issued seq = %d, want 257", first)
	}

	// the stalled node's install finally lands; it must be rejected
	res, err := luaLoad.Run(ctx, rdb, []string{segmentKey(conv)}, staleStart, staleEnd, segmentTTL).Result()
	if err != nil {
		t.Fatalf("late load: %v", err)
	}
	arr := res.([]interface{})
	if arr[0].(int64) != 1 {
		t.Fatalf("late load of [%d,%d] was accepted over a newer segment", staleStart, staleEnd)
	}

	// every seq issued after the late load stays above what already returned
	next, err := a.Next(ctx, conv)
	if err != nil {
		t.Fatalf("Next after late load: %v", err)
	}
	if next <= first {
		t.Fatalf("seq %d issued after seq %d had already returned", next, first)
	}
}

// racingDAO lets another node lease the following segment and install it
// into redis between this node's lease and its install, once.
type racingDAO struct {
	inner *memDAO
	rdb   *redis.Client
	once  sync.Once
}

func (d *racingDAO) AllocSegment(ctx context.Context, conversationID string, block int64) (int64, int64, error) {
	start, end, err := d.inner.AllocSegment(ctx, conversationID, block)
	d.once.Do(func() {
		s2, e2, _ := d.inner.AllocSegment(ctx, conversationID, block)
		_, _ = luaLoad.Run(ctx, d.rdb, []string{segmentKey(conversationID)}, s2, e2, segmentTTL).Result()
	})
	return start, end, err
}

func (d *racingDAO) AdvanceCommit(ctx context.Context, conversationID string, toSeq int64) error {
	return d.inner.AdvanceCommit(ctx, conversationID, toSeq)
}

func TestRejectedInstallFallsBackToCachedSegment(t *testing.T) {
	ctx := context.Background()
	rdb := testRedis(t)
	dao := &racingDAO{inner: newMemDAO(), rdb: rdb}
	a := NewAllocator(rdb, dao)
	a.Block = 16
	const conv = "c1"

	// this node leases [1,16], but [17,32] is installed first (issuing 17);
	// the rejected install must fall back to the cached segment
	seq, err := a.Next(ctx, conv)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if seq != 18 {
		t.Fatalf("fallback issued %d, want 18 (next in the newer segment)", seq)
	}
}

func TestConcurrentAllocatorsIssueUniqueSeqs(t *testing.T) {
	ctx := context.Background()
	rdb := testRedis(t)
	dao := newMemDAO()
	a := newTestAllocator(t, dao, rdb, 8)
	b := newTestAllocator(t, dao, rdb, 8)
	const conv = "c1"
	const perNode = 25

	out := make([]int64, 2*perNode)
	var wg sync.WaitGroup
	wg.Add(2)
	for n, alloc := range []*Allocator{a, b} {
		go func(n int, alloc *Allocator) {
			defer wg.Done()
			for i := 0; i < perNode; i++ {
				seq, err := alloc.Next(ctx, conv)
				if err != nil {
					t.Errorf("node %d Next: %v", n, err)
					return
				}
				out[n*perNode+i] = seq
			}
		}(n, alloc)
	}
	wg.Wait()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	for i := 1; i < len(out); i++ {
		if out[i] == out[i-1] {
			t.Fatalf("seq %d issued twice", out[i])
		}
	}
}

func TestCommitRaisesWaterlineMonotonically(t *testing.T) {
	ctx := context.Background()
	dao := newMemDAO()
	a := newTestAllocator(t, dao, testRedis(t), 8)

	if err := a.Commit(ctx, "c1", 3); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := a.Commit(ctx, "c1", 2); err != nil {
		t.Fatalf("Commit lower: %v", err)
	}
	if got := dao.committed["c1"]; got != 3 {
		t.Fatalf("committed waterline = %d, want 3", got)
	}
}

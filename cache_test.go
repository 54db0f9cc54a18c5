package cache_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	cache "github.com/krisalay/tlru"
	"github.com/krisalay/tlru/clock"
	"github.com/krisalay/tlru/engine"
	"github.com/krisalay/tlru/eviction"
	"github.com/krisalay/tlru/expiration"
	"github.com/krisalay/tlru/types"
	"github.com/krisalay/tlru/writepolicy"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//
// ================= TEST BACKING STORE =================
//

type TestStore struct {
	mu    sync.RWMutex
	data  map[string]string
	loads atomic.Int32
	gate  chan struct{}
}

func NewTestStore() *TestStore {
	return &TestStore{data: make(map[string]string)}
}

func (s *TestStore) Load(ctx context.Context, key string) (string, error) {
	s.loads.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return "", types.ErrNotFound
	}
	return v, nil
}

func (s *TestStore) Put(ctx context.Context, key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *TestStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

//
// ================= HELPER: CREATE CACHE =================
//

type testCache struct {
	*cache.ShardedCache[string, string]
	clock *clock.Manual
	stats *types.Stats
}

// newTestCache builds a single-shard cache on a manual clock, so recency
// order is global and time only moves when the test says so.
func newTestCache(t *testing.T, capacity int, exp expiration.Strategy, loader types.Loader[string, string]) *testCache {
	t.Helper()

	stats := &types.Stats{}
	eng := engine.NewCacheEngine[string, string](exp, nil, loader, nil, stats)
	clk := clock.NewManual(0)
	eng.Clock = clk
	logger, _ := test.NewNullLogger()
	eng.Log = logger

	c, err := cache.NewShardedCache(cache.Options[string]{
		Capacity:    capacity,
		Shards:      1,
		Granularity: time.Millisecond,
		WheelSlots:  64,
	}, eng)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	return &testCache{ShardedCache: c, clock: clk, stats: stats}
}

func (c *testCache) mustGet(t *testing.T, key string) string {
	t.Helper()
	v, ok := c.Get(key)
	require.True(t, ok, "expected %q to be present", key)
	return v
}

func (c *testCache) absent(t *testing.T, key string) {
	t.Helper()
	_, ok := c.Get(key)
	assert.False(t, ok, "expected %q to be absent", key)
}

//
// ================= SCENARIOS =================
//

func TestCapacityEvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, 2, nil, nil)

	c.Put("a", "1")
	c.Put("b", "2")
	c.Put("c", "3")

	c.absent(t, "a")
	assert.Equal(t, "2", c.mustGet(t, "b"))
	assert.Equal(t, "3", c.mustGet(t, "c"))
	assert.Equal(t, uint64(1), c.stats.Snapshot().Evictions)
}

func TestTTLExpiration(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, 4, nil, nil)

	c.PutWithTTL("a", "1", 10*time.Second)

	c.clock.Set(5 * time.Second)
	assert.Equal(t, "1", c.mustGet(t, "a"))

	c.clock.Set(11 * time.Second)
	c.absent(t, "a")
	assert.Zero(t, c.Len(), "expired entry is removed on read")
}

func TestGetRefreshesRecency(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, 2, nil, nil)

	c.Put("a", "1")
	c.Put("b", "2")
	c.mustGet(t, "a")
	c.Put("c", "3")

	c.absent(t, "b")
	assert.Equal(t, "1", c.mustGet(t, "a"))
	assert.Equal(t, "3", c.mustGet(t, "c"))
}

// newDefaultCache sets nothing but the capacity, so shard count, wheel and
// hasher all come from the defaults.
func newDefaultCache(t *testing.T, capacity int) (*cache.ShardedCache[string, string], *clock.Manual) {
	t.Helper()

	eng := engine.NewCacheEngine[string, string](nil, nil, nil, nil, nil)
	clk := clock.NewManual(0)
	eng.Clock = clk
	logger, _ := test.NewNullLogger()
	eng.Log = logger

	c, err := cache.NewShardedCache(cache.Options[string]{Capacity: capacity}, eng)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, clk
}

func TestScenariosWithDefaultOptions(t *testing.T) {
	t.Parallel()

	// The default hasher is seeded per cache, so repeat to cover many key placements.
	for range 100 {
		c, _ := newDefaultCache(t, 2)
		require.Equal(t, 1, c.Shards())
		c.Put("a", "1")
		c.Put("b", "2")
		c.Put("c", "3")
		_, ok := c.Get("a")
		assert.False(t, ok, "a is least recently used")
		assert.True(t, c.Contains("b"))
		assert.True(t, c.Contains("c"))

		c, clk := newDefaultCache(t, 2)
		c.PutWithTTL("a", "1", 10*time.Second)
		clk.Set(5 * time.Second)
		_, ok = c.Get("a")
		assert.True(t, ok, "a is live at 5s")
		clk.Set(11 * time.Second)
		_, ok = c.Get("a")
		assert.False(t, ok, "a expired at 10s")

		c, _ = newDefaultCache(t, 2)
		c.Put("a", "1")
		c.Put("b", "2")
		_, ok = c.Get("a")
		require.True(t, ok)
		c.Put("c", "3")
		assert.False(t, c.Contains("b"), "b became least recently used")
		assert.True(t, c.Contains("a"))
		assert.True(t, c.Contains("c"))
		assert.Equal(t, 2, c.Len())
	}
}

//
// ================= BASIC OPERATIONS =================
//

func TestPutReturnsPrevious(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, 4, nil, nil)

	_, replaced := c.Put("k", "v1")
	assert.False(t, replaced)

	prev, replaced := c.Put("k", "v2")
	assert.True(t, replaced)
	assert.Equal(t, "v1", prev)
	assert.Equal(t, "v2", c.mustGet(t, "k"))
	assert.Equal(t, 1, c.Len())
}

func TestPutNonPositiveTTLRemoves(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, 4, nil, nil)

	c.Put("k", "v")
	prev, replaced := c.PutWithTTL("k", "gone", 0)
	assert.True(t, replaced)
	assert.Equal(t, "v", prev)
	c.absent(t, "k")

	c.PutWithTTL("never-stored", "v", -time.Second)
	assert.Zero(t, c.Len())
}

func TestDeleteIsIdempotent(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, 4, nil, nil)

	c.Put("k", "v")
	assert.True(t, c.Delete("k"))
	assert.False(t, c.Delete("k"))
	assert.False(t, c.Delete("missing"))
	assert.Zero(t, c.Len())
}

func TestDeleteExpiredReportsFalse(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, 4, nil, nil)

	c.PutWithTTL("k", "v", time.Second)
	c.clock.Advance(time.Second)
	assert.False(t, c.Delete("k"))
	assert.Zero(t, c.Len())
	assert.Equal(t, uint64(1), c.stats.Snapshot().Expired)
}

func TestPeekAndContainsDoNotPromote(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, 2, nil, nil)

	c.Put("a", "1")
	c.Put("b", "2")

	v, ok := c.Peek("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)
	assert.True(t, c.Contains("a"))

	c.Put("c", "3")
	assert.False(t, c.Contains("a"))
	assert.Equal(t, uint64(0), c.stats.Snapshot().Hits, "peek is not a hit")
}

func TestExpireAndTTL(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, 4, nil, nil)

	c.Put("forever", "v")
	c.PutWithTTL("short", "v", 10*time.Second)

	assert.Equal(t, time.Duration(-1), c.TTL("forever"))
	assert.Equal(t, time.Duration(-2), c.TTL("missing"))

	c.clock.Advance(4 * time.Second)
	assert.Equal(t, 6*time.Second, c.TTL("short"))

	assert.True(t, c.Expire("forever", time.Minute))
	assert.Equal(t, time.Minute, c.TTL("forever"))
	assert.False(t, c.Expire("missing", time.Minute))

	c.clock.Advance(6 * time.Second)
	assert.Equal(t, time.Duration(-2), c.TTL("short"))
	assert.False(t, c.Expire("short", time.Minute), "expired keys cannot be revived")
}

func TestDefaultTTLFromStrategy(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, 4, &expiration.ExpireAfterWrite{TTL: time.Second}, nil)

	c.Put("k", "v")
	c.clock.Advance(999 * time.Millisecond)
	assert.Equal(t, "v", c.mustGet(t, "k"))
	c.clock.Advance(time.Millisecond)
	c.absent(t, "k")
}

func TestRefreshOnRead(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, 4, &expiration.ExpireAfterAccess{TTL: 10 * time.Second}, nil)

	c.Put("k", "v")
	for range 5 {
		c.clock.Advance(8 * time.Second)
		assert.Equal(t, "v", c.mustGet(t, "k"), "each read restarts the TTL")
	}
	c.clock.Advance(10 * time.Second)
	c.absent(t, "k")
}

func TestReadsDoNotExtendByDefault(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, 4, nil, nil)

	c.PutWithTTL("k", "v", 10*time.Second)
	c.clock.Advance(8 * time.Second)
	c.mustGet(t, "k")
	c.clock.Advance(2 * time.Second)
	c.absent(t, "k")
}

//
// ================= SWEEP =================
//

func TestSweepReclaimsExpired(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, 100, nil, nil)

	for i := range 100 {
		c.PutWithTTL(fmt.Sprintf("k%d", i), "v", time.Duration(i+1)*time.Second)
	}

	c.clock.Set(50 * time.Second)
	assert.Equal(t, 50, c.Sweep())
	assert.Equal(t, 50, c.Len())
	assert.Zero(t, c.Sweep(), "second sweep at the same time finds nothing")

	for _, it := range c.Items() {
		assert.Greater(t, it.ExpiresAt, c.clock.Now())
	}
	assert.Equal(t, uint64(50), c.stats.Snapshot().Expired)
	require.NoError(t, c.Verify())
}

func TestSweepLogsIdleSweepAtTrace(t *testing.T) {
	t.Parallel()

	eng := engine.NewCacheEngine[string, string](nil, nil, nil, nil, nil)
	eng.Clock = clock.NewManual(0)
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.TraceLevel)
	eng.Log = logger

	c, err := cache.NewShardedCache(cache.Options[string]{Capacity: 4}, eng)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	assert.Zero(t, c.Sweep())
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.TraceLevel, entry.Level)
	assert.Equal(t, "sweep found nothing to reclaim", entry.Message)
}

func TestSweepAtLongIdleGap(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, 10, nil, nil)

	c.PutWithTTL("soon", "v", time.Millisecond)
	c.PutWithTTL("later", "v", time.Hour)
	c.Put("never", "v")

	assert.Equal(t, 1, c.SweepAt(int64(30*time.Minute)))
	assert.Equal(t, 1, c.SweepAt(int64(2*time.Hour)))
	assert.Equal(t, []string{"never"}, c.Keys())
	require.NoError(t, c.Verify())
}

func TestPutSweepsBeforeEvicting(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, 2, nil, nil)

	c.Put("live", "1")
	c.PutWithTTL("dying", "2", time.Second)
	c.mustGet(t, "dying")

	c.clock.Advance(2 * time.Second)
	c.Put("new", "3")

	assert.Equal(t, "1", c.mustGet(t, "live"))
	snap := c.stats.Snapshot()
	assert.Zero(t, snap.Evictions)
	assert.Equal(t, uint64(1), snap.Expired)
}

//
// ================= ITEMS, COMPUTE, PURGE =================
//

func TestItemsOrderAndKeys(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, 4, nil, nil)

	c.Put("a", "1")
	c.Put("b", "2")
	c.PutWithTTL("c", "3", time.Second)
	c.mustGet(t, "a")

	assert.Equal(t, []string{"a", "c", "b"}, c.Keys())

	c.clock.Advance(time.Second)
	items := c.Items()
	require.Len(t, items, 2)
	assert.Equal(t, types.Entry[string, string]{Key: "a", Value: "1", ExpiresAt: types.Never}, items[0])
	assert.Equal(t, 3, c.Len(), "Items does not reclaim")
}

func TestComputeKeepsDeadline(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, 4, nil, nil)

	c.PutWithTTL("k", "a", 10*time.Second)
	c.clock.Advance(5 * time.Second)

	v := c.Compute("k", func(old string, found bool) string {
		require.True(t, found)
		return old + "b"
	})
	assert.Equal(t, "ab", v)
	assert.Equal(t, 5*time.Second, c.TTL("k"))

	v = c.Compute("new", func(old string, found bool) string {
		assert.False(t, found)
		return "x"
	})
	assert.Equal(t, "x", v)
	assert.Equal(t, time.Duration(-1), c.TTL("new"))
}

func TestIncr(t *testing.T) {
	t.Parallel()

	eng := engine.NewCacheEngine[string, int64](&expiration.ExpireAfterWrite{TTL: time.Minute}, nil, nil, nil, nil)
	clk := clock.NewManual(0)
	eng.Clock = clk
	c, err := cache.NewShardedCache(cache.Options[string]{Capacity: 8}, eng)
	require.NoError(t, err)

	assert.Equal(t, int64(1), cache.Incr(c, "hits", 1))
	assert.Equal(t, int64(6), cache.Incr(c, "hits", 5))
	assert.Equal(t, int64(4), cache.Incr(c, "hits", -2))

	clk.Advance(time.Minute)
	assert.Equal(t, int64(1), cache.Incr(c, "hits", 1), "expired counter restarts from zero")
}

func TestPurge(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, 4, nil, nil)

	c.Put("a", "1")
	c.PutWithTTL("b", "2", time.Second)
	assert.Equal(t, 2, c.Purge())
	assert.Zero(t, c.Len())
	require.NoError(t, c.Verify())

	c.Put("c", "3")
	assert.Equal(t, "3", c.mustGet(t, "c"))
}

//
// ================= READ-THROUGH & WRITE POLICIES =================
//

func TestGetOrLoad(t *testing.T) {
	t.Parallel()

	store := NewTestStore()
	store.data["k"] = "from-store"
	c := newTestCache(t, 4, nil, store)
	ctx := context.Background()

	v, err := c.GetOrLoad(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "from-store", v)

	v, err = c.GetOrLoad(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "from-store", v)
	assert.Equal(t, int32(1), store.loads.Load(), "second read is a hit")

	_, err = c.GetOrLoad(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.False(t, c.Contains("missing"))
}

func TestGetOrLoadWithoutLoader(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, 4, nil, nil)

	_, err := c.GetOrLoad(context.Background(), "k")
	assert.True(t, errors.Is(err, cache.ErrNoLoader))
}

func TestGetOrLoadCoalescesConcurrentMisses(t *testing.T) {
	t.Parallel()

	store := NewTestStore()
	store.data["key"] = "value"
	store.gate = make(chan struct{})
	c := newTestCache(t, 4, nil, store)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrLoad(context.Background(), "key")
			assert.NoError(t, err)
			assert.Equal(t, "value", v)
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(store.gate)
	wg.Wait()

	assert.Equal(t, int32(1), store.loads.Load())
}

// blockingLoader holds every load until release is closed and records the
// context error the load saw when it resumed.
type blockingLoader struct {
	started chan struct{}
	release chan struct{}
	loads   atomic.Int32
	ctxErr  atomic.Value
}

func (l *blockingLoader) Load(ctx context.Context, key string) (string, error) {
	if l.loads.Add(1) == 1 {
		close(l.started)
	}
	<-l.release
	l.ctxErr.Store(fmt.Sprint(ctx.Err()))
	return "loaded-" + key, nil
}

func (l *blockingLoader) Put(context.Context, string, string) error { return nil }

func TestGetOrLoadCallerCancelDoesNotCancelSharedLoad(t *testing.T) {
	t.Parallel()

	loader := &blockingLoader{started: make(chan struct{}), release: make(chan struct{})}
	c := newTestCache(t, 4, nil, loader)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.GetOrLoad(ctx, "k")
		firstErr <- err
	}()

	<-loader.started
	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	second := make(chan string, 1)
	go func() {
		v, err := c.GetOrLoad(context.Background(), "k")
		assert.NoError(t, err)
		second <- v
	}()

	close(loader.release)
	assert.Equal(t, "loaded-k", <-second)
	assert.Equal(t, int32(1), loader.loads.Load())
	assert.Equal(t, "<nil>", loader.ctxErr.Load(), "shared load ran on an uncancelled context")
	assert.True(t, c.Contains("k"))
}

func TestWriteThroughForwardsStoredValues(t *testing.T) {
	t.Parallel()

	store := NewTestStore()
	logger, _ := test.NewNullLogger()
	eng := engine.NewCacheEngine[string, string](nil, nil, store,
		writepolicy.NewWriteThroughPolicy[string, string](store, logger), nil)
	eng.Log = logger
	c, err := cache.NewShardedCache(cache.Options[string]{Capacity: 4}, eng)
	require.NoError(t, err)
	defer c.Close()

	c.Put("kept", "v")
	c.PutWithTTL("removed", "v", 0)

	v, ok := store.Get("kept")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
	_, ok = store.Get("removed")
	assert.False(t, ok)
}

func TestWriteBackFlushesOnClose(t *testing.T) {
	t.Parallel()

	store := NewTestStore()
	eng := engine.NewCacheEngine[string, string](nil, nil, store,
		writepolicy.NewWriteBackPolicy[string, string](store, 1024, nil), nil)
	c, err := cache.NewShardedCache(cache.Options[string]{Capacity: 64}, eng)
	require.NoError(t, err)

	for i := range 32 {
		c.Put(fmt.Sprintf("k%d", i), "v")
	}
	c.Close()
	c.Close()

	for i := range 32 {
		_, ok := store.Get(fmt.Sprintf("k%d", i))
		assert.True(t, ok)
	}
}

//
// ================= OPTIONS =================
//

func TestNewShardedCacheRejectsInvalidOptions(t *testing.T) {
	t.Parallel()

	_, err := cache.NewShardedCache[string, int](cache.Options[string]{}, nil)
	assert.ErrorIs(t, err, cache.ErrInvalidCapacity)

	_, err = cache.NewShardedCache[string, int](cache.Options[string]{Capacity: -3}, nil)
	assert.ErrorIs(t, err, cache.ErrInvalidCapacity)

	for _, opts := range []cache.Options[string]{
		{Capacity: 8, WheelSlots: 3},
		{Capacity: 8, Granularity: -time.Second},
		{Capacity: 8, Shards: -1},
		{Capacity: 8, Policy: "LFU"},
	} {
		_, err = cache.NewShardedCache[string, int](opts, nil)
		assert.ErrorIs(t, err, cache.ErrInvalidOptions, "%+v", opts)
	}
}

func TestShardCountAndCapacitySplit(t *testing.T) {
	t.Parallel()

	cases := []struct {
		capacity, shards, want int
	}{
		{capacity: 3, shards: 16, want: 2},
		{capacity: 1, shards: 0, want: 1},
		{capacity: 100, shards: 5, want: 8},
		{capacity: 2, shards: 0, want: 1},
		{capacity: 200, shards: 0, want: 2},
		{capacity: 1000, shards: 0, want: 8},
		{capacity: cache.DefaultShards * cache.MinShardCapacity, shards: 0, want: cache.DefaultShards},
		{capacity: 1 << 20, shards: 0, want: cache.DefaultShards},
	}
	for _, tc := range cases {
		c, err := cache.NewShardedCache[int, int](cache.Options[int]{Capacity: tc.capacity, Shards: tc.shards}, nil)
		require.NoError(t, err)
		assert.Equal(t, tc.want, c.Shards())

		sum := 0
		for _, n := range c.ShardCapacities() {
			assert.Positive(t, n)
			sum += n
		}
		assert.Equal(t, tc.capacity, sum)
		assert.Equal(t, tc.capacity, c.Capacity())
	}
}

func TestFIFOPolicy(t *testing.T) {
	t.Parallel()

	eng := engine.NewCacheEngine[string, int](nil, nil, nil, nil, nil)
	c, err := cache.NewShardedCache(cache.Options[string]{Capacity: 2, Shards: 1, Policy: eviction.FIFO}, eng)
	require.NoError(t, err)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("a")
	c.Put("c", 3)

	assert.False(t, c.Contains("a"))
	assert.True(t, c.Contains("b"))
}

//
// ================= CONCURRENCY =================
//

func TestConcurrentMixedOperations(t *testing.T) {
	t.Parallel()

	eng := engine.NewCacheEngine[int, int](nil, nil, nil, nil, nil)
	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.TraceLevel)
	eng.Log = logger
	c, err := cache.NewShardedCache(cache.Options[int]{
		Capacity:    256,
		Shards:      8,
		Granularity: time.Millisecond,
		WheelSlots:  16,
	}, eng)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := range 16 {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for range 2000 {
				k := rng.Intn(1024)
				switch rng.Intn(6) {
				case 0, 1:
					c.PutWithTTL(k, k, time.Duration(rng.Intn(5)+1)*time.Millisecond)
				case 2:
					if v, ok := c.Get(k); ok {
						assert.Equal(t, k, v)
					}
				case 3:
					c.Delete(k)
				case 4:
					c.Put(k, k)
				case 5:
					c.Sweep()
				}
			}
		}(int64(g))
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 256)
	require.NoError(t, c.Verify())
}

//
// ================= RANDOMIZED INVARIANTS =================
//

func TestRandomizedAgainstDeadlines(t *testing.T) {
	t.Parallel()

	eng := engine.NewCacheEngine[int, int](nil, nil, nil, nil, nil)
	clk := clock.NewManual(0)
	eng.Clock = clk
	c, err := cache.NewShardedCache(cache.Options[int]{
		Capacity:    64,
		Shards:      4,
		Granularity: 10,
		WheelSlots:  8,
	}, eng)
	require.NoError(t, err)

	type written struct {
		value    int
		deadline int64
	}
	last := map[int]written{}
	rng := rand.New(rand.NewSource(7))

	for step := range 5000 {
		k := rng.Intn(128)
		now := clk.Now()
		switch rng.Intn(5) {
		case 0, 1:
			ttl := time.Duration(rng.Intn(300) + 1)
			c.PutWithTTL(k, step, ttl)
			last[k] = written{value: step, deadline: now + int64(ttl)}
		case 2:
			if v, ok := c.Get(k); ok {
				w := last[k]
				require.Equal(t, w.value, v, "stale value for %d", k)
				require.Less(t, now, w.deadline, "expired value for %d returned", k)
			}
		case 3:
			c.Delete(k)
			delete(last, k)
		case 4:
			clk.Advance(time.Duration(rng.Intn(50)))
			c.Sweep()
			for _, it := range c.Items() {
				require.Greater(t, it.ExpiresAt, clk.Now())
			}
			require.Equal(t, len(c.Items()), c.Len(), "sweep left expired entries")
		}
		require.LessOrEqual(t, c.Len(), 64)
		require.NoError(t, c.Verify())
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	cache "github.com/krisalay/tlru"
	"github.com/krisalay/tlru/composite"
	"github.com/krisalay/tlru/config"
	"github.com/krisalay/tlru/engine"
	"github.com/krisalay/tlru/eviction"
	"github.com/krisalay/tlru/expiration"
	sqlstore "github.com/krisalay/tlru/store"
	"github.com/krisalay/tlru/types"
	"github.com/krisalay/tlru/writepolicy"
)

// ================= BACKING STORE =================
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{data: make(map[string]string)}
}

func (s *InMemoryStore) Load(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fmt.Println("STORE  → load:", key)
	time.Sleep(50 * time.Millisecond)
	v, ok := s.data[key]
	if !ok {
		return "", types.ErrNotFound
	}
	return v, nil
}

func (s *InMemoryStore) Put(ctx context.Context, key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !strings.HasPrefix(key, "k") {
		fmt.Println("STORE  → put:", key)
	}
	s.data[key] = value
	return nil
}

func (s *InMemoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

func printStats(stats *types.Stats) {
	snap := stats.Snapshot()
	fmt.Println("\n==================== METRICS ====================")
	fmt.Printf("HITS      : %d\n", snap.Hits)
	fmt.Printf("MISSES    : %d\n", snap.Misses)
	fmt.Printf("EVICTIONS : %d\n", snap.Evictions)
	fmt.Printf("EXPIRED   : %d\n", snap.Expired)
	fmt.Printf("HIT RATIO : %.2f\n", snap.HitRatio())
}

// ================= MAIN =================

func main() {
	ctx := context.Background()

	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.DebugLevel)

	fmt.Println("\n==================== SYSTEM BOOT ====================")

	// ---------------- System Config ----------------
	fmt.Println("CACHE MODE      : WRITE-BACK")
	fmt.Println("EVICTION POLICY : LRU")
	fmt.Println("SHARDS          : 4")
	fmt.Println("TTL STRATEGY    : ExpireAfterWrite (2s)")
	fmt.Println("CAPACITY        : 20 keys")

	// ---------------- Backing Store ----------------
	store := NewInMemoryStore()
	store.Put(ctx, "a", "alpha")
	store.Put(ctx, "b", "beta")

	// ---------------- Metrics ----------------
	stats := &types.Stats{}

	// ---------------- Cache Engine ----------------
	exp := &expiration.ExpireAfterWrite{TTL: 2 * time.Second}
	writePolicy := writepolicy.NewWriteBackPolicy[string, string](store, 1024, log)

	eng := engine.NewCacheEngine[string, string](
		exp,
		nil,
		store,
		writePolicy,
		stats,
	)
	eng.Log = log

	c, err := cache.NewShardedCache(cache.Options[string]{
		Shards:      4,
		Capacity:    20,
		Policy:      eviction.LRU,
		Granularity: 100 * time.Millisecond,
		WheelSlots:  64,
	}, eng)
	if err != nil {
		log.WithError(err).Fatal("cannot create cache")
	}

	// ====================================================
	fmt.Println("\n==================== 1) CACHE MISS ====================")
	v, _ := c.GetOrLoad(ctx, "a")
	fmt.Println("CACHE  → GET a =", v)

	// ====================================================
	fmt.Println("\n==================== 2) CACHE HIT ====================")
	v, _ = c.GetOrLoad(ctx, "a")
	fmt.Println("CACHE  → GET a =", v, "| TTL =", c.TTL("a").Round(time.Millisecond))

	// ====================================================
	fmt.Println("\n==================== 3) TTL EXPIRATION ====================")
	c.PutWithTTL("x", "temp-value", time.Second)
	fmt.Println("CACHE  → PUT x (TTL = 1s)")

	time.Sleep(1100 * time.Millisecond)

	v, ok := c.Get("x")
	fmt.Println("CACHE  → GET x after TTL =", v, ok)

	// ====================================================
	fmt.Println("\n==================== 4) SINGLEFLIGHT ====================")

	wg := sync.WaitGroup{}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			val, _ := c.GetOrLoad(ctx, "b")
			fmt.Printf("GOROUTINE-%d → GET b = %v\n", id, val)
		}(i)
	}
	wg.Wait()

	// ====================================================
	fmt.Println("\n==================== 5) EVICTION ====================")

	for i := 0; i < 50; i++ {
		c.Put(fmt.Sprintf("k%d", i), fmt.Sprint(i))
	}
	fmt.Println("CACHE  → size after 50 puts =", c.Len(), "/", c.Capacity())
	fmt.Println("CACHE  → a still cached =", c.Contains("a"))

	// ====================================================
	fmt.Println("\n==================== 6) SWEEP ====================")

	sweeper := cache.NewSweeper(c, 200*time.Millisecond)
	sweeper.Start(ctx)
	time.Sleep(2500 * time.Millisecond)
	sweeper.Stop()
	fmt.Println("CACHE  → size after every TTL elapsed =", c.Len())

	// ====================================================
	fmt.Println("\n==================== 7) DELETE ====================")

	c.Put("b", "beta")
	fmt.Println("CACHE  → DELETE b =", c.Delete("b"))
	store.Delete("b")

	_, err = c.GetOrLoad(ctx, "b")
	fmt.Println("CACHE  → GET b after delete: not found =", errors.Is(err, types.ErrNotFound))

	// ====================================================
	fmt.Println("\n==================== 8) TWO-LEVEL CACHE ====================")
	twoLevelDemo(ctx, log)

	// ====================================================
	printStats(stats)

	// ====================================================
	fmt.Println("\n==================== SHUTDOWN ====================")
	c.Close()
	fmt.Println("SYSTEM → cache closed cleanly")
}

type profile struct {
	Name  string
	Plays int
}

// twoLevelDemo runs a composite cache and a counter over an in-memory sqlite
// level 2.
func twoLevelDemo(ctx context.Context, log *logrus.Logger) {
	db, err := sqlstore.Open(config.StoreConfig{Driver: "sqlite", DSN: ":memory:"})
	if err != nil {
		log.WithError(err).Fatal("cannot open level 2")
	}
	level2, err := sqlstore.New(db, time.Hour)
	if err != nil {
		log.WithError(err).Fatal("cannot migrate level 2")
	}

	opts := composite.Options{
		Namespace:   "demo",
		MaxTTL:      time.Hour,
		NegativeTTL: time.Second,
		Log:         log,
	}
	profiles, err := composite.New[profile](opts, composite.Level2RW{R: level2, W: level2})
	if err != nil {
		log.WithError(err).Fatal("cannot create composite cache")
	}
	defer profiles.Close()

	if err := profiles.Put(ctx, "ana", profile{Name: "Ana", Plays: 3}); err != nil {
		log.WithError(err).Fatal("cannot encode profile")
	}
	p, ok, err := profiles.Get(ctx, "ana")
	fmt.Println("COMPOSITE → GET ana =", p, ok, err)
	_, ok, _ = profiles.Get(ctx, "nobody")
	fmt.Println("COMPOSITE → GET nobody =", ok)

	counter, err := composite.NewCounter(opts, level2)
	if err != nil {
		log.WithError(err).Fatal("cannot create counter")
	}
	for range 3 {
		counter.Incr(ctx, "visits")
	}
	n, ok := counter.Get(ctx, "visits")
	fmt.Println("COUNTER   → visits =", n, ok)
}

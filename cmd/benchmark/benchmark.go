package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	cache "github.com/krisalay/tlru"
	"github.com/krisalay/tlru/engine"
	"github.com/krisalay/tlru/eviction"
	"github.com/krisalay/tlru/expiration"
	"github.com/krisalay/tlru/shard"
	"github.com/krisalay/tlru/types"
)

// ================= BENCHMARK =================

func main() {
	var (
		shards      = flag.Int("shards", 8, "number of shards")
		capacity    = flag.Int("capacity", 200000, "cache capacity")
		preloadKeys = flag.Int("preload", 100000, "keys written before the run")
		goroutines  = flag.Int("goroutines", 200, "concurrent workers")
		opsPerG     = flag.Int("ops", 5000, "operations per worker")
		writeRatio  = flag.Float64("writes", 0.1, "fraction of operations that are puts")
		ttl         = flag.Duration("ttl", 2*time.Second, "ttl of written keys")
	)
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := logrus.New()

	fmt.Println("\n================ CACHE LOAD BENCHMARK =================")

	fmt.Println("CONFIG")
	fmt.Println("---------------------------------")
	fmt.Println("Shards       :", *shards)
	fmt.Println("Capacity     :", *capacity)
	fmt.Println("Preload Keys :", *preloadKeys)
	fmt.Println("Goroutines   :", *goroutines)
	fmt.Println("Ops/Goroutine:", *opsPerG)
	fmt.Println("Write Ratio  :", *writeRatio)
	fmt.Println("TTL          :", *ttl)
	fmt.Println("---------------------------------")

	// ---------------- Cache Engine ----------------
	stats := &types.Stats{}
	exp := &expiration.ExpireAfterWrite{TTL: *ttl}
	eng := engine.NewCacheEngine[string, int](exp, nil, nil, nil, stats)
	eng.Log = log

	c, err := cache.NewShardedCache(cache.Options[string]{
		Shards:      *shards,
		Capacity:    *capacity,
		Policy:      eviction.LRU,
		Granularity: 10 * time.Millisecond,
		Hasher:      shard.XXHashString,
	}, eng)
	if err != nil {
		log.WithError(err).Fatal("cannot create cache")
	}

	sweeper := cache.NewSweeper(c, 100*time.Millisecond)
	sweeper.Start(ctx)

	keys := make([]string, *preloadKeys)
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%d", i)
	}

	// ---------------- Preload Cache ----------------
	fmt.Println("Preloading cache...")
	for i, key := range keys {
		c.Put(key, i)
	}
	fmt.Println("Preload complete.")

	// ---------------- Load Test ----------------
	fmt.Println("Running concurrency benchmark...")

	start := time.Now()

	wg := sync.WaitGroup{}
	wg.Add(*goroutines)

	for i := 0; i < *goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(id)))
			for j := 0; j < *opsPerG; j++ {
				key := keys[rng.Intn(len(keys))]
				if rng.Float64() < *writeRatio {
					c.Put(key, j)
				} else {
					c.Get(key)
				}
			}
		}(i)
	}

	wg.Wait()

	duration := time.Since(start)
	totalOps := *goroutines * *opsPerG
	sweeper.Stop()

	snap := stats.Snapshot()

	fmt.Println("\n================ RESULTS =================")
	fmt.Printf("Total Operations : %d\n", totalOps)
	fmt.Printf("Total Time       : %v\n", duration)
	fmt.Printf("Throughput       : %.2f ops/sec\n", float64(totalOps)/duration.Seconds())
	fmt.Printf("Hit Ratio        : %.2f\n", snap.HitRatio())
	fmt.Printf("Evictions        : %d\n", snap.Evictions)
	fmt.Printf("Expired          : %d\n", snap.Expired)
	fmt.Printf("Entries          : %d\n", c.Len())
	fmt.Println("=========================================")

	c.Close()
}

package composite

import (
	"context"
	"strconv"
	"sync"

	"github.com/krisalay/tlru/types"
)

/*
Level2 is a shared, usually remote, key-value store such as Redis or a
database table. Keys are digests produced by the composite cache. Get
reports a missing key with types.ErrNotFound; any other error is treated
as a transient failure and retried.
*/
type Level2 interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Level2Incr is a Level2 that can increment base-10 integer values in place.
type Level2Incr interface {
	Level2
	Incr(ctx context.Context, key string) (int64, error)
}

// Level2RW splits reads and writes, e.g. between a replica and a primary.
type Level2RW struct {
	R Level2
	W Level2
}

// MemoryLevel2 is an in-process Level2 for tests and single-node setups.
type MemoryLevel2 struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemoryLevel2() *MemoryLevel2 {
	return &MemoryLevel2{data: make(map[string][]byte)}
}

// NewMemoryLevel2RW returns a Level2RW reading and writing one MemoryLevel2.
func NewMemoryLevel2RW() (Level2RW, *MemoryLevel2) {
	m := NewMemoryLevel2()
	return Level2RW{R: m, W: m}, m
}

func (m *MemoryLevel2) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.data[key]
	if !ok {
		return nil, types.ErrNotFound
	}
	return v, nil
}

func (m *MemoryLevel2) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryLevel2) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	if v, ok := m.data[key]; ok {
		var err error
		if n, err = strconv.ParseInt(string(v), 10, 64); err != nil {
			return 0, err
		}
	}
	n++
	m.data[key] = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

// Len returns the number of stored keys.
func (m *MemoryLevel2) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

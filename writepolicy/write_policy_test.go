package writepolicy_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/krisalay/tlru/writepolicy"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu   sync.Mutex
	data map[string]string
	fail error
}

func newMemStore() *memStore {
	return &memStore{data: map[string]string{}}
}

func (s *memStore) Load(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *memStore) Put(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.data[key] = value
	return nil
}

func (s *memStore) get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

func TestWriteThrough_WritesImmediately(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	p := writepolicy.NewWriteThroughPolicy[string, string](store, nil)
	p.OnWrite(context.Background(), "k", "v")

	v, ok := store.get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
	p.Close()
}

func TestWriteThrough_LogsFailure(t *testing.T) {
	t.Parallel()

	logger, hook := test.NewNullLogger()
	store := newMemStore()
	store.fail = errors.New("disk full")
	p := writepolicy.NewWriteThroughPolicy[string, string](store, logger)

	p.OnWrite(context.Background(), "k", "v")
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestWriteBack_FlushesOnClose(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	p := writepolicy.NewWriteBackPolicy[string, string](store, 64, nil)
	for _, k := range []string{"a", "b", "c"} {
		p.OnWrite(context.Background(), k, k+k)
	}
	p.Close()

	for _, k := range []string{"a", "b", "c"} {
		v, ok := store.get(k)
		require.True(t, ok, k)
		assert.Equal(t, k+k, v)
	}
	assert.Zero(t, p.Dropped())
}

func TestWriteBack_DropsAfterClose(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	p := writepolicy.NewWriteBackPolicy[string, string](store, 4, nil)
	p.Close()
	p.Close()

	p.OnWrite(context.Background(), "late", "v")
	assert.Equal(t, uint64(1), p.Dropped())
	_, ok := store.get("late")
	assert.False(t, ok)
}

func TestWriteBack_CancelledContextStillFlushes(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	p := writepolicy.NewWriteBackPolicy[string, string](store, 4, nil)

	ctx, cancel := context.WithCancel(context.Background())
	p.OnWrite(ctx, "k", "v")
	cancel()
	p.Close()

	_, ok := store.get("k")
	assert.True(t, ok)
}

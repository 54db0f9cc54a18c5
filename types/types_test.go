package types_test

import (
	"testing"
	"time"

	"github.com/krisalay/tlru/types"
	"github.com/stretchr/testify/assert"
)

func TestDeadline(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(15), types.Deadline(5, 10))
	assert.Equal(t, types.Never, types.Deadline(5, types.Forever))
	assert.Equal(t, types.Never, types.Deadline(types.Never-1, time.Hour))
}

func TestStats_Snapshot(t *testing.T) {
	t.Parallel()

	var s types.Stats
	s.Hit()
	s.Hit()
	s.Hit()
	s.Miss()
	s.Eviction()
	s.Expire()
	s.Expire()
	s.Refresh()

	snap := s.Snapshot()
	assert.Equal(t, types.StatsSnapshot{Hits: 3, Misses: 1, Evictions: 1, Expired: 2, Refreshes: 1}, snap)
	assert.InDelta(t, 0.75, snap.HitRatio(), 1e-9)
	assert.Zero(t, types.StatsSnapshot{}.HitRatio())
}

func TestNoopMetrics_SatisfiesMetrics(t *testing.T) {
	t.Parallel()

	var m types.Metrics = types.NoopMetrics{}
	m.Hit()
	m.Miss()
	m.Eviction()
	m.Expire()
	m.Refresh()
}

package cache

// Verify checks the structural invariants of every shard.
func (c *ShardedCache[K, V]) Verify() error {
	for _, s := range c.shards {
		if err := s.Verify(); err != nil {
			return err
		}
	}
	return nil
}

// ShardCapacities returns the capacity of each shard.
func (c *ShardedCache[K, V]) ShardCapacities() []int {
	out := make([]int, len(c.shards))
	for i, s := range c.shards {
		out[i] = s.Capacity()
	}
	return out
}

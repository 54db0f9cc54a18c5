package cache

// Number is the set of value types Incr can add to.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

/*
Incr adds by to the value stored under key and returns the result. A missing
or expired key counts as zero and is created with the default TTL; an existing
key keeps its deadline.
*/
func Incr[K comparable, V Number](c *ShardedCache[K, V], key K, by V) V {
	return c.Compute(key, func(old V, _ bool) V {
		return old + by
	})
}

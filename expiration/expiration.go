// This file defines how cache entries expire over time.

package expiration

import (
	"time"

	"github.com/krisalay/tlru/types"
)

/*
Strategy is the interface that all expiration rules must follow. Instead of hard-coding
expiration logic into the cache, we define a strategy so expiration behavior can be swapped easily.

Deadlines themselves are tracked by the Wheel; a Strategy only answers two questions.
*/
type Strategy interface {

	// DefaultTTL is the lifetime given to entries written without an explicit TTL.
	DefaultTTL() time.Duration

	// RefreshOnRead reports whether a successful read restarts the entry's TTL.
	RefreshOnRead() bool
}

/*
ExpireAfterWrite is the classic TTL: an entry lives for TTL after it was last
written. Reads never extend it. A zero TTL means entries never expire.
*/
type ExpireAfterWrite struct {
	TTL time.Duration
}

func (e *ExpireAfterWrite) DefaultTTL() time.Duration { return orForever(e.TTL) }

func (e *ExpireAfterWrite) RefreshOnRead() bool { return false }

// DefaultTTL returns the TTL s applies to writes, or types.Forever when s is nil.
func DefaultTTL(s Strategy) time.Duration {
	if s == nil {
		return types.Forever
	}
	return s.DefaultTTL()
}

// RefreshOnRead reports whether s refreshes on reads; a nil strategy does not.
func RefreshOnRead(s Strategy) bool {
	return s != nil && s.RefreshOnRead()
}

func orForever(ttl time.Duration) time.Duration {
	if ttl == 0 {
		return types.Forever
	}
	return ttl
}

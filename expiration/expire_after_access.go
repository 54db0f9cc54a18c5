package expiration

import "time"

/*
ExpireAfterAccess implements a very common cache behavior called "expire after access" or "sliding TTL".
Every time someone reads the data, the expiration timer is pushed forward by the entry's own TTL.
As long as the data keeps getting used, it stays alive. If nobody touches it for a while, it expires.

An entry written with an explicit TTL slides by that TTL, not by the default one.
*/
type ExpireAfterAccess struct {

	// TTL is used for writes that do not name their own TTL. Zero means never expire.
	TTL time.Duration
}

func (e *ExpireAfterAccess) DefaultTTL() time.Duration { return orForever(e.TTL) }

func (e *ExpireAfterAccess) RefreshOnRead() bool { return true }

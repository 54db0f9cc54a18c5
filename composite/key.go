package composite

import (
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dchest/siphash"
)

/*
keyHasher turns a caller key into a fixed-size digest that also encodes the
current time slot (unix time / maxTTL). When the slot rolls over every key
maps to a new digest, so nothing written in an older slot is found again.
On average an item is therefore visible for maxTTL/2.

Changing this derivation invalidates every key already stored in level 2.
*/
type keyHasher struct {
	namespace []byte
	maxTTL    time.Duration
	now       func() time.Time
}

func (h keyHasher) timeSlot() uint32 {
	return uint32(h.now().UnixNano() / int64(h.maxTTL))
}

// hash returns hex(xxh64(input) ‖ siphash24(0, input)) where
// input = namespace \n key \n slot (uint32, little endian).
func (h keyHasher) hash(key string) string {
	input := make([]byte, 0, len(h.namespace)+len(key)+6)
	input = append(input, h.namespace...)
	input = append(input, '\n')
	input = append(input, key...)
	input = append(input, '\n')
	input = binary.LittleEndian.AppendUint32(input, h.timeSlot())

	var digest [16]byte
	binary.BigEndian.PutUint64(digest[:8], xxhash.Sum64(input))
	binary.LittleEndian.PutUint64(digest[8:], siphash.Hash(0, 0, input))
	return hex.EncodeToString(digest[:])
}

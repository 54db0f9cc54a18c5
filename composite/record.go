package composite

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/s2"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrUnsupportedMediaType is returned when a stored record has an unknown encoding.
var ErrUnsupportedMediaType = errors.New("unsupported media type")

// Record encodings, stored as the first byte.
const (
	mediaMsgpack   byte = 'm'
	mediaMsgpackS2 byte = 's'
)

// encodeRecord packs doc with msgpack, compressing it with s2 when the packed
// size reaches any of thresholds.
func encodeRecord(doc any, compress bool, thresholds ...int) ([]byte, error) {
	packed, err := msgpack.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("pack record: %w", err)
	}

	if compress {
		for _, t := range thresholds {
			if len(packed) >= t {
				out := make([]byte, 1, 1+s2.MaxEncodedLen(len(packed)))
				out[0] = mediaMsgpackS2
				return append(out, s2.Encode(nil, packed)...), nil
			}
		}
	}
	return append([]byte{mediaMsgpack}, packed...), nil
}

func decodeRecord(record []byte, out any) error {
	if len(record) == 0 {
		return fmt.Errorf("%w: empty record", ErrUnsupportedMediaType)
	}

	body := record[1:]
	switch record[0] {
	case mediaMsgpack:
	case mediaMsgpackS2:
		var err error
		if body, err = s2.Decode(nil, body); err != nil {
			return fmt.Errorf("decompress record: %w", err)
		}
	default:
		return fmt.Errorf("%w: 0x%02x", ErrUnsupportedMediaType, record[0])
	}

	if err := msgpack.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unpack record: %w", err)
	}
	return nil
}

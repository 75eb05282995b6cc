package structs

import (
	"encoding/hex"

	"github.com/pkg/errors"
)

// HEXBytes defines a byte slice that is encoded as a hex string.
// An empty string decodes to a nil slice.
type HEXBytes []byte

// MarshalText implements encoding.TextMarshaler.
func (h HEXBytes) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(h)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *HEXBytes) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*h = nil
		return nil
	}

	b, err := hex.DecodeString(string(text))
	if err != nil {
		return errors.Wrap(err, "decode hex error")
	}
	*h = HEXBytes(b)
	return nil
}

// copyBytes returns a copy of b, or nil when b is empty so that decoded
// messages compare equal regardless of the encoding they were decoded from.
func copyBytes(b []byte) HEXBytes {
	return HEXBytes(append([]byte(nil), b...))
}

package structs

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/brocaar/lorawan"
)

var euiRegexp = regexp.MustCompile(`^\w{2}-\w{2}-\w{2}-\w{2}-\w{2}-\w{2}-\w{2}-\w{2}$`)

// EUI64 implements the BasicStation EUI64 type.
type EUI64 lorawan.EUI64

// EUI64FromUint64 returns the EUI64 for the given (big-endian) integer.
func EUI64FromUint64(v uint64) EUI64 {
	var e EUI64
	binary.BigEndian.PutUint64(e[:], v)
	return e
}

// Uint64 returns the EUI64 as (big-endian) integer.
func (e EUI64) Uint64() uint64 {
	return binary.BigEndian.Uint64(e[:])
}

// ID6 returns the ID6 representation without zero compression.
func (e EUI64) ID6() string {
	return fmt.Sprintf("%x:%x:%x:%x", e[0:2], e[2:4], e[4:6], e[6:8])
}

// String implements fmt.Stringer.
func (e EUI64) String() string {
	return lorawan.EUI64(e).String()
}

// MarshalText encodes the EUI64 to a ID6 string.
func (e EUI64) MarshalText() ([]byte, error) {
	return []byte(e.ID6()), nil
}

// UnmarshalJSON decodes the EUI64 from a JSON string (see UnmarshalText)
// or a JSON integer.
func (e *EUI64) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) != 0 && b[0] != '"' {
		v, err := strconv.ParseUint(string(b), 10, 64)
		if err != nil {
			return errors.Wrap(err, "parse eui integer error")
		}
		*e = EUI64FromUint64(v)
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return e.UnmarshalText([]byte(s))
}

// UnmarshalText decodes the EUI64 from an ID6 or EUI string.
func (e *EUI64) UnmarshalText(text []byte) error {
	v := string(text)
	var eui lorawan.EUI64

	if euiRegexp.MatchString(v) {
		v = strings.Replace(v, "-", "", -1)
		if err := eui.UnmarshalText([]byte(v)); err != nil {
			return errors.Wrap(err, "unmarshal eui error")
		}
	} else if len(v) == 16 && !strings.Contains(v, ":") {
		if err := eui.UnmarshalText([]byte(v)); err != nil {
			return errors.Wrap(err, "unmarshal eui error")
		}
	} else {
		var blockI int
		blocks := strings.Split(v, ":")
		if len(blocks) > 8 {
			return fmt.Errorf("invalid id6: %s", v)
		}
		for i := 0; i < len(blocks); {
			if blocks[i] == "" {
				remaining := remainingBlocks(blocks[i:])
				i = len(blocks) - remaining
				blockI = 4 - remaining
			} else {
				if len(blocks[i]) > 4 || blockI > 3 {
					return fmt.Errorf("invalid id6: %s", v)
				}
				v := "0000"[len(blocks[i]):] + blocks[i]
				b, err := hex.DecodeString(v)
				if err != nil {
					return errors.Wrap(err, "unmarshal eui block error")
				}
				for ii, bb := range b {
					eui[(blockI*2)+ii] = bb
				}

				blockI++
				i++
			}
		}
	}

	*e = EUI64(eui)
	return nil
}

func remainingBlocks(blocks []string) int {
	var i int
	for _, v := range blocks {
		if v != "" {
			i++
		}
	}
	return i
}

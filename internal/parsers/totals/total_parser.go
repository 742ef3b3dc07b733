package totals

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/deploymenttheory/go-xattrfs/internal/types"
)

// ParseU64 parses an unsigned 64-bit number the way totaled names and
// values are written: a "0x" prefix selects hex, a leading zero selects
// octal, anything else is decimal. A leading '+' and a trailing newline are
// refused, as are empty strings and strings longer than XattrMaxTotalU64.
func ParseU64(s []byte) (uint64, error) {
	if len(s) == 0 || len(s) > types.XattrMaxTotalU64 || s[0] == '+' || s[len(s)-1] == '\n' {
		return 0, fmt.Errorf("total number %q: %w", s, types.ErrInvalid)
	}

	str := string(s)
	base := 10
	switch {
	case len(str) > 1 && str[0] == '0' && (str[1] == 'x' || str[1] == 'X'):
		str, base = str[2:], 16
	case len(str) > 1 && str[0] == '0':
		str, base = str[1:], 8
	}

	// an explicit base keeps ParseUint from accepting underscores or its own
	// prefixes
	v, err := strconv.ParseUint(str, base, 64)
	if err != nil {
		return 0, fmt.Errorf("total number %q: %w", s, types.ErrInvalid)
	}
	return v, nil
}

// ParseKey derives the total bucket key from the last three dotted numbers
// of a totaled attribute name. The fields are found right to left and keep
// their written order in the key.
func ParseKey(name []byte) (types.Key, error) {
	var fields [3]uint64
	nr := 0
	end := len(name)

	for i := len(name) - 1; i >= 0 && nr < len(fields); i-- {
		if name[i] != '.' {
			continue
		}

		v, err := ParseU64(name[i+1 : end])
		if err != nil {
			return types.Key{}, fmt.Errorf("total name %q: %w", name, err)
		}
		fields[nr] = v
		end = i
		nr++
	}

	if nr != len(fields) {
		return types.Key{}, fmt.Errorf("total name %q needs three dotted numbers: %w", name, types.ErrInvalid)
	}

	fields[0], fields[2] = fields[2], fields[0]
	return types.TotalKey(fields[0], fields[1], fields[2]), nil
}

// EncodeValue serializes a total delta as two little-endian 64-bit fields.
func EncodeValue(v types.TotalValue) []byte {
	buf := make([]byte, types.TotalValueSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(v.Total))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(v.Count))
	return buf
}

// DecodeValue parses a stored total bucket.
func DecodeValue(data []byte) (types.TotalValue, error) {
	if len(data) != types.TotalValueSize {
		return types.TotalValue{}, fmt.Errorf("total value has %d bytes, want %d: %w",
			len(data), types.TotalValueSize, types.ErrCorrupt)
	}
	return types.TotalValue{
		Total: int64(binary.LittleEndian.Uint64(data[0:8])),
		Count: int64(binary.LittleEndian.Uint64(data[8:16])),
	}, nil
}

// Combine merges the delta in src into the bucket in dst by pairwise
// addition. A bucket that sums to zero is reported as null so the store
// can remove it.
func Combine(dst, src []byte) (types.DeltaResult, error) {
	if len(src) != types.TotalValueSize || len(dst) != len(src) {
		return types.DeltaCombined, fmt.Errorf("total merge of %d into %d bytes: %w",
			len(src), len(dst), types.ErrCorrupt)
	}

	d, _ := DecodeValue(dst)
	s, _ := DecodeValue(src)
	sum := types.TotalValue{Total: d.Total + s.Total, Count: d.Count + s.Count}
	copy(dst, EncodeValue(sum))

	if sum.IsZero() {
		return types.DeltaCombinedNull, nil
	}
	return types.DeltaCombined, nil
}

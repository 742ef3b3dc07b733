package records

import (
	"encoding/binary"
	"fmt"

	"github.com/deploymenttheory/go-xattrfs/internal/types"
)

// Header is the validated fixed header at the start of an attribute's
// first part.
type Header struct {
	NameLen  int
	ValueLen int
}

// FullBytes returns the serialized size of the whole attribute.
func (h Header) FullBytes() int {
	return types.XattrHeaderSize + h.NameLen + h.ValueLen
}

// NrParts returns how many parts the attribute occupies.
func (h Header) NrParts() int {
	return types.XattrNrParts(h.NameLen, h.ValueLen)
}

// DecodeHeader parses and validates the header at the start of data.
// Out of range lengths mean the stored items are corrupt.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) < types.XattrHeaderSize {
		return Header{}, fmt.Errorf("first part has %d bytes, header needs %d: %w",
			len(data), types.XattrHeaderSize, types.ErrCorrupt)
	}

	h := Header{
		ValueLen: int(binary.LittleEndian.Uint16(data[0:2])),
		NameLen:  int(data[2]),
	}

	// an 8-bit name length can exceed the limit only if the limit shrinks
	if h.NameLen > types.XattrMaxNameLen || h.ValueLen > types.XattrMaxValueLen {
		return Header{}, fmt.Errorf("header name_len %d val_len %d out of range: %w",
			h.NameLen, h.ValueLen, types.ErrCorrupt)
	}

	return h, nil
}

// Encode serializes a name and value into one contiguous record: header,
// name, value.
func Encode(name, value []byte) ([]byte, error) {
	if len(name) > types.XattrMaxNameLen {
		return nil, fmt.Errorf("name length %d exceeds %d: %w", len(name), types.XattrMaxNameLen, types.ErrRange)
	}
	if len(value) > types.XattrMaxValueLen {
		return nil, fmt.Errorf("value length %d exceeds %d: %w", len(value), types.XattrMaxValueLen, types.ErrTooBig)
	}

	buf := make([]byte, types.XattrHeaderSize+len(name)+len(value))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(value)))
	buf[2] = uint8(len(name))
	// bytes 3..7 are zero padding
	copy(buf[types.XattrHeaderSize:], name)
	copy(buf[types.XattrHeaderSize+len(name):], value)

	return buf, nil
}

// Split cuts a serialized record into ordered part-sized chunks. Every
// chunk but the last is full; the last is never empty.
func Split(record []byte) [][]byte {
	nr := (len(record) + types.XattrMaxPartSize - 1) / types.XattrMaxPartSize
	parts := make([][]byte, 0, nr)
	for off := 0; off < len(record); off += types.XattrMaxPartSize {
		end := off + types.XattrMaxPartSize
		if end > len(record) {
			end = len(record)
		}
		parts = append(parts, record[off:end])
	}
	return parts
}

// Pack serializes a name and value and splits it into parts.
func Pack(name, value []byte) ([][]byte, error) {
	record, err := Encode(name, value)
	if err != nil {
		return nil, err
	}
	return Split(record), nil
}

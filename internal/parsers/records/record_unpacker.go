package records

import (
	"errors"
	"fmt"

	"github.com/deploymenttheory/go-xattrfs/internal/types"
)

// PartFunc fetches the first item of an attribute's group at or after the
// given part index, copying its value into dst. It returns the part index of
// the item it found and the bytes copied, or ErrItemNotFound when the group
// has no more items.
type PartFunc func(part uint8, dst []byte) (uint8, int, error)

// Record is an attribute assembled from its parts. Only Unpack creates
// records, so a Record always has a validated header and contiguous parts.
// A record may hold less than the full attribute when the caller limited
// how much to gather.
type Record struct {
	key    types.Key
	header Header
	buf    []byte
}

// Key returns the key of the attribute's first part.
func (r *Record) Key() types.Key { return r.key }

// Header returns the attribute's validated header.
func (r *Record) Header() Header { return r.header }

// Name returns the attribute name, or as much of it as was gathered.
func (r *Record) Name() []byte {
	end := types.XattrHeaderSize + r.header.NameLen
	if end > len(r.buf) {
		end = len(r.buf)
	}
	return r.buf[types.XattrHeaderSize:end]
}

// Value returns the value bytes that were gathered.
func (r *Record) Value() []byte {
	start := types.XattrHeaderSize + r.header.NameLen
	if start > len(r.buf) {
		return nil
	}
	return r.buf[start:]
}

// Copied returns how many serialized bytes were gathered.
func (r *Record) Copied() int { return len(r.buf) }

// Complete reports whether the whole attribute was gathered.
func (r *Record) Complete() bool { return len(r.buf) == r.header.FullBytes() }

// NrParts returns how many parts the attribute occupies.
func (r *Record) NrParts() int { return r.header.NrParts() }

// CheckFirstPart validates the bytes read from an attribute's first part.
// limit is the most serialized bytes the caller could have received; when
// it was large enough to hold the name, the part must contain the name.
func CheckFirstPart(part0 []byte, limit int) (Header, error) {
	h, err := DecodeHeader(part0)
	if err != nil {
		return Header{}, err
	}

	nameEnd := types.XattrHeaderSize + h.NameLen
	if limit >= nameEnd && len(part0) < nameEnd {
		return Header{}, fmt.Errorf("first part has %d bytes, name needs %d: %w",
			len(part0), nameEnd, types.ErrCorrupt)
	}

	return h, nil
}

// Unpack assembles an attribute from the bytes of its first part and the
// parts supplied by next, gathering at most limit serialized bytes. A
// missing part, a part out of order or a short part means the stored items
// are corrupt.
func Unpack(key types.Key, part0 []byte, next PartFunc, limit int) (*Record, error) {
	if key.Part() != 0 {
		return nil, fmt.Errorf("attribute starts at part %d of %s: %w", key.Part(), key, types.ErrCorrupt)
	}

	h, err := CheckFirstPart(part0, limit)
	if err != nil {
		return nil, err
	}

	want := h.FullBytes()
	if limit < want {
		want = limit
	}

	buf := make([]byte, 0, want)
	buf = append(buf, part0[:min(len(part0), want)]...)

	lastPart := h.NrParts() - 1
	for part := 1; len(buf) < want && part <= lastPart; part++ {
		got, n, err := next(uint8(part), buf[len(buf):want])
		if errors.Is(err, types.ErrItemNotFound) {
			return nil, fmt.Errorf("attribute %s ran out of items at part %d of %d: %w",
				key, part, lastPart, types.ErrCorrupt)
		}
		if err != nil {
			return nil, err
		}
		if int(got) != part {
			return nil, fmt.Errorf("attribute %s found part %d, expected %d: %w",
				key, got, part, types.ErrCorrupt)
		}
		buf = buf[:len(buf)+n]
	}

	if len(buf) < want {
		return nil, fmt.Errorf("attribute %s has %d of %d bytes: %w",
			key, len(buf), want, types.ErrCorrupt)
	}

	return &Record{key: key, header: h, buf: buf}, nil
}

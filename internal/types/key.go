package types

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Item Keys
// Every persistent item is addressed by a fixed-shape key. The meaning of the
// numbered fields depends on the zone and type.

// KeySize is the encoded size of a Key in bytes.
const KeySize = 27

// Key is the composite address of one item. Keys are totally ordered by
// their fields in declaration order, and the big-endian encoding preserves
// that order byte for byte.
type Key struct {
	// Zone separates categories of items (attributes, totals, search entries).
	Zone uint8
	// First is the owning inode number in the fs zone.
	First uint64
	// Type discriminates item kinds within a zone.
	Type uint8
	// Second is the name hash for attribute items.
	Second uint64
	// Third is the disambiguating identifier for attribute items.
	Third uint64
	// Fourth is the part index for attribute items.
	Fourth uint8
}

// XattrKey returns the key of part 0 of an attribute.
func XattrKey(ino uint64, nameHash uint32, id uint64) Key {
	return Key{
		Zone:   FSZone,
		First:  ino,
		Type:   XattrType,
		Second: uint64(nameHash),
		Third:  id,
	}
}

// XattrLastKey returns the greatest attribute key an inode can have.
func XattrLastKey(ino uint64) Key {
	return XattrKey(ino, math.MaxUint32, math.MaxUint64).WithPart(math.MaxUint8)
}

// InodeKey returns the key of an inode's metadata item.
func InodeKey(ino uint64) Key {
	return Key{Zone: FSZone, First: ino, Type: InodeType}
}

// FileFirstKey and FileLastKey bound every fs zone item of one inode.
func FileFirstKey(ino uint64) Key {
	return Key{Zone: FSZone, First: ino}
}

func FileLastKey(ino uint64) Key {
	return Key{
		Zone:   FSZone,
		First:  ino,
		Type:   math.MaxUint8,
		Second: math.MaxUint64,
		Third:  math.MaxUint64,
		Fourth: math.MaxUint8,
	}
}

// TotalKey returns the key of the global total bucket named (a, b, c).
func TotalKey(a, b, c uint64) Key {
	return Key{Zone: TotalZone, First: a, Second: b, Third: c}
}

// SearchKey returns the key of one search index registration.
func SearchKey(hash, ino, id uint64) Key {
	return Key{Zone: SearchZone, First: hash, Second: ino, Third: id}
}

// ZoneFirstKey and ZoneLastKey bound every item in a zone.
func ZoneFirstKey(zone uint8) Key {
	return Key{Zone: zone}
}

func ZoneLastKey(zone uint8) Key {
	return Key{
		Zone:   zone,
		First:  math.MaxUint64,
		Type:   math.MaxUint8,
		Second: math.MaxUint64,
		Third:  math.MaxUint64,
		Fourth: math.MaxUint8,
	}
}

// Ino returns the inode number of an fs zone key.
func (k Key) Ino() uint64 { return k.First }

// NameHash returns the attribute name hash of an attribute key.
func (k Key) NameHash() uint32 { return uint32(k.Second) }

// ID returns the disambiguating identifier of an attribute key.
func (k Key) ID() uint64 { return k.Third }

// Part returns the part index of an attribute key.
func (k Key) Part() uint8 { return k.Fourth }

// WithPart returns a copy of the key addressing the given part.
func (k Key) WithPart(part uint8) Key {
	k.Fourth = part
	return k
}

// WithID returns a copy of the key with a new identifier and part 0.
func (k Key) WithID(id uint64) Key {
	k.Third = id
	k.Fourth = 0
	return k
}

// TotalName returns the (a, b, c) triple of a total bucket key.
func (k Key) TotalName() [3]uint64 {
	return [3]uint64{k.First, k.Second, k.Third}
}

// Compare orders two keys field by field.
func (k Key) Compare(o Key) int {
	switch {
	case k.Zone != o.Zone:
		return cmpUint(uint64(k.Zone), uint64(o.Zone))
	case k.First != o.First:
		return cmpUint(k.First, o.First)
	case k.Type != o.Type:
		return cmpUint(uint64(k.Type), uint64(o.Type))
	case k.Second != o.Second:
		return cmpUint(k.Second, o.Second)
	case k.Third != o.Third:
		return cmpUint(k.Third, o.Third)
	default:
		return cmpUint(uint64(k.Fourth), uint64(o.Fourth))
	}
}

// Less reports whether k sorts before o.
func (k Key) Less(o Key) bool {
	return k.Compare(o) < 0
}

func cmpUint(a, b uint64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// Encode returns the big-endian encoding of the key.
func (k Key) Encode() []byte {
	b := make([]byte, KeySize)
	b[0] = k.Zone
	binary.BigEndian.PutUint64(b[1:9], k.First)
	b[9] = k.Type
	binary.BigEndian.PutUint64(b[10:18], k.Second)
	binary.BigEndian.PutUint64(b[18:26], k.Third)
	b[26] = k.Fourth
	return b
}

// DecodeKey parses an encoded key.
func DecodeKey(b []byte) (Key, error) {
	if len(b) != KeySize {
		return Key{}, fmt.Errorf("encoded key is %d bytes, want %d", len(b), KeySize)
	}

	return Key{
		Zone:   b[0],
		First:  binary.BigEndian.Uint64(b[1:9]),
		Type:   b[9],
		Second: binary.BigEndian.Uint64(b[10:18]),
		Third:  binary.BigEndian.Uint64(b[18:26]),
		Fourth: b[26],
	}, nil
}

// String is the Stringer implementation.
func (k Key) String() string {
	return fmt.Sprintf("%d.%d.%d.%d.%d.%d", k.Zone, k.First, k.Type, k.Second, k.Third, k.Fourth)
}

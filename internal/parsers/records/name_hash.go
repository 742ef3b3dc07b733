package records

import (
	"bytes"
	"hash/crc32"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// NameHash returns the 32-bit key hash of an attribute name: the raw
// crc32c register seeded with all ones and left uninverted. crc32.Checksum
// inverts on both ends, so inverting its result yields the raw register.
func NameHash(name []byte) uint32 {
	return ^crc32.Checksum(name, castagnoli)
}

// NamesEqual compares names only when their lengths match.
func NamesEqual(a, b []byte) bool {
	return len(a) == len(b) && bytes.Equal(a, b)
}

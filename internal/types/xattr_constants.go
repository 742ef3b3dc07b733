package types

import "time"

// Zones
// A zone is the most significant key field and separates the item namespaces.
const (
	// InodeIndexZone holds inode index items.
	InodeIndexZone uint8 = 4

	// SearchZone holds search index registrations for searchable attributes.
	SearchZone uint8 = 10

	// TotalZone holds the global total buckets of totaled attributes.
	TotalZone uint8 = 12

	// FSZone holds per-inode items: inode metadata and attribute parts.
	FSZone uint8 = 16
)

// Item types in the fs zone.
const (
	// InodeType marks an inode metadata item.
	InodeType uint8 = 4

	// XattrType marks an attribute part item.
	XattrType uint8 = 8
)

// Attribute Record Layout
// The first part of an attribute starts with a fixed header followed by the
// name and as much of the value as fits. Later parts hold value bytes only.
const (
	// XattrHeaderSize is the size of the record header: a little-endian
	// 16-bit value length, an 8-bit name length and 5 bytes of padding.
	XattrHeaderSize = 8

	// XattrMaxPartSize is the capacity of a single attribute part item.
	XattrMaxPartSize = 512

	// XattrMaxNameLen is the longest attribute name.
	XattrMaxNameLen = 255

	// XattrMaxValueLen is the longest attribute value.
	XattrMaxValueLen = 65535

	// XattrMaxTotalU64 bounds the string length of a totaled number.
	XattrMaxTotalU64 = 23

	// XattrMaxParts is the most parts an attribute can occupy.
	XattrMaxParts = (XattrHeaderSize + XattrMaxNameLen + XattrMaxValueLen + XattrMaxPartSize - 1) / XattrMaxPartSize
)

// XattrNrParts returns the number of parts needed for a name and value.
func XattrNrParts(nameLen, valueLen int) int {
	return (XattrHeaderSize + nameLen + valueLen + XattrMaxPartSize - 1) / XattrMaxPartSize
}

// Reserved namespace and tags.
const (
	// XattrReservedPrefix starts every name that may carry tags.
	XattrReservedPrefix = "scoutfs."

	// XattrTagLen is the width of every tag token including its dot.
	XattrTagLen = 5

	XattrTagHide   = "hide."
	XattrTagSearch = "srch."
	XattrTagTotal  = "totl."
	XattrTagWorm   = "worm."

	// XattrWormName is the required final field of a write-once name.
	XattrWormName = "v1_expiration"
)

// XattrNamespaces lists the supported attribute name prefixes.
var XattrNamespaces = []string{
	"user.",
	"trusted.",
	"system.",
	"security.",
	XattrReservedPrefix,
}

// TagSet is the set of semantic tags parsed from a reserved attribute name.
type TagSet struct {
	// Hide omits the attribute from ordinary listing.
	Hide bool
	// Search registers the attribute with the search index.
	Search bool
	// Total accumulates the attribute's numeric value in a global bucket.
	Total bool
	// Worm enforces write-once retention on the owning file.
	Worm bool
}

// Any reports whether any tag is set.
func (t TagSet) Any() bool {
	return t.Hide || t.Search || t.Total || t.Worm
}

// Format versions.
const (
	// FormatVersionMin is the oldest supported format.
	FormatVersionMin = 1

	// FormatVersionWorm is the first format that stores write-once state.
	FormatVersionWorm = 2

	// FormatVersionMax is the newest supported format.
	FormatVersionMax = 2
)

// Write-once state bits stored in the inode.
const (
	// WormV1Bit marks an inode whose writes are refused until expiration.
	WormV1Bit uint64 = 1 << 0
)

// Timespec is an on-disk timestamp.
type Timespec struct {
	Sec  uint64
	Nsec uint32
}

// Time converts the timestamp to a time.Time.
func (ts Timespec) Time() time.Time {
	return time.Unix(int64(ts.Sec), int64(ts.Nsec))
}

// TimespecFrom converts a time.Time to a Timespec.
func TimespecFrom(t time.Time) Timespec {
	return Timespec{Sec: uint64(t.Unix()), Nsec: uint32(t.Nanosecond())}
}

// TotalValue is the delta merged into a total bucket.
type TotalValue struct {
	Total int64
	Count int64
}

// IsZero reports whether the value has no effect when merged.
func (v TotalValue) IsZero() bool {
	return v.Total == 0 && v.Count == 0
}

// Negate returns the value that undoes v.
func (v TotalValue) Negate() TotalValue {
	return TotalValue{Total: -v.Total, Count: -v.Count}
}

// TotalValueSize is the encoded size of a TotalValue.
const TotalValueSize = 16

// DeltaResult reports the outcome of merging a delta into an item.
type DeltaResult int

const (
	// DeltaCombined means the merged item remains.
	DeltaCombined DeltaResult = iota

	// DeltaCombinedNull means the merged item is logically absent and may be
	// removed.
	DeltaCombinedNull
)

// XattrSetFlags constrain the existence of the attribute being set.
type XattrSetFlags int

const (
	// XattrCreate fails if the attribute already exists.
	XattrCreate XattrSetFlags = 1 << 0

	// XattrReplace fails if the attribute does not exist.
	XattrReplace XattrSetFlags = 1 << 1
)

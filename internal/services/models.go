package services

import (
	"github.com/deploymenttheory/go-xattrfs/internal/types"
)

// ListPosition is the resumable cursor of an attribute listing. Listing
// continues with the first attribute at or after (Hash, ID).
type ListPosition struct {
	Hash uint32
	ID   uint64
}

// TotalEntry is one global total bucket.
type TotalEntry struct {
	Name  [3]uint64
	Total int64
	Count int64
}

// AttrInfo describes one stored attribute.
type AttrInfo struct {
	Name     string
	ValueLen int
	Parts    int
	Key      types.Key
	Tags     types.TagSet
}

package services

import (
	"github.com/deploymenttheory/go-xattrfs/internal/parsers/records"
	"github.com/deploymenttheory/go-xattrfs/internal/search"
)

// NameHashingService provides name hashing for attribute operations
type NameHashingService struct{}

// NewNameHashingService creates a new name hashing service
func NewNameHashingService() *NameHashingService {
	return &NameHashingService{}
}

var _ NameHasher = (*NameHashingService)(nil)

// KeyHash returns the 32-bit hash placed in attribute item keys
func (nhs *NameHashingService) KeyHash(name []byte) uint32 {
	return records.NameHash(name)
}

// SearchHash returns the 64-bit hash searchable attributes are indexed by
func (nhs *NameHashingService) SearchHash(name []byte) uint64 {
	return search.NameHash(name)
}

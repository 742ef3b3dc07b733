package services

import (
	"context"

	"github.com/deploymenttheory/go-xattrfs/internal/interfaces"
	"github.com/deploymenttheory/go-xattrfs/internal/types"
)

// XattrService provides the extended attribute operations of one mount
type XattrService interface {
	Get(ctx context.Context, in interfaces.Inode, name string, buf []byte) (int, error)
	Set(ctx context.Context, in interfaces.Inode, name string, value []byte, flags types.XattrSetFlags) error
	Remove(ctx context.Context, in interfaces.Inode, name string) error
	List(ctx context.Context, in interfaces.Inode, buf []byte, pos *ListPosition, eRange, showHidden bool) (int, error)
	Listxattr(ctx context.Context, in interfaces.Inode, buf []byte) (int, error)
	Stat(ctx context.Context, in interfaces.Inode, showHidden bool) ([]AttrInfo, error)
	Drop(ctx context.Context, ino uint64) error
	ReadTotals(ctx context.Context, from [3]uint64, limit int) ([]TotalEntry, error)
}

// NameHasher derives the hashes an attribute name is stored and indexed by
type NameHasher interface {
	KeyHash(name []byte) uint32
	SearchHash(name []byte) uint64
}

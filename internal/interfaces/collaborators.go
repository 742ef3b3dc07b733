// File: internal/interfaces/collaborators.go
package interfaces

import (
	"context"
	"time"

	"github.com/deploymenttheory/go-xattrfs/internal/locks"
	"github.com/deploymenttheory/go-xattrfs/internal/types"
)

// LockManager grants cluster locks. Callers acquire the inode lock before
// any total bucket lock.
type LockManager interface {
	// LockInode locks every item of an inode.
	LockInode(ctx context.Context, ino uint64, mode locks.Mode) (*locks.Lock, error)

	// LockTotal locks one total bucket.
	LockTotal(ctx context.Context, key types.Key, mode locks.Mode) (*locks.Lock, error)

	// LockAllTotals locks every total bucket.
	LockAllTotals(ctx context.Context, mode locks.Mode) (*locks.Lock, error)

	// Unlock releases a lock; nil is ignored.
	Unlock(lock *locks.Lock)
}

// Transactions brackets a batch of item changes that become durable together.
type Transactions interface {
	// Hold enters the current transaction. With mayBlock false it returns
	// ErrBusy instead of waiting.
	Hold(ctx context.Context, mayBlock bool) error

	// Release leaves the transaction.
	Release()
}

// SearchIndex accepts registrations of searchable attributes. Registering the
// same (hash, ino, id) twice cancels the first registration.
type SearchIndex interface {
	Add(ctx context.Context, hash, ino, id uint64) error
}

// Inode is the view of a file's metadata the attribute engine needs.
type Inode interface {
	// Ino returns the inode number.
	Ino() uint64

	// IsRegular reports whether the inode is a regular file.
	IsRegular() bool

	// XattrGuard returns the guard serializing the inode's attribute items.
	XattrGuard() *locks.FileGuard

	// AllocXattrID returns a new attribute identifier for the inode.
	AllocXattrID() uint64

	// DirtyItem pins the inode's metadata item in the current transaction.
	DirtyItem(lock *locks.Lock) error

	// UpdateItem bumps the inode's version and change time and writes its
	// metadata item. It follows a successful DirtyItem and cannot fail.
	UpdateItem(lock *locks.Lock)

	// SetWorm records write-once state.
	SetWorm(bits uint64, expire types.Timespec)

	// WormDenied reports whether write-once retention is active at now.
	WormDenied(now time.Time) bool
}

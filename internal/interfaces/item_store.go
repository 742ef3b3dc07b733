// File: internal/interfaces/item_store.go
package interfaces

import (
	"github.com/deploymenttheory/go-xattrfs/internal/locks"
	"github.com/deploymenttheory/go-xattrfs/internal/types"
)

// MergeFunc combines a delta src into the existing value dst in place.
// Implementations must be commutative and associative.
type MergeFunc func(dst, src []byte) (types.DeltaResult, error)

// ItemStore is the ordered key-value item layer beneath the attribute engine.
// Every call is checked against the caller's lock.
type ItemStore interface {
	// Next finds the first item at or after key and at or before last,
	// copies as much of its value as fits in buf, and returns the item's key
	// and the number of bytes copied. Returns ErrItemNotFound past last.
	Next(key, last types.Key, buf []byte, lock *locks.Lock) (types.Key, int, error)

	// Lookup copies the value of exactly key into buf.
	Lookup(key types.Key, buf []byte, lock *locks.Lock) (int, error)

	// Create inserts a new item. Returns ErrItemExists if present.
	Create(key types.Key, val []byte, lock *locks.Lock) error

	// Update replaces the value of an existing item. Returns ErrItemNotFound
	// if absent. Updating a dirtied item never fails.
	Update(key types.Key, val []byte, lock *locks.Lock) error

	// Dirty pins an existing item in the current transaction without
	// changing it, so that a later Update or Delete of it cannot fail.
	Dirty(key types.Key, lock *locks.Lock) error

	// Delete removes an existing item. Deleting a dirtied item never fails.
	Delete(key types.Key, lock *locks.Lock) error

	// Delta merges val into the item with the zone's registered MergeFunc,
	// creating it if absent and removing it when the merge is null.
	Delta(key types.Key, val []byte, lock *locks.Lock) error

	// RegisterMerge sets the merge function used by Delta in a zone.
	RegisterMerge(zone uint8, merge MergeFunc)

	// Commit makes the current transaction's changes durable and forgets
	// which items were dirtied.
	Commit() error

	// Close releases the store.
	Close() error
}

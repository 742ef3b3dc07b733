package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/deploymenttheory/go-xattrfs/internal/interfaces"
	"github.com/deploymenttheory/go-xattrfs/internal/locks"
	"github.com/deploymenttheory/go-xattrfs/internal/types"
)

// Locker grants search zone locks.
type Locker interface {
	LockSearch(ctx context.Context, hash uint64, mode locks.Mode) (*locks.Lock, error)
	Unlock(lock *locks.Lock)
}

// Entry is one searchable attribute found under a name hash.
type Entry struct {
	Ino uint64
	ID  uint64
}

// registered is the delta stored for a registration. Two registrations of
// the same entry merge to zero and the entry disappears.
var registered = []byte{1}

// Index records searchable attributes as toggle items in the search zone.
type Index struct {
	store interfaces.ItemStore
	locks Locker
	sugar *zap.SugaredLogger
}

var _ interfaces.SearchIndex = (*Index)(nil)

// NewIndex creates a search index over the store and registers the
// toggle merge for the search zone.
func NewIndex(store interfaces.ItemStore, lk Locker, logger *zap.Logger) *Index {
	store.RegisterMerge(types.SearchZone, Toggle)
	return &Index{store: store, locks: lk, sugar: logger.Sugar()}
}

// NameHash returns the 64-bit search hash of an attribute name.
func NameHash(name []byte) uint64 {
	return xxhash.Sum64(name)
}

// Toggle merges registration deltas by exclusive or.
func Toggle(dst, src []byte) (types.DeltaResult, error) {
	if len(dst) != len(registered) || len(src) != len(registered) {
		return types.DeltaCombined, fmt.Errorf("search toggle of %d into %d bytes: %w",
			len(src), len(dst), types.ErrCorrupt)
	}
	dst[0] ^= src[0]
	if dst[0] == 0 {
		return types.DeltaCombinedNull, nil
	}
	return types.DeltaCombined, nil
}

// Add toggles the registration of an attribute. The caller must hold a
// transaction.
func (x *Index) Add(ctx context.Context, hash, ino, id uint64) error {
	lock, err := x.locks.LockSearch(ctx, hash, locks.ModeWriteOnly)
	if err != nil {
		return err
	}
	defer x.locks.Unlock(lock)

	if err := x.store.Delta(types.SearchKey(hash, ino, id), registered, lock); err != nil {
		return fmt.Errorf("registering %d.%d under %#x: %w", ino, id, hash, err)
	}
	x.sugar.Debugw("search registration toggled", "hash", hash, "ino", ino, "id", id)
	return nil
}

// Search returns every registered attribute under the name hash in inode
// and identifier order.
func (x *Index) Search(ctx context.Context, hash uint64) ([]Entry, error) {
	lock, err := x.locks.LockSearch(ctx, hash, locks.ModeRead)
	if err != nil {
		return nil, err
	}
	defer x.locks.Unlock(lock)

	var entries []Entry
	key := types.SearchKey(hash, 0, 0)
	last := lock.End
	buf := make([]byte, len(registered))

	for {
		found, _, err := x.store.Next(key, last, buf, lock)
		if errors.Is(err, types.ErrItemNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Ino: found.Second, ID: found.Third})

		if found.Third == ^uint64(0) {
			if found.Second == ^uint64(0) {
				break
			}
			key = types.SearchKey(hash, found.Second+1, 0)
		} else {
			key = types.SearchKey(hash, found.Second, found.Third+1)
		}
	}

	return entries, nil
}

package store

import (
	"sync"

	"github.com/google/btree"

	"github.com/deploymenttheory/go-xattrfs/internal/interfaces"
	"github.com/deploymenttheory/go-xattrfs/internal/locks"
	"github.com/deploymenttheory/go-xattrfs/internal/types"
)

type item struct {
	key types.Key
	val []byte
}

func itemLess(a, b item) bool {
	return a.key.Less(b.key)
}

// MemoryStore keeps items in an ordered in-memory btree.
type MemoryStore struct {
	mu     sync.RWMutex
	tree   *btree.BTreeG[item]
	dirty  map[types.Key]struct{}
	merges mergeRegistry
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tree:   btree.NewG[item](16, itemLess),
		dirty:  make(map[types.Key]struct{}),
		merges: make(mergeRegistry),
	}
}

var _ interfaces.ItemStore = (*MemoryStore)(nil)

func (s *MemoryStore) Next(key, last types.Key, buf []byte, lock *locks.Lock) (types.Key, int, error) {
	if err := checkRange(lock, key, last); err != nil {
		return types.Key{}, 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *item
	s.tree.AscendGreaterOrEqual(item{key: key}, func(it item) bool {
		if last.Less(it.key) {
			return false
		}
		found = &it
		return false
	})
	if found == nil {
		return types.Key{}, 0, types.ErrItemNotFound
	}

	return found.key, copy(buf, found.val), nil
}

func (s *MemoryStore) Lookup(key types.Key, buf []byte, lock *locks.Lock) (int, error) {
	if err := checkLock(lock, key, accessRead); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.tree.Get(item{key: key})
	if !ok {
		return 0, types.ErrItemNotFound
	}
	return copy(buf, it.val), nil
}

func (s *MemoryStore) Create(key types.Key, val []byte, lock *locks.Lock) error {
	if err := checkLock(lock, key, accessWrite); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tree.Has(item{key: key}) {
		return types.ErrItemExists
	}
	s.tree.ReplaceOrInsert(item{key: key, val: append([]byte(nil), val...)})
	s.dirty[key] = struct{}{}
	return nil
}

func (s *MemoryStore) Update(key types.Key, val []byte, lock *locks.Lock) error {
	if err := checkLock(lock, key, accessWrite); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.tree.Has(item{key: key}) {
		return types.ErrItemNotFound
	}
	s.tree.ReplaceOrInsert(item{key: key, val: append([]byte(nil), val...)})
	s.dirty[key] = struct{}{}
	return nil
}

func (s *MemoryStore) Dirty(key types.Key, lock *locks.Lock) error {
	if err := checkLock(lock, key, accessWrite); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.tree.Has(item{key: key}) {
		return types.ErrItemNotFound
	}
	s.dirty[key] = struct{}{}
	return nil
}

func (s *MemoryStore) Delete(key types.Key, lock *locks.Lock) error {
	if err := checkLock(lock, key, accessWrite); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tree.Delete(item{key: key}); !ok {
		return types.ErrItemNotFound
	}
	delete(s.dirty, key)
	return nil
}

func (s *MemoryStore) Delta(key types.Key, val []byte, lock *locks.Lock) error {
	if err := checkLock(lock, key, accessDelta); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.tree.Get(item{key: key})
	if !ok {
		s.tree.ReplaceOrInsert(item{key: key, val: append([]byte(nil), val...)})
		s.dirty[key] = struct{}{}
		return nil
	}

	merged, res, err := s.merges.merge(key, existing.val, val)
	if err != nil {
		return err
	}
	if res == types.DeltaCombinedNull {
		s.tree.Delete(item{key: key})
		delete(s.dirty, key)
		return nil
	}
	s.tree.ReplaceOrInsert(item{key: key, val: merged})
	s.dirty[key] = struct{}{}
	return nil
}

func (s *MemoryStore) RegisterMerge(zone uint8, merge interfaces.MergeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.merges[zone] = merge
}

func (s *MemoryStore) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = make(map[types.Key]struct{})
	return nil
}

// IsDirty reports whether the key was dirtied in the current transaction.
func (s *MemoryStore) IsDirty(key types.Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.dirty[key]
	return ok
}

// Len returns the number of items in the store.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Len()
}

func (s *MemoryStore) Close() error {
	return nil
}

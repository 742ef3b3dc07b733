package store

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/btree"
	"github.com/syndtr/goleveldb/leveldb"
	leveldb_errors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	leveldb_util "github.com/syndtr/goleveldb/leveldb/util"

	"github.com/deploymenttheory/go-xattrfs/internal/interfaces"
	"github.com/deploymenttheory/go-xattrfs/internal/locks"
	"github.com/deploymenttheory/go-xattrfs/internal/types"
)

// LevelDBStore persists items in a leveldb database keyed by the big-endian
// key encoding, so leveldb's byte order is the item key order.
//
// Changes made inside a transaction are staged in an ordered overlay that
// reads consult before the database. Commit writes the overlay as one
// synced batch, so a transaction reaches disk whole or not at all.
type LevelDBStore struct {
	dir string
	db  *leveldb.DB

	mu      sync.Mutex
	pending *btree.BTreeG[pendingItem]
	dirty   map[types.Key]struct{}
	merges  mergeRegistry
}

// pendingItem is a staged change. A deleted item hides the stored one.
type pendingItem struct {
	key     types.Key
	val     []byte
	deleted bool
}

func pendingLess(a, b pendingItem) bool {
	return a.key.Less(b.key)
}

var _ interfaces.ItemStore = (*LevelDBStore)(nil)

// OpenLevelDBStore opens or creates the database in dir, recovering it if
// the manifest is corrupted.
func OpenLevelDBStore(dir string) (*LevelDBStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating store dir %s: %w", dir, err)
	}

	opts := &opt.Options{
		BlockCacheCapacity: 16 * 1024 * 1024,
		WriteBuffer:        8 * 1024 * 1024,
		Filter:             filter.NewBloomFilter(8),
	}

	db, err := leveldb.OpenFile(dir, opts)
	if leveldb_errors.IsCorrupted(err) {
		db, err = leveldb.RecoverFile(dir, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("opening leveldb store %s: %w", dir, err)
	}

	return &LevelDBStore{
		dir:     dir,
		db:      db,
		pending: btree.NewG[pendingItem](16, pendingLess),
		dirty:   make(map[types.Key]struct{}),
		merges:  make(mergeRegistry),
	}, nil
}

func (s *LevelDBStore) Next(key, last types.Key, buf []byte, lock *locks.Lock) (types.Key, int, error) {
	if err := checkRange(lock, key, last); err != nil {
		return types.Key{}, 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var staged []pendingItem
	s.pending.AscendGreaterOrEqual(pendingItem{key: key}, func(p pendingItem) bool {
		if last.Less(p.key) {
			return false
		}
		staged = append(staged, p)
		return true
	})

	// keys are fixed width so appending a zero byte makes the limit inclusive
	limit := append(last.Encode(), 0)
	iter := s.db.NewIterator(&leveldb_util.Range{Start: key.Encode(), Limit: limit}, nil)
	defer iter.Release()

	stored := iter.First()
	for {
		var storedKey types.Key
		if stored {
			k, err := types.DecodeKey(iter.Key())
			if err != nil {
				return types.Key{}, 0, fmt.Errorf("%v: %w", err, types.ErrCorrupt)
			}
			storedKey = k
		}

		if len(staged) > 0 && (!stored || !storedKey.Less(staged[0].key)) {
			p := staged[0]
			staged = staged[1:]
			if stored && storedKey == p.key {
				stored = iter.Next()
			}
			if p.deleted {
				continue
			}
			return p.key, copy(buf, p.val), nil
		}

		if !stored {
			if err := iter.Error(); err != nil {
				return types.Key{}, 0, fmt.Errorf("iterating from %s: %w", key, err)
			}
			return types.Key{}, 0, types.ErrItemNotFound
		}
		return storedKey, copy(buf, iter.Value()), nil
	}
}

func (s *LevelDBStore) Lookup(key types.Key, buf []byte, lock *locks.Lock) (int, error) {
	if err := checkLock(lock, key, accessRead); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	val, err := s.get(key)
	if err != nil {
		return 0, err
	}
	return copy(buf, val), nil
}

// get reads the staged or stored value of key. The caller holds mu.
func (s *LevelDBStore) get(key types.Key) ([]byte, error) {
	if p, ok := s.pending.Get(pendingItem{key: key}); ok {
		if p.deleted {
			return nil, types.ErrItemNotFound
		}
		return p.val, nil
	}

	val, err := s.db.Get(key.Encode(), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, types.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return val, nil
}

func (s *LevelDBStore) has(key types.Key) (bool, error) {
	if p, ok := s.pending.Get(pendingItem{key: key}); ok {
		return !p.deleted, nil
	}
	ok, err := s.db.Has(key.Encode(), nil)
	if err != nil {
		return false, fmt.Errorf("probing %s: %w", key, err)
	}
	return ok, nil
}

func (s *LevelDBStore) stage(key types.Key, val []byte) {
	s.pending.ReplaceOrInsert(pendingItem{key: key, val: append([]byte(nil), val...)})
	s.dirty[key] = struct{}{}
}

func (s *LevelDBStore) stageDelete(key types.Key) {
	s.pending.ReplaceOrInsert(pendingItem{key: key, deleted: true})
	delete(s.dirty, key)
}

func (s *LevelDBStore) Create(key types.Key, val []byte, lock *locks.Lock) error {
	if err := checkLock(lock, key, accessWrite); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.has(key)
	if err != nil {
		return err
	}
	if ok {
		return types.ErrItemExists
	}
	s.stage(key, val)
	return nil
}

func (s *LevelDBStore) Update(key types.Key, val []byte, lock *locks.Lock) error {
	if err := checkLock(lock, key, accessWrite); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.has(key)
	if err != nil {
		return err
	}
	if !ok {
		return types.ErrItemNotFound
	}
	s.stage(key, val)
	return nil
}

func (s *LevelDBStore) Dirty(key types.Key, lock *locks.Lock) error {
	if err := checkLock(lock, key, accessWrite); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.has(key)
	if err != nil {
		return err
	}
	if !ok {
		return types.ErrItemNotFound
	}
	s.dirty[key] = struct{}{}
	return nil
}

func (s *LevelDBStore) Delete(key types.Key, lock *locks.Lock) error {
	if err := checkLock(lock, key, accessWrite); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.has(key)
	if err != nil {
		return err
	}
	if !ok {
		return types.ErrItemNotFound
	}
	s.stageDelete(key)
	return nil
}

func (s *LevelDBStore) Delta(key types.Key, val []byte, lock *locks.Lock) error {
	if err := checkLock(lock, key, accessDelta); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.get(key)
	if errors.Is(err, types.ErrItemNotFound) {
		s.stage(key, val)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading delta %s: %w", key, err)
	}

	merged, res, err := s.merges.merge(key, existing, val)
	if err != nil {
		return err
	}
	if res == types.DeltaCombinedNull {
		s.stageDelete(key)
		return nil
	}
	s.stage(key, merged)
	return nil
}

func (s *LevelDBStore) RegisterMerge(zone uint8, merge interfaces.MergeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.merges[zone] = merge
}

// Commit writes every staged change in one synced batch. On failure the
// changes stay staged and the next Commit retries them.
func (s *LevelDBStore) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending.Len() == 0 {
		s.dirty = make(map[types.Key]struct{})
		return nil
	}

	batch := new(leveldb.Batch)
	s.pending.Ascend(func(p pendingItem) bool {
		if p.deleted {
			batch.Delete(p.key.Encode())
		} else {
			batch.Put(p.key.Encode(), p.val)
		}
		return true
	})
	if err := s.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("committing %d leveldb changes: %w", batch.Len(), err)
	}

	s.pending.Clear(false)
	s.dirty = make(map[types.Key]struct{})
	return nil
}

// Pending returns the number of staged changes not yet committed.
func (s *LevelDBStore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Len()
}

// Close closes the database. Staged changes that were never committed are
// discarded.
func (s *LevelDBStore) Close() error {
	return s.db.Close()
}

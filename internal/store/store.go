package store

import (
	"fmt"

	"github.com/deploymenttheory/go-xattrfs/internal/interfaces"
	"github.com/deploymenttheory/go-xattrfs/internal/locks"
	"github.com/deploymenttheory/go-xattrfs/internal/types"
)

// Backend names accepted by Open.
const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
)

type access int

const (
	accessRead access = iota
	accessWrite
	accessDelta
)

// checkLock verifies that the lock covers the key with the needed access.
func checkLock(lock *locks.Lock, key types.Key, acc access) error {
	if !lock.Covers(key) {
		return fmt.Errorf("key %s outside %v: %w", key, lock, types.ErrLockCoverage)
	}

	var ok bool
	switch acc {
	case accessRead:
		ok = lock.CanRead()
	case accessWrite:
		ok = lock.CanWrite()
	case accessDelta:
		ok = lock.CanDelta()
	}
	if !ok {
		return fmt.Errorf("key %s needs more than %s access: %w", key, lock.Mode, types.ErrLockCoverage)
	}
	return nil
}

// checkRange verifies that an iteration range lies within the lock.
func checkRange(lock *locks.Lock, key, last types.Key) error {
	if err := checkLock(lock, key, accessRead); err != nil {
		return err
	}
	if !lock.Covers(last) {
		return fmt.Errorf("range end %s outside %v: %w", last, lock, types.ErrLockCoverage)
	}
	return nil
}

// mergeRegistry holds the per-zone delta merge functions.
type mergeRegistry map[uint8]interfaces.MergeFunc

func (r mergeRegistry) merge(key types.Key, existing, delta []byte) ([]byte, types.DeltaResult, error) {
	fn, ok := r[key.Zone]
	if !ok {
		return nil, 0, fmt.Errorf("no merge function for zone %d: %w", key.Zone, types.ErrInvalid)
	}

	dst := append([]byte(nil), existing...)
	res, err := fn(dst, delta)
	if err != nil {
		return nil, 0, fmt.Errorf("merging delta into %s: %w", key, err)
	}
	return dst, res, nil
}

// Open creates an item store for the named backend. Dir is only used by the
// leveldb backend.
func Open(backend, dir string) (interfaces.ItemStore, error) {
	switch backend {
	case BackendMemory, "":
		return NewMemoryStore(), nil
	case BackendLevelDB:
		return OpenLevelDBStore(dir)
	default:
		return nil, fmt.Errorf("unknown store backend %q: %w", backend, types.ErrInvalid)
	}
}

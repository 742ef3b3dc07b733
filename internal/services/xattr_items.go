package services

import (
	"fmt"

	"github.com/deploymenttheory/go-xattrfs/internal/locks"
	"github.com/deploymenttheory/go-xattrfs/internal/types"
)

// createItems creates every part of a new attribute starting at the part 0
// key. If a create fails, the parts already created are deleted before
// the error is returned.
func (s *Service) createItems(_ *locks.WriteToken, key types.Key, parts [][]byte, lock *locks.Lock) error {
	for i, p := range parts {
		err := s.store.Create(key.WithPart(uint8(i)), p, lock)
		if err == nil {
			continue
		}

		for j := i - 1; j >= 0; j-- {
			if derr := s.store.Delete(key.WithPart(uint8(j)), lock); derr != nil {
				s.sugar.Warnw("deleting created attribute part failed", "key", key.WithPart(uint8(j)).String(), "error", derr)
			}
		}
		return fmt.Errorf("creating attribute part %d of %s: %w", i, key, err)
	}
	return nil
}

// deleteItems deletes the parts of an existing attribute. Every part is
// dirtied first; if that fails nothing has been deleted.
func (s *Service) deleteItems(_ *locks.WriteToken, key types.Key, nrParts int, lock *locks.Lock) error {
	for i := 0; i < nrParts; i++ {
		if err := s.store.Dirty(key.WithPart(uint8(i)), lock); err != nil {
			return fmt.Errorf("dirtying attribute part %d of %s: %w", i, key, err)
		}
	}

	for i := 0; i < nrParts; i++ {
		if err := s.store.Delete(key.WithPart(uint8(i)), lock); err != nil {
			return fmt.Errorf("deleting attribute part %d of %s: %w", i, key, err)
		}
	}
	return nil
}

// changeItems replaces the oldParts parts of an existing attribute with
// new parts. The old parts are dirtied and any new tail parts created
// before the overlap is overwritten from the highest index down, and the
// surplus old parts are deleted last. On failure only the created tail
// parts are removed and the old parts are left as they were.
func (s *Service) changeItems(_ *locks.WriteToken, key types.Key, parts [][]byte, oldParts int, lock *locks.Lock) (err error) {
	newParts := len(parts)
	lastCreated := -1

	defer func() {
		if err == nil {
			return
		}
		for i := oldParts; i <= lastCreated; i++ {
			if derr := s.store.Delete(key.WithPart(uint8(i)), lock); derr != nil {
				s.sugar.Warnw("deleting created attribute part failed", "key", key.WithPart(uint8(i)).String(), "error", derr)
			}
		}
	}()

	for i := 0; i < oldParts; i++ {
		if err := s.store.Dirty(key.WithPart(uint8(i)), lock); err != nil {
			return fmt.Errorf("dirtying attribute part %d of %s: %w", i, key, err)
		}
	}

	for i := oldParts; i < newParts; i++ {
		if err := s.store.Create(key.WithPart(uint8(i)), parts[i], lock); err != nil {
			return fmt.Errorf("creating attribute part %d of %s: %w", i, key, err)
		}
		lastCreated = i
	}

	for i := min(oldParts, newParts) - 1; i >= 0; i-- {
		if err := s.store.Update(key.WithPart(uint8(i)), parts[i], lock); err != nil {
			return fmt.Errorf("updating attribute part %d of %s: %w", i, key, err)
		}
	}

	for i := newParts; i < oldParts; i++ {
		if derr := s.store.Delete(key.WithPart(uint8(i)), lock); derr != nil {
			s.sugar.Warnw("deleting dirtied attribute part failed", "key", key.WithPart(uint8(i)).String(), "error", derr)
		}
	}
	return nil
}

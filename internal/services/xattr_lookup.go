package services

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/deploymenttheory/go-xattrfs/internal/locks"
	"github.com/deploymenttheory/go-xattrfs/internal/parsers/records"
	"github.com/deploymenttheory/go-xattrfs/internal/stats"
	"github.com/deploymenttheory/go-xattrfs/internal/types"
)

// findByName returns the attribute with the given name, gathering at most
// limit serialized bytes. Candidates sharing the name's hash are compared
// in identifier order until one matches or the hash changes. The chain of
// colliding identifiers is not bounded.
func (s *Service) findByName(_ locks.Held, ino uint64, name []byte, limit int, lock *locks.Lock) (*records.Record, error) {
	if limit < types.XattrHeaderSize+len(name) {
		return nil, fmt.Errorf("lookup limit %d cannot hold name of %d bytes: %w", limit, len(name), types.ErrInvalid)
	}
	return s.nextXattr(ino, name, s.hasher.KeyHash(name), 0, limit, lock)
}

// findNext returns the first attribute at or after the (hash, id)
// position.
func (s *Service) findNext(_ locks.Held, ino uint64, hash uint32, id uint64, limit int, lock *locks.Lock) (*records.Record, error) {
	return s.nextXattr(ino, nil, hash, id, limit, lock)
}

func (s *Service) nextXattr(ino uint64, name []byte, hash uint32, id uint64, limit int, lock *locks.Lock) (*records.Record, error) {
	key := types.XattrKey(ino, hash, id)
	last := types.XattrLastKey(ino)
	part0 := make([]byte, min(limit, types.XattrMaxPartSize))

	for {
		found, n, err := s.store.Next(key, last, part0, lock)
		if errors.Is(err, types.ErrItemNotFound) {
			return nil, types.ErrNotFound
		}
		if err != nil {
			return nil, err
		}

		if found.Part() != 0 {
			return nil, s.corrupt(fmt.Errorf("attribute group %s has no first part: %w", found, types.ErrCorrupt))
		}

		h, err := records.CheckFirstPart(part0[:n], limit)
		if err != nil {
			return nil, s.corrupt(fmt.Errorf("attribute %s: %w", found, err))
		}

		if name != nil {
			if found.NameHash() != hash {
				return nil, types.ErrNotFound
			}

			stored := part0[types.XattrHeaderSize:min(n, types.XattrHeaderSize+h.NameLen)]
			if h.NameLen != len(name) || !bytes.Equal(stored, name) {
				if found.ID() == math.MaxUint64 {
					return nil, types.ErrNotFound
				}
				key = found.WithID(found.ID() + 1)
				continue
			}
		}

		rec, err := records.Unpack(found, part0[:n], s.partFunc(found, lock), limit)
		if err != nil {
			return nil, s.corrupt(err)
		}
		return rec, nil
	}
}

// partFunc reads later parts of the attribute group starting at first.
func (s *Service) partFunc(first types.Key, lock *locks.Lock) records.PartFunc {
	last := first.WithPart(math.MaxUint8)
	return func(part uint8, dst []byte) (uint8, int, error) {
		found, n, err := s.store.Next(first.WithPart(part), last, dst, lock)
		if err != nil {
			return 0, 0, err
		}
		return found.Part(), n, nil
	}
}

// corrupt logs and counts a consistency fault before it is returned.
func (s *Service) corrupt(err error) error {
	if errors.Is(err, types.ErrCorrupt) {
		stats.XattrCorruptCounter.Inc()
		s.sugar.Errorw("inconsistent attribute items", "error", err)
	}
	return err
}

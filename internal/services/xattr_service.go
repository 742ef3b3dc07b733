package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/deploymenttheory/go-xattrfs/internal/interfaces"
	"github.com/deploymenttheory/go-xattrfs/internal/locks"
	"github.com/deploymenttheory/go-xattrfs/internal/parsers/records"
	"github.com/deploymenttheory/go-xattrfs/internal/parsers/tags"
	"github.com/deploymenttheory/go-xattrfs/internal/parsers/totals"
	"github.com/deploymenttheory/go-xattrfs/internal/parsers/worm"
	"github.com/deploymenttheory/go-xattrfs/internal/stats"
	"github.com/deploymenttheory/go-xattrfs/internal/types"
)

// Operation labels
const (
	opGet    = "get"
	opSet    = "set"
	opRemove = "remove"
	opList   = "list"
	opDrop   = "drop"
	opTotals = "totals"
)

type adminKey struct{}

// WithAdmin marks the context as carrying the privilege needed to use
// tagged attribute names.
func WithAdmin(ctx context.Context) context.Context {
	return context.WithValue(ctx, adminKey{}, true)
}

// IsAdmin reports whether the context carries the privilege.
func IsAdmin(ctx context.Context) bool {
	admin, _ := ctx.Value(adminKey{}).(bool)
	return admin
}

// ServiceConfig holds the collaborators of a Service.
type ServiceConfig struct {
	Store         interfaces.ItemStore
	Locks         interfaces.LockManager
	Trans         interfaces.Transactions
	Search        interfaces.SearchIndex
	Hasher        NameHasher
	FormatVersion int
	Now           func() time.Time
	Logger        *zap.Logger
}

// Service stores extended attributes as groups of part items and keeps the
// search index and total buckets consistent with them.
type Service struct {
	store         interfaces.ItemStore
	locks         interfaces.LockManager
	trans         interfaces.Transactions
	search        interfaces.SearchIndex
	hasher        NameHasher
	formatVersion int
	now           func() time.Time
	sugar         *zap.SugaredLogger
}

var _ XattrService = (*Service)(nil)

// NewService creates the attribute service and registers the total merge
// with the store.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil || cfg.Locks == nil || cfg.Trans == nil || cfg.Search == nil {
		return nil, fmt.Errorf("attribute service needs a store, locks, transactions and search index: %w", types.ErrInvalid)
	}
	if cfg.FormatVersion < types.FormatVersionMin || cfg.FormatVersion > types.FormatVersionMax {
		return nil, fmt.Errorf("format version %d outside [%d, %d]: %w",
			cfg.FormatVersion, types.FormatVersionMin, types.FormatVersionMax, types.ErrInvalid)
	}
	if cfg.Hasher == nil {
		cfg.Hasher = NewNameHashingService()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	cfg.Store.RegisterMerge(types.TotalZone, totals.Combine)

	return &Service{
		store:         cfg.Store,
		locks:         cfg.Locks,
		trans:         cfg.Trans,
		search:        cfg.Search,
		hasher:        cfg.Hasher,
		formatVersion: cfg.FormatVersion,
		now:           cfg.Now,
		sugar:         cfg.Logger.Sugar(),
	}, nil
}

func countOp(op string, err *error) {
	stats.XattrOpCounter.WithLabelValues(op, stats.Result(*err)).Inc()
}

// Get copies the value of the named attribute into buf and returns its
// length. An empty buf returns the value length without copying.
func (s *Service) Get(ctx context.Context, in interfaces.Inode, name string, buf []byte) (n int, err error) {
	defer countOp(opGet, &err)

	if !tags.KnownNamespace(name) {
		return 0, fmt.Errorf("get %q: %w", name, types.ErrNotSupported)
	}
	if len(name) > types.XattrMaxNameLen {
		return 0, fmt.Errorf("get %q: %w", name, types.ErrNotFound)
	}

	lock, err := s.locks.LockInode(ctx, in.Ino(), locks.ModeRead)
	if err != nil {
		return 0, err
	}
	defer s.locks.Unlock(lock)

	guard := in.XattrGuard().Read()
	rec, err := s.findByName(guard, in.Ino(), []byte(name), types.XattrHeaderSize+len(name)+len(buf), lock)
	guard.Release()
	if err != nil {
		return 0, err
	}

	valueLen := rec.Header().ValueLen
	if len(buf) == 0 {
		return valueLen, nil
	}
	if len(buf) < valueLen {
		return 0, fmt.Errorf("get %q: value of %d bytes: %w", name, valueLen, types.ErrRange)
	}
	if !rec.Complete() {
		return 0, s.corrupt(fmt.Errorf("get %q: %d of %d bytes: %w",
			name, rec.Copied(), rec.Header().FullBytes(), types.ErrCorrupt))
	}

	return copy(buf, rec.Value()), nil
}

// Set creates, replaces or, with a nil value, deletes the named attribute.
// An empty non-nil value is a valid zero length value.
func (s *Service) Set(ctx context.Context, in interfaces.Inode, name string, value []byte, flags types.XattrSetFlags) (err error) {
	defer countOp(opSet, &err)
	return s.set(ctx, in, name, value, flags)
}

// Remove deletes the named attribute; it must exist.
func (s *Service) Remove(ctx context.Context, in interfaces.Inode, name string) (err error) {
	defer countOp(opRemove, &err)
	return s.set(ctx, in, name, nil, types.XattrReplace)
}

func (s *Service) set(ctx context.Context, in interfaces.Inode, name string, value []byte, flags types.XattrSetFlags) (err error) {
	nameB := []byte(name)
	ino := in.Ino()

	if len(name) > types.XattrMaxNameLen {
		return fmt.Errorf("name of %d bytes: %w", len(name), types.ErrRange)
	}
	if value != nil && len(value) > types.XattrMaxValueLen {
		return fmt.Errorf("value of %d bytes: %w", len(value), types.ErrTooBig)
	}
	if flags&^(types.XattrCreate|types.XattrReplace) != 0 ||
		(flags&types.XattrCreate != 0 && flags&types.XattrReplace != 0) {
		return fmt.Errorf("set flags %#x: %w", int(flags), types.ErrInvalid)
	}
	if !tags.KnownNamespace(name) {
		return fmt.Errorf("set %q: %w", name, types.ErrNotSupported)
	}

	tgs, err := tags.Parse(name, s.formatVersion)
	if err != nil {
		return err
	}
	if tgs.Any() && !IsAdmin(ctx) {
		return fmt.Errorf("set %q: %w", name, types.ErrPermission)
	}

	var totalKey types.Key
	if tgs.Total {
		if totalKey, err = totals.ParseKey(nameB); err != nil {
			return err
		}
	}

	var wormBits uint64
	var expire types.Timespec
	if tgs.Worm {
		if err := worm.ParseName(name); err != nil {
			return err
		}
		if value != nil {
			if expire, err = worm.ParseTimespec(value); err != nil {
				return err
			}
			wormBits = types.WormV1Bit
		}
	}

	lock, err := s.locks.LockInode(ctx, ino, locks.ModeWrite)
	if err != nil {
		return err
	}
	defer s.locks.Unlock(lock)

	guard := in.XattrGuard().Write()
	defer guard.Release()

	if tgs.Worm && !in.IsRegular() {
		return fmt.Errorf("write-once attribute on non-regular inode %d: %w", ino, types.ErrInvalid)
	}

	old, err := s.findByName(guard, ino, nameB, types.XattrHeaderSize+len(name)+types.XattrMaxTotalU64, lock)
	found := err == nil
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return err
	}

	switch {
	case !found && flags&types.XattrReplace != 0:
		return fmt.Errorf("replace %q: %w", name, types.ErrNotFound)
	case found && flags&types.XattrCreate != 0:
		return fmt.Errorf("create %q: %w", name, types.ErrExists)
	case !found && value == nil:
		return nil
	}

	if in.WormDenied(s.now()) {
		return fmt.Errorf("set %q on inode %d: %w", name, ino, types.ErrWormDenied)
	}

	var delta types.TotalValue
	if tgs.Total {
		if value != nil {
			delta.Count++
		}
		if found {
			delta.Count--
			if !old.Complete() {
				return fmt.Errorf("existing total value of %q is %d bytes: %w", name, old.Header().ValueLen, types.ErrInvalid)
			}
			oldTotal, err := totals.ParseU64(old.Value())
			if err != nil {
				return err
			}
			delta.Total -= int64(oldTotal)
		}
		if value != nil {
			newTotal, err := totals.ParseU64(value)
			if err != nil {
				return err
			}
			delta.Total += int64(newTotal)
		}
	}

	var id uint64
	var parts [][]byte
	if found {
		id = old.Key().ID()
	}
	if value != nil {
		if parts, err = records.Pack(nameB, value); err != nil {
			return err
		}
		if !found {
			id = in.AllocXattrID()
		}
	}

	var totalLock *locks.Lock
	if tgs.Total {
		if totalLock, err = s.locks.LockTotal(ctx, totalKey, locks.ModeWriteOnly); err != nil {
			return err
		}
		defer s.locks.Unlock(totalLock)
	}

	if err := s.trans.Hold(ctx, true); err != nil {
		return err
	}
	defer s.trans.Release()

	if err := in.DirtyItem(lock); err != nil {
		return err
	}

	undo := newUndoStack(s.sugar)
	defer func() {
		if err != nil {
			undo.run()
		}
	}()
	undoCtx := context.WithoutCancel(ctx)

	if tgs.Search && !(found && value != nil) {
		hash := s.hasher.SearchHash(nameB)
		if err = s.search.Add(ctx, hash, ino, id); err != nil {
			return err
		}
		undo.push("search", func() error {
			return s.search.Add(undoCtx, hash, ino, id)
		})
	}

	if tgs.Total && !delta.IsZero() {
		if err = s.store.Delta(totalKey, totals.EncodeValue(delta), totalLock); err != nil {
			return fmt.Errorf("applying total delta to %s: %w", totalKey, err)
		}
		stats.TotalDeltaCounter.Inc()
		undo.push("total", func() error {
			return s.store.Delta(totalKey, totals.EncodeValue(delta.Negate()), totalLock)
		})
	}

	switch {
	case found && value != nil:
		err = s.changeItems(guard, old.Key(), parts, old.NrParts(), lock)
	case found:
		err = s.deleteItems(guard, old.Key(), old.NrParts(), lock)
	default:
		err = s.createItems(guard, types.XattrKey(ino, s.hasher.KeyHash(nameB), id), parts, lock)
	}
	if err != nil {
		return err
	}

	if tgs.Worm {
		in.SetWorm(wormBits, expire)
	}
	in.UpdateItem(lock)

	s.sugar.Debugw("attribute set", "ino", ino, "name", name, "id", id,
		"found", found, "delete", value == nil, "total_delta", delta)
	return nil
}

// List copies the NUL terminated names of the inode's attributes into buf,
// starting at pos when it is given, and returns the bytes the names need.
// Hidden attributes are listed instead of the others when showHidden is
// set. An empty buf only sizes the names.
//
// When the next name does not fit, List stops and returns ErrRange if
// eRange is set, otherwise the bytes listed so far. pos is left at the
// attribute that did not fit so the listing can be resumed.
func (s *Service) List(ctx context.Context, in interfaces.Inode, buf []byte, pos *ListPosition, eRange, showHidden bool) (total int, err error) {
	defer countOp(opList, &err)

	var hash uint32
	var id uint64
	if pos != nil {
		hash, id = pos.Hash, pos.ID
	}
	defer func() {
		if pos != nil {
			pos.Hash, pos.ID = hash, id
		}
	}()

	lock, err := s.locks.LockInode(ctx, in.Ino(), locks.ModeRead)
	if err != nil {
		return 0, err
	}
	defer s.locks.Unlock(lock)

	guard := in.XattrGuard().Read()
	defer guard.Release()

	for {
		rec, err := s.findNext(guard, in.Ino(), hash, id, types.XattrHeaderSize+types.XattrMaxNameLen, lock)
		if errors.Is(err, types.ErrNotFound) {
			return total, nil
		}
		if err != nil {
			return 0, err
		}

		name := rec.Name()
		if tags.IsHidden(string(name), s.formatVersion) == showHidden {
			if len(buf) > 0 {
				if total+len(name)+1 > len(buf) {
					if eRange {
						return 0, fmt.Errorf("listing needs more than %d bytes: %w", len(buf), types.ErrRange)
					}
					return total, nil
				}
				copy(buf[total:], name)
				buf[total+len(name)] = 0
			}
			total += len(name) + 1
		}

		key := rec.Key()
		switch {
		case key.ID() < math.MaxUint64:
			hash, id = key.NameHash(), key.ID()+1
		case key.NameHash() < math.MaxUint32:
			hash, id = key.NameHash()+1, 0
		default:
			hash, id = math.MaxUint32, math.MaxUint64
			return total, nil
		}
	}
}

// Listxattr lists the names visible to ordinary callers.
func (s *Service) Listxattr(ctx context.Context, in interfaces.Inode, buf []byte) (int, error) {
	return s.List(ctx, in, buf, nil, true, false)
}

// Stat describes every attribute of the inode in key order.
func (s *Service) Stat(ctx context.Context, in interfaces.Inode, showHidden bool) ([]AttrInfo, error) {
	lock, err := s.locks.LockInode(ctx, in.Ino(), locks.ModeRead)
	if err != nil {
		return nil, err
	}
	defer s.locks.Unlock(lock)

	guard := in.XattrGuard().Read()
	defer guard.Release()

	var infos []AttrInfo
	var hash uint32
	var id uint64
	for {
		rec, err := s.findNext(guard, in.Ino(), hash, id, types.XattrHeaderSize+types.XattrMaxNameLen, lock)
		if errors.Is(err, types.ErrNotFound) {
			return infos, nil
		}
		if err != nil {
			return nil, err
		}

		name := string(rec.Name())
		if tags.IsHidden(name, s.formatVersion) == showHidden {
			tgs, _ := tags.Parse(name, s.formatVersion)
			infos = append(infos, AttrInfo{
				Name:     name,
				ValueLen: rec.Header().ValueLen,
				Parts:    rec.NrParts(),
				Key:      rec.Key(),
				Tags:     tgs,
			})
		}

		key := rec.Key()
		if key.ID() == math.MaxUint64 {
			if key.NameHash() == math.MaxUint32 {
				return infos, nil
			}
			hash, id = key.NameHash()+1, 0
		} else {
			hash, id = key.NameHash(), key.ID()+1
		}
	}
}

// Drop deletes every attribute item of an inode that is being destroyed,
// removing search registrations and total contributions as it goes. No
// other caller can reach the inode, so its guard is not taken. Each item
// is deleted in its own transaction.
func (s *Service) Drop(ctx context.Context, ino uint64) (err error) {
	defer countOp(opDrop, &err)

	lock, err := s.locks.LockInode(ctx, ino, locks.ModeWrite)
	if err != nil {
		return err
	}
	defer s.locks.Unlock(lock)

	token := locks.Unguarded()
	defer token.Release()

	last := types.XattrLastKey(ino)
	key := types.XattrKey(ino, 0, 0)
	buf := make([]byte, types.XattrHeaderSize+types.XattrMaxNameLen+types.XattrMaxTotalU64)
	dropped := 0

	for {
		found, n, err := s.store.Next(key, last, buf, lock)
		if errors.Is(err, types.ErrItemNotFound) {
			break
		}
		if err != nil {
			return err
		}

		if err := s.dropItem(ctx, token, found, buf[:n], lock); err != nil {
			return err
		}
		dropped++
		key = found
	}

	s.sugar.Debugw("attributes dropped", "ino", ino, "items", dropped)
	return nil
}

func (s *Service) dropItem(ctx context.Context, _ *locks.WriteToken, key types.Key, data []byte, lock *locks.Lock) error {
	var tgs types.TagSet
	var name []byte
	var totalKey types.Key
	var total uint64

	if key.Part() == 0 {
		h, err := records.DecodeHeader(data)
		if err != nil {
			return s.corrupt(fmt.Errorf("dropping %s: %w", key, err))
		}
		if len(data) < types.XattrHeaderSize+h.NameLen {
			return s.corrupt(fmt.Errorf("dropping %s: first part has %d bytes: %w", key, len(data), types.ErrCorrupt))
		}
		name = data[types.XattrHeaderSize : types.XattrHeaderSize+h.NameLen]
		tgs, _ = tags.Parse(string(name), s.formatVersion)

		if tgs.Total {
			value := data[types.XattrHeaderSize+h.NameLen:]
			if len(value) != h.ValueLen {
				return s.corrupt(fmt.Errorf("dropping %s: total value has %d of %d bytes: %w",
					key, len(value), h.ValueLen, types.ErrCorrupt))
			}
			var err error
			if totalKey, err = totals.ParseKey(name); err != nil {
				return err
			}
			if total, err = totals.ParseU64(value); err != nil {
				return err
			}
		}
	}

	var totalLock *locks.Lock
	if tgs.Total {
		var err error
		if totalLock, err = s.locks.LockTotal(ctx, totalKey, locks.ModeWriteOnly); err != nil {
			return err
		}
		defer s.locks.Unlock(totalLock)
	}

	if err := s.trans.Hold(ctx, true); err != nil {
		return err
	}
	defer s.trans.Release()

	if err := s.store.Delete(key, lock); err != nil {
		return fmt.Errorf("dropping %s: %w", key, err)
	}

	if tgs.Search {
		if err := s.search.Add(ctx, s.hasher.SearchHash(name), key.Ino(), key.ID()); err != nil {
			return err
		}
	}

	if tgs.Total {
		delta := types.TotalValue{Total: -int64(total), Count: -1}
		if err := s.store.Delta(totalKey, totals.EncodeValue(delta), totalLock); err != nil {
			return fmt.Errorf("dropping total contribution to %s: %w", totalKey, err)
		}
		stats.TotalDeltaCounter.Inc()
	}

	return nil
}

// ReadTotals returns up to limit total buckets starting at the bucket
// named from, in name order. A limit of zero returns every bucket.
func (s *Service) ReadTotals(ctx context.Context, from [3]uint64, limit int) (entries []TotalEntry, err error) {
	defer countOp(opTotals, &err)

	lock, err := s.locks.LockAllTotals(ctx, locks.ModeRead)
	if err != nil {
		return nil, err
	}
	defer s.locks.Unlock(lock)

	key := types.TotalKey(from[0], from[1], from[2])
	last := types.ZoneLastKey(types.TotalZone)
	buf := make([]byte, types.TotalValueSize)

	for limit <= 0 || len(entries) < limit {
		found, n, err := s.store.Next(key, last, buf, lock)
		if errors.Is(err, types.ErrItemNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}

		v, err := totals.DecodeValue(buf[:n])
		if err != nil {
			return nil, fmt.Errorf("total bucket %s: %w", found, err)
		}
		entries = append(entries, TotalEntry{Name: found.TotalName(), Total: v.Total, Count: v.Count})

		next, ok := nextTotalKey(found)
		if !ok {
			break
		}
		key = next
	}

	return entries, nil
}

// nextTotalKey returns the smallest bucket key after k.
func nextTotalKey(k types.Key) (types.Key, bool) {
	name := k.TotalName()
	for i := 2; i >= 0; i-- {
		if name[i] < math.MaxUint64 {
			name[i]++
			for j := i + 1; j < 3; j++ {
				name[j] = 0
			}
			return types.TotalKey(name[0], name[1], name[2]), true
		}
	}
	return types.Key{}, false
}

package locks

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deploymenttheory/go-xattrfs/internal/types"
)

// Mode is the access a cluster lock grants.
type Mode int

const (
	// ModeRead allows reading items. Readers share with readers.
	ModeRead Mode = iota
	// ModeWrite allows reading and modifying items exclusively.
	ModeWrite
	// ModeWriteOnly allows delta writes only. Write-only holders share with
	// each other because their deltas commute.
	ModeWriteOnly
)

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	case ModeWriteOnly:
		return "write_only"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// compatible reports whether two holders of overlapping ranges can coexist.
func compatible(a, b Mode) bool {
	return (a == ModeRead && b == ModeRead) || (a == ModeWriteOnly && b == ModeWriteOnly)
}

// Class names the resource a lock protects.
type Class int

const (
	ClassInode Class = iota
	ClassTotal
	ClassSearch
)

func (c Class) String() string {
	switch c {
	case ClassInode:
		return "inode"
	case ClassTotal:
		return "total"
	case ClassSearch:
		return "search"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Lock is a granted range lock. Item stores check every access against the
// lock's range and mode.
type Lock struct {
	ID    int64
	Class Class
	Mode  Mode
	Start types.Key
	End   types.Key
	Owner uuid.UUID
}

// Covers reports whether the key lies within the lock's range.
func (l *Lock) Covers(key types.Key) bool {
	if l == nil {
		return false
	}
	return l.Start.Compare(key) <= 0 && key.Compare(l.End) <= 0
}

// CanRead reports whether items may be read under the lock.
func (l *Lock) CanRead() bool {
	return l != nil && (l.Mode == ModeRead || l.Mode == ModeWrite)
}

// CanWrite reports whether items may be created, updated or deleted.
func (l *Lock) CanWrite() bool {
	return l != nil && l.Mode == ModeWrite
}

// CanDelta reports whether deltas may be applied.
func (l *Lock) CanDelta() bool {
	return l != nil && (l.Mode == ModeWrite || l.Mode == ModeWriteOnly)
}

func (l *Lock) overlaps(start, end types.Key) bool {
	return l.Start.Compare(end) <= 0 && start.Compare(l.End) <= 0
}

func (l *Lock) String() string {
	return fmt.Sprintf("lock %d %s %s [%s, %s]", l.ID, l.Class, l.Mode, l.Start, l.End)
}

// Manager grants range locks in the order they become compatible. It is the
// node-local stand-in for the cluster lock service: every lock records the
// node that holds it.
type Manager struct {
	node  uuid.UUID
	sugar *zap.SugaredLogger

	mu     sync.Mutex
	held   map[Class][]*Lock
	wake   chan struct{}
	lockID int64
}

// NewManager creates a lock manager for the given node.
func NewManager(node uuid.UUID, logger *zap.Logger) *Manager {
	return &Manager{
		node:  node,
		sugar: logger.Sugar(),
		held:  make(map[Class][]*Lock),
		wake:  make(chan struct{}),
	}
}

// Node returns the identity recorded on granted locks.
func (m *Manager) Node() uuid.UUID {
	return m.node
}

// LockRange blocks until the range can be granted in the mode or the
// context ends.
func (m *Manager) LockRange(ctx context.Context, class Class, start, end types.Key, mode Mode) (*Lock, error) {
	if end.Less(start) {
		return nil, fmt.Errorf("lock range end %s before start %s: %w", end, start, types.ErrInvalid)
	}

	for {
		m.mu.Lock()
		if !m.conflicts(class, start, end, mode) {
			lock := &Lock{
				ID:    atomic.AddInt64(&m.lockID, 1),
				Class: class,
				Mode:  mode,
				Start: start,
				End:   end,
				Owner: m.node,
			}
			m.held[class] = append(m.held[class], lock)
			m.mu.Unlock()
			m.sugar.Debugw("lock granted", "lock", lock.String())
			return lock, nil
		}
		wait := m.wake
		m.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for %s lock: %w", class, ctx.Err())
		}
	}
}

func (m *Manager) conflicts(class Class, start, end types.Key, mode Mode) bool {
	for _, l := range m.held[class] {
		if l.overlaps(start, end) && !compatible(l.Mode, mode) {
			return true
		}
	}
	return false
}

// Unlock releases a lock. Releasing nil is a no-op so callers can unlock
// unconditionally on every exit path.
func (m *Manager) Unlock(lock *Lock) {
	if lock == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	held := m.held[lock.Class]
	for i, l := range held {
		if l == lock {
			m.held[lock.Class] = append(held[:i], held[i+1:]...)
			close(m.wake)
			m.wake = make(chan struct{})
			m.sugar.Debugw("lock released", "lock", lock.String())
			return
		}
	}
	m.sugar.Warnw("unlock of lock that is not held", "lock", lock.String())
}

// LockInode locks every fs zone item of an inode.
func (m *Manager) LockInode(ctx context.Context, ino uint64, mode Mode) (*Lock, error) {
	return m.LockRange(ctx, ClassInode, types.FileFirstKey(ino), types.FileLastKey(ino), mode)
}

// LockTotal locks a single total bucket.
func (m *Manager) LockTotal(ctx context.Context, key types.Key, mode Mode) (*Lock, error) {
	return m.LockRange(ctx, ClassTotal, key, key, mode)
}

// LockAllTotals locks the whole total zone, typically for reading.
func (m *Manager) LockAllTotals(ctx context.Context, mode Mode) (*Lock, error) {
	return m.LockRange(ctx, ClassTotal, types.ZoneFirstKey(types.TotalZone), types.ZoneLastKey(types.TotalZone), mode)
}

// LockSearch locks the search index range of one name hash.
func (m *Manager) LockSearch(ctx context.Context, hash uint64, mode Mode) (*Lock, error) {
	start := types.SearchKey(hash, 0, 0)
	end := types.ZoneLastKey(types.SearchZone)
	end.First = hash
	return m.LockRange(ctx, ClassSearch, start, end, mode)
}

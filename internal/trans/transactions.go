package trans

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/deploymenttheory/go-xattrfs/internal/interfaces"
	"github.com/deploymenttheory/go-xattrfs/internal/stats"
	"github.com/deploymenttheory/go-xattrfs/internal/types"
)

// DefaultMaxHolders is used when no holder limit is configured.
const DefaultMaxHolders = 64

// Committer makes a batch of item changes durable.
type Committer interface {
	Commit() error
}

// Manager brackets item changes into transactions. Callers hold the
// current transaction while they change items; when the last holder
// releases, the batch is committed with no holders inside.
//
// Each holder takes one unit of a weighted semaphore. A commit takes every
// unit so it runs alone.
type Manager struct {
	sem        *semaphore.Weighted
	maxHolders int64
	store      Committer
	sugar      *zap.SugaredLogger

	mu      sync.Mutex
	holders int64
	pending bool
	lastErr error
}

var _ interfaces.Transactions = (*Manager)(nil)

// NewManager creates a transaction manager that commits to the store.
func NewManager(store Committer, maxHolders int, logger *zap.Logger) *Manager {
	if maxHolders <= 0 {
		maxHolders = DefaultMaxHolders
	}
	return &Manager{
		sem:        semaphore.NewWeighted(int64(maxHolders)),
		maxHolders: int64(maxHolders),
		store:      store,
		sugar:      logger.Sugar(),
	}
}

// Hold enters the current transaction. When mayBlock is false and the
// transaction cannot be entered immediately, Hold returns ErrBusy.
func (m *Manager) Hold(ctx context.Context, mayBlock bool) error {
	if mayBlock {
		if err := m.sem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("holding transaction: %w", err)
		}
	} else if !m.sem.TryAcquire(1) {
		stats.TransBusyCounter.Inc()
		return types.ErrBusy
	}

	m.mu.Lock()
	m.holders++
	m.pending = true
	m.mu.Unlock()
	return nil
}

// Release leaves the transaction. The last holder out commits it.
func (m *Manager) Release() {
	m.mu.Lock()
	m.holders--
	last := m.holders == 0
	m.mu.Unlock()

	m.sem.Release(1)

	if last {
		m.tryCommit()
	}
}

// tryCommit commits pending changes if no holder has entered since the
// last release. A holder that got in first will commit on its own release.
func (m *Manager) tryCommit() {
	if !m.sem.TryAcquire(m.maxHolders) {
		return
	}
	defer m.sem.Release(m.maxHolders)

	m.commitLocked()
}

func (m *Manager) commitLocked() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.pending {
		return
	}

	err := m.store.Commit()
	stats.TransCommitCounter.WithLabelValues(stats.Result(err)).Inc()
	if err != nil {
		m.lastErr = err
		m.sugar.Errorw("transaction commit failed", "error", err)
		return
	}
	m.pending = false
	m.lastErr = nil
	m.sugar.Debugw("transaction committed")
}

// Sync waits for all holders to leave, commits anything pending and
// returns the result of the most recent commit.
func (m *Manager) Sync(ctx context.Context) error {
	if err := m.sem.Acquire(ctx, m.maxHolders); err != nil {
		return fmt.Errorf("waiting for transaction holders: %w", err)
	}
	defer m.sem.Release(m.maxHolders)

	m.commitLocked()

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Holders returns the number of callers inside the transaction.
func (m *Manager) Holders() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int(m.holders)
}

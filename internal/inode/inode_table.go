package inode

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/deploymenttheory/go-xattrfs/internal/interfaces"
	"github.com/deploymenttheory/go-xattrfs/internal/locks"
	"github.com/deploymenttheory/go-xattrfs/internal/types"
)

// ErrNoInode means no inode item exists for the number.
var ErrNoInode = errors.New("no such inode")

// ErrInodeExists means an inode item already exists for the number.
var ErrInodeExists = errors.New("inode already exists")

// Table loads and caches inodes. Every inode is read from and written to
// its item in the fs zone.
type Table struct {
	store interfaces.ItemStore
	locks interfaces.LockManager
	trans interfaces.Transactions
	now   func() time.Time
	sugar *zap.SugaredLogger

	mu     sync.Mutex
	inodes map[uint64]*Inode
}

// NewTable creates an inode table. A nil clock uses time.Now.
func NewTable(store interfaces.ItemStore, lm interfaces.LockManager, tr interfaces.Transactions,
	now func() time.Time, logger *zap.Logger) *Table {
	if now == nil {
		now = time.Now
	}
	return &Table{
		store:  store,
		locks:  lm,
		trans:  tr,
		now:    now,
		sugar:  logger.Sugar(),
		inodes: make(map[uint64]*Inode),
	}
}

func (t *Table) newInode(ino uint64) *Inode {
	return &Inode{ino: ino, store: t.store, now: t.now, sugar: t.sugar}
}

// Create writes a new inode item with the given mode. A mode without a
// file type bit is a regular file.
func (t *Table) Create(ctx context.Context, ino uint64, mode uint32) (*Inode, error) {
	if mode&unix.S_IFMT == 0 {
		mode |= unix.S_IFREG
	}

	lock, err := t.locks.LockInode(ctx, ino, locks.ModeWrite)
	if err != nil {
		return nil, err
	}
	defer t.locks.Unlock(lock)

	if err := t.trans.Hold(ctx, true); err != nil {
		return nil, err
	}
	defer t.trans.Release()

	in := t.newInode(ino)
	in.mode = mode
	in.nextXattrID = firstXattrID
	in.ctime = types.TimespecFrom(t.now())

	err = t.store.Create(types.InodeKey(ino), in.encodeLocked(), lock)
	if errors.Is(err, types.ErrItemExists) {
		return nil, fmt.Errorf("inode %d: %w", ino, ErrInodeExists)
	}
	if err != nil {
		return nil, fmt.Errorf("creating inode %d: %w", ino, err)
	}

	t.mu.Lock()
	t.inodes[ino] = in
	t.mu.Unlock()

	t.sugar.Debugw("inode created", "ino", ino, "mode", fmt.Sprintf("%#o", mode))
	return in, nil
}

// Get returns the cached inode or loads it from its item.
func (t *Table) Get(ctx context.Context, ino uint64) (*Inode, error) {
	t.mu.Lock()
	in, ok := t.inodes[ino]
	t.mu.Unlock()
	if ok {
		return in, nil
	}

	lock, err := t.locks.LockInode(ctx, ino, locks.ModeRead)
	if err != nil {
		return nil, err
	}
	defer t.locks.Unlock(lock)

	buf := make([]byte, itemSize+1)
	n, err := t.store.Lookup(types.InodeKey(ino), buf, lock)
	if errors.Is(err, types.ErrItemNotFound) {
		return nil, fmt.Errorf("inode %d: %w", ino, ErrNoInode)
	}
	if err != nil {
		return nil, fmt.Errorf("reading inode %d: %w", ino, err)
	}

	in = t.newInode(ino)
	if err := in.decodeLocked(buf[:n]); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if cached, ok := t.inodes[ino]; ok {
		return cached, nil
	}
	t.inodes[ino] = in
	return in, nil
}

// Delete removes an inode item. Its attributes must already be dropped.
func (t *Table) Delete(ctx context.Context, ino uint64) error {
	lock, err := t.locks.LockInode(ctx, ino, locks.ModeWrite)
	if err != nil {
		return err
	}
	defer t.locks.Unlock(lock)

	if err := t.trans.Hold(ctx, true); err != nil {
		return err
	}
	defer t.trans.Release()

	err = t.store.Delete(types.InodeKey(ino), lock)
	if errors.Is(err, types.ErrItemNotFound) {
		return fmt.Errorf("inode %d: %w", ino, ErrNoInode)
	}
	if err != nil {
		return fmt.Errorf("deleting inode %d: %w", ino, err)
	}

	t.mu.Lock()
	delete(t.inodes, ino)
	t.mu.Unlock()

	t.sugar.Debugw("inode deleted", "ino", ino)
	return nil
}

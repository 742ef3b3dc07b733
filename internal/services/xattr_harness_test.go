package services

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/deploymenttheory/go-xattrfs/internal/inode"
	"github.com/deploymenttheory/go-xattrfs/internal/locks"
	"github.com/deploymenttheory/go-xattrfs/internal/parsers/totals"
	"github.com/deploymenttheory/go-xattrfs/internal/search"
	"github.com/deploymenttheory/go-xattrfs/internal/store"
	"github.com/deploymenttheory/go-xattrfs/internal/store/storetest"
	"github.com/deploymenttheory/go-xattrfs/internal/trans"
	"github.com/deploymenttheory/go-xattrfs/internal/types"
)

type harness struct {
	t      *testing.T
	ctx    context.Context
	mem    *store.MemoryStore
	faults *storetest.FaultStore
	locks  *locks.Manager
	trans  *trans.Manager
	search *search.Index
	inodes *inode.Table
	svc    *Service
	clock  time.Time
}

type harnessOption func(*ServiceConfig)

func withFormatVersion(v int) harnessOption {
	return func(c *ServiceConfig) { c.FormatVersion = v }
}

func withHasher(h NameHasher) harnessOption {
	return func(c *ServiceConfig) { c.Hasher = h }
}

// collidingHasher puts every name under the same key hash.
type collidingHasher struct {
	*NameHashingService
}

func (collidingHasher) KeyHash([]byte) uint32 { return 0x5eed }

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	logger := zaptest.NewLogger(t, zaptest.WrapOptions(zap.WithFatalHook(zapcore.WriteThenPanic)))
	h := &harness{
		t:     t,
		ctx:   WithAdmin(context.Background()),
		mem:   store.NewMemoryStore(),
		clock: time.Unix(1700000000, 0),
	}
	h.faults = storetest.NewFaultStore(h.mem)
	h.locks = locks.NewManager(uuid.New(), logger)
	h.trans = trans.NewManager(h.faults, 8, logger)
	h.search = search.NewIndex(h.faults, h.locks, logger)
	h.inodes = inode.NewTable(h.faults, h.locks, h.trans, h.now, logger)

	cfg := ServiceConfig{
		Store:         h.faults,
		Locks:         h.locks,
		Trans:         h.trans,
		Search:        h.search,
		FormatVersion: types.FormatVersionMax,
		Now:           h.now,
		Logger:        logger,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	svc, err := NewService(cfg)
	require.NoError(t, err)
	h.svc = svc
	return h
}

func (h *harness) now() time.Time { return h.clock }

func (h *harness) inode(ino uint64) *inode.Inode {
	h.t.Helper()
	in, err := h.inodes.Create(h.ctx, ino, 0o644)
	require.NoError(h.t, err)
	return in
}

func (h *harness) set(in *inode.Inode, name, value string) {
	h.t.Helper()
	require.NoError(h.t, h.svc.Set(h.ctx, in, name, []byte(value), 0), "set %s", name)
}

func (h *harness) get(in *inode.Inode, name string) (string, error) {
	size, err := h.svc.Get(h.ctx, in, name, nil)
	if err != nil {
		return "", err
	}
	buf := make([]byte, max(size, 1))
	n, err := h.svc.Get(h.ctx, in, name, buf)
	if err != nil {
		return "", err
	}
	return string(buf[:n]), nil
}

type storedItem struct {
	key types.Key
	val []byte
}

// items returns every attribute item of the inode in key order.
func (h *harness) items(ino uint64) []storedItem {
	h.t.Helper()
	lock, err := h.locks.LockInode(h.ctx, ino, locks.ModeRead)
	require.NoError(h.t, err)
	defer h.locks.Unlock(lock)

	var out []storedItem
	key := types.XattrKey(ino, 0, 0)
	buf := make([]byte, types.XattrMaxPartSize)
	for {
		found, n, err := h.mem.Next(key, types.XattrLastKey(ino), buf, lock)
		if errors.Is(err, types.ErrItemNotFound) {
			return out
		}
		require.NoError(h.t, err)
		out = append(out, storedItem{key: found, val: append([]byte(nil), buf[:n]...)})

		next := found
		next.Fourth++
		if found.Part() == 255 {
			next = found.WithID(found.ID() + 1)
		}
		key = next
	}
}

// partsOf returns the part indices stored for an attribute group.
func partsOf(items []storedItem, id uint64) []uint8 {
	var parts []uint8
	for _, it := range items {
		if it.key.ID() == id {
			parts = append(parts, it.key.Part())
		}
	}
	return parts
}

// bucket reads a total bucket directly from the store.
func (h *harness) bucket(a, b, c uint64) (types.TotalValue, bool) {
	h.t.Helper()
	key := types.TotalKey(a, b, c)
	lock, err := h.locks.LockTotal(h.ctx, key, locks.ModeRead)
	require.NoError(h.t, err)
	defer h.locks.Unlock(lock)

	buf := make([]byte, types.TotalValueSize)
	n, err := h.mem.Lookup(key, buf, lock)
	if errors.Is(err, types.ErrItemNotFound) {
		return types.TotalValue{}, false
	}
	require.NoError(h.t, err)
	v, err := totals.DecodeValue(buf[:n])
	require.NoError(h.t, err)
	return v, true
}

func (h *harness) searchHits(name string) []search.Entry {
	h.t.Helper()
	entries, err := h.search.Search(h.ctx, search.NameHash([]byte(name)))
	require.NoError(h.t, err)
	return entries
}

// listNames splits a listing buffer into sorted names.
func listNames(buf []byte) []string {
	var names []string
	for _, n := range bytes.Split(buf, []byte{0}) {
		if len(n) > 0 {
			names = append(names, string(n))
		}
	}
	sort.Strings(names)
	return names
}

// valueOfParts returns a value that makes the named attribute occupy
// exactly nr parts.
func valueOfParts(name string, nr int, fill byte) []byte {
	n := nr*types.XattrMaxPartSize - types.XattrHeaderSize - len(name) - 10
	return bytes.Repeat([]byte{fill}, n)
}

func sortedStrings(s ...string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}

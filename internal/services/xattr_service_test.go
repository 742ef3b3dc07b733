package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-xattrfs/internal/locks"
	"github.com/deploymenttheory/go-xattrfs/internal/parsers/records"
	"github.com/deploymenttheory/go-xattrfs/internal/search"
	"github.com/deploymenttheory/go-xattrfs/internal/store/storetest"
	"github.com/deploymenttheory/go-xattrfs/internal/types"
)

func TestSetGetRoundTrip(t *testing.T) {
	h := newHarness(t)
	in := h.inode(1)

	sizes := []int{0, 1, 100, 512, 1000, 4096, types.XattrMaxValueLen}
	for _, size := range sizes {
		t.Run(fmt.Sprintf("value_%d", size), func(t *testing.T) {
			name := fmt.Sprintf("user.size%d", size)
			value := make([]byte, size)
			for i := range value {
				value[i] = byte(i % 251)
			}

			require.NoError(t, h.svc.Set(h.ctx, in, name, value, 0))

			n, err := h.svc.Get(h.ctx, in, name, nil)
			require.NoError(t, err)
			assert.Equal(t, size, n, "empty buffer returns the value length")

			buf := make([]byte, size+10)
			n, err = h.svc.Get(h.ctx, in, name, buf)
			require.NoError(t, err)
			assert.Equal(t, value, buf[:n])

			if size > 1 {
				_, err = h.svc.Get(h.ctx, in, name, make([]byte, size-1))
				assert.ErrorIs(t, err, types.ErrRange)
			}
		})
	}
}

func TestGetErrors(t *testing.T) {
	h := newHarness(t)
	in := h.inode(1)

	_, err := h.svc.Get(h.ctx, in, "other.name", nil)
	assert.ErrorIs(t, err, types.ErrNotSupported)

	_, err = h.svc.Get(h.ctx, in, "user."+strings.Repeat("n", types.XattrMaxNameLen), nil)
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = h.svc.Get(h.ctx, in, "user.missing", nil)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestSetRejectsArguments(t *testing.T) {
	h := newHarness(t)
	in := h.inode(1)
	user := context.Background()

	tests := []struct {
		name     string
		ctx      context.Context
		attr     string
		value    []byte
		flags    types.XattrSetFlags
		expected error
	}{
		{"name too long", h.ctx, "user." + strings.Repeat("n", types.XattrMaxNameLen), []byte("v"), 0, types.ErrRange},
		{"value too long", h.ctx, "user.big", make([]byte, types.XattrMaxValueLen+1), 0, types.ErrTooBig},
		{"create and replace", h.ctx, "user.a", []byte("v"), types.XattrCreate | types.XattrReplace, types.ErrInvalid},
		{"unknown flag", h.ctx, "user.a", []byte("v"), 4, types.ErrInvalid},
		{"unknown namespace", h.ctx, "other.a", []byte("v"), 0, types.ErrNotSupported},
		{"reserved without tag", h.ctx, "scoutfs.nothing.a", []byte("v"), 0, types.ErrInvalid},
		{"repeated tag", h.ctx, "scoutfs.hide.hide.a", []byte("v"), 0, types.ErrInvalid},
		{"tag without privilege", user, "scoutfs.hide.a", []byte("v"), 0, types.ErrPermission},
		{"total without numbers", h.ctx, "scoutfs.totl.a.b.c", []byte("1"), 0, types.ErrInvalid},
		{"total with bad value", h.ctx, "scoutfs.totl.1.2.3", []byte("+1"), 0, types.ErrInvalid},
		{"write-once with bad name", h.ctx, "scoutfs.hide.worm.expires", []byte("1.0"), 0, types.ErrInvalid},
		{"write-once with bad value", h.ctx, "scoutfs.hide.worm.v1_expiration", []byte("1.2.3"), 0, types.ErrInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.svc.Set(tt.ctx, in, tt.attr, tt.value, tt.flags)
			assert.ErrorIs(t, err, tt.expected)
		})
	}

	assert.Empty(t, h.items(1))
	assert.Equal(t, uint64(0), in.Version())
}

func TestSetExistenceFlags(t *testing.T) {
	h := newHarness(t)
	in := h.inode(1)

	assert.ErrorIs(t, h.svc.Set(h.ctx, in, "user.a", []byte("v"), types.XattrReplace), types.ErrNotFound)
	require.NoError(t, h.svc.Set(h.ctx, in, "user.a", []byte("v"), types.XattrCreate))
	assert.ErrorIs(t, h.svc.Set(h.ctx, in, "user.a", []byte("w"), types.XattrCreate), types.ErrExists)
	require.NoError(t, h.svc.Set(h.ctx, in, "user.a", []byte("w"), types.XattrReplace))

	got, err := h.get(in, "user.a")
	require.NoError(t, err)
	assert.Equal(t, "w", got)

	// deleting a missing attribute without flags succeeds and changes nothing
	version := in.Version()
	require.NoError(t, h.svc.Set(h.ctx, in, "user.missing", nil, 0))
	assert.Equal(t, version, in.Version())

	assert.ErrorIs(t, h.svc.Remove(h.ctx, in, "user.missing"), types.ErrNotFound)
	require.NoError(t, h.svc.Remove(h.ctx, in, "user.a"))
	_, err = h.get(in, "user.a")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestEmptyValueIsNotDelete(t *testing.T) {
	h := newHarness(t)
	in := h.inode(1)

	require.NoError(t, h.svc.Set(h.ctx, in, "user.empty", []byte{}, 0))
	got, err := h.get(in, "user.empty")
	require.NoError(t, err)
	assert.Equal(t, "", got)
	assert.Len(t, h.items(1), 1)
}

func TestSetUpdatesInode(t *testing.T) {
	h := newHarness(t)
	in := h.inode(1)

	h.clock = h.clock.Add(time.Minute)
	h.set(in, "user.a", "1")
	assert.Equal(t, uint64(1), in.Version())
	assert.Equal(t, types.TimespecFrom(h.clock), in.Ctime())

	h.set(in, "user.a", "2")
	require.NoError(t, h.svc.Remove(h.ctx, in, "user.a"))
	assert.Equal(t, uint64(3), in.Version())
}

func TestCreateThenDeleteLeavesNoItems(t *testing.T) {
	h := newHarness(t)
	in := h.inode(1)
	name := "user.multi"

	require.NoError(t, h.svc.Set(h.ctx, in, name, valueOfParts(name, 3, 'x'), 0))
	items := h.items(1)
	require.Len(t, items, 3)
	assert.Equal(t, []uint8{0, 1, 2}, partsOf(items, items[0].key.ID()))

	require.NoError(t, h.svc.Remove(h.ctx, in, name))
	assert.Empty(t, h.items(1))
}

func TestFailedCreateLeavesNoItems(t *testing.T) {
	for failPart := uint8(0); failPart < 4; failPart++ {
		t.Run(fmt.Sprintf("fail_part_%d", failPart), func(t *testing.T) {
			h := newHarness(t)
			in := h.inode(1)
			name := "user.multi"

			h.faults.Inject(storetest.Fault{Op: storetest.OpCreate, Match: storetest.PartOf(failPart)})
			err := h.svc.Set(h.ctx, in, name, valueOfParts(name, 4, 'x'), 0)
			require.ErrorIs(t, err, storetest.ErrInjected)

			assert.Empty(t, h.items(1))
			assert.Len(t, h.faults.Calls(storetest.OpDelete), int(failPart), "only created parts are deleted")
			assert.Equal(t, uint64(0), in.Version())

			h.faults.Reset()
			require.NoError(t, h.svc.Set(h.ctx, in, name, []byte("later"), 0))
		})
	}
}

func TestChangeParts(t *testing.T) {
	for p := 1; p <= 4; p++ {
		for q := 1; q <= 4; q++ {
			t.Run(fmt.Sprintf("%d_to_%d", p, q), func(t *testing.T) {
				h := newHarness(t)
				in := h.inode(1)
				name := "user.change"

				require.NoError(t, h.svc.Set(h.ctx, in, name, valueOfParts(name, p, 'o'), 0))
				id := h.items(1)[0].key.ID()

				newValue := valueOfParts(name, q, 'n')
				require.NoError(t, h.svc.Set(h.ctx, in, name, newValue, 0))

				items := h.items(1)
				expectedParts := make([]uint8, q)
				for i := range expectedParts {
					expectedParts[i] = uint8(i)
				}
				assert.Equal(t, expectedParts, partsOf(items, id), "identifier is kept and parts are contiguous")
				assert.Len(t, items, q)

				got, err := h.get(in, name)
				require.NoError(t, err)
				assert.Equal(t, string(newValue), got)
			})
		}
	}
}

func TestChangeUpdateFailureUnwinds(t *testing.T) {
	tests := []struct {
		name     string
		oldParts int
		newParts int
		failPart uint8
	}{
		{"grow fails at highest overlap", 2, 4, 1},
		{"grow fails at header", 2, 4, 0},
		{"shrink fails at highest overlap", 4, 2, 1},
		{"same size fails at header", 3, 3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			in := h.inode(1)
			name := "user.change"
			oldValue := valueOfParts(name, tt.oldParts, 'o')

			require.NoError(t, h.svc.Set(h.ctx, in, name, oldValue, 0))
			before := h.items(1)

			h.faults.Inject(storetest.Fault{Op: storetest.OpUpdate, Match: storetest.PartOf(tt.failPart)})
			err := h.svc.Set(h.ctx, in, name, valueOfParts(name, tt.newParts, 'n'), 0)
			require.ErrorIs(t, err, storetest.ErrInjected)

			after := h.items(1)
			require.Len(t, after, tt.oldParts, "created tail parts are removed and old parts remain")
			for i := 0; i <= int(tt.failPart); i++ {
				assert.Equal(t, before[i], after[i], "part %d at or below the failure is unchanged", i)
			}

			if tt.failPart == uint8(min(tt.oldParts, tt.newParts)-1) {
				got, err := h.get(in, name)
				require.NoError(t, err)
				assert.Equal(t, string(oldValue), got, "failing the first overwrite leaves the old value")
			}
		})
	}
}

func TestChangeDirtyAndCreateFailures(t *testing.T) {
	h := newHarness(t)
	in := h.inode(1)
	name := "user.change"
	oldValue := valueOfParts(name, 2, 'o')

	require.NoError(t, h.svc.Set(h.ctx, in, name, oldValue, 0))
	before := h.items(1)

	// dirtying an old part fails before anything changes
	h.faults.Inject(storetest.Fault{Op: storetest.OpDirty, Match: storetest.PartOf(1)})
	err := h.svc.Set(h.ctx, in, name, valueOfParts(name, 4, 'n'), 0)
	require.ErrorIs(t, err, storetest.ErrInjected)
	assert.Equal(t, before, h.items(1))
	h.faults.Reset()

	// creating the last tail part fails after the first was created
	h.faults.Inject(storetest.Fault{Op: storetest.OpCreate, Match: storetest.PartOf(3)})
	err = h.svc.Set(h.ctx, in, name, valueOfParts(name, 4, 'n'), 0)
	require.ErrorIs(t, err, storetest.ErrInjected)
	assert.Equal(t, before, h.items(1))
	assert.Empty(t, h.faults.Calls(storetest.OpUpdate), "no overlap is overwritten")
	h.faults.Reset()

	got, err := h.get(in, name)
	require.NoError(t, err)
	assert.Equal(t, string(oldValue), got)
}

func TestDeleteDirtyFailureDeletesNothing(t *testing.T) {
	h := newHarness(t)
	in := h.inode(1)
	name := "user.delete"

	require.NoError(t, h.svc.Set(h.ctx, in, name, valueOfParts(name, 3, 'd'), 0))
	before := h.items(1)

	h.faults.Inject(storetest.Fault{Op: storetest.OpDirty, Match: storetest.PartOf(2)})
	err := h.svc.Remove(h.ctx, in, name)
	require.ErrorIs(t, err, storetest.ErrInjected)
	assert.Equal(t, before, h.items(1))
	assert.Empty(t, h.faults.Calls(storetest.OpDelete))
}

func TestInodeDirtyFailureChangesNothing(t *testing.T) {
	h := newHarness(t)
	in := h.inode(1)

	h.faults.Inject(storetest.Fault{Op: storetest.OpDirty, Match: storetest.Exactly(types.InodeKey(1))})
	err := h.svc.Set(h.ctx, in, "scoutfs.srch.totl.1.2.3", []byte("4"), 0)
	require.ErrorIs(t, err, storetest.ErrInjected)

	assert.Empty(t, h.items(1))
	assert.Empty(t, h.searchHits("scoutfs.srch.totl.1.2.3"))
	_, ok := h.bucket(1, 2, 3)
	assert.False(t, ok)
}

func TestTotalsEndToEnd(t *testing.T) {
	h := newHarness(t)
	in := h.inode(1)
	name := "scoutfs.totl.10.20.30"

	h.set(in, name, "5")
	v, ok := h.bucket(10, 20, 30)
	require.True(t, ok)
	assert.Equal(t, types.TotalValue{Total: 5, Count: 1}, v)

	h.set(in, name, "8")
	v, ok = h.bucket(10, 20, 30)
	require.True(t, ok)
	assert.Equal(t, types.TotalValue{Total: 8, Count: 1}, v)

	require.NoError(t, h.svc.Remove(h.ctx, in, name))
	_, ok = h.bucket(10, 20, 30)
	assert.False(t, ok, "a bucket that sums to zero is removed")
}

func TestTotalsAcrossInodes(t *testing.T) {
	h := newHarness(t)
	a := h.inode(1)
	b := h.inode(2)

	h.set(a, "scoutfs.totl.1.2.3", "0x10")
	h.set(b, "scoutfs.totl.1.2.3", "4")
	h.set(b, "scoutfs.totl.other.1.2.3", "1")
	h.set(b, "scoutfs.totl.9.9.9", "7")

	v, ok := h.bucket(1, 2, 3)
	require.True(t, ok)
	assert.Equal(t, types.TotalValue{Total: 21, Count: 3}, v)

	// the same value again changes no totals
	h.set(a, "scoutfs.totl.1.2.3", "16")
	v, _ = h.bucket(1, 2, 3)
	assert.Equal(t, types.TotalValue{Total: 21, Count: 3}, v)

	entries, err := h.svc.ReadTotals(h.ctx, [3]uint64{}, 0)
	require.NoError(t, err)
	assert.Equal(t, []TotalEntry{
		{Name: [3]uint64{1, 2, 3}, Total: 21, Count: 3},
		{Name: [3]uint64{9, 9, 9}, Total: 7, Count: 1},
	}, entries)

	entries, err = h.svc.ReadTotals(h.ctx, [3]uint64{1, 2, 4}, 1)
	require.NoError(t, err)
	assert.Equal(t, []TotalEntry{{Name: [3]uint64{9, 9, 9}, Total: 7, Count: 1}}, entries)
}

func TestTotalUndoneWhenItemsFail(t *testing.T) {
	h := newHarness(t)
	in := h.inode(1)
	name := "scoutfs.srch.totl.1.2.3"

	h.faults.Inject(storetest.Fault{Op: storetest.OpCreate, Match: storetest.PartOf(0)})
	err := h.svc.Set(h.ctx, in, name, []byte("6"), 0)
	require.ErrorIs(t, err, storetest.ErrInjected)

	_, ok := h.bucket(1, 2, 3)
	assert.False(t, ok, "total delta was reversed")
	assert.Empty(t, h.searchHits(name), "search registration was reversed")
	assert.Len(t, h.faults.Calls(storetest.OpDelta), 4, "search and total applied then reversed")

	h.faults.Reset()
	h.set(in, name, "6")
	v, ok := h.bucket(1, 2, 3)
	require.True(t, ok)
	assert.Equal(t, types.TotalValue{Total: 6, Count: 1}, v)

	// a failed replace restores the previous contribution
	h.faults.Inject(storetest.Fault{Op: storetest.OpUpdate, Match: storetest.PartOf(0)})
	err = h.svc.Set(h.ctx, in, name, []byte("9"), 0)
	require.ErrorIs(t, err, storetest.ErrInjected)
	v, _ = h.bucket(1, 2, 3)
	assert.Equal(t, types.TotalValue{Total: 6, Count: 1}, v)
}

func TestFailedUndoIsFatal(t *testing.T) {
	h := newHarness(t)
	in := h.inode(1)

	h.faults.Inject(storetest.Fault{Op: storetest.OpCreate, Match: storetest.PartOf(0)})
	h.faults.Inject(storetest.Fault{Op: storetest.OpDelta, Match: storetest.InZone(types.TotalZone), After: 1})

	assert.Panics(t, func() {
		_ = h.svc.Set(h.ctx, in, "scoutfs.totl.1.2.3", []byte("6"), 0)
	})
}

func TestSearchRegistration(t *testing.T) {
	h := newHarness(t)
	in := h.inode(1)
	name := "scoutfs.srch.color"

	h.set(in, name, "red")
	hits := h.searchHits(name)
	require.Len(t, hits, 1)
	assert.Equal(t, uint64(1), hits[0].Ino)
	id := hits[0].ID
	assert.Equal(t, id, h.items(1)[0].key.ID())

	// replacing the value keeps the registration
	h.set(in, name, "blue")
	assert.Equal(t, []search.Entry{{Ino: 1, ID: id}}, h.searchHits(name))

	require.NoError(t, h.svc.Remove(h.ctx, in, name))
	assert.Empty(t, h.searchHits(name))
}

func TestListHidden(t *testing.T) {
	h := newHarness(t)
	in := h.inode(1)

	h.set(in, "user.a", "1")
	h.set(in, "user.b", "2")
	h.set(in, "scoutfs.hide.secret", "3")
	h.set(in, "scoutfs.srch.visible", "4")

	size, err := h.svc.Listxattr(h.ctx, in, nil)
	require.NoError(t, err)

	buf := make([]byte, size)
	n, err := h.svc.Listxattr(h.ctx, in, buf)
	require.NoError(t, err)
	assert.Equal(t, size, n)
	assert.Equal(t, sortedStrings("user.a", "user.b", "scoutfs.srch.visible"), listNames(buf[:n]))

	buf = make([]byte, 256)
	n, err = h.svc.List(h.ctx, in, buf, nil, true, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"scoutfs.hide.secret"}, listNames(buf[:n]))

	_, err = h.svc.Listxattr(h.ctx, in, make([]byte, 3))
	assert.ErrorIs(t, err, types.ErrRange)
}

func TestListResume(t *testing.T) {
	h := newHarness(t)
	in := h.inode(1)

	var want []string
	for i := 0; i < 40; i++ {
		name := fmt.Sprintf("user.attr%02d", i)
		h.set(in, name, "v")
		want = append(want, name)
	}

	full := make([]byte, 4096)
	n, err := h.svc.Listxattr(h.ctx, in, full)
	require.NoError(t, err)
	fullNames := full[:n]

	// each name is 12 bytes with its terminator, so a 30 byte buffer takes two
	var pos ListPosition
	var paged []byte
	for rounds := 0; rounds < 100; rounds++ {
		buf := make([]byte, 30)
		n, err := h.svc.List(h.ctx, in, buf, &pos, false, false)
		require.NoError(t, err)
		if n == 0 {
			break
		}
		assert.LessOrEqual(t, n, 24)
		paged = append(paged, buf[:n]...)
	}

	assert.Equal(t, fullNames, paged, "paged listing matches a single listing in order")
	assert.Equal(t, sortedStrings(want...), listNames(paged))
}

func TestListRangeKeepsCursor(t *testing.T) {
	h := newHarness(t)
	in := h.inode(1)
	h.set(in, "user.first", "1")
	h.set(in, "user.second", "2")

	var pos ListPosition
	_, err := h.svc.List(h.ctx, in, make([]byte, 2), &pos, true, false)
	require.ErrorIs(t, err, types.ErrRange)
	assert.Equal(t, ListPosition{}, pos, "cursor stays at the entry that did not fit")

	buf := make([]byte, 64)
	n, err := h.svc.List(h.ctx, in, buf, &pos, true, false)
	require.NoError(t, err)
	assert.Equal(t, sortedStrings("user.first", "user.second"), listNames(buf[:n]))
	assert.NotEqual(t, ListPosition{}, pos)

	n, err = h.svc.List(h.ctx, in, buf, &pos, true, false)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "the cursor is past every attribute")
}

func TestHashCollisions(t *testing.T) {
	h := newHarness(t, withHasher(collidingHasher{NewNameHashingService()}))
	in := h.inode(1)

	h.set(in, "user.a", "A")
	h.set(in, "user.b", "B")
	h.set(in, "user.c", "C")

	items := h.items(1)
	require.Len(t, items, 3)
	for i, it := range items {
		assert.Equal(t, uint32(0x5eed), it.key.NameHash())
		assert.Equal(t, uint64(i+1), it.key.ID())
	}

	for _, name := range []string{"user.a", "user.b", "user.c"} {
		got, err := h.get(in, name)
		require.NoError(t, err)
		assert.Equal(t, strings.ToUpper(name[len(name)-1:]), got)
	}

	require.NoError(t, h.svc.Remove(h.ctx, in, "user.b"))
	h.set(in, "user.d", "D")
	h.set(in, "user.c", "CC")

	got, err := h.get(in, "user.c")
	require.NoError(t, err)
	assert.Equal(t, "CC", got)
	got, err = h.get(in, "user.d")
	require.NoError(t, err)
	assert.Equal(t, "D", got)
	_, err = h.get(in, "user.b")
	assert.ErrorIs(t, err, types.ErrNotFound)

	buf := make([]byte, 64)
	n, err := h.svc.Listxattr(h.ctx, in, buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"user.a", "user.c", "user.d"}, listNames(buf[:n]))
}

func TestWriteOnce(t *testing.T) {
	h := newHarness(t)
	in := h.inode(1)
	name := "scoutfs.hide.worm.v1_expiration"
	expire := h.clock.Add(time.Hour)

	h.set(in, "user.before", "ok")
	h.set(in, name, fmt.Sprintf("%d.0", expire.Unix()))

	bits, ts := in.Worm()
	assert.Equal(t, types.WormV1Bit, bits)
	assert.Equal(t, types.Timespec{Sec: uint64(expire.Unix())}, ts)

	err := h.svc.Set(h.ctx, in, "user.after", []byte("no"), 0)
	assert.ErrorIs(t, err, types.ErrWormDenied)
	assert.ErrorIs(t, h.svc.Remove(h.ctx, in, "user.before"), types.ErrWormDenied)

	h.clock = expire
	h.set(in, "user.after", "yes")
}

func TestWriteOnceRules(t *testing.T) {
	h := newHarness(t)
	dir, err := h.inodes.Create(h.ctx, 2, 0o40755)
	require.NoError(t, err)

	err = h.svc.Set(h.ctx, dir, "scoutfs.hide.worm.v1_expiration", []byte("1.0"), 0)
	assert.ErrorIs(t, err, types.ErrInvalid, "write-once needs a regular file")

	old := newHarness(t, withFormatVersion(types.FormatVersionMin))
	in := old.inode(1)
	err = old.svc.Set(old.ctx, in, "scoutfs.hide.worm.v1_expiration", []byte("1.0"), 0)
	assert.ErrorIs(t, err, types.ErrInvalid, "write-once needs a newer format")
}

func TestDrop(t *testing.T) {
	h := newHarness(t)
	doomed := h.inode(1)
	other := h.inode(2)

	h.set(doomed, "user.small", "s")
	require.NoError(t, h.svc.Set(h.ctx, doomed, "user.large", valueOfParts("user.large", 3, 'l'), 0))
	h.set(doomed, "scoutfs.srch.tag", "x")
	h.set(doomed, "scoutfs.totl.1.1.1", "10")
	h.set(doomed, "scoutfs.totl.2.2.2", "5")
	h.set(other, "scoutfs.totl.1.1.1", "3")
	h.set(other, "scoutfs.srch.tag", "y")

	require.NoError(t, h.svc.Drop(h.ctx, 1))

	assert.Empty(t, h.items(1))
	assert.Len(t, h.items(2), 2)
	hits := h.searchHits("scoutfs.srch.tag")
	require.Len(t, hits, 1)
	assert.Equal(t, uint64(2), hits[0].Ino)

	v, ok := h.bucket(1, 1, 1)
	require.True(t, ok)
	assert.Equal(t, types.TotalValue{Total: 3, Count: 1}, v)
	_, ok = h.bucket(2, 2, 2)
	assert.False(t, ok)

	// the inode item itself is left for the caller
	require.NoError(t, h.inodes.Delete(h.ctx, 1))
}

func TestCorruptItemsAreReported(t *testing.T) {
	h := newHarness(t)
	in := h.inode(1)
	name := []byte("user.broken")

	parts, err := records.Pack(name, bytes.Repeat([]byte("v"), 700))
	require.NoError(t, err)
	require.Len(t, parts, 2)

	lock, err := h.locks.LockInode(h.ctx, 1, locks.ModeWrite)
	require.NoError(t, err)
	key := types.XattrKey(1, records.NameHash(name), 1)
	require.NoError(t, h.mem.Create(key, parts[0], lock))
	h.locks.Unlock(lock)

	_, err = h.get(in, string(name))
	require.ErrorIs(t, err, types.ErrCorrupt)
	assert.Equal(t, "input/output error", Errno(err).Error())

	size, err := h.svc.Get(h.ctx, in, string(name), nil)
	require.NoError(t, err, "sizing only reads the first part")
	assert.Equal(t, 700, size)
}

func TestNewServiceValidates(t *testing.T) {
	_, err := NewService(ServiceConfig{})
	assert.ErrorIs(t, err, types.ErrInvalid)

	h := newHarness(t)
	_, err = NewService(ServiceConfig{
		Store: h.faults, Locks: h.locks, Trans: h.trans, Search: h.search,
		FormatVersion: types.FormatVersionMax + 1,
	})
	assert.ErrorIs(t, err, types.ErrInvalid)
}

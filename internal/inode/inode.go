package inode

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/deploymenttheory/go-xattrfs/internal/interfaces"
	"github.com/deploymenttheory/go-xattrfs/internal/locks"
	"github.com/deploymenttheory/go-xattrfs/internal/types"
)

// itemSize is the encoded size of an inode item: mode, version, ctime,
// next attribute id, write-once bits and expiration.
const itemSize = 4 + 8 + 12 + 8 + 8 + 12

// firstXattrID is the identifier given to an inode's first attribute.
const firstXattrID = 1

// Inode is the in-memory copy of one inode's metadata item.
type Inode struct {
	ino   uint64
	guard locks.FileGuard
	store interfaces.ItemStore
	now   func() time.Time
	sugar *zap.SugaredLogger

	mu          sync.Mutex
	mode        uint32
	version     uint64
	ctime       types.Timespec
	nextXattrID uint64
	wormBits    uint64
	wormExpire  types.Timespec
}

var _ interfaces.Inode = (*Inode)(nil)

func (in *Inode) Ino() uint64 { return in.ino }

func (in *Inode) IsRegular() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.mode&unix.S_IFMT == unix.S_IFREG
}

// Mode returns the inode's file type and permission bits.
func (in *Inode) Mode() uint32 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.mode
}

func (in *Inode) XattrGuard() *locks.FileGuard { return &in.guard }

// AllocXattrID hands out increasing identifiers. The next identifier is
// persisted with the inode item by UpdateItem.
func (in *Inode) AllocXattrID() uint64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	id := in.nextXattrID
	in.nextXattrID++
	return id
}

func (in *Inode) DirtyItem(lock *locks.Lock) error {
	if err := in.store.Dirty(types.InodeKey(in.ino), lock); err != nil {
		return fmt.Errorf("dirtying inode %d: %w", in.ino, err)
	}
	return nil
}

func (in *Inode) UpdateItem(lock *locks.Lock) {
	in.mu.Lock()
	in.version++
	in.ctime = types.TimespecFrom(in.now())
	val := in.encodeLocked()
	in.mu.Unlock()

	// the item was dirtied first so the update cannot fail
	if err := in.store.Update(types.InodeKey(in.ino), val, lock); err != nil {
		in.sugar.Errorw("updating dirtied inode item failed", "ino", in.ino, "error", err)
	}
}

func (in *Inode) SetWorm(bits uint64, expire types.Timespec) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.wormBits = bits
	in.wormExpire = expire
}

// Worm returns the write-once state.
func (in *Inode) Worm() (uint64, types.Timespec) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.wormBits, in.wormExpire
}

func (in *Inode) WormDenied(now time.Time) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.wormBits&types.WormV1Bit != 0 && now.Before(in.wormExpire.Time())
}

// Version returns the metadata version, bumped on every item update.
func (in *Inode) Version() uint64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.version
}

// Ctime returns the last change time.
func (in *Inode) Ctime() types.Timespec {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.ctime
}

func (in *Inode) encodeLocked() []byte {
	buf := make([]byte, itemSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:], in.mode)
	le.PutUint64(buf[4:], in.version)
	le.PutUint64(buf[12:], in.ctime.Sec)
	le.PutUint32(buf[20:], in.ctime.Nsec)
	le.PutUint64(buf[24:], in.nextXattrID)
	le.PutUint64(buf[32:], in.wormBits)
	le.PutUint64(buf[40:], in.wormExpire.Sec)
	le.PutUint32(buf[48:], in.wormExpire.Nsec)
	return buf
}

func (in *Inode) decodeLocked(buf []byte) error {
	if len(buf) != itemSize {
		return fmt.Errorf("inode %d item has %d bytes, want %d: %w", in.ino, len(buf), itemSize, types.ErrCorrupt)
	}
	le := binary.LittleEndian
	in.mode = le.Uint32(buf[0:])
	in.version = le.Uint64(buf[4:])
	in.ctime = types.Timespec{Sec: le.Uint64(buf[12:]), Nsec: le.Uint32(buf[20:])}
	in.nextXattrID = le.Uint64(buf[24:])
	in.wormBits = le.Uint64(buf[32:])
	in.wormExpire = types.Timespec{Sec: le.Uint64(buf[40:]), Nsec: le.Uint32(buf[48:])}
	return nil
}

package services

import (
	"context"
	"errors"

	"golang.org/x/sys/unix"

	"github.com/deploymenttheory/go-xattrfs/internal/inode"
	"github.com/deploymenttheory/go-xattrfs/internal/types"
)

var errnos = []struct {
	err   error
	errno unix.Errno
}{
	{types.ErrNotFound, unix.ENODATA},
	{types.ErrExists, unix.EEXIST},
	{types.ErrRange, unix.ERANGE},
	{types.ErrTooBig, unix.E2BIG},
	{types.ErrInvalid, unix.EINVAL},
	{types.ErrNotSupported, unix.EOPNOTSUPP},
	{types.ErrPermission, unix.EPERM},
	{types.ErrWormDenied, unix.EACCES},
	{types.ErrCorrupt, unix.EIO},
	{types.ErrBusy, unix.EBUSY},
	{inode.ErrNoInode, unix.ENOENT},
	{inode.ErrInodeExists, unix.EEXIST},
	{context.Canceled, unix.EINTR},
	{context.DeadlineExceeded, unix.ETIMEDOUT},
}

// Errno maps an operation error to the errno a VFS caller would see.
// Unrecognized errors are I/O errors.
func Errno(err error) unix.Errno {
	if err == nil {
		return 0
	}
	for _, e := range errnos {
		if errors.Is(err, e.err) {
			return e.errno
		}
	}
	return unix.EIO
}

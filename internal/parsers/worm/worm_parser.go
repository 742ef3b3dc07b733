package worm

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/deploymenttheory/go-xattrfs/internal/parsers/totals"
	"github.com/deploymenttheory/go-xattrfs/internal/types"
)

const nsecPerSec = 1_000_000_000

// ParseName checks that a write-once attribute name ends in the
// expiration field.
func ParseName(name string) error {
	dot := strings.LastIndexByte(name, '.')
	if dot < 0 || name[dot+1:] != types.XattrWormName {
		return fmt.Errorf("write-once name %q must end in .%s: %w", name, types.XattrWormName, types.ErrInvalid)
	}
	return nil
}

// ParseTimespec parses an expiration value of the form "sec.nsec". Both
// fields use the totaled number grammar; seconds must fit in a signed 64-bit
// count and nanoseconds must be below one second.
func ParseTimespec(value []byte) (types.Timespec, error) {
	invalid := func(reason string) (types.Timespec, error) {
		return types.Timespec{}, fmt.Errorf("expiration %q %s: %w", value, reason, types.ErrInvalid)
	}

	if len(value) < 3 {
		return invalid("is too short")
	}

	dot := bytes.IndexByte(value, '.')
	if dot <= 0 || dot == len(value)-1 {
		return invalid("needs seconds and nanoseconds")
	}
	if bytes.IndexByte(value[dot+1:], '.') >= 0 {
		return invalid("has more than one dot")
	}

	sec, err := totals.ParseU64(value[:dot])
	if err != nil {
		return invalid("has bad seconds")
	}
	nsec, err := totals.ParseU64(value[dot+1:])
	if err != nil || nsec > math.MaxUint32 {
		return invalid("has bad nanoseconds")
	}

	if sec > math.MaxInt64 || nsec >= nsecPerSec {
		return invalid("is out of range")
	}

	return types.Timespec{Sec: sec, Nsec: uint32(nsec)}, nil
}

package tags

import (
	"fmt"
	"strings"

	"github.com/deploymenttheory/go-xattrfs/internal/types"
)

// minTaggedNameLen is the shortest name that can carry a tag: the reserved
// prefix, one tag token and at least one byte of the remaining name.
const minTaggedNameLen = len(types.XattrReservedPrefix) + types.XattrTagLen + 1

// Parse returns the tags of an attribute name. Names outside the reserved
// namespace have no tags. Inside it, tag tokens directly follow the prefix
// and parsing stops at the first unrecognized token, which starts the
// literal remainder of the name.
//
// Parse fails when a token repeats, when the reserved prefix is followed by
// no tag at all, when write-once is used without hide, or when write-once
// is used on a format that cannot store it.
func Parse(name string, formatVersion int) (types.TagSet, error) {
	var tgs types.TagSet

	if len(name) < minTaggedNameLen || !strings.HasPrefix(name, types.XattrReservedPrefix) {
		return tgs, nil
	}
	rest := name[len(types.XattrReservedPrefix):]

	found := false
	for {
		var flag *bool
		switch {
		case strings.HasPrefix(rest, types.XattrTagHide):
			flag = &tgs.Hide
		case strings.HasPrefix(rest, types.XattrTagSearch):
			flag = &tgs.Search
		case strings.HasPrefix(rest, types.XattrTagTotal):
			flag = &tgs.Total
		case strings.HasPrefix(rest, types.XattrTagWorm):
			if formatVersion < types.FormatVersionWorm {
				return types.TagSet{}, fmt.Errorf("write-once tag needs format version %d, have %d: %w",
					types.FormatVersionWorm, formatVersion, types.ErrInvalid)
			}
			flag = &tgs.Worm
		}

		if flag == nil {
			// the only reason to use the reserved prefix is tags
			if !found {
				return types.TagSet{}, fmt.Errorf("reserved prefix without a tag in %q: %w", name, types.ErrInvalid)
			}
			break
		}
		if *flag {
			return types.TagSet{}, fmt.Errorf("repeated tag %q in %q: %w",
				rest[:types.XattrTagLen], name, types.ErrInvalid)
		}

		*flag = true
		found = true
		rest = rest[types.XattrTagLen:]
	}

	if tgs.Worm && !tgs.Hide {
		return types.TagSet{}, fmt.Errorf("write-once tag without hide in %q: %w", name, types.ErrInvalid)
	}

	return tgs, nil
}

// IsHidden reports whether a stored name is hidden from ordinary listing.
// Names whose tags no longer parse are listed as visible.
func IsHidden(name string, formatVersion int) bool {
	tgs, err := Parse(name, formatVersion)
	return err == nil && tgs.Hide
}

// KnownNamespace reports whether the name starts with a supported prefix.
func KnownNamespace(name string) bool {
	for _, prefix := range types.XattrNamespaces {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

package types

import "errors"

// Attribute operation results.
var (
	// ErrNotFound means no attribute has the requested name.
	ErrNotFound = errors.New("no such attribute")

	// ErrExists means a create-only set found an existing attribute.
	ErrExists = errors.New("attribute already exists")

	// ErrRange means a name is too long or a buffer is too small.
	ErrRange = errors.New("result out of range")

	// ErrTooBig means a value exceeds the maximum value length.
	ErrTooBig = errors.New("attribute value too large")

	// ErrInvalid means an argument, flag combination or tag is invalid.
	ErrInvalid = errors.New("invalid argument")

	// ErrNotSupported means the name is outside every supported namespace.
	ErrNotSupported = errors.New("unsupported attribute namespace")

	// ErrPermission means a tagged attribute was used without privilege.
	ErrPermission = errors.New("operation not permitted")

	// ErrWormDenied means the file's write-once retention is active.
	ErrWormDenied = errors.New("write-once retention active")

	// ErrCorrupt means persisted items are inconsistent.
	ErrCorrupt = errors.New("attribute items are inconsistent")

	// ErrBusy means a transaction could not be entered without blocking.
	ErrBusy = errors.New("transaction busy")
)

// Item store results.
var (
	ErrItemNotFound = errors.New("item not found")
	ErrItemExists   = errors.New("item already exists")

	// ErrLockCoverage means an item was accessed outside the caller's lock
	// range or with an insufficient lock mode.
	ErrLockCoverage = errors.New("item access not covered by lock")
)

// Package storetest provides item store wrappers for exercising failure paths.
package storetest

import (
	"errors"
	"sync"

	"github.com/deploymenttheory/go-xattrfs/internal/interfaces"
	"github.com/deploymenttheory/go-xattrfs/internal/locks"
	"github.com/deploymenttheory/go-xattrfs/internal/types"
)

// Op names an item store operation.
type Op string

const (
	OpNext   Op = "next"
	OpLookup Op = "lookup"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDirty  Op = "dirty"
	OpDelete Op = "delete"
	OpDelta  Op = "delta"
)

// ErrInjected is returned by operations that were set up to fail.
var ErrInjected = errors.New("injected item store failure")

// Fault describes one failure to inject.
type Fault struct {
	Op Op
	// Match selects the keys that fail. Nil matches every key.
	Match func(key types.Key) bool
	// After lets this many matching calls succeed before failing.
	After int
	// Times is how many calls fail once triggered. Zero means forever.
	Times int
}

// FaultStore wraps an item store and fails selected calls.
type FaultStore struct {
	interfaces.ItemStore

	mu     sync.Mutex
	faults []*faultState
	calls  []Call
}

// Call records one operation that reached the wrapper.
type Call struct {
	Op  Op
	Key types.Key
	Err error
}

type faultState struct {
	Fault
	seen   int
	failed int
}

// NewFaultStore wraps inner.
func NewFaultStore(inner interfaces.ItemStore) *FaultStore {
	return &FaultStore{ItemStore: inner}
}

// Inject adds a fault.
func (s *FaultStore) Inject(f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, &faultState{Fault: f})
}

// Reset removes every fault and forgets recorded calls.
func (s *FaultStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = nil
	s.calls = nil
}

// Calls returns the recorded calls of one operation kind.
func (s *FaultStore) Calls(op Op) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Call
	for _, c := range s.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (s *FaultStore) check(op Op, key types.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.faults {
		if f.Op != op || (f.Match != nil && !f.Match(key)) {
			continue
		}
		f.seen++
		if f.seen <= f.After {
			continue
		}
		if f.Times != 0 && f.failed >= f.Times {
			continue
		}
		f.failed++
		s.calls = append(s.calls, Call{Op: op, Key: key, Err: ErrInjected})
		return ErrInjected
	}
	return nil
}

func (s *FaultStore) record(op Op, key types.Key, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Op: op, Key: key, Err: err})
	return err
}

func (s *FaultStore) Next(key, last types.Key, buf []byte, lock *locks.Lock) (types.Key, int, error) {
	if err := s.check(OpNext, key); err != nil {
		return types.Key{}, 0, err
	}
	found, n, err := s.ItemStore.Next(key, last, buf, lock)
	return found, n, s.record(OpNext, key, err)
}

func (s *FaultStore) Lookup(key types.Key, buf []byte, lock *locks.Lock) (int, error) {
	if err := s.check(OpLookup, key); err != nil {
		return 0, err
	}
	n, err := s.ItemStore.Lookup(key, buf, lock)
	return n, s.record(OpLookup, key, err)
}

func (s *FaultStore) Create(key types.Key, val []byte, lock *locks.Lock) error {
	if err := s.check(OpCreate, key); err != nil {
		return err
	}
	return s.record(OpCreate, key, s.ItemStore.Create(key, val, lock))
}

func (s *FaultStore) Update(key types.Key, val []byte, lock *locks.Lock) error {
	if err := s.check(OpUpdate, key); err != nil {
		return err
	}
	return s.record(OpUpdate, key, s.ItemStore.Update(key, val, lock))
}

func (s *FaultStore) Dirty(key types.Key, lock *locks.Lock) error {
	if err := s.check(OpDirty, key); err != nil {
		return err
	}
	return s.record(OpDirty, key, s.ItemStore.Dirty(key, lock))
}

func (s *FaultStore) Delete(key types.Key, lock *locks.Lock) error {
	if err := s.check(OpDelete, key); err != nil {
		return err
	}
	return s.record(OpDelete, key, s.ItemStore.Delete(key, lock))
}

func (s *FaultStore) Delta(key types.Key, val []byte, lock *locks.Lock) error {
	if err := s.check(OpDelta, key); err != nil {
		return err
	}
	return s.record(OpDelta, key, s.ItemStore.Delta(key, val, lock))
}

// PartOf matches attribute part items of one part index.
func PartOf(part uint8) func(types.Key) bool {
	return func(k types.Key) bool {
		return k.Zone == types.FSZone && k.Type == types.XattrType && k.Part() == part
	}
}

// InZone matches every key of a zone.
func InZone(zone uint8) func(types.Key) bool {
	return func(k types.Key) bool {
		return k.Zone == zone
	}
}

// Exactly matches a single key.
func Exactly(key types.Key) func(types.Key) bool {
	return func(k types.Key) bool {
		return k == key
	}
}

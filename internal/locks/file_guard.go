package locks

import "sync"

// FileGuard serializes the attribute items of one file on this node. Readers
// of a multi-item attribute share the guard; every mutation holds it
// exclusively so readers never see a partially updated group of parts.
//
// Acquiring the guard returns a token. Functions that require the guard take
// the token as a parameter, which makes the requirement visible at the call
// site.
type FileGuard struct {
	mu sync.RWMutex
}

// Held is satisfied by both token kinds; lookups accept either.
type Held interface {
	held()
}

// ReadToken proves the guard is held in shared mode.
type ReadToken struct {
	g *FileGuard
}

// WriteToken proves the guard is held exclusively.
type WriteToken struct {
	g *FileGuard
}

func (*ReadToken) held()  {}
func (*WriteToken) held() {}

// Read acquires the guard in shared mode.
func (g *FileGuard) Read() *ReadToken {
	g.mu.RLock()
	return &ReadToken{g: g}
}

// Write acquires the guard exclusively.
func (g *FileGuard) Write() *WriteToken {
	g.mu.Lock()
	return &WriteToken{g: g}
}

// Release gives up the shared guard.
func (t *ReadToken) Release() {
	t.g.mu.RUnlock()
}

// Release gives up the exclusive guard.
func (t *WriteToken) Release() {
	if t.g != nil {
		t.g.mu.Unlock()
	}
}

// Unguarded returns a write token for a file that no other caller can reach,
// such as one whose items are being dropped after its final unlink.
func Unguarded() *WriteToken {
	return &WriteToken{}
}

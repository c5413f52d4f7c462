package flow

import "sync"

// lockEntry holds a per-transaction mutex and its reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// lockTable serializes operations per transaction id while keeping
// distinct ids fully parallel. Reference counting garbage-collects
// entries once no operation holds them.
type lockTable struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

func newLockTable() *lockTable {
	return &lockTable{entries: make(map[string]*lockEntry)}
}

func (t *lockTable) acquire(id string) *lockEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[id]
	if !ok {
		entry = &lockEntry{}
		t.entries[id] = entry
	}
	entry.refs++
	return entry
}

func (t *lockTable) release(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[id]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(t.entries, id)
	}
}

// withLock runs fn while holding the per-id mutex.
func (t *lockTable) withLock(id string, fn func() error) error {
	entry := t.acquire(id)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		t.release(id)
	}()
	return fn()
}

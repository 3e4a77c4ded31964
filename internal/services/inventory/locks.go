package inventory

import (
	"sort"
	"sync"

	"github.com/pharmacore/pharmacore/internal/models"
)

// KeyedLocker hands out one mutex per key. Entries are reference counted and
// dropped once no goroutine holds or waits for them.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedLocker creates an empty locker.
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*keyedEntry)}
}

// Lock acquires the mutex for key and returns its release function.
func (l *KeyedLocker) Lock(key string) func() {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &keyedEntry{}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() { l.release(key, e) }
}

// LockAll acquires the mutexes for every key in sorted, deduplicated order,
// so two callers with overlapping key sets cannot deadlock. The returned
// function releases them in reverse order.
func (l *KeyedLocker) LockAll(keys []string) func() {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	var unlocks []func()
	for i, k := range sorted {
		if i > 0 && sorted[i-1] == k {
			continue
		}
		unlocks = append(unlocks, l.Lock(k))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

// LockBatches acquires the batch mutexes for keys.
func (l *KeyedLocker) LockBatches(keys []models.BatchKey) func() {
	names := make([]string, 0, len(keys))
	for _, k := range models.SortedBatchKeys(keys) {
		names = append(names, batchLockName(k))
	}
	return l.LockAll(names)
}

// Held returns the number of keys currently held or awaited.
func (l *KeyedLocker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func (l *KeyedLocker) release(key string, e *keyedEntry) {
	e.mu.Unlock()
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}

func batchLockName(k models.BatchKey) string {
	return "batch:" + k.String()
}

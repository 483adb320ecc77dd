// Package tracking is the process-wide address-interval map from
// spec.md §4.4: it lets a bare pointer resolve to its owning provider
// and pool, the same role runtime/mheap.go's span lookup plays for
// the Go heap (there: address -> *mspan; here: address -> owning
// provider/pool), generalized to arbitrary, non-page-granular ranges.
package tracking

import (
	"sort"
	"sync"

	"github.com/umf-go/umf/provider"
)

// Entry describes one tracked allocation. Parent is non-nil for
// entries produced by Split, so a split child can still resolve back
// to whatever owned the original allocation.
type Entry struct {
	Base     uintptr
	Size     uintptr
	Provider *provider.Provider
	Pool     any // *pool.Pool; any avoids an import cycle with package pool
	Parent   *Entry
}

func (e *Entry) contains(ptr uintptr) bool {
	return ptr >= e.Base && ptr < e.Base+e.Size
}

// Table is a concurrent address-interval map. The zero value is an
// empty, usable table; New returns one.
//
// entries is kept sorted by Base and searched by binary search, the
// same "sorted index over disjoint ranges" shape as mheap's arena
// lookup — readers (Find) only need a read lock, writers (Insert/
// Remove/Split/Merge) take the exclusive lock, matching spec.md §5's
// "readers on find, writers on insert/remove/split/merge" discipline.
type Table struct {
	mu      sync.RWMutex
	entries []*Entry // sorted by Base, disjoint ranges
}

// New constructs an empty tracking table.
func New() *Table {
	return &Table{}
}

// Insert records a new tracked allocation. It returns InvalidArgument
// if the new range overlaps an existing one, preserving spec.md §3's
// "address ranges never overlap" invariant.
func (t *Table) Insert(base, size uintptr, p *provider.Provider, pool any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.lowerBound(base)
	if idx < len(t.entries) && t.entries[idx].Base < base+size {
		return provider.InvalidArgument.Err()
	}
	if idx > 0 {
		prev := t.entries[idx-1]
		if prev.Base+prev.Size > base {
			return provider.InvalidArgument.Err()
		}
	}

	e := &Entry{Base: base, Size: size, Provider: p, Pool: pool}
	t.entries = append(t.entries, nil)
	copy(t.entries[idx+1:], t.entries[idx:])
	t.entries[idx] = e
	return nil
}

// Remove deletes the tracked entry whose Base equals base exactly
// (the only form of removal the base allocator path needs: it always
// frees the exact pointer Alloc returned).
func (t *Table) Remove(base uintptr) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.lowerBound(base)
	if idx >= len(t.entries) || t.entries[idx].Base != base {
		return provider.InvalidArgument.Err()
	}
	t.entries = append(t.entries[:idx], t.entries[idx+1:]...)
	return nil
}

// Find resolves ptr to its owning entry, searching by any address
// inside the tracked range, not only its base — required by generic
// free(ptr) and by IPC export, which both receive an arbitrary
// interior pointer.
func (t *Table) Find(ptr uintptr) (*Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	idx := t.lowerBound(ptr + 1)
	if idx == 0 {
		return nil, false
	}
	e := t.entries[idx-1]
	if !e.contains(ptr) {
		return nil, false
	}
	return e, true
}

// Split breaks the entry at base into two adjacent entries of size
// firstSize and size-firstSize, both pointing at the same provider
// and carrying Parent so the child entries still resolve their owning
// provider per spec.md §3.
func (t *Table) Split(base, firstSize uintptr) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.lowerBound(base)
	if idx >= len(t.entries) || t.entries[idx].Base != base {
		return provider.InvalidArgument.Err()
	}
	parent := t.entries[idx]
	if firstSize == 0 || firstSize >= parent.Size {
		return provider.InvalidArgument.Err()
	}

	sm, ok := parent.Provider.SplitMerge()
	if !ok {
		return provider.NotSupported.Err()
	}
	if err := sm.AllocationSplit(parent.Base, parent.Size, firstSize); err != nil {
		return err
	}

	first := &Entry{Base: parent.Base, Size: firstSize, Provider: parent.Provider, Pool: parent.Pool, Parent: parent}
	second := &Entry{Base: parent.Base + firstSize, Size: parent.Size - firstSize, Provider: parent.Provider, Pool: parent.Pool, Parent: parent}

	t.entries[idx] = first
	t.entries = append(t.entries, nil)
	copy(t.entries[idx+2:], t.entries[idx+1:])
	t.entries[idx+1] = second
	return nil
}

// Merge combines two adjacent entries (low directly followed by high)
// back into one, the inverse of Split.
func (t *Table) Merge(lowBase, highBase uintptr) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.lowerBound(lowBase)
	if idx+1 >= len(t.entries) || t.entries[idx].Base != lowBase || t.entries[idx+1].Base != highBase {
		return provider.InvalidArgument.Err()
	}
	low, high := t.entries[idx], t.entries[idx+1]
	if low.Base+low.Size != high.Base || low.Provider != high.Provider {
		return provider.InvalidArgument.Err()
	}

	sm, ok := low.Provider.SplitMerge()
	if !ok {
		return provider.NotSupported.Err()
	}
	total := low.Size + high.Size
	if err := sm.AllocationMerge(low.Base, high.Base, total); err != nil {
		return err
	}

	merged := &Entry{Base: low.Base, Size: total, Provider: low.Provider, Pool: low.Pool}
	t.entries[idx] = merged
	t.entries = append(t.entries[:idx+1], t.entries[idx+2:]...)
	return nil
}

// lowerBound returns the index of the first entry whose Base >= x.
func (t *Table) lowerBound(x uintptr) int {
	return sort.Search(len(t.entries), func(i int) bool {
		return t.entries[i].Base >= x
	})
}

// process-wide singleton, initialized lazily on first use. This is
// the idiomatic Go replacement for the teacher's link-time init()
// hook (runtime_registerPoolCleanup): sync.Once instead of a loader
// callback, matching spec.md §9's "lazily-initialized, thread-safe,
// process-lifetime resource with an explicit init/teardown protocol".
var (
	globalOnce  sync.Once
	globalTable *Table
)

// Global returns the process-wide tracking table, creating it on
// first call. Safe for concurrent use: sync.Once guarantees every
// caller observes the same fully-initialized *Table.
func Global() *Table {
	globalOnce.Do(func() { globalTable = New() })
	return globalTable
}

// Shutdown tears down the process-wide table, idempotently. A second
// call is a no-op. The next Global() call after Shutdown still
// returns the same already-created table: teardown clears its
// contents, it does not un-initialize the singleton (spec.md §4.4's
// "init/teardown is idempotent" does not require re-creating a fresh
// instance on every cycle, only that repeated calls are safe).
func Shutdown() {
	t := Global()
	t.mu.Lock()
	t.entries = nil
	t.mu.Unlock()
}

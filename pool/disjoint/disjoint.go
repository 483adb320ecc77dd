package disjoint

import (
	"sort"
	"sync"

	"github.com/umf-go/umf/internal/logging"
	"github.com/umf-go/umf/provider"
)

var errInvalidFree = provider.InvalidArgument.Err()

// sentinelMalloc0 is the process-wide placeholder malloc(0) returns:
// spec.md §9's open question on malloc(0) is pinned to "a
// distinguishable non-nil placeholder, consistently", never
// dereferenced, always Free-able as a no-op.
const sentinelMalloc0 = ^uintptr(0) // all-ones: never a valid mmap/heap address

// Pool is the disjoint (bucketed-slab) pool implementation of
// pool.Ops.
type Pool struct {
	provider *provider.Provider
	cfg      Config
	buckets  []*bucket // ascending by classSize

	slabMu    sync.RWMutex // coarse lock: contended only on slab create/destroy
	slabIndex []*slab      // sorted by base

	bypassMu    sync.Mutex
	bypassSizes map[uintptr]uintptr
}

// New builds a disjoint pool in front of a single provider.
func New(p *provider.Provider, cfg Config) (*Pool, error) {
	if p == nil {
		return nil, provider.InvalidArgument.Err()
	}
	classes := bucketClasses(cfg)
	pl := &Pool{
		provider:    p,
		cfg:         cfg,
		bypassSizes: make(map[uintptr]uintptr),
	}
	for _, c := range classes {
		slabSize := c * uintptr(cfg.ChunksPerSlab)
		pl.buckets = append(pl.buckets, newBucket(c, slabSize, cfg.ChunksPerSlab))
	}
	logging.Logger().Debug("disjoint pool created", "config", cfg.String(), "buckets", len(pl.buckets))
	return pl, nil
}

// Malloc implements pool.Ops.
func (p *Pool) Malloc(size uintptr) (uintptr, error) {
	return p.AlignedMalloc(size, 0)
}

// AlignedMalloc implements pool.Ops. See spec.md §4.3 for the bucket
// selection algorithm this follows.
func (p *Pool) AlignedMalloc(size, alignment uintptr) (uintptr, error) {
	if size == 0 {
		return sentinelMalloc0, nil
	}
	effective := size
	if alignment > effective {
		effective = alignment
	}

	b := p.findBucket(effective, alignment)
	if b == nil || b.classSize > p.cfg.MaxPoolableSize {
		return p.bypassAlloc(size, alignment)
	}

	ptr, err := b.alloc(p)
	if err != nil {
		return 0, err
	}
	return ptr, nil
}

// findBucket returns the smallest bucket whose class is >= size and,
// when alignment > 0, also a multiple of alignment — the restriction
// spec.md §4.3's alignment rule needs so every chunk inside the slab
// lands on an alignment-aligned offset (guaranteed by requesting the
// slab itself aligned to its own class size).
func (p *Pool) findBucket(size, alignment uintptr) *bucket {
	idx := sort.Search(len(p.buckets), func(i int) bool {
		return p.buckets[i].classSize >= size
	})
	for i := idx; i < len(p.buckets); i++ {
		if alignment == 0 || p.buckets[i].classSize%alignment == 0 {
			return p.buckets[i]
		}
	}
	return nil
}

func (p *Pool) bypassAlloc(size, alignment uintptr) (uintptr, error) {
	ptr, err := p.provider.Alloc(size, alignment)
	if err != nil {
		return 0, err
	}
	p.bypassMu.Lock()
	p.bypassSizes[ptr] = size
	p.bypassMu.Unlock()
	return ptr, nil
}

// Free implements pool.Ops, resolving ptr to its slab (or bypass
// entry) without the caller supplying a size.
func (p *Pool) Free(ptr uintptr) error {
	if ptr == sentinelMalloc0 {
		return nil
	}

	if s, ok := p.findSlab(ptr); ok {
		return s.bucket.free(p, s, ptr)
	}

	p.bypassMu.Lock()
	size, ok := p.bypassSizes[ptr]
	if ok {
		delete(p.bypassSizes, ptr)
	}
	p.bypassMu.Unlock()
	if !ok {
		return provider.InvalidArgument.Err()
	}
	return p.provider.Free(ptr, size)
}

// MallocUsableSize implements pool.Ops.
func (p *Pool) MallocUsableSize(ptr uintptr) (uintptr, bool) {
	if ptr == sentinelMalloc0 {
		return 0, true
	}
	if s, ok := p.findSlab(ptr); ok {
		return s.chunkSize, true
	}
	p.bypassMu.Lock()
	size, ok := p.bypassSizes[ptr]
	p.bypassMu.Unlock()
	// Un-bucketed allocations are bypass-path, so usable size is
	// clamped to exactly what was requested (SPEC_FULL §12, following
	// original_source's umfPoolMallocUsableSize edge case).
	return size, ok
}

func (p *Pool) Close() {
	// Slabs and bypass allocations are intentionally not released
	// back to the provider here: pool.Pool.Close() already destroys
	// the provider wholesale when WithOwnProvider was set, and when it
	// wasn't, the caller owns those bytes' lifetime, not this pool.
}

// findSlab resolves ptr to its containing slab via the address-ordered
// slab index, read-locked (spec.md §4.3: "slab lookup must be readable
// under a shared lock").
func (p *Pool) findSlab(ptr uintptr) (*slab, bool) {
	p.slabMu.RLock()
	defer p.slabMu.RUnlock()

	idx := sort.Search(len(p.slabIndex), func(i int) bool {
		return p.slabIndex[i].base > ptr
	})
	if idx == 0 {
		return nil, false
	}
	s := p.slabIndex[idx-1]
	if !s.contains(ptr) {
		return nil, false
	}
	return s, true
}

func (p *Pool) registerSlab(s *slab) {
	p.slabMu.Lock()
	defer p.slabMu.Unlock()
	idx := sort.Search(len(p.slabIndex), func(i int) bool {
		return p.slabIndex[i].base >= s.base
	})
	p.slabIndex = append(p.slabIndex, nil)
	copy(p.slabIndex[idx+1:], p.slabIndex[idx:])
	p.slabIndex[idx] = s
}

func (p *Pool) unregisterSlab(s *slab) {
	p.slabMu.Lock()
	defer p.slabMu.Unlock()
	idx := sort.Search(len(p.slabIndex), func(i int) bool {
		return p.slabIndex[i].base >= s.base
	})
	if idx < len(p.slabIndex) && p.slabIndex[idx] == s {
		p.slabIndex = append(p.slabIndex[:idx], p.slabIndex[idx+1:]...)
	}
}

// Stats returns per-bucket counters (SPEC_FULL §12's trace supplement).
func (p *Pool) Stats() []BucketStats {
	stats := make([]BucketStats, len(p.buckets))
	for i, b := range p.buckets {
		stats[i] = b.stats()
	}
	return stats
}

package disjoint

import "sync"

// bucket is one size class: canonical size, the current
// partially-filled slab, a cache of empty slabs, and usage counters.
// It keeps no list of its other slabs; those are reachable only
// through the pool's slab index. Locking discipline: a
// per-bucket mutex guards bucket mutations (spec.md §4.3's "per-bucket
// lock for bucket mutations"); cross-bucket structures (the pool's
// slab index) use their own, coarser lock.
type bucket struct {
	classSize uintptr
	chunksPerSlab int
	slabSize      uintptr

	mu         sync.Mutex
	current    *slab
	emptySlabs []*slab

	chunksInUse int
	chunksCached int
	peak        int
}

func newBucket(classSize uintptr, slabSize uintptr, chunksPerSlab int) *bucket {
	return &bucket{classSize: classSize, slabSize: slabSize, chunksPerSlab: chunksPerSlab}
}

// alloc serves one chunk from this bucket, following spec.md §4.3's
// three-step allocation path: current slab, then a cached empty slab,
// then a fresh slab from the provider.
func (b *bucket) alloc(p *Pool) (uintptr, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current != nil {
		if ptr, ok := b.current.popFree(); ok {
			b.afterPop()
			return ptr, nil
		}
		// current is full; from here on it is reachable only via the
		// pool's slab index. Chunks later freed into it are not handed
		// out again until the whole slab is empty and cached in
		// emptySlabs (or released to the provider).
		b.current = nil
	}

	if n := len(b.emptySlabs); n > 0 {
		s := b.emptySlabs[n-1]
		b.emptySlabs = b.emptySlabs[:n-1]
		b.chunksCached -= s.numChunks
		b.current = s
		ptr, _ := s.popFree()
		b.afterPop()
		return ptr, nil
	}

	size := b.slabSize
	if size < p.cfg.SlabMinSize {
		size = p.cfg.SlabMinSize
	}
	base, err := p.provider.Alloc(size, b.classSize)
	if err != nil {
		return 0, err
	}
	s := newSlab(base, size, b.classSize, b)
	p.registerSlab(s)
	b.current = s
	ptr, _ := s.popFree()
	b.afterPop()
	return ptr, nil
}

func (b *bucket) afterPop() {
	b.chunksInUse++
	if b.chunksInUse > b.peak {
		b.peak = b.chunksInUse
	}
}

// free returns ptr's chunk to s, then applies the bucket's
// cached-empty-slab quota: if s becomes empty, retain it up to
// Config.Capacity, else release it to the provider.
func (b *bucket) free(p *Pool, s *slab, ptr uintptr) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !s.pushFree(ptr) {
		return errInvalidFree
	}
	b.chunksInUse--

	if !s.isEmpty() {
		return nil
	}
	if s == b.current {
		b.current = nil
	}

	if len(b.emptySlabs) < p.cfg.Capacity {
		b.emptySlabs = append(b.emptySlabs, s)
		b.chunksCached += s.numChunks
		return nil
	}

	p.unregisterSlab(s)
	return p.provider.Free(s.base, s.size)
}

// Stats reports this bucket's counters, the supplemental
// Pool.Stats()/SPEC_FULL §12 diagnostic.
type BucketStats struct {
	ClassSize    uintptr
	InUse        int
	Cached       int
	Peak         int
	EmptySlabs   int
}

func (b *bucket) stats() BucketStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BucketStats{
		ClassSize:  b.classSize,
		InUse:      b.chunksInUse,
		Cached:     b.chunksCached,
		Peak:       b.peak,
		EmptySlabs: len(b.emptySlabs),
	}
}

// Package disjoint implements the bucketed-slab pool from spec.md
// §4.3: a size-class cache in front of a provider, the performance
// hot path of the allocator. Its bucket/slab/bitmap shape is the same
// family as runtime/malloc.go's size classes and runtime/mheap.go's
// per-span allocation bitmaps, generalized from page-granularity
// spans to provider-granularity slabs.
package disjoint

import "fmt"

// Config parameterizes a disjoint pool. All fields map directly onto
// spec.md §4.3's enumerated options.
type Config struct {
	// SlabMinSize is the minimum size of a coarse slab requested from
	// the provider.
	SlabMinSize uintptr
	// MaxPoolableSize is the largest allocation served from buckets;
	// above this, requests go straight to the provider.
	MaxPoolableSize uintptr
	// Capacity is the maximum number of empty slabs cached per bucket
	// before releasing to the provider. Pinned per-bucket, not
	// per-pool (spec.md §9 open question), matching runtime/mcentral's
	// own per-size-class accounting rather than a pool-wide budget.
	Capacity int
	// MinBucketSize is the smallest bucket size class; bucket sizes
	// grow geometrically from here.
	MinBucketSize uintptr
	// HalfStepBuckets inserts an extra 1.5x class between consecutive
	// power-of-two classes, halving the worst-case internal
	// fragmentation at the cost of one extra bucket per octave.
	HalfStepBuckets bool
	// ChunksPerSlab is the nominal number of chunks a freshly
	// allocated slab holds for its bucket, before slab_min_size's
	// floor is applied.
	ChunksPerSlab int
}

// DefaultConfig returns the configuration spec.md §8 scenario 2's
// geometric stress test is written against: 4 KiB minimum bucket, 2
// MiB slabs, up to 2 MiB pooled, 4 empty slabs cached per bucket.
func DefaultConfig() Config {
	return Config{
		SlabMinSize:     2 << 20,
		MaxPoolableSize: 2 << 20,
		Capacity:        4,
		MinBucketSize:   4096,
		HalfStepBuckets: false,
		ChunksPerSlab:   64,
	}
}

func (c Config) String() string {
	return fmt.Sprintf(
		"disjoint.Config{slab_min=%d max_poolable=%d capacity=%d min_bucket=%d half_step=%v chunks_per_slab=%d}",
		c.SlabMinSize, c.MaxPoolableSize, c.Capacity, c.MinBucketSize, c.HalfStepBuckets, c.ChunksPerSlab,
	)
}

// bucketClasses builds the ascending sequence of bucket size classes
// from cfg.MinBucketSize up to and including the first class >=
// cfg.MaxPoolableSize. Pinned per spec.md §9: powers of two, with an
// optional half-step (1.5x) class inserted between each pair.
func bucketClasses(cfg Config) []uintptr {
	var classes []uintptr
	for c := cfg.MinBucketSize; ; c <<= 1 {
		classes = append(classes, c)
		if cfg.HalfStepBuckets && c < cfg.MaxPoolableSize {
			classes = append(classes, c+c/2)
		}
		if c >= cfg.MaxPoolableSize {
			break
		}
	}
	return classes
}

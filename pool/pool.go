// Package pool defines the pool vtable and lifecycle: a pool wraps
// zero or more providers and serves fine-grain allocations, the same
// "cache in front of a coarse allocator" relationship mcache/mcentral
// have with mheap in the reference runtime this module generalizes.
package pool

import (
	"sync"
	"sync/atomic"

	"github.com/umf-go/umf/provider"
)

// Ops is the vtable a concrete pool implementation (e.g.
// pool/disjoint) provides.
type Ops interface {
	Malloc(size uintptr) (uintptr, error)
	Free(ptr uintptr) error
	MallocUsableSize(ptr uintptr) (uintptr, bool)
	AlignedMalloc(size, alignment uintptr) (uintptr, error)
	Close()
}

// Option configures a Pool at creation time.
type Option func(*Pool)

// WithOwnProvider implements the OWN_PROVIDER creation flag from
// spec.md §6: destroying the pool also destroys its provider(s).
func WithOwnProvider() Option {
	return func(p *Pool) { p.ownProvider = true }
}

// Pool owns a reference to one or more providers plus an
// implementation-specific Ops, and tracks whether destroying it also
// destroys those providers.
type Pool struct {
	ops       Ops
	providers []*provider.Provider

	ownProvider bool

	mu          sync.Mutex
	lastErrCode int32 // atomic-friendly provider.Result, see GetLastAllocationError
}

// New wraps ops, which must already be bound to providers, as a Pool.
func New(ops Ops, providers []*provider.Provider, opts ...Option) (*Pool, error) {
	if ops == nil || len(providers) == 0 {
		return nil, provider.InvalidArgument.Err()
	}
	p := &Pool{ops: ops, providers: providers}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Providers returns all of the pool's backing providers.
func (p *Pool) Providers() []*provider.Provider { return p.providers }

// Provider returns the pool's single provider; used by the IPC engine
// and tests where a pool is known to wrap exactly one.
func (p *Pool) Provider() *provider.Provider { return p.providers[0] }

func (p *Pool) Malloc(size uintptr) (uintptr, error) {
	ptr, err := p.ops.Malloc(size)
	p.recordError(err)
	return ptr, err
}

// Calloc allocates n*size bytes zeroed. Go's allocator backends here
// (hostmemory's mmap, fixedbuffer's make) already zero fresh pages,
// but slabs are reused across frees, so Calloc must zero explicitly
// rather than assume that.
func (p *Pool) Calloc(n, size uintptr) (uintptr, error) {
	total, overflow := mulOverflows(n, size)
	if overflow {
		err := provider.InvalidArgument.Err()
		p.recordError(err)
		return 0, err
	}
	ptr, err := p.ops.Malloc(total)
	p.recordError(err)
	if err != nil {
		return 0, err
	}
	zero(ptr, total)
	return ptr, nil
}

func (p *Pool) AlignedMalloc(size, alignment uintptr) (uintptr, error) {
	if alignment != 0 && alignment&(alignment-1) != 0 {
		err := provider.InvalidArgument.Err()
		p.recordError(err)
		return 0, err
	}
	ptr, err := p.ops.AlignedMalloc(size, alignment)
	p.recordError(err)
	return ptr, err
}

// Realloc resizes ptr within this pool only: it never
// touches the process-wide tracking table. A pointer obtained through
// the umf facade's Malloc is tracking-registered, and moving it with
// this method (it always mallocs a new address, copies, and frees the
// old one) leaves that registration pointing at a base the provider
// may already have reissued. Tracking-registered pointers must be
// resized with umf.Realloc, which migrates the entry; call this
// method directly only for pools used without the facade.
func (p *Pool) Realloc(ptr, newSize uintptr) (uintptr, error) {
	if ptr == 0 {
		return p.Malloc(newSize)
	}
	oldSize, ok := p.ops.MallocUsableSize(ptr)
	if !ok {
		err := provider.InvalidArgument.Err()
		p.recordError(err)
		return 0, err
	}
	if newSize == 0 {
		return 0, p.Free(ptr)
	}
	newPtr, err := p.ops.Malloc(newSize)
	p.recordError(err)
	if err != nil {
		return 0, err
	}
	copyMemory(newPtr, ptr, minUintptr(oldSize, newSize))
	if err := p.ops.Free(ptr); err != nil {
		p.recordError(err)
		return 0, err
	}
	return newPtr, nil
}

func (p *Pool) Free(ptr uintptr) error {
	err := p.ops.Free(ptr)
	p.recordError(err)
	return err
}

func (p *Pool) MallocUsableSize(ptr uintptr) (uintptr, bool) {
	return p.ops.MallocUsableSize(ptr)
}

// GetLastAllocationError returns the Result of the most recent
// fallible operation on this pool. Like provider.LastNativeError, this
// is process-visible rather than strictly thread-local (spec.md §4.3
// calls for "a thread-local last-allocation-error slot"; Go's
// goroutines make true thread affinity meaningless here, so the slot
// is pool-wide and last-writer-wins — documented deviation, see
// DESIGN.md).
func (p *Pool) GetLastAllocationError() provider.Result {
	return provider.Result(atomic.LoadInt32(&p.lastErrCode))
}

func (p *Pool) recordError(err error) {
	atomic.StoreInt32(&p.lastErrCode, int32(provider.Code(err)))
}

// Close destroys the pool's implementation state, then its providers
// if created with WithOwnProvider — spec.md §3's "a pool created with
// the own-provider flag has exclusive ownership of that provider;
// pool destruction destroys the provider."
func (p *Pool) Close() {
	p.ops.Close()
	if p.ownProvider {
		for _, pr := range p.providers {
			pr.Close()
		}
	}
}

func mulOverflows(a, b uintptr) (uintptr, bool) {
	if a == 0 || b == 0 {
		return 0, false
	}
	r := a * b
	return r, r/a != b
}

func minUintptr(a, b uintptr) uintptr {
	if a < b {
		return a
	}
	return b
}

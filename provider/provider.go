// Package provider defines the vtable every backing allocator
// implements and the lifecycle around it.
//
// See pool/disjoint for the main caller of this package; see
// malloc.go in the reference runtime this module is descended from
// for the allocation-vs-provider split this package generalizes.
package provider

import (
	"fmt"
	"sync"
)

// Ops is the vtable a concrete provider backend must implement. It is
// the Go-interface equivalent of a C function-pointer table: callers
// never see the concrete type, only this interface.
type Ops interface {
	// Alloc returns the base of a coarse region of at least size
	// bytes, aligned to at least alignment bytes. alignment == 0
	// means "provider default".
	Alloc(size, alignment uintptr) (uintptr, error)

	// Free releases exactly a region previously returned by Alloc
	// with the same size.
	Free(ptr, size uintptr) error

	// Close releases all provider resources. It must not fail: any
	// backend error here is dropped, not returned, matching the
	// spec's "finalize is no-fail" contract.
	Close()

	// Name identifies the provider (e.g. "host_memory",
	// "fixed_buffer"). Used by the IPC compatibility check in
	// package ipc.
	Name() string

	// RecommendedPageSize and MinPageSize are queried by pools to
	// pick slab sizes.
	RecommendedPageSize(size uintptr) uintptr
	MinPageSize(ptr uintptr) uintptr
}

// NativeErrorer is an optional capability: providers that wrap a
// backend with its own error reporting (device drivers, syscalls)
// implement it so callers can retrieve the last backend-native error
// after a failed call on the same goroutine.
type NativeErrorer interface {
	LastNativeError() (message string, code int)
}

// Purger is an optional capability for providers that can decommit
// memory without releasing the address range.
type Purger interface {
	PurgeLazy(ptr, size uintptr) error
	PurgeForce(ptr, size uintptr) error
}

// SplitMerger is an optional capability. When a provider implements
// it, the tracking table may split or merge its entries to describe
// sub-regions of one provider allocation.
type SplitMerger interface {
	AllocationSplit(ptr, totalSize, firstSize uintptr) error
	AllocationMerge(lo, hi, totalSize uintptr) error
}

// PIDAwareOpener is an optional extension of IPCOps for providers
// whose OpenIPCHandle needs the producer's pid — the cross-process FD
// provider of spec.md §4.2 is the motivating case: the pid lives in
// the UMF-level header, not the provider-opaque blob, so the IPC
// engine passes it through this extension point rather than requiring
// every provider to parse a header it otherwise has no business
// seeing.
type PIDAwareOpener interface {
	OpenIPCHandleFromPID(producerPID int32, blob []byte) (uintptr, error)
}

// IPCOps is the optional IPC sub-vtable. A provider without it (or
// whose methods return NotSupported) causes every IPC call that
// touches it to propagate NotSupported unchanged, per spec.md §4.5's
// "not-supported path".
type IPCOps interface {
	IPCHandleSize() int
	GetIPCHandle(ptr, size uintptr, out []byte) error
	PutIPCHandle(blob []byte) error
	OpenIPCHandle(blob []byte) (uintptr, error)
	CloseIPCHandle(ptr, size uintptr) error
}

// Provider is a live, named instance of a backend plus its vtable.
// It is the unit pools and the tracking table hold a reference to.
type Provider struct {
	ops  Ops
	name string

	mu       sync.Mutex
	lastErr  string
	lastCode int
}

// New wraps ops as a Provider. ops must already be fully initialized
// (the Go equivalent of the spec's provider_create(ops, params) is
// the caller constructing ops via its own backend-specific
// constructor before calling New).
func New(ops Ops) (*Provider, error) {
	if ops == nil {
		return nil, InvalidArgument.Err()
	}
	return &Provider{ops: ops, name: ops.Name()}, nil
}

// Close destroys the provider. Double-Close is a programming error,
// matching spec.md §3's "destruction is idempotent only insofar as
// double-destroy is a programming error" — callers must not call it
// twice, and this method does not defend against it.
func (p *Provider) Close() {
	p.ops.Close()
}

// Name returns the provider's stable textual name.
func (p *Provider) Name() string { return p.name }

// Ops exposes the underlying vtable for optional-capability type
// assertions (Purger, SplitMerger, IPCOps, NativeErrorer).
func (p *Provider) Ops() Ops { return p.ops }

// Alloc requests a coarse allocation from the backend.
func (p *Provider) Alloc(size, alignment uintptr) (uintptr, error) {
	ptr, err := p.ops.Alloc(size, alignment)
	if err != nil {
		p.recordNative(err)
		return 0, err
	}
	return ptr, nil
}

// Free releases a region previously returned by Alloc.
func (p *Provider) Free(ptr, size uintptr) error {
	if err := p.ops.Free(ptr, size); err != nil {
		p.recordNative(err)
		return err
	}
	return nil
}

// RecommendedPageSize and MinPageSize forward to the backend.
func (p *Provider) RecommendedPageSize(size uintptr) uintptr { return p.ops.RecommendedPageSize(size) }
func (p *Provider) MinPageSize(ptr uintptr) uintptr          { return p.ops.MinPageSize(ptr) }

// PurgeLazy/PurgeForce forward to the backend if it supports purging,
// else report NotSupported.
func (p *Provider) PurgeLazy(ptr, size uintptr) error {
	pg, ok := p.ops.(Purger)
	if !ok {
		return NotSupported.Err()
	}
	return pg.PurgeLazy(ptr, size)
}

func (p *Provider) PurgeForce(ptr, size uintptr) error {
	pg, ok := p.ops.(Purger)
	if !ok {
		return NotSupported.Err()
	}
	return pg.PurgeForce(ptr, size)
}

// LastNativeError returns the backend's last reported native error,
// if the backend implements NativeErrorer; otherwise a Provider-level
// fallback recorded from the last failing call.
func (p *Provider) LastNativeError() (string, int) {
	if ne, ok := p.ops.(NativeErrorer); ok {
		return ne.LastNativeError()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr, p.lastCode
}

// IPC returns the provider's IPC sub-vtable and whether it has one.
func (p *Provider) IPC() (IPCOps, bool) {
	ic, ok := p.ops.(IPCOps)
	return ic, ok
}

// SplitMerge returns the provider's split/merge sub-vtable, if any.
func (p *Provider) SplitMerge() (SplitMerger, bool) {
	sm, ok := p.ops.(SplitMerger)
	return sm, ok
}

// PIDAwareOpen returns the provider's PIDAwareOpener, if any.
func (p *Provider) PIDAwareOpen() (PIDAwareOpener, bool) {
	pa, ok := p.ops.(PIDAwareOpener)
	return pa, ok
}

func (p *Provider) recordNative(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastErr = err.Error()
	p.lastCode = int(Code(err))
}

// String renders the provider for diagnostics/logging.
func (p *Provider) String() string {
	return fmt.Sprintf("provider(%s)", p.name)
}

// Package mockdevice is a stand-in for the accelerator backends
// (Level Zero, CUDA) spec.md §1 treats as external collaborators: a
// provider implementing the same Ops/IPCOps contract a real device
// backend would, so the composition engine can be exercised without
// a GPU. It is also used directly to exercise the "IPC sub-vtable
// absent/NOT_SUPPORTED" path of spec.md §8 scenario 5.
package mockdevice

import (
	"sync"
	"unsafe"

	"github.com/umf-go/umf/provider"
)

// Params configures the mock.
type Params struct {
	// SupportsIPC toggles whether this instance implements IPCOps at
	// all; when false, type assertions for provider.IPCOps fail,
	// which is the "IPC sub-vtable absent" half of the not-supported
	// path (as opposed to a present-but-NotSupported-returning
	// vtable, also exercised below).
	SupportsIPC bool
}

type allocation struct {
	buf []byte
}

type opsNoIPC struct {
	mu     sync.Mutex
	allocs map[uintptr]*allocation
}

func newCommon() opsNoIPC {
	return opsNoIPC{allocs: make(map[uintptr]*allocation)}
}

func (o *opsNoIPC) Name() string { return "mock_device" }

// Alloc returns a real address inside the backing buf, rounded up to
// alignment, like every other provider in this module: the disjoint
// pool and the tracking table both treat a provider's return value as
// the base of a genuine, non-overlapping size-byte range (see
// pool/disjoint's slab index and tracking.Table), which a synthetic
// incrementing id cannot satisfy once more than one allocation is live.
func (o *opsNoIPC) Alloc(size, alignment uintptr) (uintptr, error) {
	if size == 0 {
		return 0, provider.InvalidArgument.Err()
	}
	n := size
	if alignment > 1 {
		n += alignment - 1
	}
	buf := make([]byte, n)
	base := uintptr(unsafe.Pointer(&buf[0]))
	if alignment > 1 {
		if r := base % alignment; r != 0 {
			base += alignment - r
		}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.allocs[base] = &allocation{buf: buf}
	return base, nil
}

func (o *opsNoIPC) Free(ptr, size uintptr) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.allocs[ptr]; !ok {
		return provider.InvalidArgument.Err()
	}
	delete(o.allocs, ptr)
	return nil
}

func (o *opsNoIPC) Close() {
	o.mu.Lock()
	o.allocs = nil
	o.mu.Unlock()
}

func (o *opsNoIPC) RecommendedPageSize(size uintptr) uintptr { return 4096 }
func (o *opsNoIPC) MinPageSize(ptr uintptr) uintptr          { return 4096 }

// opsWithIPC embeds opsNoIPC and adds an IPCOps implementation that
// always returns NotSupported, modeling a real backend that declares
// the capability but the specific allocation/configuration can't
// honor it (vs. opsNoIPC which doesn't even implement the interface).
type opsWithIPC struct {
	opsNoIPC
}

func (o *opsWithIPC) IPCHandleSize() int { return 8 }
func (o *opsWithIPC) GetIPCHandle(ptr, size uintptr, out []byte) error {
	return provider.NotSupported.Err()
}
func (o *opsWithIPC) PutIPCHandle(blob []byte) error { return provider.NotSupported.Err() }
func (o *opsWithIPC) OpenIPCHandle(blob []byte) (uintptr, error) {
	return 0, provider.NotSupported.Err()
}
func (o *opsWithIPC) CloseIPCHandle(ptr, size uintptr) error { return provider.NotSupported.Err() }

// New constructs a mock device provider.
func New(p Params) (*provider.Provider, error) {
	if p.SupportsIPC {
		o := &opsWithIPC{opsNoIPC: newCommon()}
		return provider.New(o)
	}
	o := newCommon()
	return provider.New(&o)
}

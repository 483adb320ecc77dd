// Package hostmemory implements a memory provider backed by anonymous
// mmap'd host RAM, mirroring the role runtime/mmap.go plays for the Go
// heap: sysAlloc-by-another-name.
package hostmemory

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/umf-go/umf/provider"
)

// Params configures a host-memory provider.
type Params struct {
	// Shared requests MAP_SHARED instead of MAP_PRIVATE, which is
	// what lets two Provider instances in the same process (or two
	// processes, via IPC) observe each other's writes — required by
	// spec.md §8 scenario 3's round-trip visibility property.
	Shared bool
}

// ops is the Ops implementation. Each successful Alloc is recorded so
// Free/purge/IPC can recover the originally requested length: mmap and
// munmap both require the exact mapped length.
type ops struct {
	params Params

	mu      sync.Mutex
	regions map[uintptr]int // base -> length, for munmap/IPC
	lastErr string
	lastNo  int
}

// New constructs a host-memory provider.
func New(p Params) (*provider.Provider, error) {
	o := &ops{params: p, regions: make(map[uintptr]int)}
	return provider.New(o)
}

func (o *ops) Name() string { return "host_memory" }

func (o *ops) mmapFlags() int {
	if o.params.Shared {
		return unix.MAP_ANON | unix.MAP_SHARED
	}
	return unix.MAP_ANON | unix.MAP_PRIVATE
}

func (o *ops) Alloc(size, alignment uintptr) (uintptr, error) {
	if size == 0 {
		return 0, provider.InvalidArgument.Err()
	}
	// mmap always returns page-aligned memory; alignment beyond the
	// page size is handled by over-mapping and trimming the
	// misaligned head/tail, the same technique runtime/malloc.go's
	// sysReserveAligned uses.
	pageSize := uintptr(o.RecommendedPageSize(size))
	if alignment <= pageSize {
		b, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, o.mmapFlags())
		if err != nil {
			o.recordNative(err)
			return 0, provider.OutOfHostMemory.ErrNative(err.Error())
		}
		base := uintptr(unsafe.Pointer(&b[0]))
		o.mu.Lock()
		o.regions[base] = int(size)
		o.mu.Unlock()
		return base, nil
	}

	overSize := size + alignment
	b, err := unix.Mmap(-1, 0, int(overSize), unix.PROT_READ|unix.PROT_WRITE, o.mmapFlags())
	if err != nil {
		o.recordNative(err)
		return 0, provider.OutOfHostMemory.ErrNative(err.Error())
	}
	base := uintptr(unsafe.Pointer(&b[0]))
	aligned := (base + alignment - 1) &^ (alignment - 1)

	if headTrim := aligned - base; headTrim > 0 {
		if err := unix.Munmap(b[:headTrim]); err != nil {
			o.recordNative(err)
			return 0, provider.ProviderSpecific.ErrNative(err.Error())
		}
	}
	if tailTrim := overSize - (aligned - base) - size; tailTrim > 0 {
		tailStart := aligned - base + size
		if err := unix.Munmap(b[tailStart : tailStart+tailTrim]); err != nil {
			o.recordNative(err)
			return 0, provider.ProviderSpecific.ErrNative(err.Error())
		}
	}

	o.mu.Lock()
	o.regions[aligned] = int(size)
	o.mu.Unlock()
	return aligned, nil
}

func (o *ops) Free(ptr, size uintptr) error {
	o.mu.Lock()
	length, ok := o.regions[ptr]
	if ok {
		delete(o.regions, ptr)
	}
	o.mu.Unlock()
	if !ok {
		return provider.InvalidArgument.Err()
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), length)
	if err := unix.Munmap(b); err != nil {
		o.recordNative(err)
		return provider.ProviderSpecific.ErrNative(err.Error())
	}
	return nil
}

func (o *ops) Close() {
	o.mu.Lock()
	regions := o.regions
	o.regions = nil
	o.mu.Unlock()
	for base, length := range regions {
		b := unsafe.Slice((*byte)(unsafe.Pointer(base)), length)
		_ = unix.Munmap(b)
	}
}

func (o *ops) RecommendedPageSize(size uintptr) uintptr {
	return uintptr(unix.Getpagesize())
}

func (o *ops) MinPageSize(ptr uintptr) uintptr {
	return uintptr(unix.Getpagesize())
}

func (o *ops) PurgeLazy(ptr, size uintptr) error {
	b := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), size)
	if err := unix.Madvise(b, unix.MADV_FREE); err != nil {
		o.recordNative(err)
		return provider.ProviderSpecific.ErrNative(err.Error())
	}
	return nil
}

func (o *ops) PurgeForce(ptr, size uintptr) error {
	b := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), size)
	if err := unix.Madvise(b, unix.MADV_DONTNEED); err != nil {
		o.recordNative(err)
		return provider.ProviderSpecific.ErrNative(err.Error())
	}
	return nil
}

func (o *ops) LastNativeError() (string, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr, o.lastNo
}

// IPCHandleSize is 8: the opaque blob is just the mapped base address,
// encoded little-endian. This provider only supports IPC in Shared
// mode; in-process it lets a second Provider instance reconstruct the
// same address, which is the observable behavior spec.md §8 scenario
// 3 tests (true cross-process transport is a named out-of-scope
// collaborator, see spec.md §1).
func (o *ops) IPCHandleSize() int { return 8 }

func (o *ops) GetIPCHandle(ptr, size uintptr, out []byte) error {
	if !o.params.Shared {
		return provider.NotSupported.Err()
	}
	if len(out) < 8 {
		return provider.InvalidArgument.Err()
	}
	putUint64(out, uint64(ptr))
	return nil
}

func (o *ops) PutIPCHandle(blob []byte) error {
	if !o.params.Shared {
		return provider.NotSupported.Err()
	}
	return nil
}

func (o *ops) OpenIPCHandle(blob []byte) (uintptr, error) {
	if !o.params.Shared {
		return 0, provider.NotSupported.Err()
	}
	if len(blob) < 8 {
		return 0, provider.InvalidArgument.Err()
	}
	return uintptr(getUint64(blob)), nil
}

func (o *ops) CloseIPCHandle(ptr, size uintptr) error {
	if !o.params.Shared {
		return provider.NotSupported.Err()
	}
	return nil
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

func (o *ops) recordNative(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastErr = err.Error()
	if errno, ok := err.(unix.Errno); ok {
		o.lastNo = int(errno)
	}
}

var _ fmt.Stringer = (*ops)(nil)

func (o *ops) String() string { return "host_memory" }

// Package devicefd stands in for a device-memory provider (L0, CUDA)
// whose IPC handles are backed by a file descriptor, the shape
// spec.md §4.2's pidfd-wrapping provider exists to translate across
// processes. It uses memfd-backed shared memory as a fd-bearing
// allocation a real accelerator driver would otherwise supply.
package devicefd

import (
	"encoding/binary"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/umf-go/umf/provider"
)

type region struct {
	fd  int
	buf []byte
}

type ops struct {
	mu      sync.Mutex
	regions map[uintptr]*region
}

// New constructs a memfd-backed device-memory stand-in provider.
func New() (*provider.Provider, error) {
	o := &ops{regions: make(map[uintptr]*region)}
	return provider.New(o)
}

func (o *ops) Name() string { return "device_fd" }

func (o *ops) Alloc(size, alignment uintptr) (uintptr, error) {
	if size == 0 {
		return 0, provider.InvalidArgument.Err()
	}
	fd, err := unix.MemfdCreate("umf_device_fd", 0)
	if err != nil {
		return 0, provider.OutOfDeviceMemory.ErrNative(err.Error())
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		_ = unix.Close(fd)
		return 0, provider.OutOfDeviceMemory.ErrNative(err.Error())
	}
	buf, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return 0, provider.OutOfDeviceMemory.ErrNative(err.Error())
	}

	base := uintptr(unsafe.Pointer(&buf[0]))
	o.mu.Lock()
	o.regions[base] = &region{fd: fd, buf: buf}
	o.mu.Unlock()
	return base, nil
}

func (o *ops) Free(ptr, size uintptr) error {
	o.mu.Lock()
	r, ok := o.regions[ptr]
	if ok {
		delete(o.regions, ptr)
	}
	o.mu.Unlock()
	if !ok {
		return provider.InvalidArgument.Err()
	}
	_ = unix.Munmap(r.buf)
	_ = unix.Close(r.fd)
	return nil
}

func (o *ops) Close() {
	o.mu.Lock()
	regions := o.regions
	o.regions = nil
	o.mu.Unlock()
	for _, r := range regions {
		_ = unix.Munmap(r.buf)
		_ = unix.Close(r.fd)
	}
}

func (o *ops) RecommendedPageSize(size uintptr) uintptr { return uintptr(unix.Getpagesize()) }
func (o *ops) MinPageSize(ptr uintptr) uintptr          { return uintptr(unix.Getpagesize()) }

// IPCHandleSize is 12: a little-endian int32 fd followed by a uint64
// size, the "opaque blob whose leading integer is a file descriptor"
// spec.md §4.2/§9 describes.
func (o *ops) IPCHandleSize() int { return 12 }

func (o *ops) GetIPCHandle(ptr, size uintptr, out []byte) error {
	o.mu.Lock()
	r, ok := o.regions[ptr]
	o.mu.Unlock()
	if !ok {
		return provider.InvalidArgument.Err()
	}
	if len(out) < 12 {
		return provider.InvalidArgument.Err()
	}
	// Exported as a dup'd fd: the original stays valid for the
	// producer regardless of what the consumer does with its copy.
	dup, err := unix.Dup(r.fd)
	if err != nil {
		return provider.ProviderSpecific.ErrNative(err.Error())
	}
	binary.LittleEndian.PutUint32(out[0:4], uint32(dup))
	binary.LittleEndian.PutUint64(out[4:12], uint64(size))
	return nil
}

func (o *ops) PutIPCHandle(blob []byte) error {
	if len(blob) < 12 {
		return provider.InvalidArgument.Err()
	}
	fd := int(int32(binary.LittleEndian.Uint32(blob[0:4])))
	return unix.Close(fd)
}

// OpenIPCHandle assumes the leading fd is already valid in this
// process's descriptor table — true only when producer and consumer
// are the same process, or after a PIDAwareOpener (e.g. providers/
// pidfd) has already translated it. Cross-process callers must wrap
// this provider with providers/pidfd.
func (o *ops) OpenIPCHandle(blob []byte) (uintptr, error) {
	if len(blob) < 12 {
		return 0, provider.InvalidArgument.Err()
	}
	fd := int(int32(binary.LittleEndian.Uint32(blob[0:4])))
	size := binary.LittleEndian.Uint64(blob[4:12])

	buf, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return 0, provider.ProviderSpecific.ErrNative(err.Error())
	}
	base := uintptr(unsafe.Pointer(&buf[0]))
	o.mu.Lock()
	o.regions[base] = &region{fd: fd, buf: buf}
	o.mu.Unlock()
	return base, nil
}

func (o *ops) CloseIPCHandle(ptr, size uintptr) error {
	return o.Free(ptr, size)
}

func (o *ops) String() string { return "device_fd" }

package hostmemory

import (
	"testing"
	"unsafe"

	"github.com/umf-go/umf/provider"
)

func TestAllocFreeRoundTrip(t *testing.T) {
	p, err := New(Params{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	ptr, err := p.Alloc(4096, 0)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if ptr == 0 {
		t.Fatal("Alloc returned nil pointer")
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), 4096)
	b[0] = 0x42
	if b[0] != 0x42 {
		t.Fatal("mapped memory not writable")
	}
	if err := p.Free(ptr, 4096); err != nil {
		t.Fatalf("Free: %v", err)
	}
}

func TestAlignedAlloc(t *testing.T) {
	p, err := New(Params{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	const alignment = 1 << 20 // 1 MiB, well above the page size
	ptr, err := p.Alloc(4096, alignment)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if ptr%alignment != 0 {
		t.Fatalf("Alloc(align=%d) returned unaligned pointer %x", alignment, ptr)
	}
	if err := p.Free(ptr, 4096); err != nil {
		t.Fatalf("Free: %v", err)
	}
}

func TestFreeUnknownPointer(t *testing.T) {
	p, err := New(Params{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	if err := p.Free(0xdeadbeef, 4096); provider.Code(err) != provider.InvalidArgument {
		t.Fatalf("Free(unknown) = %v, want InvalidArgument", err)
	}
}

func TestIPCRoundTripSharedMode(t *testing.T) {
	p, err := New(Params{Shared: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	ptr, err := p.Alloc(4096, 0)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	ipc, ok := p.IPC()
	if !ok {
		t.Fatal("provider does not implement IPCOps")
	}
	blob := make([]byte, ipc.IPCHandleSize())
	if err := ipc.GetIPCHandle(ptr, 4096, blob); err != nil {
		t.Fatalf("GetIPCHandle: %v", err)
	}

	opened, err := ipc.OpenIPCHandle(blob)
	if err != nil {
		t.Fatalf("OpenIPCHandle: %v", err)
	}
	if opened != ptr {
		t.Fatalf("OpenIPCHandle = %x, want %x", opened, ptr)
	}

	if err := p.Free(ptr, 4096); err != nil {
		t.Fatalf("Free: %v", err)
	}
}

func TestIPCNotSupportedWithoutShared(t *testing.T) {
	p, err := New(Params{Shared: false})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	ipc, ok := p.IPC()
	if !ok {
		t.Fatal("provider does not implement IPCOps")
	}
	blob := make([]byte, ipc.IPCHandleSize())
	if err := ipc.GetIPCHandle(0x1000, 4096, blob); provider.Code(err) != provider.NotSupported {
		t.Fatalf("GetIPCHandle = %v, want NotSupported", err)
	}
}

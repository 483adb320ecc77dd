package ipc

import (
	"testing"

	"github.com/umf-go/umf/pool"
	"github.com/umf-go/umf/pool/disjoint"
	"github.com/umf-go/umf/provider"
	"github.com/umf-go/umf/providers/hostmemory"
	"github.com/umf-go/umf/tracking"
)

func newSharedPool(t *testing.T) *pool.Pool {
	t.Helper()
	hp, err := hostmemory.New(hostmemory.Params{Shared: true})
	if err != nil {
		t.Fatalf("hostmemory.New: %v", err)
	}
	dp, err := disjoint.New(hp, disjoint.DefaultConfig())
	if err != nil {
		t.Fatalf("disjoint.New: %v", err)
	}
	pl, err := pool.New(dp, []*provider.Provider{hp}, pool.WithOwnProvider())
	if err != nil {
		t.Fatalf("pool.New: %v", err)
	}
	return pl
}

func TestGetIPCHandleUnknownPointer(t *testing.T) {
	tracking.Shutdown()
	if _, err := GetIPCHandle(0x12345); provider.Code(err) != provider.InvalidArgument {
		t.Fatalf("GetIPCHandle(unknown) = %v, want InvalidArgument", err)
	}
}

func TestOpenIPCHandleRejectsShortBlob(t *testing.T) {
	pl := newSharedPool(t)
	defer pl.Close()

	if _, err := OpenIPCHandle(pl, []byte{1, 2, 3}); provider.Code(err) != provider.InvalidArgument {
		t.Fatalf("OpenIPCHandle(short blob) = %v, want InvalidArgument", err)
	}
}

func TestPutIPCHandleUnknownBlobIsInvalidArgument(t *testing.T) {
	blob := make([]byte, headerSize+8)
	if err := PutIPCHandle(blob); provider.Code(err) != provider.InvalidArgument {
		t.Fatalf("PutIPCHandle(never exported) = %v, want InvalidArgument", err)
	}
}

func TestCloseIPCHandleUnknownPointerIsInvalidArgument(t *testing.T) {
	if err := CloseIPCHandle(0xabc123); provider.Code(err) != provider.InvalidArgument {
		t.Fatalf("CloseIPCHandle(never opened) = %v, want InvalidArgument", err)
	}
}

// namedIPCOps is a minimal provider backend used only to give
// TestOpenIPCHandleRejectsMismatchedProviderName a second provider
// identity with the same opaque handle size as host_memory (8 bytes),
// so the test can isolate the get_name() half of the compatibility
// check from the get_ipc_handle_size() half.
type namedIPCOps struct{ name string }

func (o *namedIPCOps) Name() string                                     { return o.name }
func (o *namedIPCOps) Alloc(size, alignment uintptr) (uintptr, error)   { return 0, provider.NotSupported.Err() }
func (o *namedIPCOps) Free(ptr, size uintptr) error                     { return nil }
func (o *namedIPCOps) Close()                                           {}
func (o *namedIPCOps) RecommendedPageSize(size uintptr) uintptr         { return 4096 }
func (o *namedIPCOps) MinPageSize(ptr uintptr) uintptr                  { return 4096 }
func (o *namedIPCOps) IPCHandleSize() int                               { return 8 }
func (o *namedIPCOps) GetIPCHandle(ptr, size uintptr, out []byte) error { return provider.NotSupported.Err() }
func (o *namedIPCOps) PutIPCHandle(blob []byte) error                   { return provider.NotSupported.Err() }
func (o *namedIPCOps) OpenIPCHandle(blob []byte) (uintptr, error) {
	return 0, provider.NotSupported.Err()
}
func (o *namedIPCOps) CloseIPCHandle(ptr, size uintptr) error { return provider.NotSupported.Err() }

// TestOpenIPCHandleRejectsMismatchedProviderName is spec.md §7's "wrong
// provider vtable in the consumer pool" scenario: same opaque handle
// size (8 bytes) as the producer's host_memory provider, but a
// different get_name(), must still fail with InvalidArgument before
// any backend dispatch.
func TestOpenIPCHandleRejectsMismatchedProviderName(t *testing.T) {
	producer := newSharedPool(t)
	defer producer.Close()

	ptr, err := producer.Malloc(64)
	if err != nil {
		t.Fatalf("producer.Malloc: %v", err)
	}
	if err := tracking.Global().Insert(ptr, 64, producer.Provider(), producer); err != nil {
		t.Fatalf("tracking.Insert: %v", err)
	}
	blob, err := GetIPCHandle(ptr)
	if err != nil {
		t.Fatalf("GetIPCHandle: %v", err)
	}

	other, err := provider.New(&namedIPCOps{name: "other_provider"})
	if err != nil {
		t.Fatalf("provider.New: %v", err)
	}
	dp, err := disjoint.New(other, disjoint.DefaultConfig())
	if err != nil {
		t.Fatalf("disjoint.New: %v", err)
	}
	consumer, err := pool.New(dp, []*provider.Provider{other}, pool.WithOwnProvider())
	if err != nil {
		t.Fatalf("pool.New: %v", err)
	}
	defer consumer.Close()

	if _, err := OpenIPCHandle(consumer, blob); provider.Code(err) != provider.InvalidArgument {
		t.Fatalf("OpenIPCHandle(mismatched name) = %v, want InvalidArgument", err)
	}
}

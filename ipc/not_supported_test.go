package ipc_test

import (
	"testing"

	"github.com/umf-go/umf"
	"github.com/umf-go/umf/provider"
)

// TestNotSupportedPropagatesWhenIPCVtableAbsent covers spec.md §8
// scenario 5's first half: a provider that doesn't implement IPCOps at
// all.
func TestNotSupportedPropagatesWhenIPCVtableAbsent(t *testing.T) {
	producer := newMockPool(t, false)
	defer producer.Close()

	ptr, err := umf.Malloc(producer, 64)
	if err != nil {
		t.Fatalf("Malloc: %v", err)
	}

	if _, err := umf.GetIPCHandle(ptr); provider.Code(err) != provider.NotSupported {
		t.Fatalf("GetIPCHandle = %v, want NotSupported", err)
	}

	if err := umf.Free(ptr); err != nil {
		t.Fatalf("Free: %v", err)
	}
}

// TestNotSupportedPropagatesWhenBackendDeclines covers the second
// half: a provider that implements IPCOps but whose backend explicitly
// declines every call.
func TestNotSupportedPropagatesWhenBackendDeclines(t *testing.T) {
	producer := newMockPool(t, true)
	defer producer.Close()
	consumer := newMockPool(t, true)
	defer consumer.Close()

	ptr, err := umf.Malloc(producer, 64)
	if err != nil {
		t.Fatalf("Malloc: %v", err)
	}

	if _, err := umf.GetIPCHandle(ptr); provider.Code(err) != provider.NotSupported {
		t.Fatalf("GetIPCHandle = %v, want NotSupported", err)
	}

	// Even without a real exported blob, OpenIPCHandle on a
	// correctly-sized but synthetic blob must still come back
	// NotSupported rather than succeeding or panicking.
	blob := make([]byte, 20+8)
	if _, err := umf.OpenIPCHandle(consumer, blob); provider.Code(err) != provider.NotSupported {
		t.Fatalf("OpenIPCHandle = %v, want NotSupported", err)
	}

	if err := umf.Free(ptr); err != nil {
		t.Fatalf("Free: %v", err)
	}
}

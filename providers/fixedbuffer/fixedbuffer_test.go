package fixedbuffer

import (
	"testing"

	"github.com/umf-go/umf/provider"
)

// TestExhaustThenFreeThenRealloc is spec.md §8 scenario 1: 128 x 32
// KiB allocations from a 4 MiB buffer exactly exhaust it; one more
// allocation fails OOM; freeing one then reallocating succeeds.
func TestExhaustThenFreeThenRealloc(t *testing.T) {
	const (
		chunkSize = 32 * 1024
		count     = 128
		bufSize   = 4 * 1024 * 1024
	)
	p, err := New(bufSize)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	ptrs := make([]uintptr, count)
	for i := 0; i < count; i++ {
		ptr, err := p.Alloc(chunkSize, 0)
		if err != nil {
			t.Fatalf("Alloc #%d: %v", i, err)
		}
		ptrs[i] = ptr
	}

	if _, err := p.Alloc(chunkSize, 0); provider.Code(err) != provider.OutOfHostMemory {
		t.Fatalf("Alloc past capacity = %v, want OutOfHostMemory", err)
	}

	if err := p.Free(ptrs[0], chunkSize); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if _, err := p.Alloc(chunkSize, 0); err != nil {
		t.Fatalf("Alloc after free: %v", err)
	}
}

func TestAllocZeroIsInvalidArgument(t *testing.T) {
	p, err := New(4096)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	if _, err := p.Alloc(0, 0); provider.Code(err) != provider.InvalidArgument {
		t.Fatalf("Alloc(0) = %v, want InvalidArgument", err)
	}
}

func TestCoalescesAdjacentFreedBlocks(t *testing.T) {
	p, err := New(4096)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	a, err := p.Alloc(1024, 0)
	if err != nil {
		t.Fatalf("Alloc a: %v", err)
	}
	b, err := p.Alloc(1024, 0)
	if err != nil {
		t.Fatalf("Alloc b: %v", err)
	}
	if err := p.Free(a, 1024); err != nil {
		t.Fatalf("Free a: %v", err)
	}
	if err := p.Free(b, 1024); err != nil {
		t.Fatalf("Free b: %v", err)
	}

	// The coalesced free region should now serve one 4096-byte
	// request (the whole buffer), which only succeeds if both frees
	// merged with each other and with the untouched 2048-byte tail.
	if _, err := p.Alloc(4096, 0); err != nil {
		t.Fatalf("Alloc(4096) after coalesce: %v", err)
	}
}

package wrapping

import (
	"testing"

	"github.com/umf-go/umf/provider"
)

// countingOps is a mock backend that counts Close calls, used to
// verify the own_upstream ownership invariant (spec.md §8 scenario 6).
type countingOps struct {
	closes int
}

func (c *countingOps) Alloc(size, alignment uintptr) (uintptr, error) { return 1, nil }
func (c *countingOps) Free(ptr, size uintptr) error                   { return nil }
func (c *countingOps) Close()                                         { c.closes++ }
func (c *countingOps) Name() string                                   { return "counting_mock" }
func (c *countingOps) RecommendedPageSize(size uintptr) uintptr       { return 4096 }
func (c *countingOps) MinPageSize(ptr uintptr) uintptr                { return 4096 }

type wrapperOps struct {
	Base
}

func TestOwnUpstreamDestroysExactlyOnce(t *testing.T) {
	backend := &countingOps{}
	upstream, err := provider.New(backend)
	if err != nil {
		t.Fatalf("provider.New: %v", err)
	}

	w := &wrapperOps{Base: NewBase(upstream, true)}
	wp, err := provider.New(w)
	if err != nil {
		t.Fatalf("provider.New(wrapper): %v", err)
	}

	wp.Close()
	if backend.closes != 1 {
		t.Fatalf("own_upstream=true: want upstream closed exactly once, got %d", backend.closes)
	}
}

func TestWithoutOwnUpstreamNeverDestroys(t *testing.T) {
	backend := &countingOps{}
	upstream, err := provider.New(backend)
	if err != nil {
		t.Fatalf("provider.New: %v", err)
	}

	w := &wrapperOps{Base: NewBase(upstream, false)}
	wp, err := provider.New(w)
	if err != nil {
		t.Fatalf("provider.New(wrapper): %v", err)
	}

	wp.Close()
	if backend.closes != 0 {
		t.Fatalf("own_upstream=false: want upstream never closed, got %d", backend.closes)
	}
}

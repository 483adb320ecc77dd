// The remaining _test.go files in this package exercise ipc only
// through the umf facade, so they live in package ipc_test: umf
// imports ipc, and an internal ipc test file importing umf back would
// be a cycle.
package ipc_test

import (
	"testing"

	"github.com/umf-go/umf/pool"
	"github.com/umf-go/umf/pool/disjoint"
	"github.com/umf-go/umf/provider"
	"github.com/umf-go/umf/providers/hostmemory"
	"github.com/umf-go/umf/providers/mockdevice"
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

func newMockPool(t *testing.T, supportsIPC bool) *pool.Pool {
	t.Helper()
	mp, err := mockdevice.New(mockdevice.Params{SupportsIPC: supportsIPC})
	if err != nil {
		t.Fatalf("mockdevice.New: %v", err)
	}
	dp, err := disjoint.New(mp, disjoint.DefaultConfig())
	if err != nil {
		t.Fatalf("disjoint.New: %v", err)
	}
	pl, err := pool.New(dp, []*provider.Provider{mp}, pool.WithOwnProvider())
	if err != nil {
		t.Fatalf("pool.New: %v", err)
	}
	return pl
}

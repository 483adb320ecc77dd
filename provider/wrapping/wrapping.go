// Package wrapping holds the embeddable base every upstream-wrapping
// provider (spec.md §4.2) starts from: a provider whose every
// operation forwards to an upstream provider, plus ownership of that
// upstream.
package wrapping

import "github.com/umf-go/umf/provider"

// Base is embedded by concrete wrapping providers (e.g.
// providers/pidfd). It forwards every Ops method to Upstream and
// conditionally destroys it in Close, exactly as spec.md §4.2
// describes: "if own_upstream is set, finalize destroys the wrapped
// provider."
//
// Concrete wrappers embed Base and override only the Ops methods they
// need to augment; the rest are inherited unchanged. Base does not
// implement provider.IPCOps, so a wrapper that exposes IPC defines all
// five IPCOps methods itself (providers/pidfd does).
type Base struct {
	Upstream    *provider.Provider
	OwnUpstream bool

	closed bool
}

// NewBase constructs a wrapping base around upstream.
func NewBase(upstream *provider.Provider, ownUpstream bool) Base {
	return Base{Upstream: upstream, OwnUpstream: ownUpstream}
}

func (b *Base) Alloc(size, alignment uintptr) (uintptr, error) {
	return b.Upstream.Alloc(size, alignment)
}

func (b *Base) Free(ptr, size uintptr) error {
	return b.Upstream.Free(ptr, size)
}

// Name forwards to the upstream provider's name. Wrappers that want
// their own name (e.g. providers/pidfd's "pidfd_wrapper(...)") still
// override this.
func (b *Base) Name() string {
	return b.Upstream.Name()
}

// Close destroys the upstream provider exactly once, and only when
// this wrapper owns it. Double-Close on the wrapper itself is still a
// programming error per the base provider contract; this guard exists
// only to make "own_upstream destroys exactly once" independently
// testable (spec.md §8 scenario 6), not to paper over caller misuse.
func (b *Base) Close() {
	if b.closed {
		return
	}
	b.closed = true
	if b.OwnUpstream {
		b.Upstream.Close()
	}
}

func (b *Base) RecommendedPageSize(size uintptr) uintptr {
	return b.Upstream.RecommendedPageSize(size)
}

func (b *Base) MinPageSize(ptr uintptr) uintptr {
	return b.Upstream.MinPageSize(ptr)
}

func (b *Base) PurgeLazy(ptr, size uintptr) error  { return b.Upstream.PurgeLazy(ptr, size) }
func (b *Base) PurgeForce(ptr, size uintptr) error { return b.Upstream.PurgeForce(ptr, size) }

func (b *Base) LastNativeError() (string, int) { return b.Upstream.LastNativeError() }

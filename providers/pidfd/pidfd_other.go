//go:build !linux

package pidfd

import "github.com/umf-go/umf/provider"

// New is unavailable off Linux: pidfd_open/pidfd_getfd are Linux-only
// syscalls with no portable equivalent.
func New(upstream *provider.Provider, ownUpstream bool) (*provider.Provider, error) {
	return nil, provider.NotSupported.Err()
}

//go:build !linux

package devicefd

import "github.com/umf-go/umf/provider"

// New is unavailable off Linux: memfd_create has no portable
// equivalent. Callers on other platforms use providers/mockdevice
// instead.
func New() (*provider.Provider, error) {
	return nil, provider.NotSupported.Err()
}

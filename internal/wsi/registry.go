package wsi

import (
	"fmt"
	"sort"
)

// The pipeline is decoupled from concrete slide implementations the same way
// database/sql is decoupled from drivers: backends register themselves at
// init time and the CLI looks one up by name.

var (
	backends     = map[string]Backend{}
	mppProviders []MPPProvider
	stitcher     Stitcher
)

// RegisterBackend makes a slide backend available under name.
func RegisterBackend(name string, b Backend) {
	backends[name] = b
}

// LookupBackend returns the backend registered under name.
func LookupBackend(name string) (Backend, error) {
	b, ok := backends[name]
	if !ok {
		var names []string
		for n := range backends {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("no slide backend named %q (registered: %v)", name, names)
	}
	return b, nil
}

// RegisterMPPProvider appends a metadata provider to the fallback chain.
// Registration order is query order.
func RegisterMPPProvider(p MPPProvider) {
	mppProviders = append(mppProviders, p)
}

// MPPProviders returns the registered provider chain in priority order.
func MPPProviders() []MPPProvider {
	return mppProviders
}

// RegisterStitcher sets the stitcher used for QA composites.
func RegisterStitcher(s Stitcher) {
	stitcher = s
}

// RegisteredStitcher returns the registered stitcher, or nil.
func RegisteredStitcher() Stitcher {
	return stitcher
}

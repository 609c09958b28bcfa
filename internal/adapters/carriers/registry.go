package carriers

import (
	"freight-route-service/internal/ports"
	"sort"
	"strings"
	"sync"
)

// Registry maps normalized provider ids to fetchers. Unknown ids resolve to
// a NullFetcher, so callers never branch on provider identity.
type Registry struct {
	mu       sync.RWMutex
	fetchers map[string]ports.CarrierFetcher
}

func NewRegistry(fetchers ...ports.CarrierFetcher) *Registry {
	r := &Registry{fetchers: make(map[string]ports.CarrierFetcher, len(fetchers))}
	for _, f := range fetchers {
		r.Register(f)
	}
	return r
}

func NormalizeProvider(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Register adds or replaces the fetcher for its provider id.
func (r *Registry) Register(f ports.CarrierFetcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchers[NormalizeProvider(f.Provider())] = f
}

func (r *Registry) Get(id string) ports.CarrierFetcher {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if f, ok := r.fetchers[NormalizeProvider(id)]; ok {
		return f
	}
	return NullFetcher{ID: NormalizeProvider(id)}
}

func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.fetchers[NormalizeProvider(id)]
	return ok
}

// Providers returns registered ids in sorted order.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.fetchers))
	for id := range r.fetchers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

package enricher

import "github.com/pulsesync/server/pkg/types"

// Registry holds the providers available to an engine. Providers are
// registered explicitly during function startup so construction order and
// dependencies stay visible; there is no package-level registration.
type Registry struct {
	byName map[string]Provider
	byType map[types.EnricherProviderType]Provider
}

func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Provider),
		byType: make(map[types.EnricherProviderType]Provider),
	}
}

func (r *Registry) Register(p Provider) {
	r.byName[p.Name()] = p
	if t := p.ProviderType(); t != "" {
		r.byType[t] = p
	}
}

// ByType returns the provider registered for the given type.
func (r *Registry) ByType(t types.EnricherProviderType) (Provider, bool) {
	p, ok := r.byType[t]
	return p, ok
}

// ByName returns the provider registered under the given name.
func (r *Registry) ByName(name string) (Provider, bool) {
	p, ok := r.byName[name]
	return p, ok
}

package provider

import "sort"

// Registry is a priority-sorted collection of providers of one capability
// kind. It is generic over the capability interface so the same code serves
// vision and pricing providers. Registration happens once, at construction;
// the registry is read-only afterwards, which is why it carries no lock.
type Registry[P Provider] struct {
	providers []P
}

// NewRegistry creates an empty registry. Register each provider before
// handing the registry to a stage.
func NewRegistry[P Provider]() *Registry[P] {
	return &Registry[P]{}
}

// Register appends a provider and re-sorts by ascending priority.
// SliceStable preserves insertion order for equal priorities, so ties break
// in registration order.
func (r *Registry[P]) Register(p P) {
	r.providers = append(r.providers, p)
	sort.SliceStable(r.providers, func(i, j int) bool {
		return r.providers[i].Priority() < r.providers[j].Priority()
	})
}

// All returns every registered provider in priority order, enabled or not.
// Used by the health endpoint to report enablement per provider.
func (r *Registry[P]) All() []P {
	out := make([]P, len(r.providers))
	copy(out, r.providers)
	return out
}

// Enabled returns the enabled subset in priority order. An empty result is
// not an error here; the calling stage decides whether "no providers" is
// fatal or triggers its fallback path.
func (r *Registry[P]) Enabled() []P {
	var out []P
	for _, p := range r.providers {
		if p.Enabled() {
			out = append(out, p)
		}
	}
	return out
}

// Best returns the first enabled provider, or ok=false if none are enabled.
func (r *Registry[P]) Best() (P, bool) {
	for _, p := range r.providers {
		if p.Enabled() {
			return p, true
		}
	}
	var zero P
	return zero, false
}

// Get looks up a provider by exact name, regardless of enablement.
func (r *Registry[P]) Get(name string) (P, bool) {
	for _, p := range r.providers {
		if p.Name() == name {
			return p, true
		}
	}
	var zero P
	return zero, false
}

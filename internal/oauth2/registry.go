package oauth2

import "sort"

// Registry holds the introspection resources declared in configuration.
// It is populated once at startup and read-only afterwards.
type Registry struct {
	resources map[string]Resource
}

func NewRegistry() *Registry {
	return &Registry{resources: make(map[string]Resource)}
}

// Register adds a resource under its configured name.
func (r *Registry) Register(name string, res Resource) {
	r.resources[name] = res
}

// Lookup returns the resource registered under name, or nil when absent.
func (r *Registry) Lookup(name string) Resource {
	return r.resources[name]
}

// Names returns the registered resource names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.resources))
	for name := range r.resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

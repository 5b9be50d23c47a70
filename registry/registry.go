// Package registry implements the entity registry (spec.md §4.3): at
// application start each entity type registers its Descriptor; the
// registry remembers how to find that store's structure by name,
// which is what lets the deletion engine cascade into sibling/child/
// free-partner stores it only knows by string.
//
// spec.md frames this as a map from store name to an opaque Remover
// supplied at registration time — a shape forced by the source
// language's compile-time polymorphism (spec.md §9: "a language
// without that feature should model the entity contract as a
// descriptor value"). In Go, a descriptor is enough: physical record
// bytes don't need to be deserialized to be deleted, so one generic
// deletion engine works for any registered store directly from its
// Descriptor. Registry stores descriptors only; the deletion engine
// looks a store's Descriptor up by name, and nothing in this module
// builds or returns a Remover.
package registry

import (
	"sync"

	"entitydb/entity"
)

// Remover is the signature of a function executing a store's delete
// protocol for one encoded key. Neither Registry nor package deletion
// produces Remover values; Registry just remembers which store names
// exist and what their Descriptor is.
type Remover func(encodedKey []byte) error

// Registry is a process-wide, concurrency-safe map from store name to
// its registered Descriptor. It is populated during single-threaded
// startup and read thereafter (spec.md §5 "Shared resources").
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]entity.Descriptor
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{descriptors: make(map[string]entity.Descriptor)}
}

// Register adds d under d.StoreName. Re-registering the same store
// name is idempotent if d is identical to what's already registered;
// otherwise it's a RegistrationConflict (spec.md §4.3).
func (r *Registry) Register(d entity.Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.descriptors[d.StoreName]
	if !ok {
		r.descriptors[d.StoreName] = d
		return nil
	}
	if !descriptorsEqual(existing, d) {
		return &entity.RegistrationConflict{StoreName: d.StoreName}
	}
	return nil
}

// Descriptor returns the registered Descriptor for storeName, or
// UnregisteredStore if no entity type ever registered it.
func (r *Registry) Descriptor(storeName string) (entity.Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.descriptors[storeName]
	if !ok {
		return entity.Descriptor{}, &entity.UnregisteredStore{StoreName: storeName}
	}
	return d, nil
}

// StoreNames returns every registered store name, in no particular
// order.
func (r *Registry) StoreNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.descriptors))
	for name := range r.descriptors {
		names = append(names, name)
	}
	return names
}

func descriptorsEqual(a, b entity.Descriptor) bool {
	if a.StoreName != b.StoreName || len(a.KeySpec.Components) != len(b.KeySpec.Components) {
		return false
	}
	for i := range a.KeySpec.Components {
		if a.KeySpec.Components[i] != b.KeySpec.Components[i] {
			return false
		}
	}
	if len(a.Siblings) != len(b.Siblings) || len(a.Children) != len(b.Children) || len(a.FreePartners) != len(b.FreePartners) {
		return false
	}
	for i := range a.Siblings {
		if a.Siblings[i] != b.Siblings[i] {
			return false
		}
	}
	for i := range a.Children {
		if a.Children[i] != b.Children[i] {
			return false
		}
	}
	for i := range a.FreePartners {
		if a.FreePartners[i] != b.FreePartners[i] {
			return false
		}
	}
	return true
}

// Package metadata provides a registry for resolved entity types
package metadata

import (
	"fmt"
	"reflect"
	"sync"
)

// Registry resolves and caches entity type metadata. Resolution is pure
// introspection; the cache only avoids re-parsing descriptor tags on every
// call, so a registry is safe to share across goroutines.
type Registry struct {
	mu    sync.RWMutex
	types map[reflect.Type]*EntityType
}

// NewRegistry creates a new metadata registry
func NewRegistry() *Registry {
	return &Registry{
		types: make(map[reflect.Type]*EntityType),
	}
}

// defaultRegistry backs the package-level Register and Resolve helpers
var defaultRegistry = NewRegistry()

// Default returns the process-wide registry
func Default() *Registry {
	return defaultRegistry
}

// Register resolves an entity type from a prototype value (an instance or a
// pointer to one) and caches it. Registration fails when the type carries no
// object-type descriptor, when a descriptor tag cannot be parsed, or when two
// fields map to the same external name.
func (r *Registry) Register(prototype interface{}) (*EntityType, error) {
	t, err := entityGoType(prototype)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	et, ok := r.types[t]
	r.mu.RUnlock()
	if ok {
		return et, nil
	}

	et, err = resolveType(t)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.types[t]; ok {
		return existing, nil
	}
	r.types[t] = et
	return et, nil
}

// Resolve returns the metadata for an entity's runtime type, registering it
// on first use. Accepts an entity instance, a pointer to one, or a
// reflect.Type.
func (r *Registry) Resolve(entity interface{}) (*EntityType, error) {
	return r.Register(entity)
}

// ResolveObjectType returns the external object-type name for an entity
func (r *Registry) ResolveObjectType(entity interface{}) (string, error) {
	et, err := r.Resolve(entity)
	if err != nil {
		return "", err
	}
	return et.ObjectType, nil
}

// Types returns all entity types resolved so far
func (r *Registry) Types() []*EntityType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*EntityType, 0, len(r.types))
	for _, et := range r.types {
		result = append(result, et)
	}
	return result
}

// Clear removes all cached entity types (useful for testing)
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.types = make(map[reflect.Type]*EntityType)
}

// Register resolves an entity type into the default registry
func Register(prototype interface{}) (*EntityType, error) {
	return defaultRegistry.Register(prototype)
}

// Resolve returns metadata for an entity from the default registry
func Resolve(entity interface{}) (*EntityType, error) {
	return defaultRegistry.Resolve(entity)
}

// MustRegister is like Register but panics on error. Intended for use in
// package init functions that declare an application's entity set up front.
func MustRegister(prototype interface{}) *EntityType {
	et, err := Register(prototype)
	if err != nil {
		panic(err)
	}
	return et
}

// resolveType builds the full metadata for one struct type
func resolveType(t reflect.Type) (*EntityType, error) {
	fields, objectType, err := buildFields(t, nil)
	if err != nil {
		return nil, err
	}
	if objectType == "" {
		return nil, fmt.Errorf("%w: type %s declares no object-type name", ErrObjectTypeNotFound, t)
	}

	et := &EntityType{
		ObjectType: objectType,
		GoType:     t,
		fields:     fields,
		byName:     make(map[string]*Field, len(fields)),
		byExternal: make(map[string]*Field),
	}
	for _, f := range fields {
		if _, ok := et.byName[f.Name]; ok {
			return nil, fmt.Errorf("%w: field %s declared twice on %s", ErrDuplicateMapping, f.Name, t)
		}
		et.byName[f.Name] = f
		if !f.Mapped() {
			continue
		}
		if other, ok := et.byExternal[f.External]; ok {
			return nil, fmt.Errorf("%w: fields %s and %s on %s both map to %q",
				ErrDuplicateMapping, other.Name, f.Name, t, f.External)
		}
		et.byExternal[f.External] = f
	}

	return et, nil
}

// entityGoType normalizes a prototype into its struct type
func entityGoType(prototype interface{}) (reflect.Type, error) {
	if prototype == nil {
		return nil, fmt.Errorf("%w: nil entity", ErrReflectionFailure)
	}
	t, ok := prototype.(reflect.Type)
	if !ok {
		t = reflect.TypeOf(prototype)
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a struct type", ErrReflectionFailure, t)
	}
	return t, nil
}

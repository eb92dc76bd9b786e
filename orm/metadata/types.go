// Package metadata resolves the declarative descriptors attached to entity
// types. Each entity declares, via struct tags, which external record key a
// field serializes to, whether it is required, and how it relates to other
// entities. The resolver enumerates those descriptors once per type and builds
// an accessor table so field values can be read and written without repeated
// tag parsing.
package metadata

import (
	"fmt"
	"reflect"
	"sort"
	"unsafe"
)

// RelationKind represents the variant of a relation descriptor
type RelationKind int

const (
	// RelationOne references a single related entity
	RelationOne RelationKind = iota
	// RelationMany references a collection of related entities
	RelationMany
)

// String returns the string representation of the relation kind
func (k RelationKind) String() string {
	switch k {
	case RelationOne:
		return "one"
	case RelationMany:
		return "many"
	default:
		return "unknown"
	}
}

// Relation describes a reference from one entity to another. Relations are
// lazy by default; a relation marked eager is recorded in the entity's
// eager-load bookkeeping on every patch so the relation loader can
// materialize it.
type Relation struct {
	Kind RelationKind
	Lazy bool

	// ForeignKey is the external record key on the parent that holds the
	// related record's id. Only meaningful for RelationOne. When empty,
	// loaders derive it from the target object type.
	ForeignKey string

	// Name is the relationship name used when traversing to a collection of
	// child records. Only meaningful for RelationMany. When empty, loaders
	// fall back to the field name.
	Name string

	// Target is the related entity's struct type.
	Target reflect.Type
}

// Field is a handle to a single declared field and the descriptors attached
// to it. Handles are only valid for the entity type they were resolved from.
type Field struct {
	// Name is the Go field name
	Name string

	// External is the external record key this field serializes to/from.
	// Empty when the field carries no field-mapping descriptor.
	External string

	// Required marks the field as mandatory for validation
	Required bool

	// Relation is the relation descriptor, nil for scalar fields
	Relation *Relation

	// Type is the declared Go type of the field
	Type reflect.Type

	index []int
	get   func(root reflect.Value) reflect.Value
	set   func(root reflect.Value, value interface{}) error
}

// Mapped returns true if the field carries a field-mapping descriptor
func (f *Field) Mapped() bool {
	return f.External != ""
}

// Get reads the field's current value from the entity. The entity must be a
// non-nil pointer to the struct type this handle was resolved from.
func (f *Field) Get(entity interface{}) (interface{}, error) {
	root, err := structValue(entity)
	if err != nil {
		return nil, err
	}
	return f.get(root).Interface(), nil
}

// Set writes a value into the field, bypassing visibility rules. Values are
// converted to the field's type where Go permits it; a value that cannot be
// represented in the field is reported as an error rather than written.
func (f *Field) Set(entity interface{}, value interface{}) error {
	root, err := structValue(entity)
	if err != nil {
		return err
	}
	return f.set(root, value)
}

// Unset reports whether the field currently holds its absence sentinel: a nil
// pointer, slice, map, or interface. Fields of non-nilable kinds have no
// absence sentinel and are never considered unset.
func (f *Field) Unset(entity interface{}) (bool, error) {
	root, err := structValue(entity)
	if err != nil {
		return false, err
	}
	v := f.get(root)
	switch v.Kind() {
	case reflect.Ptr, reflect.Slice, reflect.Map, reflect.Interface:
		return v.IsNil(), nil
	default:
		return false, nil
	}
}

// EntityType is the resolved metadata for a single entity type: its external
// object-type name and all declared fields, including inherited ones, in
// declaration order.
type EntityType struct {
	// ObjectType is the external object-type name declared for the entity
	ObjectType string

	// GoType is the underlying struct type
	GoType reflect.Type

	fields     []*Field
	byName     map[string]*Field
	byExternal map[string]*Field
}

// Fields returns all declared fields in declaration order
func (t *EntityType) Fields() []*Field {
	return t.fields
}

// FieldByName returns the handle for the named Go field
func (t *EntityType) FieldByName(name string) (*Field, error) {
	f, ok := t.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no field %q", ErrFieldNotFound, t.GoType, name)
	}
	return f, nil
}

// FieldByExternal returns the handle for the field mapped to the given
// external record key
func (t *EntityType) FieldByExternal(name string) (*Field, bool) {
	f, ok := t.byExternal[name]
	return f, ok
}

// ExternalNames returns the external record keys of all mapped fields, sorted
// for deterministic query construction
func (t *EntityType) ExternalNames() []string {
	names := make([]string, 0, len(t.byExternal))
	for name := range t.byExternal {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New allocates a fresh entity instance as a pointer to the struct type
func (t *EntityType) New() interface{} {
	return reflect.New(t.GoType).Interface()
}

// structValue unwraps an entity into its addressable struct value
func structValue(entity interface{}) (reflect.Value, error) {
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return reflect.Value{}, fmt.Errorf("%w: entity must be a non-nil struct pointer, got %T", ErrReflectionFailure, entity)
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%w: entity must point to a struct, got %T", ErrReflectionFailure, entity)
	}
	return v, nil
}

// fieldAt navigates an index path and returns a settable value for the field,
// using unsafe addressing when the field is unexported
func fieldAt(root reflect.Value, index []int) reflect.Value {
	v := root
	for _, i := range index {
		v = v.Field(i)
	}
	if !v.CanSet() && v.CanAddr() {
		v = reflect.NewAt(v.Type(), unsafe.Pointer(v.UnsafeAddr())).Elem()
	}
	return v
}

// coerce converts a record value into the field's type. Pointers are
// allocated as needed; nil resets the field to its zero value.
func coerce(value interface{}, target reflect.Type) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(target), nil
	}
	v := reflect.ValueOf(value)
	if v.Type().AssignableTo(target) {
		return v, nil
	}
	if target.Kind() == reflect.Ptr {
		elem, err := coerce(value, target.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(target.Elem())
		p.Elem().Set(elem)
		return p, nil
	}
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return reflect.Zero(target), nil
		}
		return coerce(v.Elem().Interface(), target)
	}
	// Integer-to-string conversion via reflect yields a rune string, never
	// what a record intends. Reject it instead.
	if v.Type().ConvertibleTo(target) && !(target.Kind() == reflect.String && isInteger(v.Kind())) {
		return v.Convert(target), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot convert %T to %s", value, target)
}

func isInteger(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	default:
		return false
	}
}


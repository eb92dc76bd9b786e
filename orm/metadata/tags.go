package metadata

import (
	"fmt"
	"reflect"
	"strings"
)

// Descriptor tag keys. A field-mapping descriptor is declared as
// `sforce:"FirstName"` with an optional `required` flag; the type-level
// object-type descriptor is declared on the embedded entity base as
// `sforce:"object=Contact"`. Relation descriptors are declared separately as
// `relation:"one"` or `relation:"many"` with optional `eager`, `fk=` and
// `name=` parameters.
const (
	tagKey         = "sforce"
	relationTagKey = "relation"
	objectParam    = "object="
)

// buildFields walks a struct type in declaration order, flattening embedded
// structs in place, and returns the resolved field handles plus the
// type-level object-type name (empty when no descriptor is declared).
func buildFields(t reflect.Type, index []int) ([]*Field, string, error) {
	var fields []*Field
	var objectType string

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		path := append(append([]int(nil), index...), i)

		if sf.Anonymous {
			et := sf.Type
			if et.Kind() == reflect.Ptr {
				return nil, "", fmt.Errorf("%w: embedded pointer field %s.%s is not supported", ErrReflectionFailure, t, sf.Name)
			}
			if et.Kind() == reflect.Struct {
				if tag, ok := sf.Tag.Lookup(tagKey); ok {
					name, err := parseObjectTag(tag)
					if err != nil {
						return nil, "", fmt.Errorf("%s.%s: %w", t, sf.Name, err)
					}
					if objectType == "" {
						objectType = name
					}
				}
				nested, nestedObject, err := buildFields(et, path)
				if err != nil {
					return nil, "", err
				}
				if objectType == "" {
					objectType = nestedObject
				}
				fields = append(fields, nested...)
				continue
			}
		}

		field, err := parseField(sf, path)
		if err != nil {
			return nil, "", fmt.Errorf("%s.%s: %w", t, sf.Name, err)
		}
		if field != nil {
			fields = append(fields, field)
		}
	}

	return fields, objectType, nil
}

// parseObjectTag extracts the object-type name from a type-level descriptor
func parseObjectTag(tag string) (string, error) {
	if !strings.HasPrefix(tag, objectParam) {
		return "", fmt.Errorf("%w: expected %q on embedded entity base, got %q", ErrInvalidTag, objectParam+"<Name>", tag)
	}
	return strings.TrimPrefix(tag, objectParam), nil
}

// parseField resolves the descriptors declared on a single struct field.
// Fields without descriptors are not part of the mapping and return nil.
func parseField(sf reflect.StructField, index []int) (*Field, error) {
	mapTag, hasMapping := sf.Tag.Lookup(tagKey)
	relTag, hasRelation := sf.Tag.Lookup(relationTagKey)
	if !hasMapping && !hasRelation {
		return nil, nil
	}
	if hasMapping && mapTag == "-" {
		if hasRelation {
			return nil, fmt.Errorf("%w: field excluded with %q but carries a relation descriptor", ErrInvalidTag, "-")
		}
		return nil, nil
	}

	field := &Field{
		Name:  sf.Name,
		Type:  sf.Type,
		index: index,
	}
	field.get = func(root reflect.Value) reflect.Value {
		return fieldAt(root, index)
	}
	field.set = func(root reflect.Value, value interface{}) error {
		target := fieldAt(root, index)
		v, err := coerce(value, target.Type())
		if err != nil {
			return fmt.Errorf("field %s: %w", sf.Name, err)
		}
		target.Set(v)
		return nil
	}

	if hasMapping {
		external, required, err := parseMappingTag(mapTag)
		if err != nil {
			return nil, err
		}
		field.External = external
		field.Required = required
	}

	if hasRelation {
		if field.External != "" {
			return nil, fmt.Errorf("%w: a relation field cannot also carry a field mapping", ErrInvalidTag)
		}
		rel, required, err := parseRelationTag(relTag, sf.Type)
		if err != nil {
			return nil, err
		}
		field.Relation = rel
		field.Required = field.Required || required
	}

	return field, nil
}

// parseMappingTag parses `sforce:"<ExternalName>[,required]"`
func parseMappingTag(tag string) (external string, required bool, err error) {
	parts := strings.Split(tag, ",")
	external = strings.TrimSpace(parts[0])
	if external == "" || strings.Contains(external, "=") {
		return "", false, fmt.Errorf("%w: %q is not a valid external field name", ErrInvalidTag, parts[0])
	}
	for _, opt := range parts[1:] {
		switch strings.TrimSpace(opt) {
		case "required":
			required = true
		case "":
		default:
			return "", false, fmt.Errorf("%w: unknown mapping option %q", ErrInvalidTag, opt)
		}
	}
	return external, required, nil
}

// parseRelationTag parses `relation:"one|many[,eager|lazy][,required][,fk=K][,name=N]"`
// and derives the relation's target entity type from the field's Go type:
// *T for a single relation, []*T for a collection.
func parseRelationTag(tag string, fieldType reflect.Type) (*Relation, bool, error) {
	parts := strings.Split(tag, ",")

	rel := &Relation{Lazy: true}
	switch strings.TrimSpace(parts[0]) {
	case "one":
		rel.Kind = RelationOne
	case "many":
		rel.Kind = RelationMany
	default:
		return nil, false, fmt.Errorf("%w: unknown relation kind %q", ErrInvalidTag, parts[0])
	}

	var required bool
	for _, opt := range parts[1:] {
		opt = strings.TrimSpace(opt)
		switch {
		case opt == "eager":
			rel.Lazy = false
		case opt == "lazy":
			rel.Lazy = true
		case opt == "required":
			required = true
		case strings.HasPrefix(opt, "fk="):
			rel.ForeignKey = strings.TrimPrefix(opt, "fk=")
		case strings.HasPrefix(opt, "name="):
			rel.Name = strings.TrimPrefix(opt, "name=")
		case opt == "":
		default:
			return nil, false, fmt.Errorf("%w: unknown relation option %q", ErrInvalidTag, opt)
		}
	}

	target, err := relationTarget(rel.Kind, fieldType)
	if err != nil {
		return nil, false, err
	}
	rel.Target = target

	return rel, required, nil
}

// relationTarget validates the field's Go type against the relation kind
func relationTarget(kind RelationKind, fieldType reflect.Type) (reflect.Type, error) {
	switch kind {
	case RelationOne:
		if fieldType.Kind() != reflect.Ptr || fieldType.Elem().Kind() != reflect.Struct {
			return nil, fmt.Errorf("%w: relation %q requires a struct pointer field, got %s", ErrInvalidTag, kind, fieldType)
		}
		return fieldType.Elem(), nil
	case RelationMany:
		if fieldType.Kind() != reflect.Slice || fieldType.Elem().Kind() != reflect.Ptr || fieldType.Elem().Elem().Kind() != reflect.Struct {
			return nil, fmt.Errorf("%w: relation %q requires a slice of struct pointers, got %s", ErrInvalidTag, kind, fieldType)
		}
		return fieldType.Elem().Elem(), nil
	default:
		return nil, fmt.Errorf("%w: unknown relation kind %d", ErrInvalidTag, kind)
	}
}

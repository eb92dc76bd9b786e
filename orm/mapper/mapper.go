// Package mapper implements the patch/serialize engine that converts between
// entity instances and flat external records. Patching applies a record's
// values onto an entity through the metadata accessor table and rebuilds the
// entity's eager-load and required-field bookkeeping; serialization reads the
// mapped fields back into a record. The engine is synchronous and mutates
// only the entity passed to it.
package mapper

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Metabor/salesforce-orm/orm/entity"
	"github.com/Metabor/salesforce-orm/orm/metadata"
	"github.com/Metabor/salesforce-orm/orm/validation"
)

// bookkeeper is the mapper-facing surface of the embedded entity base
type bookkeeper interface {
	IsPatched() bool
	MarkPatched()
	EagerLoad() map[string]entity.EagerRelation
	SetEagerLoad(map[string]entity.EagerRelation)
	RequiredFields() map[string]*metadata.Field
	SetRequiredFields(map[string]*metadata.Field)
}

// Mapper converts entities to and from flat records using the descriptors
// resolved by a metadata registry
type Mapper struct {
	registry *metadata.Registry
	log      *zap.Logger
}

// Option configures a Mapper
type Option func(*Mapper)

// WithRegistry sets the metadata registry the mapper resolves types against
func WithRegistry(registry *metadata.Registry) Option {
	return func(m *Mapper) {
		m.registry = registry
	}
}

// WithLogger sets the logger used for debug tracing
func WithLogger(log *zap.Logger) Option {
	return func(m *Mapper) {
		m.log = log
	}
}

// New creates a Mapper. Without options it resolves types against the
// package-wide default registry and does not log.
func New(opts ...Option) *Mapper {
	m := &Mapper{
		registry: metadata.Default(),
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry returns the metadata registry the mapper resolves against
func (m *Mapper) Registry() *metadata.Registry {
	return m.registry
}

// ObjectType resolves the external object-type name for an entity
func (m *Mapper) ObjectType(e interface{}) (string, error) {
	return m.registry.ResolveObjectType(e)
}

// Patch applies a flat record onto an entity and rebuilds its bookkeeping.
// Mapped fields whose external name is present in the record are overwritten;
// record keys without a mapping are ignored; mapped fields absent from the
// record keep their current value. A nil or empty record is valid and only
// refreshes the bookkeeping.
func (m *Mapper) Patch(e interface{}, record map[string]interface{}) error {
	et, book, err := m.resolve(e)
	if err != nil {
		return err
	}

	eager := make(map[string]entity.EagerRelation)
	required := make(map[string]*metadata.Field)

	for _, field := range et.Fields() {
		if field.Mapped() {
			if value, ok := record[field.External]; ok {
				if err := field.Set(e, value); err != nil {
					return fmt.Errorf("patch %s: %w", et.ObjectType, err)
				}
			}
		}
		if field.Relation != nil && !field.Relation.Lazy {
			eager[field.Name] = entity.EagerRelation{Field: field, Relation: field.Relation}
		}
		if field.Required {
			required[field.Name] = field
		}
	}

	book.SetEagerLoad(eager)
	book.SetRequiredFields(required)
	book.MarkPatched()

	m.log.Debug("patched entity",
		zap.String("object_type", et.ObjectType),
		zap.Int("record_keys", len(record)),
		zap.Int("eager_relations", len(eager)))

	return nil
}

// ToRecord serializes an entity's mapped fields into a flat record keyed by
// external field name. Read-only with respect to the entity; bookkeeping is
// not touched.
func (m *Mapper) ToRecord(e interface{}) (map[string]interface{}, error) {
	et, _, err := m.resolve(e)
	if err != nil {
		return nil, err
	}

	record := make(map[string]interface{})
	for _, field := range et.Fields() {
		if !field.Mapped() {
			continue
		}
		value, err := field.Get(e)
		if err != nil {
			return nil, fmt.Errorf("serialize %s: %w", et.ObjectType, err)
		}
		record[field.External] = value
	}

	return record, nil
}

// CheckRequired reports which required fields are currently unset. An entity
// that has never been patched is first patched with an empty record so the
// required-field bookkeeping exists.
func (m *Mapper) CheckRequired(e interface{}) (*validation.Result, error) {
	et, book, err := m.resolve(e)
	if err != nil {
		return nil, err
	}

	if !book.IsPatched() {
		if err := m.Patch(e, nil); err != nil {
			return nil, err
		}
	}

	result := &validation.Result{}
	required := book.RequiredFields()
	if len(required) == 0 {
		return result, nil
	}

	// Walk declared fields so the report follows declaration order.
	for _, field := range et.Fields() {
		handle, ok := required[field.Name]
		if !ok {
			continue
		}
		unset, err := handle.Unset(e)
		if err != nil {
			return nil, fmt.Errorf("check required %s: %w", et.ObjectType, err)
		}
		if unset {
			result.Missing = append(result.Missing, field.Name)
		}
	}

	return result, nil
}

// resolve looks up the entity's metadata and its bookkeeping surface
func (m *Mapper) resolve(e interface{}) (*metadata.EntityType, bookkeeper, error) {
	et, err := m.registry.Resolve(e)
	if err != nil {
		return nil, nil, err
	}
	book, ok := e.(bookkeeper)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %T does not embed entity.Entity", metadata.ErrReflectionFailure, e)
	}
	return et, book, nil
}

// Package entity provides the base type all mapped domain objects embed. The
// base carries the record's external id together with the mapper's own
// bookkeeping: whether the instance has been patched yet, which relation
// fields need eager loading, and which fields are mandatory. Bookkeeping
// always reflects the most recent patch, never a cumulative history.
package entity

import (
	"github.com/Metabor/salesforce-orm/orm/metadata"
)

// EagerRelation pairs a field handle with its relation descriptor. Entries
// are recorded by the mapper for relations declared eager; the relation
// loader consumes them to materialize related records.
type EagerRelation struct {
	Field    *metadata.Field
	Relation *metadata.Relation
}

// Entity is the embeddable base for all mapped types. The zero value is a
// fresh, unpersisted, unpatched entity. The mapper mutates it in place;
// callers sharing one instance across goroutines must synchronize externally.
type Entity struct {
	id        string
	persisted bool
	patched   bool

	eagerLoad map[string]EagerRelation
	required  map[string]*metadata.Field
}

// ID returns the external record id, empty until assigned by the remote store
func (e *Entity) ID() string {
	return e.id
}

// SetID assigns the external record id
func (e *Entity) SetID(id string) {
	e.id = id
}

// IsNew returns true until the entity has been persisted once
func (e *Entity) IsNew() bool {
	return !e.persisted
}

// MarkPersisted records that the entity exists in the remote store
func (e *Entity) MarkPersisted() {
	e.persisted = true
}

// IsPatched returns true once metadata-driven field population has run at
// least once
func (e *Entity) IsPatched() bool {
	return e.patched
}

// MarkPatched records that a patch has run
func (e *Entity) MarkPatched() {
	e.patched = true
}

// EagerLoad returns the relation fields recorded for eager loading by the
// most recent patch, keyed by field name
func (e *Entity) EagerLoad() map[string]EagerRelation {
	return e.eagerLoad
}

// SetEagerLoad replaces the eager-load bookkeeping
func (e *Entity) SetEagerLoad(relations map[string]EagerRelation) {
	e.eagerLoad = relations
}

// RequiredFields returns the field handles marked mandatory, keyed by field
// name, as recorded by the most recent patch
func (e *Entity) RequiredFields() map[string]*metadata.Field {
	return e.required
}

// SetRequiredFields replaces the required-field bookkeeping
func (e *Entity) SetRequiredFields(fields map[string]*metadata.Field) {
	e.required = fields
}

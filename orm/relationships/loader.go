// Package relationships materializes the eager relations recorded by the
// mapping engine. The engine only notes which relation fields are eager; this
// loader fetches the related records through a RecordSource and attaches
// them, recursing into the loaded entities' own eager relations with cycle
// and depth protection.
package relationships

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/Metabor/salesforce-orm/orm/entity"
	"github.com/Metabor/salesforce-orm/orm/mapper"
	"github.com/Metabor/salesforce-orm/orm/metadata"
)

// DefaultMaxDepth bounds how deep nested eager relations are followed
const DefaultMaxDepth = 10

// RecordSource fetches raw records from the remote store. Implemented by the
// REST client; stubbed in tests.
type RecordSource interface {
	// Record fetches a single record by object type and id
	Record(ctx context.Context, objectType, id string, fields []string) (map[string]interface{}, error)

	// RelatedRecords fetches the child records reachable from a parent
	// record through a named relationship
	RelatedRecords(ctx context.Context, objectType, id, relationship string) ([]map[string]interface{}, error)
}

// persisted is the slice of the entity base the loader needs
type persisted interface {
	ID() string
	SetID(string)
	MarkPersisted()
	EagerLoad() map[string]entity.EagerRelation
}

// Loader fetches and attaches eager relations
type Loader struct {
	source RecordSource
	mapper *mapper.Mapper
	log    *zap.Logger
}

// NewLoader creates a relation loader on top of a record source and the
// mapper used to patch fetched records onto related entities
func NewLoader(source RecordSource, m *mapper.Mapper) *Loader {
	return &Loader{
		source: source,
		mapper: m,
		log:    zap.NewNop(),
	}
}

// WithLogger sets the loader's logger and returns it
func (l *Loader) WithLogger(log *zap.Logger) *Loader {
	l.log = log
	return l
}

// Load materializes every eager relation recorded on a freshly patched
// entity. The record the entity was patched from supplies the foreign keys
// for single relations.
func (l *Loader) Load(ctx context.Context, e interface{}, record map[string]interface{}) error {
	return l.load(ctx, e, record, NewLoadContext(DefaultMaxDepth))
}

func (l *Loader) load(ctx context.Context, e interface{}, record map[string]interface{}, loadCtx *LoadContext) error {
	book, ok := e.(persisted)
	if !ok {
		return fmt.Errorf("%w: %T does not embed entity.Entity", ErrInvalidRelation, e)
	}
	et, err := l.mapper.Registry().Resolve(e)
	if err != nil {
		return err
	}

	eager := book.EagerLoad()
	if len(eager) == 0 {
		return nil
	}

	if err := loadCtx.IncrementDepth(); err != nil {
		return err
	}
	defer loadCtx.DecrementDepth()

	// Skip object types already being loaded on this path; a cycle of eager
	// relations would recurse forever otherwise.
	if !loadCtx.MarkVisited(et.ObjectType) {
		return nil
	}
	defer loadCtx.Unmark(et.ObjectType)

	// Field-name order keeps fetches and error reporting deterministic.
	names := make([]string, 0, len(eager))
	for name := range eager {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		rel := eager[name]
		switch rel.Relation.Kind {
		case metadata.RelationOne:
			err = l.loadOne(ctx, e, book, record, rel, loadCtx)
		case metadata.RelationMany:
			err = l.loadMany(ctx, e, book, et, rel, loadCtx)
		default:
			err = fmt.Errorf("%w: unknown kind %d", ErrInvalidRelation, rel.Relation.Kind)
		}
		if err != nil {
			return fmt.Errorf("load relation %s on %s: %w", name, et.ObjectType, err)
		}
	}

	return nil
}

// loadOne fetches the single record referenced by the parent's foreign key
// and attaches it
func (l *Loader) loadOne(
	ctx context.Context,
	e interface{},
	book persisted,
	record map[string]interface{},
	rel entity.EagerRelation,
	loadCtx *LoadContext,
) error {
	target, err := l.mapper.Registry().Resolve(rel.Relation.Target)
	if err != nil {
		return err
	}

	fk := rel.Relation.ForeignKey
	if fk == "" {
		fk = target.ObjectType + "Id"
	}
	id, ok := record[fk].(string)
	if !ok || id == "" {
		// Nothing to load; an unset lookup is not an error.
		return nil
	}

	related, err := l.source.Record(ctx, target.ObjectType, id, target.ExternalNames())
	if err != nil {
		return err
	}

	child := target.New()
	if err := l.attach(ctx, child, id, related, loadCtx); err != nil {
		return err
	}

	l.log.Debug("loaded relation",
		zap.String("object_type", target.ObjectType),
		zap.String("id", id))

	return rel.Field.Set(e, child)
}

// loadMany fetches the child records reachable through the relationship name
// and attaches them as a slice
func (l *Loader) loadMany(
	ctx context.Context,
	e interface{},
	book persisted,
	et *metadata.EntityType,
	rel entity.EagerRelation,
	loadCtx *LoadContext,
) error {
	if book.ID() == "" {
		// Parent was never persisted; it has no children to traverse to.
		return nil
	}

	target, err := l.mapper.Registry().Resolve(rel.Relation.Target)
	if err != nil {
		return err
	}

	relationship := rel.Relation.Name
	if relationship == "" {
		relationship = rel.Field.Name
	}

	records, err := l.source.RelatedRecords(ctx, et.ObjectType, book.ID(), relationship)
	if err != nil {
		return err
	}

	slice := reflect.MakeSlice(rel.Field.Type, 0, len(records))
	for _, related := range records {
		child := target.New()
		id, _ := related["Id"].(string)
		if err := l.attach(ctx, child, id, related, loadCtx); err != nil {
			return err
		}
		slice = reflect.Append(slice, reflect.ValueOf(child))
	}

	l.log.Debug("loaded relation collection",
		zap.String("object_type", target.ObjectType),
		zap.Int("count", slice.Len()))

	return rel.Field.Set(e, slice.Interface())
}

// attach patches a fetched record onto a fresh related entity and recurses
// into its own eager relations
func (l *Loader) attach(ctx context.Context, child interface{}, id string, record map[string]interface{}, loadCtx *LoadContext) error {
	if err := l.mapper.Patch(child, record); err != nil {
		return err
	}
	if book, ok := child.(persisted); ok {
		if id != "" {
			book.SetID(id)
		}
		book.MarkPersisted()
	}
	return l.load(ctx, child, record, loadCtx)
}

// LoadContext tracks loading state to prevent circular references
type LoadContext struct {
	visited  map[string]bool
	depth    int
	maxDepth int
	mu       sync.Mutex
}

// NewLoadContext creates a new load context with the given max depth
func NewLoadContext(maxDepth int) *LoadContext {
	return &LoadContext{
		visited:  make(map[string]bool),
		maxDepth: maxDepth,
	}
}

// MarkVisited marks an object type as being loaded on the current path.
// Returns false when it is already on the path.
func (lc *LoadContext) MarkVisited(objectType string) bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if lc.visited[objectType] {
		return false
	}
	lc.visited[objectType] = true
	return true
}

// Unmark removes an object type from the current path
func (lc *LoadContext) Unmark(objectType string) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	delete(lc.visited, objectType)
}

// IncrementDepth increments the depth counter
func (lc *LoadContext) IncrementDepth() error {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	lc.depth++
	if lc.depth > lc.maxDepth {
		return ErrMaxDepthExceeded
	}
	return nil
}

// DecrementDepth decrements the depth counter
func (lc *LoadContext) DecrementDepth() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.depth--
}

package sforce

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Metabor/salesforce-orm/orm/hooks"
	"github.com/Metabor/salesforce-orm/orm/mapper"
	"github.com/Metabor/salesforce-orm/orm/relationships"
)

// record is the persistence-facing surface of the embedded entity base
type record interface {
	ID() string
	SetID(string)
	IsNew() bool
	MarkPersisted()
}

// Repository persists entities through the REST client. Save and Fetch drive
// the full pipeline: required-field validation, lifecycle hooks, record
// serialization, and eager relation loading.
type Repository struct {
	client *Client
	mapper *mapper.Mapper
	hooks  *hooks.Executor
	loader *relationships.Loader
	log    *zap.Logger
}

// RepositoryOption configures a Repository
type RepositoryOption func(*Repository)

// WithMapper sets the mapper used for patch/serialize
func WithMapper(m *mapper.Mapper) RepositoryOption {
	return func(r *Repository) {
		r.mapper = m
	}
}

// WithHooks sets the lifecycle hook executor
func WithHooks(x *hooks.Executor) RepositoryOption {
	return func(r *Repository) {
		r.hooks = x
	}
}

// WithLogger sets the repository's logger
func WithLogger(log *zap.Logger) RepositoryOption {
	return func(r *Repository) {
		r.log = log
	}
}

// NewRepository creates a repository over a client
func NewRepository(client *Client, opts ...RepositoryOption) *Repository {
	r := &Repository{
		client: client,
		mapper: mapper.New(),
		hooks:  hooks.NewExecutor(),
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.loader = relationships.NewLoader(client, r.mapper)
	return r
}

// Mapper returns the mapper the repository serializes with
func (r *Repository) Mapper() *mapper.Mapper {
	return r.mapper
}

// Hooks returns the repository's hook executor
func (r *Repository) Hooks() *hooks.Executor {
	return r.hooks
}

// Save persists an entity: validates required fields, runs before hooks,
// serializes the mapped fields and creates or updates the remote record. On
// first persistence the store-assigned id is written back onto the entity.
func (r *Repository) Save(ctx context.Context, e interface{}) error {
	objectType, err := r.mapper.ObjectType(e)
	if err != nil {
		return err
	}
	book, ok := e.(record)
	if !ok {
		return fmt.Errorf("save %s: %T does not embed entity.Entity", objectType, e)
	}

	result, err := r.mapper.CheckRequired(e)
	if err != nil {
		return err
	}
	if !result.OK() {
		return fmt.Errorf("save %s: %w", objectType, result.Err())
	}

	if err := r.hooks.Execute(ctx, objectType, hooks.BeforeSave, e); err != nil {
		return err
	}

	creating := book.IsNew()
	beforeHook, afterHook := hooks.BeforeUpdate, hooks.AfterUpdate
	if creating {
		beforeHook, afterHook = hooks.BeforeCreate, hooks.AfterCreate
	}
	if err := r.hooks.Execute(ctx, objectType, beforeHook, e); err != nil {
		return err
	}

	rec, err := r.mapper.ToRecord(e)
	if err != nil {
		return err
	}

	if creating {
		id, err := r.client.Create(ctx, objectType, rec)
		if err != nil {
			return err
		}
		book.SetID(id)
		book.MarkPersisted()
	} else {
		if book.ID() == "" {
			return fmt.Errorf("save %s: persisted entity has no id", objectType)
		}
		if err := r.client.Update(ctx, objectType, book.ID(), rec); err != nil {
			return err
		}
	}

	if err := r.hooks.Execute(ctx, objectType, afterHook, e); err != nil {
		return err
	}
	if err := r.hooks.Execute(ctx, objectType, hooks.AfterSave, e); err != nil {
		return err
	}

	r.log.Debug("saved entity",
		zap.String("object_type", objectType),
		zap.String("id", book.ID()),
		zap.Bool("created", creating))

	return nil
}

// Fetch populates an entity from the remote record with the given id and
// eagerly loads its non-lazy relations
func (r *Repository) Fetch(ctx context.Context, id string, e interface{}) error {
	et, err := r.mapper.Registry().Resolve(e)
	if err != nil {
		return err
	}
	book, ok := e.(record)
	if !ok {
		return fmt.Errorf("fetch %s: %T does not embed entity.Entity", et.ObjectType, e)
	}

	rec, err := r.client.Get(ctx, et.ObjectType, id, et.ExternalNames())
	if err != nil {
		return err
	}

	if err := r.mapper.Patch(e, rec); err != nil {
		return err
	}
	book.SetID(id)
	book.MarkPersisted()

	if err := r.loader.Load(ctx, e, rec); err != nil {
		return err
	}

	r.log.Debug("fetched entity",
		zap.String("object_type", et.ObjectType),
		zap.String("id", id))

	return nil
}

// Delete removes the entity's remote record. The entity instance itself is
// left untouched.
func (r *Repository) Delete(ctx context.Context, e interface{}) error {
	objectType, err := r.mapper.ObjectType(e)
	if err != nil {
		return err
	}
	book, ok := e.(record)
	if !ok {
		return fmt.Errorf("delete %s: %T does not embed entity.Entity", objectType, e)
	}
	if book.ID() == "" {
		return fmt.Errorf("delete %s: entity has no id", objectType)
	}

	if err := r.hooks.Execute(ctx, objectType, hooks.BeforeDelete, e); err != nil {
		return err
	}
	if err := r.client.Delete(ctx, objectType, book.ID()); err != nil {
		return err
	}
	return r.hooks.Execute(ctx, objectType, hooks.AfterDelete, e)
}

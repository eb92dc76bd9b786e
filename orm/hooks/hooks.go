// Package hooks provides lifecycle hook registration and execution for
// entity persistence. Hooks run synchronously in registration order; the
// mapping engine itself never invokes them.
package hooks

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Type represents the lifecycle hook point
type Type int

const (
	BeforeSave Type = iota
	BeforeCreate
	BeforeUpdate
	BeforeDelete
	AfterSave
	AfterCreate
	AfterUpdate
	AfterDelete
)

// String returns the string representation of the hook type
func (t Type) String() string {
	switch t {
	case BeforeSave:
		return "before_save"
	case BeforeCreate:
		return "before_create"
	case BeforeUpdate:
		return "before_update"
	case BeforeDelete:
		return "before_delete"
	case AfterSave:
		return "after_save"
	case AfterCreate:
		return "after_create"
	case AfterUpdate:
		return "after_update"
	case AfterDelete:
		return "after_delete"
	default:
		return "unknown"
	}
}

// Func is a hook function invoked with the entity being persisted
type Func func(ctx context.Context, e interface{}) error

// BeforeSaver is implemented by entities that want a hook invoked before any
// persistence, in addition to hooks registered externally
type BeforeSaver interface {
	BeforeSave(ctx context.Context) error
}

// AfterSaver is implemented by entities that want a hook invoked after any
// successful persistence
type AfterSaver interface {
	AfterSave(ctx context.Context) error
}

// Registry manages registered hooks, keyed by external object-type name
type Registry struct {
	mu    sync.RWMutex
	hooks map[string]map[Type][]Func
}

// NewRegistry creates a new hook registry
func NewRegistry() *Registry {
	return &Registry{
		hooks: make(map[string]map[Type][]Func),
	}
}

// Register adds a hook for an object type
func (r *Registry) Register(objectType string, hookType Type, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hooks[objectType] == nil {
		r.hooks[objectType] = make(map[Type][]Func)
	}
	r.hooks[objectType][hookType] = append(r.hooks[objectType][hookType], fn)
}

// Hooks returns all hooks registered for an object type and hook point
func (r *Registry) Hooks(objectType string, hookType Type) []Func {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.hooks[objectType][hookType]
}

// Executor executes lifecycle hooks for entities
type Executor struct {
	registry *Registry
	log      *zap.Logger
}

// NewExecutor creates a new hook executor with its own registry
func NewExecutor() *Executor {
	return NewExecutorWithRegistry(NewRegistry())
}

// NewExecutorWithRegistry creates a new hook executor sharing a registry
func NewExecutorWithRegistry(registry *Registry) *Executor {
	return &Executor{
		registry: registry,
		log:      zap.NewNop(),
	}
}

// WithLogger sets the executor's logger and returns it
func (x *Executor) WithLogger(log *zap.Logger) *Executor {
	x.log = log
	return x
}

// Register adds a hook for an object type
func (x *Executor) Register(objectType string, hookType Type, fn Func) {
	x.registry.Register(objectType, hookType, fn)
}

// Execute runs all hooks for the given object type and hook point, then any
// hook the entity itself implements. The first failing hook aborts the chain.
func (x *Executor) Execute(ctx context.Context, objectType string, hookType Type, e interface{}) error {
	for _, fn := range x.registry.Hooks(objectType, hookType) {
		if err := fn(ctx, e); err != nil {
			return fmt.Errorf("hook %s on %s failed: %w", hookType, objectType, err)
		}
	}

	switch hookType {
	case BeforeSave:
		if bs, ok := e.(BeforeSaver); ok {
			if err := bs.BeforeSave(ctx); err != nil {
				return fmt.Errorf("hook %s on %s failed: %w", hookType, objectType, err)
			}
		}
	case AfterSave:
		if as, ok := e.(AfterSaver); ok {
			if err := as.AfterSave(ctx); err != nil {
				return fmt.Errorf("hook %s on %s failed: %w", hookType, objectType, err)
			}
		}
	}

	x.log.Debug("executed hooks",
		zap.String("object_type", objectType),
		zap.String("hook", hookType.String()))

	return nil
}

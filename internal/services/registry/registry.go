package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/eddy-backend/eddy/internal/entities"
)

var (
	// ErrDuplicateEntity is returned when an entity name is registered twice
	ErrDuplicateEntity = errors.New("entity already registered")
	// ErrFrozen is returned when Register is called after Init
	ErrFrozen = errors.New("registry is initialized and immutable")
	// ErrNotInitialized is returned by lookups made before Init
	ErrNotInitialized = errors.New("registry is not initialized")
)

// Dependent is an owning reference from one entity to another.
// Deleting a record of the target entity deletes the records that point at it through Field.
type Dependent struct {
	Entity *entities.EntitySchema
	Field  *entities.FieldSpec
}

// Registry holds every entity schema known to the process.
// Schemas are registered once at startup, then Init freezes the registry.
type Registry struct {
	mu         sync.RWMutex
	order      []string
	schemas    map[string]*entities.EntitySchema
	dependents map[string][]Dependent
	principal  *entities.EntitySchema
	frozen     bool
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		schemas: make(map[string]*entities.EntitySchema),
	}
}

// FromSchema registers every entity of a parsed schema and initializes the registry
func FromSchema(schema *entities.Schema) (*Registry, error) {
	r := New()
	for _, entity := range schema.Entities {
		if err := r.Register(entity); err != nil {
			return nil, err
		}
	}
	if err := r.Init(); err != nil {
		return nil, err
	}
	return r, nil
}

// Register adds an entity schema. Registering a name twice is a configuration error.
func (r *Registry) Register(schema *entities.EntitySchema) error {
	if schema == nil {
		return fmt.Errorf("schema is required")
	}
	if err := schema.Validate(); err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("cannot register %s: %w", schema.Name, ErrFrozen)
	}
	if _, exists := r.schemas[schema.Name]; exists {
		return fmt.Errorf("%s: %w", schema.Name, ErrDuplicateEntity)
	}

	r.schemas[schema.Name] = schema
	r.order = append(r.order, schema.Name)
	return nil
}

// Init checks cross-entity references, indexes dependents and freezes the registry
func (r *Registry) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return nil
	}

	var principal *entities.EntitySchema
	for _, name := range r.order {
		schema := r.schemas[name]
		if !schema.IsPrincipal {
			continue
		}
		if principal != nil {
			return fmt.Errorf("more than one principal entity: %s, %s", principal.Name, schema.Name)
		}
		principal = schema
	}

	dependents := make(map[string][]Dependent)
	for _, name := range r.order {
		schema := r.schemas[name]
		for _, field := range schema.Fields {
			if !field.IsReference() {
				continue
			}
			if _, ok := r.schemas[field.Target]; !ok {
				return fmt.Errorf("entity %s: field %s references unregistered entity %s", schema.Name, field.Name, field.Target)
			}
			if field.Kind == entities.FieldKindOwningReference {
				dependents[field.Target] = append(dependents[field.Target], Dependent{Entity: schema, Field: field})
			}
		}
		if schema.OwnerField != nil && (principal == nil || schema.OwnerField.Target != principal.Name) {
			return fmt.Errorf("entity %s: owner must reference the principal entity", schema.Name)
		}
	}

	r.principal = principal
	r.dependents = dependents
	r.frozen = true
	return nil
}

// Get returns the schema registered under name
func (r *Registry) Get(name string) (*entities.EntitySchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schema, ok := r.schemas[name]
	return schema, ok
}

// Entities returns the registered schemas in registration order
func (r *Registry) Entities() []*entities.EntitySchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*entities.EntitySchema, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.schemas[name])
	}
	return result
}

// Principal returns the principal entity schema, nil if none is registered
func (r *Registry) Principal() (*entities.EntitySchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.frozen {
		return nil, ErrNotInitialized
	}
	return r.principal, nil
}

// Dependents returns the owning references that point at the named entity
func (r *Registry) Dependents(name string) ([]Dependent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.frozen {
		return nil, ErrNotInitialized
	}
	return r.dependents[name], nil
}

// Initialized reports whether Init has completed
func (r *Registry) Initialized() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

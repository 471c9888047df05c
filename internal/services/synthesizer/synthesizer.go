package synthesizer

import (
	"context"
	"fmt"

	"github.com/eddy-backend/eddy/internal/entities"
	"github.com/eddy-backend/eddy/internal/repositories"
	"github.com/eddy-backend/eddy/internal/services/authorization"
	"github.com/eddy-backend/eddy/internal/services/registry"
)

// SecretHasher turns secret field values into one-way digests
type SecretHasher interface {
	Hash(plaintext string) (string, error)
}

// Hook is invoked after a write has been committed to the store.
// A hook error does not undo the write; the operation reports it as CollaboratorUnavailable.
type Hook interface {
	AfterCreate(ctx context.Context, schema *entities.EntitySchema, rec *entities.Record) error
	AfterUpdate(ctx context.Context, schema *entities.EntitySchema, before, after *entities.Record) error
	AfterDelete(ctx context.Context, schema *entities.EntitySchema, rec *entities.Record) error
}

// NopHook implements Hook with no-ops. Embed it to implement only some callbacks.
type NopHook struct{}

// AfterCreate does nothing
func (NopHook) AfterCreate(context.Context, *entities.EntitySchema, *entities.Record) error {
	return nil
}

// AfterUpdate does nothing
func (NopHook) AfterUpdate(context.Context, *entities.EntitySchema, *entities.Record, *entities.Record) error {
	return nil
}

// AfterDelete does nothing
func (NopHook) AfterDelete(context.Context, *entities.EntitySchema, *entities.Record) error {
	return nil
}

// Synthesizer builds the CRUD operations of registered entities.
// It holds no per-request state; the store is the only shared collaborator.
type Synthesizer struct {
	registry *registry.Registry
	store    repositories.RecordRepository
	hasher   SecretHasher
	rules    *authorization.RuleEngine
	hooks    map[string][]Hook
}

// Option configures a Synthesizer
type Option func(*Synthesizer)

// WithHook registers a post-commit hook for one entity
func WithHook(entity string, hook Hook) Option {
	return func(s *Synthesizer) {
		s.hooks[entity] = append(s.hooks[entity], hook)
	}
}

// WithRuleEngine sets the engine that evaluates entity validation rules
func WithRuleEngine(engine *authorization.RuleEngine) Option {
	return func(s *Synthesizer) {
		s.rules = engine
	}
}

// New creates a new Synthesizer over an initialized registry
func New(reg *registry.Registry, store repositories.RecordRepository, hasher SecretHasher, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		registry: reg,
		store:    store,
		hasher:   hasher,
		hooks:    make(map[string][]Hook),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Build produces the operation set of one registered entity.
// Validation rules are compiled here so a broken rule fails at startup, not on first write.
func (s *Synthesizer) Build(schema *entities.EntitySchema) (*OperationSet, error) {
	if !s.registry.Initialized() {
		return nil, registry.ErrNotInitialized
	}
	registered, ok := s.registry.Get(schema.Name)
	if !ok || registered != schema {
		return nil, fmt.Errorf("entity %s is not registered", schema.Name)
	}

	if len(schema.Rules) > 0 {
		if s.rules == nil {
			return nil, fmt.Errorf("entity %s declares rules but no rule engine is configured", schema.Name)
		}
		if err := s.rules.Compile(schema); err != nil {
			return nil, fmt.Errorf("failed to compile rules: %w", err)
		}
	}

	for _, field := range schema.Fields {
		if field.Kind == entities.FieldKindSecret && s.hasher == nil {
			return nil, fmt.Errorf("entity %s has secret field %s but no hasher is configured", schema.Name, field.Name)
		}
	}

	return &OperationSet{Schema: schema, synth: s}, nil
}

// BuildAll produces the operation sets of every registered entity in registration order
func (s *Synthesizer) BuildAll() ([]*OperationSet, error) {
	schemas := s.registry.Entities()
	sets := make([]*OperationSet, 0, len(schemas))
	for _, schema := range schemas {
		set, err := s.Build(schema)
		if err != nil {
			return nil, err
		}
		sets = append(sets, set)
	}
	return sets, nil
}

func (s *Synthesizer) schemaOf(name string) (*entities.EntitySchema, error) {
	schema, ok := s.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("entity %s is not registered", name)
	}
	return schema, nil
}

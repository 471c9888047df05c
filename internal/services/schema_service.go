package services

import (
	"fmt"

	"github.com/eddy-backend/eddy/internal/entities"
	"github.com/eddy-backend/eddy/internal/repositories"
	"github.com/eddy-backend/eddy/internal/services/authorization"
	"github.com/eddy-backend/eddy/internal/services/parser"
	"github.com/eddy-backend/eddy/internal/services/registry"
	"github.com/eddy-backend/eddy/internal/services/synthesizer"
)

// SchemaServiceInterface defines the interface for schema loading operations
type SchemaServiceInterface interface {
	LoadSchema(path string) error
	ValidateSchema(schemaDSL string) error
	Schema() *entities.Schema
	Registry() *registry.Registry
	BuildOperations(store repositories.RecordRepository, hasher synthesizer.SecretHasher, opts ...synthesizer.Option) ([]*synthesizer.OperationSet, error)
}

// SchemaService turns the schema source into a registry and the operations of its entities
type SchemaService struct {
	schema   *entities.Schema
	registry *registry.Registry
	rules    *authorization.RuleEngine
}

var _ SchemaServiceInterface = (*SchemaService)(nil)

// NewSchemaService creates a new SchemaService
func NewSchemaService() (*SchemaService, error) {
	rules, err := authorization.NewRuleEngine()
	if err != nil {
		return nil, fmt.Errorf("failed to create rule engine: %w", err)
	}
	return &SchemaService{rules: rules}, nil
}

// LoadSchema parses the schema file and registers its entities
func (s *SchemaService) LoadSchema(path string) error {
	schema, err := parser.ParseFile(path)
	if err != nil {
		return err
	}
	return s.use(schema)
}

// LoadSchemaDSL is LoadSchema for DSL text
func (s *SchemaService) LoadSchemaDSL(schemaDSL string) error {
	schema, err := parser.ParseSchema(schemaDSL)
	if err != nil {
		return err
	}
	return s.use(schema)
}

// ValidateSchema checks a DSL string without loading it
func (s *SchemaService) ValidateSchema(schemaDSL string) error {
	if schemaDSL == "" {
		return fmt.Errorf("schema DSL is required")
	}
	schema, err := parser.ParseSchema(schemaDSL)
	if err != nil {
		return err
	}
	_, err = s.check(schema)
	return err
}

// Schema returns the loaded schema, nil before LoadSchema
func (s *SchemaService) Schema() *entities.Schema {
	return s.schema
}

// Registry returns the registry of the loaded schema, nil before LoadSchema
func (s *SchemaService) Registry() *registry.Registry {
	return s.registry
}

// BuildOperations builds the operation sets of every loaded entity.
// Validation rules are evaluated by the service's rule engine.
func (s *SchemaService) BuildOperations(store repositories.RecordRepository, hasher synthesizer.SecretHasher, opts ...synthesizer.Option) ([]*synthesizer.OperationSet, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("no schema loaded")
	}
	opts = append([]synthesizer.Option{synthesizer.WithRuleEngine(s.rules)}, opts...)
	sets, err := synthesizer.New(s.registry, store, hasher, opts...).BuildAll()
	if err != nil {
		return nil, fmt.Errorf("failed to build operations: %w", err)
	}
	return sets, nil
}

func (s *SchemaService) use(schema *entities.Schema) error {
	reg, err := s.check(schema)
	if err != nil {
		return err
	}
	s.schema = schema
	s.registry = reg
	return nil
}

// check registers the schema and type-checks every rule
func (s *SchemaService) check(schema *entities.Schema) (*registry.Registry, error) {
	reg, err := registry.FromSchema(schema)
	if err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}
	for _, entity := range schema.Entities {
		for _, rule := range entity.Rules {
			if err := s.rules.ValidateExpression(rule.Expression); err != nil {
				return nil, fmt.Errorf("schema validation failed: entity %s: rule %s: %w", entity.Name, rule.Name, err)
			}
		}
	}
	return reg, nil
}

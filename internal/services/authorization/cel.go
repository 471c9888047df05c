package authorization

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/eddy-backend/eddy/internal/entities"
	"github.com/google/cel-go/cel"
)

// RuleEngine evaluates the CEL validation rules declared on entities.
// Rules see the record being written as "self" and the caller as "principal".
// Example: size(self.label) > 0 && principal.superuser
type RuleEngine struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string][]compiledRule // entity name -> rules
}

type compiledRule struct {
	name       string
	expression string
	program    cel.Program
}

// NewRuleEngine creates a new rule engine with the self and principal declarations
func NewRuleEngine() (*RuleEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("self", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("principal", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &RuleEngine{
		env:      env,
		programs: make(map[string][]compiledRule),
	}, nil
}

// ValidateExpression validates a CEL expression without evaluating it
func (e *RuleEngine) ValidateExpression(expression string) error {
	_, err := e.compile(expression)
	return err
}

func (e *RuleEngine) compile(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid CEL expression: %w", issues.Err())
	}

	// Check that the expression returns a boolean
	if ast.OutputType() != cel.BoolType && ast.OutputType() != cel.DynType {
		return nil, fmt.Errorf("CEL expression must return boolean, got: %s", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}
	return program, nil
}

// Compile compiles every rule of the entity once. Check uses the compiled programs.
func (e *RuleEngine) Compile(schema *entities.EntitySchema) error {
	rules := make([]compiledRule, 0, len(schema.Rules))
	for _, rule := range schema.Rules {
		program, err := e.compile(rule.Expression)
		if err != nil {
			return fmt.Errorf("entity %s: rule %s: %w", schema.Name, rule.Name, err)
		}
		rules = append(rules, compiledRule{name: rule.Name, expression: rule.Expression, program: program})
	}

	e.mu.Lock()
	e.programs[schema.Name] = rules
	e.mu.Unlock()
	return nil
}

// Check evaluates the entity's rules against rec. A rule that is false or cannot be
// evaluated (for example because a field it reads is unset) is an InvalidArgument failure.
func (e *RuleEngine) Check(schema *entities.EntitySchema, rec *entities.Record, principal *entities.Principal) error {
	e.mu.RLock()
	rules, ok := e.programs[schema.Name]
	e.mu.RUnlock()
	if !ok {
		if len(schema.Rules) == 0 {
			return nil
		}
		return fmt.Errorf("rules of entity %s are not compiled", schema.Name)
	}
	if len(rules) == 0 {
		return nil
	}

	vars := map[string]interface{}{
		"self":      selfValues(schema, rec),
		"principal": principalValues(principal),
	}

	for _, rule := range rules {
		result, _, err := rule.program.Eval(vars)
		if err != nil {
			return entities.NewError(entities.KindInvalidArgument, schema.Name, "rule %s could not be evaluated: %v", rule.name, err)
		}
		passed, ok := result.Value().(bool)
		if !ok {
			return entities.NewError(entities.KindInvalidArgument, schema.Name, "rule %s did not evaluate to boolean, got: %T", rule.name, result.Value())
		}
		if !passed {
			return entities.NewError(entities.KindInvalidArgument, schema.Name, "rule %s failed: %s", rule.name, rule.expression)
		}
	}
	return nil
}

// selfValues builds the "self" map: id, owner and every set non-secret field
func selfValues(schema *entities.EntitySchema, rec *entities.Record) map[string]interface{} {
	self := map[string]interface{}{entities.IDField: rec.ID}
	if schema.OwnerField != nil && rec.OwnerID != nil {
		self[schema.OwnerField.Name] = *rec.OwnerID
	}
	for _, field := range schema.Fields {
		if field.Kind == entities.FieldKindAutoKey || field.Kind == entities.FieldKindSecret || schema.IsOwnerField(field) {
			continue
		}
		if value, ok := rec.Values[field.Name]; ok && value != nil {
			self[field.Name] = toCELNative(value)
		}
	}
	return self
}

func principalValues(p *entities.Principal) map[string]interface{} {
	if p == nil {
		p = entities.Anonymous()
	}
	return map[string]interface{}{
		"id":            p.ID,
		"authenticated": p.Authenticated,
		"superuser":     p.Superuser,
	}
}

// toCELNative converts values the CEL type adapter does not know (json.Number) into native ones
func toCELNative(value interface{}) interface{} {
	switch v := value.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[k] = toCELNative(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = toCELNative(item)
		}
		return out
	}
	return value
}

package parser

import (
	"fmt"
	"strings"

	"github.com/eddy-backend/eddy/internal/entities"
)

// Validator validates the parsed schema AST
type Validator struct {
	schema   *SchemaAST
	errors   []string
	entities map[string]*EntityAST
}

// NewValidator creates a new Validator
func NewValidator(schema *SchemaAST) *Validator {
	entities := make(map[string]*EntityAST)
	for _, entity := range schema.Entities {
		entities[entity.Name] = entity
	}
	return &Validator{
		schema:   schema,
		errors:   []string{},
		entities: entities,
	}
}

// Validate validates the schema and returns error if invalid
func (v *Validator) Validate() error {
	v.validateUniqueEntityNames()
	v.validatePrincipal()
	v.validateEntityDefinitions()
	v.validateReferenceTargets()
	v.validateOwners()

	if len(v.errors) > 0 {
		return fmt.Errorf("validation errors:\n%s", strings.Join(v.errors, "\n"))
	}
	return nil
}

// validateUniqueEntityNames checks for duplicate entity names
func (v *Validator) validateUniqueEntityNames() {
	seen := make(map[string]bool)
	for _, entity := range v.schema.Entities {
		if seen[entity.Name] {
			v.errors = append(v.errors, fmt.Sprintf("duplicate entity name: %s", entity.Name))
		}
		seen[entity.Name] = true
	}
}

// validatePrincipal checks that at most one entity is flagged as principal
func (v *Validator) validatePrincipal() {
	var principals []string
	for _, entity := range v.schema.Entities {
		if entity.Principal {
			principals = append(principals, entity.Name)
		}
	}
	if len(principals) > 1 {
		v.errors = append(v.errors, fmt.Sprintf("more than one principal entity: %s", strings.Join(principals, ", ")))
	}
}

// validateEntityDefinitions validates each entity's internal structure
func (v *Validator) validateEntityDefinitions() {
	for _, entity := range v.schema.Entities {
		v.validateEntityUniqueness(entity)
		v.validateFieldTypes(entity)
		v.validateModifiers(entity)
	}
}

// validateEntityUniqueness checks for duplicate names within an entity
func (v *Validator) validateEntityUniqueness(entity *EntityAST) {
	names := map[string]bool{entities.IDField: true}
	args := make(map[string]string)

	claim := func(name, argument string) {
		if names[name] {
			v.errors = append(v.errors, fmt.Sprintf("entity %s: duplicate field name: %s", entity.Name, name))
			return
		}
		names[name] = true
		if other, ok := args[argument]; ok {
			v.errors = append(v.errors, fmt.Sprintf("entity %s: fields %s and %s share the argument name %s", entity.Name, other, name, argument))
			return
		}
		args[argument] = name
	}

	for _, owner := range entity.Owners {
		claim(owner.Target, owner.Target+"_id")
	}
	for _, field := range entity.Fields {
		claim(field.Name, argumentName(field))
	}

	rules := make(map[string]bool)
	for _, rule := range entity.Rules {
		if rules[rule.Name] {
			v.errors = append(v.errors, fmt.Sprintf("entity %s: duplicate rule name: %s", entity.Name, rule.Name))
		}
		rules[rule.Name] = true
		if rule.Expression == "" {
			v.errors = append(v.errors, fmt.Sprintf("entity %s: rule %s has empty expression", entity.Name, rule.Name))
		}
	}
}

// validateFieldTypes validates scalar type declarations
func (v *Validator) validateFieldTypes(entity *EntityAST) {
	for _, field := range entity.Fields {
		if field.Clause != ClauseField {
			continue
		}
		if _, err := entities.ParseScalarType(field.Type); err != nil {
			v.errors = append(v.errors, fmt.Sprintf("entity %s: invalid field type: %s (field: %s)", entity.Name, field.Type, field.Name))
		}
	}
}

// validateModifiers checks that unique and mutable are only used where they mean something
func (v *Validator) validateModifiers(entity *EntityAST) {
	for _, field := range entity.Fields {
		if field.Mutable && field.Clause != ClauseRelation && field.Clause != ClauseCollection {
			v.errors = append(v.errors, fmt.Sprintf("entity %s: only relations and collections can be mutable (field: %s)", entity.Name, field.Name))
		}
		if field.Unique && field.Clause == ClauseCollection {
			v.errors = append(v.errors, fmt.Sprintf("entity %s: collections cannot be unique (field: %s)", entity.Name, field.Name))
		}
	}
}

// validateReferenceTargets checks that relation and collection targets reference existing entities
func (v *Validator) validateReferenceTargets() {
	for _, entity := range v.schema.Entities {
		for _, field := range entity.Fields {
			if field.Clause != ClauseRelation && field.Clause != ClauseCollection {
				continue
			}
			if _, exists := v.entities[field.Target]; !exists {
				v.errors = append(v.errors, fmt.Sprintf("entity %s: %s %s references undefined entity: %s", entity.Name, field.Clause, field.Name, field.Target))
			}
		}
	}
}

// validateOwners checks owner clauses: one per entity, targeting the principal entity
func (v *Validator) validateOwners() {
	for _, entity := range v.schema.Entities {
		if len(entity.Owners) == 0 {
			continue
		}
		if len(entity.Owners) > 1 {
			v.errors = append(v.errors, fmt.Sprintf("entity %s: more than one owner declared", entity.Name))
		}
		if entity.Principal {
			v.errors = append(v.errors, fmt.Sprintf("entity %s: a principal entity cannot declare an owner", entity.Name))
		}
		for _, owner := range entity.Owners {
			target, exists := v.entities[owner.Target]
			if !exists {
				v.errors = append(v.errors, fmt.Sprintf("entity %s: owner references undefined entity: %s", entity.Name, owner.Target))
				continue
			}
			if !target.Principal {
				v.errors = append(v.errors, fmt.Sprintf("entity %s: owner %s is not the principal entity", entity.Name, owner.Target))
			}
		}
	}
}

// argumentName mirrors entities.FieldSpec.ArgumentName for AST fields
func argumentName(field *FieldAST) string {
	switch field.Clause {
	case ClauseRelation:
		return field.Name + "_id"
	case ClauseCollection:
		return field.Name + "_ids"
	default:
		return field.Name
	}
}

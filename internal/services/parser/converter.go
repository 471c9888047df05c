package parser

import (
	"fmt"

	"github.com/eddy-backend/eddy/internal/entities"
)

// ASTToSchema converts SchemaAST to entities.Schema.
// Every entity gets the implicit id auto key first, then its owner, then fields in declaration order.
func ASTToSchema(ast *SchemaAST) (*entities.Schema, error) {
	schema := &entities.Schema{
		Entities: make([]*entities.EntitySchema, 0, len(ast.Entities)),
	}

	for _, entityAST := range ast.Entities {
		entity, err := convertEntity(entityAST)
		if err != nil {
			return nil, fmt.Errorf("failed to convert entity %s: %w", entityAST.Name, err)
		}
		schema.Entities = append(schema.Entities, entity)
	}

	return schema, nil
}

// SchemaToAST converts entities.Schema to SchemaAST
func SchemaToAST(schema *entities.Schema) *SchemaAST {
	ast := &SchemaAST{
		Entities: make([]*EntityAST, 0, len(schema.Entities)),
	}
	for _, entity := range schema.Entities {
		ast.Entities = append(ast.Entities, convertEntityToAST(entity))
	}
	return ast
}

// convertEntity converts EntityAST to entities.EntitySchema
func convertEntity(ast *EntityAST) (*entities.EntitySchema, error) {
	entity := &entities.EntitySchema{
		Name:              ast.Name,
		RequiresSuperuser: ast.SuperuserOnly,
		IsPrincipal:       ast.Principal,
		Fields:            []*entities.FieldSpec{{Name: entities.IDField, Kind: entities.FieldKindAutoKey}},
		Rules:             make([]*entities.ValidationRule, 0, len(ast.Rules)),
	}

	for _, owner := range ast.Owners {
		field := &entities.FieldSpec{
			Name:   owner.Target,
			Kind:   entities.FieldKindOwningReference,
			Target: owner.Target,
			Unique: owner.Unique,
		}
		entity.Fields = append(entity.Fields, field)
		entity.OwnerField = field
	}

	for _, fieldAST := range ast.Fields {
		field, err := convertField(fieldAST)
		if err != nil {
			return nil, err
		}
		entity.Fields = append(entity.Fields, field)
	}

	for _, rule := range ast.Rules {
		entity.Rules = append(entity.Rules, &entities.ValidationRule{
			Name:       rule.Name,
			Expression: rule.Expression,
		})
	}

	if err := entity.Validate(); err != nil {
		return nil, err
	}
	return entity, nil
}

// convertField converts FieldAST to entities.FieldSpec
func convertField(ast *FieldAST) (*entities.FieldSpec, error) {
	field := &entities.FieldSpec{
		Name:    ast.Name,
		Unique:  ast.Unique,
		Mutable: ast.Mutable,
	}

	switch ast.Clause {
	case ClauseField:
		scalarType, err := entities.ParseScalarType(ast.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", ast.Name, err)
		}
		field.Kind = entities.FieldKindScalar
		field.Type = scalarType
	case ClauseSecret:
		field.Kind = entities.FieldKindSecret
	case ClauseRelation:
		field.Kind = entities.FieldKindOwningReference
		field.Target = ast.Target
	case ClauseCollection:
		field.Kind = entities.FieldKindReverseCollection
		field.Target = ast.Target
	default:
		return nil, fmt.Errorf("field %s: unknown clause %s", ast.Name, ast.Clause)
	}

	return field, nil
}

// convertEntityToAST converts entities.EntitySchema to EntityAST
func convertEntityToAST(entity *entities.EntitySchema) *EntityAST {
	ast := &EntityAST{
		Name:          entity.Name,
		Principal:     entity.IsPrincipal,
		SuperuserOnly: entity.RequiresSuperuser,
		Owners:        []*OwnerAST{},
		Fields:        []*FieldAST{},
		Rules:         []*RuleAST{},
	}

	for _, field := range entity.Fields {
		if field.Kind == entities.FieldKindAutoKey {
			continue
		}
		if entity.IsOwnerField(field) {
			ast.Owners = append(ast.Owners, &OwnerAST{Target: field.Target, Unique: field.Unique})
			continue
		}

		fieldAST := &FieldAST{
			Name:    field.Name,
			Target:  field.Target,
			Unique:  field.Unique,
			Mutable: field.Mutable,
		}
		switch field.Kind {
		case entities.FieldKindScalar:
			fieldAST.Clause = ClauseField
			fieldAST.Type = string(field.Type)
		case entities.FieldKindSecret:
			fieldAST.Clause = ClauseSecret
		case entities.FieldKindOwningReference:
			fieldAST.Clause = ClauseRelation
		case entities.FieldKindReverseCollection:
			fieldAST.Clause = ClauseCollection
		}
		ast.Fields = append(ast.Fields, fieldAST)
	}

	for _, rule := range entity.Rules {
		ast.Rules = append(ast.Rules, &RuleAST{Name: rule.Name, Expression: rule.Expression})
	}

	return ast
}

package parser

import (
	"fmt"
	"os"

	"github.com/eddy-backend/eddy/internal/entities"
)

// ParseSchema parses, validates and converts DSL text into a schema
func ParseSchema(dsl string) (*entities.Schema, error) {
	ast, err := NewParser(NewLexer(dsl)).Parse()
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}

	if err := NewValidator(ast).Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate schema: %w", err)
	}

	schema, err := ASTToSchema(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to convert schema: %w", err)
	}
	schema.DSL = dsl

	return schema, nil
}

// ParseFile reads and parses a schema DSL file
func ParseFile(path string) (*entities.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	return ParseSchema(string(data))
}

// Format renders a schema back to canonical DSL text
func Format(schema *entities.Schema) string {
	return NewGenerator().Generate(SchemaToAST(schema))
}

package parser

import (
	"fmt"
	"strings"
)

// Generator generates DSL from AST
type Generator struct {
	indent string
}

// NewGenerator creates a new Generator
func NewGenerator() *Generator {
	return &Generator{
		indent: "    ",
	}
}

// Generate generates DSL string from SchemaAST
func (g *Generator) Generate(schema *SchemaAST) string {
	var sb strings.Builder

	for i, entity := range schema.Entities {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(g.generateEntity(entity))
	}

	return sb.String()
}

// generateEntity generates DSL for an entity
func (g *Generator) generateEntity(entity *EntityAST) string {
	var sb strings.Builder

	sb.WriteString("entity ")
	sb.WriteString(entity.Name)
	if entity.Principal {
		sb.WriteString(" principal")
	}
	if entity.SuperuserOnly {
		sb.WriteString(" superuser_only")
	}
	sb.WriteString(" {\n")

	for _, owner := range entity.Owners {
		sb.WriteString(g.indent)
		sb.WriteString("owner ")
		sb.WriteString(owner.Target)
		if owner.Unique {
			sb.WriteString(" unique")
		}
		sb.WriteString("\n")
	}

	for _, field := range entity.Fields {
		sb.WriteString(g.indent)
		sb.WriteString(g.generateField(field))
		sb.WriteString("\n")
	}

	for _, rule := range entity.Rules {
		sb.WriteString(g.indent)
		sb.WriteString(fmt.Sprintf("rule %s = %s\n", rule.Name, quote(rule.Expression)))
	}

	sb.WriteString("}")

	return sb.String()
}

// generateField generates DSL for a field, secret, relation or collection clause
func (g *Generator) generateField(field *FieldAST) string {
	var s string
	switch field.Clause {
	case ClauseField:
		s = fmt.Sprintf("field %s: %s", field.Name, field.Type)
	case ClauseSecret:
		return fmt.Sprintf("secret %s", field.Name)
	default:
		s = fmt.Sprintf("%s %s @%s", field.Clause, field.Name, field.Target)
	}
	if field.Unique {
		s += " unique"
	}
	if field.Mutable {
		s += " mutable"
	}
	return s
}

// quote renders a string literal using the lexer's escape rules
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

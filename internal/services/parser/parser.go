package parser

import (
	"fmt"
	"strings"
)

// Parser parses the DSL into an AST
type Parser struct {
	lexer   *Lexer
	current *Token
	peek    *Token
	errors  []string
}

// NewParser creates a new Parser
func NewParser(lexer *Lexer) *Parser {
	p := &Parser{
		lexer:  lexer,
		errors: []string{},
	}

	// Read two tokens to initialize current and peek
	p.nextToken()
	p.nextToken()

	return p
}

// nextToken advances to the next token
func (p *Parser) nextToken() {
	p.current = p.peek
	tok, err := p.lexer.NextToken()
	if err != nil {
		p.errors = append(p.errors, err.Error())
		p.peek = &Token{Type: TOKEN_EOF}
	} else {
		p.peek = tok
	}
}

// currentTokenIs checks if the current token is of the given type
func (p *Parser) currentTokenIs(t TokenType) bool {
	return p.current != nil && p.current.Type == t
}

// peekTokenIs checks if the peek token is of the given type
func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peek != nil && p.peek.Type == t
}

// expectPeek checks if the next token is of the expected type and advances
func (p *Parser) expectPeek(t TokenType) bool {
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	p.peekError(t)
	return false
}

// expectPeekName accepts an identifier or a modifier keyword as a name.
// Names such as "unique" or "owner" are legal field and target names.
func (p *Parser) expectPeekName() bool {
	if p.peek != nil && (p.peek.Type == TOKEN_IDENTIFIER || isKeyword(p.peek.Type)) {
		p.nextToken()
		return true
	}
	p.peekError(TOKEN_IDENTIFIER)
	return false
}

// peekError adds an error for unexpected peek token
func (p *Parser) peekError(t TokenType) {
	msg := fmt.Sprintf("expected next token to be %s, got %s instead at %d:%d",
		tokenNames[t], tokenNames[p.peek.Type], p.peek.Line, p.peek.Column)
	p.errors = append(p.errors, msg)
}

// Parse parses the entire schema
func (p *Parser) Parse() (*SchemaAST, error) {
	schema := &SchemaAST{
		Entities: []*EntityAST{},
	}

	for !p.currentTokenIs(TOKEN_EOF) {
		if p.currentTokenIs(TOKEN_ENTITY) {
			entity := p.parseEntity()
			if entity != nil {
				schema.Entities = append(schema.Entities, entity)
			} else {
				// If parseEntity failed, skip to next token to avoid infinite loop
				p.nextToken()
			}
		} else {
			p.errors = append(p.errors, fmt.Sprintf("unexpected token %s at %d:%d, expected 'entity'",
				tokenNames[p.current.Type], p.current.Line, p.current.Column))
			p.nextToken()
		}
	}

	if len(p.errors) > 0 {
		return nil, fmt.Errorf("parse errors:\n%s", strings.Join(p.errors, "\n"))
	}

	return schema, nil
}

// parseEntity parses an entity definition
func (p *Parser) parseEntity() *EntityAST {
	entity := &EntityAST{
		Line:   p.current.Line,
		Owners: []*OwnerAST{},
		Fields: []*FieldAST{},
		Rules:  []*RuleAST{},
	}

	// Expect identifier (entity name)
	if !p.expectPeek(TOKEN_IDENTIFIER) {
		return nil
	}
	entity.Name = p.current.Value

	// Optional modifiers before the body
	for p.peekTokenIs(TOKEN_PRINCIPAL) || p.peekTokenIs(TOKEN_SUPERUSER_ONLY) {
		p.nextToken()
		if p.currentTokenIs(TOKEN_PRINCIPAL) {
			entity.Principal = true
		} else {
			entity.SuperuserOnly = true
		}
	}

	// Expect {
	if !p.expectPeek(TOKEN_LBRACE) {
		return nil
	}

	// Parse entity body
	p.nextToken()
	for !p.currentTokenIs(TOKEN_RBRACE) && !p.currentTokenIs(TOKEN_EOF) {
		switch {
		case p.currentTokenIs(TOKEN_FIELD):
			if field := p.parseScalarField(); field != nil {
				entity.Fields = append(entity.Fields, field)
			}
		case p.currentTokenIs(TOKEN_SECRET):
			if field := p.parseSecret(); field != nil {
				entity.Fields = append(entity.Fields, field)
			}
		case p.currentTokenIs(TOKEN_RELATION):
			if field := p.parseReference(ClauseRelation); field != nil {
				entity.Fields = append(entity.Fields, field)
			}
		case p.currentTokenIs(TOKEN_COLLECTION):
			if field := p.parseReference(ClauseCollection); field != nil {
				entity.Fields = append(entity.Fields, field)
			}
		case p.currentTokenIs(TOKEN_OWNER):
			if owner := p.parseOwner(); owner != nil {
				entity.Owners = append(entity.Owners, owner)
			}
		case p.currentTokenIs(TOKEN_RULE):
			if rule := p.parseRule(); rule != nil {
				entity.Rules = append(entity.Rules, rule)
			}
		default:
			p.errors = append(p.errors, fmt.Sprintf("unexpected token %s in entity at %d:%d",
				tokenNames[p.current.Type], p.current.Line, p.current.Column))
			p.nextToken()
		}
	}

	// Expect }
	if !p.currentTokenIs(TOKEN_RBRACE) {
		p.errors = append(p.errors, fmt.Sprintf("expected '}' at end of entity, got %s at %d:%d",
			tokenNames[p.current.Type], p.current.Line, p.current.Column))
		return nil
	}

	p.nextToken()
	return entity
}

// parseScalarField parses "field <name>: <type> [unique]"
func (p *Parser) parseScalarField() *FieldAST {
	field := &FieldAST{Clause: ClauseField, Line: p.current.Line}

	if !p.expectPeekName() {
		p.nextToken()
		return nil
	}
	field.Name = p.current.Value

	if !p.expectPeek(TOKEN_COLON) {
		p.nextToken()
		return nil
	}

	// Expect identifier (type)
	if !p.expectPeek(TOKEN_IDENTIFIER) {
		p.nextToken()
		return nil
	}
	field.Type = p.current.Value

	p.nextToken()
	p.parseFieldModifiers(field)
	return field
}

// parseSecret parses "secret <name>"
func (p *Parser) parseSecret() *FieldAST {
	field := &FieldAST{Clause: ClauseSecret, Line: p.current.Line}

	if !p.expectPeekName() {
		p.nextToken()
		return nil
	}
	field.Name = p.current.Value

	p.nextToken()
	return field
}

// parseReference parses "relation <name> @<entity> [unique] [mutable]"
// and "collection <name> @<entity> [mutable]"
func (p *Parser) parseReference(clause FieldClause) *FieldAST {
	field := &FieldAST{Clause: clause, Line: p.current.Line}

	if !p.expectPeekName() {
		p.nextToken()
		return nil
	}
	field.Name = p.current.Value

	// Expect @
	if !p.expectPeek(TOKEN_AT) {
		p.nextToken()
		return nil
	}

	// Expect identifier (target entity)
	if !p.expectPeek(TOKEN_IDENTIFIER) {
		p.nextToken()
		return nil
	}
	field.Target = p.current.Value

	p.nextToken()
	p.parseFieldModifiers(field)
	return field
}

// parseFieldModifiers consumes trailing unique/mutable modifiers
func (p *Parser) parseFieldModifiers(field *FieldAST) {
	for p.currentTokenIs(TOKEN_UNIQUE) || p.currentTokenIs(TOKEN_MUTABLE) {
		if p.currentTokenIs(TOKEN_UNIQUE) {
			field.Unique = true
		} else {
			field.Mutable = true
		}
		p.nextToken()
	}
}

// parseOwner parses "owner <principal-entity> [unique]"
func (p *Parser) parseOwner() *OwnerAST {
	owner := &OwnerAST{Line: p.current.Line}

	if !p.expectPeek(TOKEN_IDENTIFIER) {
		p.nextToken()
		return nil
	}
	owner.Target = p.current.Value

	p.nextToken()
	if p.currentTokenIs(TOKEN_UNIQUE) {
		owner.Unique = true
		p.nextToken()
	}
	return owner
}

// parseRule parses `rule <name> = "<expression>"`
func (p *Parser) parseRule() *RuleAST {
	rule := &RuleAST{}

	if !p.expectPeekName() {
		p.nextToken()
		return nil
	}
	rule.Name = p.current.Value

	if !p.expectPeek(TOKEN_EQUALS) {
		p.nextToken()
		return nil
	}

	if !p.expectPeek(TOKEN_STRING) {
		p.nextToken()
		return nil
	}
	rule.Expression = strings.TrimSpace(p.current.Value)

	p.nextToken()
	return rule
}

// isKeyword reports whether t is a keyword token
func isKeyword(t TokenType) bool {
	return t >= TOKEN_ENTITY && t <= TOKEN_MUTABLE
}

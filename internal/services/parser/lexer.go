package parser

import (
	"fmt"
	"strings"
	"unicode"
)

// TokenType represents the type of a token
type TokenType int

const (
	TOKEN_ILLEGAL TokenType = iota
	TOKEN_EOF

	// Identifiers and literals
	TOKEN_IDENTIFIER
	TOKEN_STRING // String literals (quoted)

	// Clause keywords
	TOKEN_ENTITY
	TOKEN_FIELD
	TOKEN_SECRET
	TOKEN_OWNER
	TOKEN_RELATION
	TOKEN_COLLECTION
	TOKEN_RULE

	// Modifiers
	TOKEN_PRINCIPAL
	TOKEN_SUPERUSER_ONLY
	TOKEN_UNIQUE
	TOKEN_MUTABLE

	// Operators
	TOKEN_EQUALS
	TOKEN_AT

	// Delimiters
	TOKEN_COLON
	TOKEN_LBRACE
	TOKEN_RBRACE
)

var tokenNames = map[TokenType]string{
	TOKEN_ILLEGAL:        "ILLEGAL",
	TOKEN_EOF:            "EOF",
	TOKEN_IDENTIFIER:     "IDENTIFIER",
	TOKEN_STRING:         "STRING",
	TOKEN_ENTITY:         "entity",
	TOKEN_FIELD:          "field",
	TOKEN_SECRET:         "secret",
	TOKEN_OWNER:          "owner",
	TOKEN_RELATION:       "relation",
	TOKEN_COLLECTION:     "collection",
	TOKEN_RULE:           "rule",
	TOKEN_PRINCIPAL:      "principal",
	TOKEN_SUPERUSER_ONLY: "superuser_only",
	TOKEN_UNIQUE:         "unique",
	TOKEN_MUTABLE:        "mutable",
	TOKEN_EQUALS:         "=",
	TOKEN_AT:             "@",
	TOKEN_COLON:          ":",
	TOKEN_LBRACE:         "{",
	TOKEN_RBRACE:         "}",
}

var keywords = map[string]TokenType{
	"entity":         TOKEN_ENTITY,
	"field":          TOKEN_FIELD,
	"secret":         TOKEN_SECRET,
	"owner":          TOKEN_OWNER,
	"relation":       TOKEN_RELATION,
	"collection":     TOKEN_COLLECTION,
	"rule":           TOKEN_RULE,
	"principal":      TOKEN_PRINCIPAL,
	"superuser_only": TOKEN_SUPERUSER_ONLY,
	"unique":         TOKEN_UNIQUE,
	"mutable":        TOKEN_MUTABLE,
}

// Token represents a lexical token
type Token struct {
	Type   TokenType
	Value  string
	Line   int
	Column int
}

// String returns a string representation of the token
func (t *Token) String() string {
	typeName := tokenNames[t.Type]
	if typeName == "" {
		typeName = fmt.Sprintf("UNKNOWN(%d)", t.Type)
	}
	return fmt.Sprintf("%s(%s) at %d:%d", typeName, t.Value, t.Line, t.Column)
}

// Lexer performs lexical analysis
type Lexer struct {
	input        string
	position     int  // current position in input (points to current char)
	readPosition int  // current reading position in input (after current char)
	ch           byte // current char under examination
	line         int
	column       int
}

// NewLexer creates a new Lexer
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input:  input,
		line:   1,
		column: 0,
	}
	l.readChar()
	return l
}

// readChar reads the next character and advances position
func (l *Lexer) readChar() {
	if l.readPosition >= len(l.input) {
		l.ch = 0 // EOF
	} else {
		l.ch = l.input[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition++
	l.column++

	if l.ch == '\n' {
		l.line++
		l.column = 0
	}
}

// peekChar returns the next character without advancing position
func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

// skipWhitespace skips whitespace characters
func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' || l.ch == ';' {
		l.readChar()
	}
}

// skipComment skips single-line comments starting with //
func (l *Lexer) skipComment() {
	if l.ch == '/' && l.peekChar() == '/' {
		// Skip until end of line
		for l.ch != '\n' && l.ch != 0 {
			l.readChar()
		}
	}
}

// readIdentifier reads an identifier or keyword
func (l *Lexer) readIdentifier() string {
	position := l.position
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	return l.input[position:l.position]
}

// readString reads a string literal enclosed in double quotes.
// \" and \\ are the only escapes; the literal must close before end of input.
func (l *Lexer) readString() (string, error) {
	line, column := l.line, l.column
	var sb strings.Builder
	for {
		l.readChar()
		switch l.ch {
		case 0:
			return "", fmt.Errorf("unterminated string starting at %d:%d", line, column)
		case '"':
			return sb.String(), nil
		case '\\':
			if next := l.peekChar(); next == '"' || next == '\\' {
				l.readChar()
			}
		}
		sb.WriteByte(l.ch)
	}
}

// NextToken returns the next token
func (l *Lexer) NextToken() (*Token, error) {
	// Skip whitespace and comments in a loop
	for {
		l.skipWhitespace()
		if l.ch == '/' && l.peekChar() == '/' {
			l.skipComment()
		} else {
			break
		}
	}

	var tok *Token
	line := l.line
	column := l.column

	switch l.ch {
	case '=':
		tok = &Token{Type: TOKEN_EQUALS, Value: "=", Line: line, Column: column}
		l.readChar()
	case '@':
		tok = &Token{Type: TOKEN_AT, Value: "@", Line: line, Column: column}
		l.readChar()
	case ':':
		tok = &Token{Type: TOKEN_COLON, Value: ":", Line: line, Column: column}
		l.readChar()
	case '{':
		tok = &Token{Type: TOKEN_LBRACE, Value: "{", Line: line, Column: column}
		l.readChar()
	case '}':
		tok = &Token{Type: TOKEN_RBRACE, Value: "}", Line: line, Column: column}
		l.readChar()
	case '"':
		value, err := l.readString()
		if err != nil {
			return nil, err
		}
		tok = &Token{Type: TOKEN_STRING, Value: value, Line: line, Column: column}
		l.readChar() // Skip closing quote
	case 0:
		tok = &Token{Type: TOKEN_EOF, Value: "", Line: line, Column: column}
	default:
		if isLetter(l.ch) || l.ch == '_' {
			value := l.readIdentifier()
			tokenType := TOKEN_IDENTIFIER
			if kw, ok := keywords[value]; ok {
				tokenType = kw
			}
			tok = &Token{Type: tokenType, Value: value, Line: line, Column: column}
			return tok, nil
		}
		return nil, fmt.Errorf("illegal character '%c' at %d:%d", l.ch, line, column)
	}

	return tok, nil
}

// isLetter checks if a character is a letter
func isLetter(ch byte) bool {
	return unicode.IsLetter(rune(ch))
}

// isDigit checks if a character is a digit
func isDigit(ch byte) bool {
	return unicode.IsDigit(rune(ch))
}

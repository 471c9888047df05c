package parser

// SchemaAST represents the parsed schema AST
type SchemaAST struct {
	Entities []*EntityAST
}

// EntityAST represents an entity definition in the AST
type EntityAST struct {
	Name          string
	Principal     bool // "principal" modifier
	SuperuserOnly bool // "superuser_only" modifier
	Owners        []*OwnerAST
	Fields        []*FieldAST
	Rules         []*RuleAST
	Line          int
}

// FieldClause identifies the clause a field was declared with
type FieldClause string

const (
	ClauseField      FieldClause = "field"
	ClauseSecret     FieldClause = "secret"
	ClauseRelation   FieldClause = "relation"
	ClauseCollection FieldClause = "collection"
)

// FieldAST represents a field, secret, relation or collection clause
// Example: "relation workspace @workspace mutable"
type FieldAST struct {
	Clause  FieldClause
	Name    string
	Type    string // field clause only (e.g., "string", "integer")
	Target  string // relation and collection clauses only
	Unique  bool
	Mutable bool
	Line    int
}

// OwnerAST represents an owner clause
// Example: "owner user unique"
type OwnerAST struct {
	Target string
	Unique bool
	Line   int
}

// RuleAST represents a validation rule clause
// Example: `rule label_present = "size(self.label) > 0"`
type RuleAST struct {
	Name       string
	Expression string // CEL expression over self
}

package entities

// Schema is the ordered set of entity definitions read from the schema source
type Schema struct {
	DSL      string // Original DSL text
	Entities []*EntitySchema
}

// GetEntity returns the entity definition by name
func (s *Schema) GetEntity(name string) *EntitySchema {
	for _, e := range s.Entities {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// Principal returns the entity flagged as principal, or nil
func (s *Schema) Principal() *EntitySchema {
	for _, e := range s.Entities {
		if e.IsPrincipal {
			return e
		}
	}
	return nil
}

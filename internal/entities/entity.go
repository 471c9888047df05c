package entities

import (
	"fmt"
	"strings"
)

// IDField is the name of the implicit auto key every entity carries
const IDField = "id"

// EntitySchema represents an entity definition
// Example: "entity project { owner user  relation workspace @workspace  field label: string }"
type EntitySchema struct {
	Name              string            // Entity name (e.g., "project", "block_type")
	Fields            []*FieldSpec      // Ordered fields, auto key first
	OwnerField        *FieldSpec        // Field used for ownership checks (nil for global catalogs)
	RequiresSuperuser bool              // Every operation is superuser-only
	IsPrincipal       bool              // Records of this entity are principals
	Rules             []*ValidationRule // CEL rules evaluated before every write
}

// GetField returns the field definition by name
func (e *EntitySchema) GetField(name string) *FieldSpec {
	for _, f := range e.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// FieldByArgument returns the field whose argument name matches arg
func (e *EntitySchema) FieldByArgument(arg string) *FieldSpec {
	for _, f := range e.Fields {
		if f.Kind != FieldKindAutoKey && f.ArgumentName() == arg {
			return f
		}
	}
	return nil
}

// IsOwnerField reports whether f is the ownership field of this entity
func (e *EntitySchema) IsOwnerField(f *FieldSpec) bool {
	return e.OwnerField != nil && f != nil && e.OwnerField.Name == f.Name
}

// CreateArguments returns the fields that can be supplied to create.
// The auto key and the owner field are never arguments.
func (e *EntitySchema) CreateArguments() []*FieldSpec {
	var fields []*FieldSpec
	for _, f := range e.Fields {
		if f.Kind == FieldKindAutoKey || e.IsOwnerField(f) {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}

// UpdateArguments returns the fields that can be supplied to update.
// References are only included when declared mutable.
func (e *EntitySchema) UpdateArguments() []*FieldSpec {
	var fields []*FieldSpec
	for _, f := range e.CreateArguments() {
		if f.IsReference() && !f.Mutable {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}

// References returns the owning references (including the owner field) that target the given entity
func (e *EntitySchema) References(target string) []*FieldSpec {
	var fields []*FieldSpec
	for _, f := range e.Fields {
		if f.Kind == FieldKindOwningReference && f.Target == target {
			fields = append(fields, f)
		}
	}
	return fields
}

// TypeName returns the entity name in CamelCase (block_type -> BlockType)
func (e *EntitySchema) TypeName() string {
	parts := strings.Split(e.Name, "_")
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

// Validate checks the entity for structural errors that do not need other entities
func (e *EntitySchema) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("entity name is required")
	}

	seen := make(map[string]bool, len(e.Fields))
	args := make(map[string]bool, len(e.Fields))
	autoKeys := 0
	for _, f := range e.Fields {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("entity %s: %w", e.Name, err)
		}
		if seen[f.Name] {
			return fmt.Errorf("entity %s: duplicate field %s", e.Name, f.Name)
		}
		seen[f.Name] = true
		if f.Kind == FieldKindAutoKey {
			autoKeys++
			continue
		}
		if args[f.ArgumentName()] {
			return fmt.Errorf("entity %s: argument %s is declared twice", e.Name, f.ArgumentName())
		}
		args[f.ArgumentName()] = true
	}
	if autoKeys != 1 {
		return fmt.Errorf("entity %s: exactly one auto key is required, got %d", e.Name, autoKeys)
	}

	if e.OwnerField != nil {
		if e.IsPrincipal {
			return fmt.Errorf("entity %s: a principal entity cannot declare an owner", e.Name)
		}
		f := e.GetField(e.OwnerField.Name)
		if f == nil || f.Kind != FieldKindOwningReference {
			return fmt.Errorf("entity %s: owner %s must be a declared reference", e.Name, e.OwnerField.Name)
		}
	}

	for _, r := range e.Rules {
		if r.Name == "" || r.Expression == "" {
			return fmt.Errorf("entity %s: rules need a name and an expression", e.Name)
		}
	}
	return nil
}

// Owned reports whether instances of the entity are subject to ownership checks
func (e *EntitySchema) Owned() bool {
	return e.IsPrincipal || e.OwnerField != nil
}

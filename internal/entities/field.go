package entities

import (
	"fmt"
	"strings"
)

// FieldKind is the closed set of field kinds an entity schema can declare.
type FieldKind int

const (
	// FieldKindAutoKey is the system-assigned identifier. It never appears as an argument.
	FieldKindAutoKey FieldKind = iota
	// FieldKindScalar is a plain value of a ScalarType.
	FieldKindScalar
	// FieldKindSecret is a string that is stored only as a one-way digest.
	FieldKindSecret
	// FieldKindOwningReference points at exactly one record of the target entity.
	FieldKindOwningReference
	// FieldKindReverseCollection holds the identifiers of several target records.
	FieldKindReverseCollection
)

var fieldKindNames = map[FieldKind]string{
	FieldKindAutoKey:           "auto_key",
	FieldKindScalar:            "scalar",
	FieldKindSecret:            "secret",
	FieldKindOwningReference:   "owning_reference",
	FieldKindReverseCollection: "reverse_collection",
}

// String returns the name of the field kind
func (k FieldKind) String() string {
	if name, ok := fieldKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("FieldKind(%d)", int(k))
}

// ScalarType is the semantic type of a scalar field
type ScalarType string

const (
	ScalarInteger   ScalarType = "integer"
	ScalarString    ScalarType = "string"
	ScalarTimestamp ScalarType = "timestamp"
	ScalarBoolean   ScalarType = "bool"
	ScalarJSON      ScalarType = "json"
)

// ParseScalarType converts a DSL type name into a ScalarType.
// "int" and "boolean" are accepted as aliases.
func ParseScalarType(name string) (ScalarType, error) {
	switch strings.ToLower(name) {
	case "integer", "int":
		return ScalarInteger, nil
	case "string":
		return ScalarString, nil
	case "timestamp":
		return ScalarTimestamp, nil
	case "bool", "boolean":
		return ScalarBoolean, nil
	case "json":
		return ScalarJSON, nil
	default:
		return "", fmt.Errorf("unknown scalar type: %s", name)
	}
}

// FieldSpec describes one field of an entity
// Example: "relation workspace @workspace" is {Name: "workspace", Kind: OwningReference, Target: "workspace"}
type FieldSpec struct {
	Name    string
	Kind    FieldKind
	Type    ScalarType // Scalar fields only
	Target  string     // Target entity name for references and collections
	Unique  bool       // At most one record may hold a given value
	Mutable bool       // References only: update may reassign the reference
}

// IsReference reports whether the field refers to other records by identifier
func (f *FieldSpec) IsReference() bool {
	return f.Kind == FieldKindOwningReference || f.Kind == FieldKindReverseCollection
}

// ArgumentName returns the name the field takes at the API boundary.
// References carry an "_id" suffix, collections "_ids", and the auto key has no argument.
func (f *FieldSpec) ArgumentName() string {
	switch f.Kind {
	case FieldKindAutoKey:
		return ""
	case FieldKindOwningReference:
		return f.Name + "_id"
	case FieldKindReverseCollection:
		return f.Name + "_ids"
	default:
		return f.Name
	}
}

// Validate checks that the field is internally consistent
func (f *FieldSpec) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("field name is required")
	}
	switch f.Kind {
	case FieldKindAutoKey, FieldKindSecret:
	case FieldKindScalar:
		if _, err := ParseScalarType(string(f.Type)); err != nil {
			return fmt.Errorf("field %s: %w", f.Name, err)
		}
	case FieldKindOwningReference, FieldKindReverseCollection:
		if f.Target == "" {
			return fmt.Errorf("field %s: target entity is required", f.Name)
		}
		if f.Kind == FieldKindReverseCollection && f.Unique {
			return fmt.Errorf("field %s: collections cannot be unique", f.Name)
		}
	default:
		return fmt.Errorf("field %s: unknown kind %s", f.Name, f.Kind)
	}
	if f.Mutable && !f.IsReference() {
		return fmt.Errorf("field %s: only references can be declared mutable", f.Name)
	}
	return nil
}

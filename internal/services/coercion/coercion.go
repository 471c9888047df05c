package coercion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/eddy-backend/eddy/internal/entities"
	"github.com/eddy-backend/eddy/internal/repositories"
)

// ArgumentShape is the representation a field takes as an operation argument
type ArgumentShape int

const (
	ShapeNone ArgumentShape = iota
	ShapeInteger
	ShapeString
	ShapeTimestamp
	ShapeBoolean
	ShapeJSON
	ShapeIdentifier
	ShapeIdentifierList
)

var shapeNames = map[ArgumentShape]string{
	ShapeNone:           "none",
	ShapeInteger:        "integer",
	ShapeString:         "string",
	ShapeTimestamp:      "timestamp",
	ShapeBoolean:        "boolean",
	ShapeJSON:           "json",
	ShapeIdentifier:     "identifier",
	ShapeIdentifierList: "identifier list",
}

// String returns the name of the shape
func (s ArgumentShape) String() string {
	if name, ok := shapeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ArgumentShape(%d)", int(s))
}

// Finder is the part of the record store that reference resolution needs
type Finder interface {
	GetByID(ctx context.Context, entity string, id int64) (*entities.Record, error)
}

var _ Finder = (repositories.RecordRepository)(nil)

// Resolved is a coerced argument value together with the records it references
type Resolved struct {
	Value      interface{}         // Canonical value stored on the record
	References []*entities.Record // Records looked up for references and collections
}

// ArgumentShapeFor returns the argument shape of a field. AutoKey fields have no argument.
func ArgumentShapeFor(field *entities.FieldSpec) ArgumentShape {
	switch field.Kind {
	case entities.FieldKindAutoKey:
		return ShapeNone
	case entities.FieldKindSecret:
		return ShapeString
	case entities.FieldKindOwningReference:
		return ShapeIdentifier
	case entities.FieldKindReverseCollection:
		return ShapeIdentifierList
	case entities.FieldKindScalar:
		switch field.Type {
		case entities.ScalarInteger:
			return ShapeInteger
		case entities.ScalarString:
			return ShapeString
		case entities.ScalarTimestamp:
			return ShapeTimestamp
		case entities.ScalarBoolean:
			return ShapeBoolean
		case entities.ScalarJSON:
			return ShapeJSON
		}
	}
	return ShapeNone
}

// ResolveArgument validates a raw argument against its field and returns the canonical value.
// References are looked up through store: a missing target is NotFound, and a collection
// resolves completely or not at all.
func ResolveArgument(ctx context.Context, field *entities.FieldSpec, raw interface{}, store Finder) (*Resolved, error) {
	switch field.Kind {
	case entities.FieldKindAutoKey:
		return nil, invalid(field, "is not an argument")

	case entities.FieldKindScalar, entities.FieldKindSecret:
		value, err := castScalar(field, raw)
		if err != nil {
			return nil, err
		}
		return &Resolved{Value: value}, nil

	case entities.FieldKindOwningReference:
		id, err := ParseID(raw)
		if err != nil {
			return nil, invalid(field, "%v", err)
		}
		rec, err := lookup(ctx, store, field, id)
		if err != nil {
			return nil, err
		}
		return &Resolved{Value: id, References: []*entities.Record{rec}}, nil

	case entities.FieldKindReverseCollection:
		ids, err := ParseIDList(raw)
		if err != nil {
			return nil, invalid(field, "%v", err)
		}
		refs := make([]*entities.Record, 0, len(ids))
		for _, id := range ids {
			rec, err := lookup(ctx, store, field, id)
			if err != nil {
				return nil, err
			}
			refs = append(refs, rec)
		}
		return &Resolved{Value: ids, References: refs}, nil
	}

	return nil, invalid(field, "has unknown kind %s", field.Kind)
}

func lookup(ctx context.Context, store Finder, field *entities.FieldSpec, id int64) (*entities.Record, error) {
	rec, err := store.GetByID(ctx, field.Target, id)
	if errors.Is(err, repositories.ErrRecordNotFound) {
		return nil, entities.NewError(entities.KindNotFound, field.Target, "%s %d referenced by %s not found", field.Target, id, field.ArgumentName())
	}
	if err != nil {
		return nil, entities.Unavailable(field.Target, fmt.Errorf("failed to resolve %s: %w", field.ArgumentName(), err))
	}
	return rec, nil
}

func invalid(field *entities.FieldSpec, format string, args ...interface{}) error {
	name := field.ArgumentName()
	if name == "" {
		name = field.Name
	}
	return entities.NewError(entities.KindInvalidArgument, "", "%s %s", name, fmt.Sprintf(format, args...))
}

// castScalar validates raw against the scalar type of field
func castScalar(field *entities.FieldSpec, raw interface{}) (interface{}, error) {
	if raw == nil {
		return nil, invalid(field, "must not be null")
	}

	shape := ArgumentShapeFor(field)
	switch shape {
	case ShapeString:
		s, ok := raw.(string)
		if !ok {
			return nil, invalid(field, "must be a string, got %T", raw)
		}
		return s, nil

	case ShapeInteger:
		n, err := toInt64(raw)
		if err != nil {
			return nil, invalid(field, "%v", err)
		}
		return n, nil

	case ShapeBoolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, invalid(field, "must be a boolean, got %T", raw)
		}
		return b, nil

	case ShapeTimestamp:
		switch v := raw.(type) {
		case time.Time:
			return v.UTC(), nil
		case string:
			ts, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return nil, invalid(field, "must be an RFC 3339 timestamp")
			}
			return ts.UTC(), nil
		}
		return nil, invalid(field, "must be an RFC 3339 timestamp, got %T", raw)

	case ShapeJSON:
		obj, ok := raw.(map[string]interface{})
		if !ok {
			return nil, invalid(field, "must be an object, got %T", raw)
		}
		return obj, nil
	}

	return nil, invalid(field, "has no argument shape")
}

// toInt64 accepts Go integers, integral floats and json.Number
func toInt64(raw interface{}) (int64, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
			return 0, fmt.Errorf("must be an integer, got %v", v)
		}
		if v >= math.MaxInt64 || v < math.MinInt64 {
			return 0, fmt.Errorf("is out of range")
		}
		return int64(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("must be an integer, got %s", v)
		}
		return n, nil
	}
	return 0, fmt.Errorf("must be an integer, got %T", raw)
}

// ParseID parses a record identifier. Identifiers may arrive as numbers or as digit strings.
func ParseID(raw interface{}) (int64, error) {
	var (
		id  int64
		err error
	)
	if s, ok := raw.(string); ok {
		id, err = strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("is not a valid identifier: %q", s)
		}
	} else {
		id, err = toInt64(raw)
		if err != nil {
			return 0, fmt.Errorf("is not a valid identifier: %v", err)
		}
	}
	if id <= 0 {
		return 0, fmt.Errorf("is not a valid identifier: %d", id)
	}
	return id, nil
}

// ParseIDList parses a list of identifiers, dropping repeats while keeping order
func ParseIDList(raw interface{}) ([]int64, error) {
	var items []interface{}
	switch v := raw.(type) {
	case []interface{}:
		items = v
	case []int64:
		items = make([]interface{}, len(v))
		for i, id := range v {
			items[i] = id
		}
	case nil:
		return nil, fmt.Errorf("must not be null")
	default:
		return nil, fmt.Errorf("must be a list of identifiers, got %T", raw)
	}

	ids := make([]int64, 0, len(items))
	seen := make(map[int64]bool, len(items))
	for _, item := range items {
		id, err := ParseID(item)
		if err != nil {
			return nil, err
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

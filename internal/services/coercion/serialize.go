package coercion

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/eddy-backend/eddy/internal/entities"
)

// Normalize turns a value decoded by a store (JSON numbers, RFC 3339 strings, generic lists)
// back into the canonical Go value ResolveArgument produces for the field.
func Normalize(field *entities.FieldSpec, stored interface{}) (interface{}, error) {
	if stored == nil {
		return nil, nil
	}

	switch field.Kind {
	case entities.FieldKindOwningReference:
		return toInt64(stored)

	case entities.FieldKindReverseCollection:
		if ids, ok := stored.([]int64); ok {
			return ids, nil
		}
		items, ok := stored.([]interface{})
		if !ok {
			return nil, fmt.Errorf("field %s: expected a list, got %T", field.Name, stored)
		}
		ids := make([]int64, 0, len(items))
		for _, item := range items {
			id, err := toInt64(item)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", field.Name, err)
			}
			ids = append(ids, id)
		}
		return ids, nil

	case entities.FieldKindScalar:
		switch field.Type {
		case entities.ScalarInteger:
			return toInt64(stored)
		case entities.ScalarTimestamp:
			switch v := stored.(type) {
			case time.Time:
				return v.UTC(), nil
			case string:
				ts, err := time.Parse(time.RFC3339Nano, v)
				if err != nil {
					return nil, fmt.Errorf("field %s: %w", field.Name, err)
				}
				return ts.UTC(), nil
			}
			return nil, fmt.Errorf("field %s: expected a timestamp, got %T", field.Name, stored)
		}
	}

	return stored, nil
}

// NormalizeRecord normalizes every declared field of rec in place
func NormalizeRecord(schema *entities.EntitySchema, rec *entities.Record) error {
	for _, field := range schema.Fields {
		if field.Kind == entities.FieldKindAutoKey || schema.IsOwnerField(field) {
			continue
		}
		stored, ok := rec.Values[field.Name]
		if !ok {
			continue
		}
		value, err := Normalize(field, stored)
		if err != nil {
			return fmt.Errorf("failed to normalize %s: %w", rec, err)
		}
		rec.Values[field.Name] = value
	}
	return nil
}

// Serialize renders a canonical field value in its API representation.
// The result only contains JSON-compatible types (no json.Number, no typed slices).
func Serialize(field *entities.FieldSpec, value interface{}) interface{} {
	if value == nil {
		return nil
	}

	switch v := value.(type) {
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case []int64:
		items := make([]interface{}, len(v))
		for i, id := range v {
			items[i] = id
		}
		return items
	}
	return plain(value)
}

// plain replaces json.Number and nested containers with JSON-compatible Go values
func plain(value interface{}) interface{} {
	switch v := value.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[k] = plain(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = plain(item)
		}
		return out
	}
	return value
}

// Render returns the API representation of a record: the identifier, the owner and every
// non-secret field keyed by its argument name.
func Render(schema *entities.EntitySchema, rec *entities.Record) map[string]interface{} {
	out := map[string]interface{}{entities.IDField: rec.ID}

	for _, field := range schema.Fields {
		switch {
		case field.Kind == entities.FieldKindAutoKey, field.Kind == entities.FieldKindSecret:
			continue
		case schema.IsOwnerField(field):
			if rec.OwnerID != nil {
				out[field.ArgumentName()] = *rec.OwnerID
			} else {
				out[field.ArgumentName()] = nil
			}
		default:
			value, ok := rec.Values[field.Name]
			if !ok {
				continue
			}
			out[field.ArgumentName()] = Serialize(field, value)
		}
	}
	return out
}

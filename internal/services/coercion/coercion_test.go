package coercion

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/eddy-backend/eddy/internal/entities"
	"github.com/eddy-backend/eddy/internal/repositories"
)

// mockFinder is a mock implementation of Finder
type mockFinder struct {
	getByIDFunc func(ctx context.Context, entity string, id int64) (*entities.Record, error)
	calls       int
}

func (m *mockFinder) GetByID(ctx context.Context, entity string, id int64) (*entities.Record, error) {
	m.calls++
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, entity, id)
	}
	return nil, repositories.ErrRecordNotFound
}

// existing returns a finder that knows the given ids of one entity
func existing(entity string, ids ...int64) *mockFinder {
	known := make(map[int64]bool)
	for _, id := range ids {
		known[id] = true
	}
	return &mockFinder{
		getByIDFunc: func(ctx context.Context, e string, id int64) (*entities.Record, error) {
			if e != entity || !known[id] {
				return nil, repositories.ErrRecordNotFound
			}
			return &entities.Record{ID: id, Entity: e}, nil
		},
	}
}

func scalar(name string, typ entities.ScalarType) *entities.FieldSpec {
	return &entities.FieldSpec{Name: name, Kind: entities.FieldKindScalar, Type: typ}
}

func TestArgumentShapeFor(t *testing.T) {
	tests := []struct {
		field *entities.FieldSpec
		want  ArgumentShape
	}{
		{&entities.FieldSpec{Name: "id", Kind: entities.FieldKindAutoKey}, ShapeNone},
		{scalar("n", entities.ScalarInteger), ShapeInteger},
		{scalar("s", entities.ScalarString), ShapeString},
		{scalar("t", entities.ScalarTimestamp), ShapeTimestamp},
		{scalar("b", entities.ScalarBoolean), ShapeBoolean},
		{scalar("j", entities.ScalarJSON), ShapeJSON},
		{&entities.FieldSpec{Name: "password", Kind: entities.FieldKindSecret}, ShapeString},
		{&entities.FieldSpec{Name: "workspace", Kind: entities.FieldKindOwningReference, Target: "workspace"}, ShapeIdentifier},
		{&entities.FieldSpec{Name: "blocks", Kind: entities.FieldKindReverseCollection, Target: "block"}, ShapeIdentifierList},
	}

	for _, tt := range tests {
		t.Run(tt.field.Name, func(t *testing.T) {
			if got := ArgumentShapeFor(tt.field); got != tt.want {
				t.Errorf("ArgumentShapeFor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolveArgument_Scalars(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		field   *entities.FieldSpec
		raw     interface{}
		want    interface{}
		wantErr bool
	}{
		{name: "string", field: scalar("label", entities.ScalarString), raw: "P1", want: "P1"},
		{name: "string from number", field: scalar("label", entities.ScalarString), raw: 1.0, wantErr: true},
		{name: "integer from float", field: scalar("n", entities.ScalarInteger), raw: 3.0, want: int64(3)},
		{name: "integer from int", field: scalar("n", entities.ScalarInteger), raw: 7, want: int64(7)},
		{name: "integer from json.Number", field: scalar("n", entities.ScalarInteger), raw: json.Number("12"), want: int64(12)},
		{name: "integer from fraction", field: scalar("n", entities.ScalarInteger), raw: 3.5, wantErr: true},
		{name: "integer from string", field: scalar("n", entities.ScalarInteger), raw: "3", wantErr: true},
		{name: "integer overflow", field: scalar("n", entities.ScalarInteger), raw: 1e19, wantErr: true},
		{name: "boolean", field: scalar("b", entities.ScalarBoolean), raw: true, want: true},
		{name: "boolean from string", field: scalar("b", entities.ScalarBoolean), raw: "true", wantErr: true},
		{name: "timestamp from string", field: scalar("t", entities.ScalarTimestamp), raw: "2024-03-01T13:00:00+01:00", want: ts},
		{name: "timestamp from time", field: scalar("t", entities.ScalarTimestamp), raw: ts, want: ts},
		{name: "timestamp malformed", field: scalar("t", entities.ScalarTimestamp), raw: "yesterday", wantErr: true},
		{name: "json object", field: scalar("j", entities.ScalarJSON), raw: map[string]interface{}{"host": "x"}, want: map[string]interface{}{"host": "x"}},
		{name: "json list", field: scalar("j", entities.ScalarJSON), raw: []interface{}{1.0}, wantErr: true},
		{name: "secret", field: &entities.FieldSpec{Name: "password", Kind: entities.FieldKindSecret}, raw: "hunter2", want: "hunter2"},
		{name: "null", field: scalar("label", entities.ScalarString), raw: nil, wantErr: true},
		{name: "auto key", field: &entities.FieldSpec{Name: "id", Kind: entities.FieldKindAutoKey}, raw: 1.0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			finder := &mockFinder{}
			got, err := ResolveArgument(context.Background(), tt.field, tt.raw, finder)
			if finder.calls != 0 {
				t.Errorf("scalar resolution touched the store")
			}
			if tt.wantErr {
				if entities.KindOf(err) != entities.KindInvalidArgument {
					t.Errorf("ResolveArgument() error = %v, want InvalidArgument", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveArgument() error = %v", err)
			}
			if want, ok := tt.want.(time.Time); ok {
				if gotTS, ok := got.Value.(time.Time); !ok || !gotTS.Equal(want) {
					t.Errorf("ResolveArgument() = %#v, want %v", got.Value, want)
				}
				return
			}
			if !reflect.DeepEqual(got.Value, tt.want) {
				t.Errorf("ResolveArgument() = %#v, want %#v", got.Value, tt.want)
			}
		})
	}
}

func TestResolveArgument_OwningReference(t *testing.T) {
	field := &entities.FieldSpec{Name: "workspace", Kind: entities.FieldKindOwningReference, Target: "workspace"}
	finder := existing("workspace", 3)
	ctx := context.Background()

	got, err := ResolveArgument(ctx, field, "3", finder)
	if err != nil {
		t.Fatalf("ResolveArgument() error = %v", err)
	}
	if got.Value != int64(3) || len(got.References) != 1 || got.References[0].ID != 3 {
		t.Errorf("ResolveArgument() = %+v", got)
	}

	if _, err := ResolveArgument(ctx, field, 4.0, finder); entities.KindOf(err) != entities.KindNotFound {
		t.Errorf("missing reference error = %v, want NotFound", err)
	}
	if _, err := ResolveArgument(ctx, field, "abc", finder); entities.KindOf(err) != entities.KindInvalidArgument {
		t.Errorf("malformed id error = %v, want InvalidArgument", err)
	}
	if _, err := ResolveArgument(ctx, field, 0.0, finder); entities.KindOf(err) != entities.KindInvalidArgument {
		t.Errorf("zero id error = %v, want InvalidArgument", err)
	}
}

func TestResolveArgument_StoreFailure(t *testing.T) {
	field := &entities.FieldSpec{Name: "workspace", Kind: entities.FieldKindOwningReference, Target: "workspace"}
	cause := errors.New("connection refused")
	finder := &mockFinder{
		getByIDFunc: func(ctx context.Context, entity string, id int64) (*entities.Record, error) {
			return nil, cause
		},
	}

	_, err := ResolveArgument(context.Background(), field, 1.0, finder)
	if entities.KindOf(err) != entities.KindCollaboratorUnavailable {
		t.Errorf("ResolveArgument() error = %v, want CollaboratorUnavailable", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("store error not wrapped")
	}
}

func TestResolveArgument_ReverseCollection(t *testing.T) {
	field := &entities.FieldSpec{Name: "blocks", Kind: entities.FieldKindReverseCollection, Target: "block"}
	ctx := context.Background()

	t.Run("all present", func(t *testing.T) {
		got, err := ResolveArgument(ctx, field, []interface{}{1.0, "2", 1.0}, existing("block", 1, 2))
		if err != nil {
			t.Fatalf("ResolveArgument() error = %v", err)
		}
		if !reflect.DeepEqual(got.Value, []int64{1, 2}) {
			t.Errorf("ResolveArgument() = %v, want [1 2]", got.Value)
		}
		if len(got.References) != 2 {
			t.Errorf("expected 2 references, got %d", len(got.References))
		}
	})

	t.Run("one missing", func(t *testing.T) {
		_, err := ResolveArgument(ctx, field, []interface{}{1.0, 9.0}, existing("block", 1, 2))
		if entities.KindOf(err) != entities.KindNotFound {
			t.Errorf("ResolveArgument() error = %v, want NotFound", err)
		}
	})

	t.Run("empty list", func(t *testing.T) {
		got, err := ResolveArgument(ctx, field, []interface{}{}, existing("block"))
		if err != nil {
			t.Fatalf("ResolveArgument() error = %v", err)
		}
		if ids := got.Value.([]int64); len(ids) != 0 {
			t.Errorf("expected empty list, got %v", ids)
		}
	})

	t.Run("not a list", func(t *testing.T) {
		_, err := ResolveArgument(ctx, field, 1.0, existing("block", 1))
		if entities.KindOf(err) != entities.KindInvalidArgument {
			t.Errorf("ResolveArgument() error = %v, want InvalidArgument", err)
		}
	})
}

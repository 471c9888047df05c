package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/eddy-backend/eddy/internal/entities"
	"github.com/eddy-backend/eddy/internal/repositories"
)

func TestRecordRepository_SaveAndGet(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	repo := NewPostgresRecordRepository(db)
	ctx := context.Background()

	t.Run("insert assigns an id", func(t *testing.T) {
		rec := entities.NewRecord("workspace")
		rec.SetOwner(1)
		rec.Set("label", "W1")

		saved, err := repo.Save(ctx, rec)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if saved.ID == 0 {
			t.Fatalf("Expected an assigned ID")
		}
		if rec.ID != 0 {
			t.Errorf("Save must not mutate the input record")
		}

		got, err := repo.GetByID(ctx, "workspace", saved.ID)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if !got.OwnedBy(1) {
			t.Errorf("Expected owner 1, got %v", got.OwnerID)
		}
		if v, _ := got.Get("label"); v != "W1" {
			t.Errorf("Expected label W1, got %v", v)
		}
	})

	t.Run("numbers come back as json.Number", func(t *testing.T) {
		rec := entities.NewRecord("widget")
		rec.Set("dashboard", int64(9007199254740993))

		saved, err := repo.Save(ctx, rec)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		got, err := repo.GetByID(ctx, "widget", saved.ID)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		n, ok := got.Values["dashboard"].(json.Number)
		if !ok {
			t.Fatalf("Expected json.Number, got %T", got.Values["dashboard"])
		}
		if n.String() != "9007199254740993" {
			t.Errorf("Expected 9007199254740993, got %s", n)
		}
	})

	t.Run("update replaces values", func(t *testing.T) {
		rec := entities.NewRecord("project")
		rec.Set("label", "old")
		saved, err := repo.Save(ctx, rec)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		saved.Set("label", "new")
		if _, err := repo.Save(ctx, saved); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		got, err := repo.GetByID(ctx, "project", saved.ID)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if v, _ := got.Get("label"); v != "new" {
			t.Errorf("Expected label new, got %v", v)
		}
	})

	t.Run("update of a missing record", func(t *testing.T) {
		rec := entities.NewRecord("project")
		rec.ID = 999999
		if _, err := repo.Save(ctx, rec); !errors.Is(err, repositories.ErrRecordNotFound) {
			t.Errorf("Expected ErrRecordNotFound, got: %v", err)
		}
	})

	t.Run("get with the wrong entity", func(t *testing.T) {
		rec := entities.NewRecord("project")
		saved, err := repo.Save(ctx, rec)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if _, err := repo.GetByID(ctx, "workspace", saved.ID); !errors.Is(err, repositories.ErrRecordNotFound) {
			t.Errorf("Expected ErrRecordNotFound, got: %v", err)
		}
	})
}

func TestRecordRepository_List(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	repo := NewPostgresRecordRepository(db)
	ctx := context.Background()

	var ids []int64
	for i, owner := range []int64{1, 2, 1} {
		rec := entities.NewRecord("dashboard")
		rec.SetOwner(owner)
		rec.Set("project", int64(10+i%2))
		saved, err := repo.Save(ctx, rec)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		ids = append(ids, saved.ID)
	}

	owner := int64(1)
	tests := []struct {
		name    string
		filter  *repositories.RecordFilter
		wantIDs []int64
	}{
		{name: "no filter", filter: nil, wantIDs: ids},
		{name: "by owner", filter: &repositories.RecordFilter{OwnerID: &owner}, wantIDs: []int64{ids[0], ids[2]}},
		{name: "by ids", filter: &repositories.RecordFilter{IDs: []int64{ids[1]}}, wantIDs: []int64{ids[1]}},
		{name: "empty ids", filter: &repositories.RecordFilter{IDs: []int64{}}, wantIDs: nil},
		{name: "by field", filter: &repositories.RecordFilter{Equals: map[string]interface{}{"project": 10}}, wantIDs: []int64{ids[0], ids[2]}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.List(ctx, "dashboard", tt.filter)
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("Expected %d records, got %d", len(tt.wantIDs), len(got))
			}
			for i, rec := range got {
				if rec.ID != tt.wantIDs[i] {
					t.Errorf("record %d: expected ID %d, got %d", i, tt.wantIDs[i], rec.ID)
				}
			}
		})
	}
}

func TestRecordRepository_Delete(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	repo := NewPostgresRecordRepository(db)
	ctx := context.Background()

	saved, err := repo.Save(ctx, entities.NewRecord("block"))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if err := repo.Delete(ctx, "block", saved.ID); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if err := repo.Delete(ctx, "block", saved.ID); !errors.Is(err, repositories.ErrRecordNotFound) {
		t.Errorf("Expected ErrRecordNotFound on second delete, got: %v", err)
	}
}

func TestRecordRepository_ListEqualsJSONObject(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	repo := NewPostgresRecordRepository(db)
	ctx := context.Background()

	var ids []int64
	for _, schema := range []map[string]interface{}{{"host": "a"}, {"host": "a", "port": 1}} {
		rec := entities.NewRecord("integration_type")
		rec.Set("schema", schema)
		saved, err := repo.Save(ctx, rec)
		if err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		ids = append(ids, saved.ID)
	}

	tests := []struct {
		name    string
		value   map[string]interface{}
		wantIDs []int64
	}{
		{name: "empty object matches nothing", value: map[string]interface{}{}, wantIDs: nil},
		{name: "subset is not equal", value: map[string]interface{}{"port": 1}, wantIDs: nil},
		{name: "exact object", value: map[string]interface{}{"host": "a"}, wantIDs: []int64{ids[0]}},
		{name: "key order does not matter", value: map[string]interface{}{"port": 1, "host": "a"}, wantIDs: []int64{ids[1]}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.List(ctx, "integration_type", &repositories.RecordFilter{Equals: map[string]interface{}{"schema": tt.value}})
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("List() returned %d records, want %d", len(got), len(tt.wantIDs))
			}
			for i, rec := range got {
				if rec.ID != tt.wantIDs[i] {
					t.Errorf("List()[%d].ID = %d, want %d", i, rec.ID, tt.wantIDs[i])
				}
			}
		})
	}
}

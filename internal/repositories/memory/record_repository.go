package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/eddy-backend/eddy/internal/entities"
	"github.com/eddy-backend/eddy/internal/repositories"
)

// RecordRepository implements RecordRepository in process memory.
// Records are cloned on the way in and out so callers never share state with the store.
type RecordRepository struct {
	mu      sync.RWMutex
	nextID  int64
	records map[string]map[int64]*entities.Record // entity -> id -> record
}

// NewRecordRepository creates an empty in-memory record repository
func NewRecordRepository() *RecordRepository {
	return &RecordRepository{
		records: make(map[string]map[int64]*entities.Record),
	}
}

// GetByID retrieves a record by entity and identifier
func (r *RecordRepository) GetByID(ctx context.Context, entity string, id int64) (*entities.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[entity][id]
	if !ok {
		return nil, repositories.ErrRecordNotFound
	}
	return rec.Clone(), nil
}

// List retrieves records matching the filter, ordered by ID
func (r *RecordRepository) List(ctx context.Context, entity string, filter *repositories.RecordFilter) ([]*entities.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var wantIDs map[int64]bool
	if filter != nil && filter.IDs != nil {
		wantIDs = make(map[int64]bool, len(filter.IDs))
		for _, id := range filter.IDs {
			wantIDs[id] = true
		}
	}

	var result []*entities.Record
	for id, rec := range r.records[entity] {
		if wantIDs != nil && !wantIDs[id] {
			continue
		}
		if filter != nil && filter.OwnerID != nil && !rec.OwnedBy(*filter.OwnerID) {
			continue
		}
		if filter != nil {
			ok, err := matchesEquals(rec, filter.Equals)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		result = append(result, rec.Clone())
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Save inserts a new record or replaces an existing one
func (r *RecordRepository) Save(ctx context.Context, record *entities.Record) (*entities.Record, error) {
	if err := record.Validate(); err != nil {
		return nil, fmt.Errorf("invalid record: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	saved := record.Clone()
	now := time.Now()

	if saved.ID == 0 {
		r.nextID++
		saved.ID = r.nextID
		saved.CreatedAt = now
		saved.UpdatedAt = now
		if r.records[saved.Entity] == nil {
			r.records[saved.Entity] = make(map[int64]*entities.Record)
		}
		r.records[saved.Entity][saved.ID] = saved
		return saved.Clone(), nil
	}

	existing, ok := r.records[saved.Entity][saved.ID]
	if !ok {
		return nil, repositories.ErrRecordNotFound
	}
	saved.CreatedAt = existing.CreatedAt
	saved.UpdatedAt = now
	r.records[saved.Entity][saved.ID] = saved
	return saved.Clone(), nil
}

// Delete removes a record
func (r *RecordRepository) Delete(ctx context.Context, entity string, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[entity][id]; !ok {
		return repositories.ErrRecordNotFound
	}
	delete(r.records[entity], id)
	return nil
}

// matchesEquals compares field values by their JSON encoding, the same way the PostgreSQL store does
func matchesEquals(rec *entities.Record, equals map[string]interface{}) (bool, error) {
	for name, want := range equals {
		got, ok := rec.Values[name]
		if !ok {
			return false, nil
		}
		gotJSON, err := json.Marshal(got)
		if err != nil {
			return false, fmt.Errorf("failed to marshal value of %s: %w", name, err)
		}
		wantJSON, err := json.Marshal(want)
		if err != nil {
			return false, fmt.Errorf("failed to marshal filter value of %s: %w", name, err)
		}
		if !bytes.Equal(gotJSON, wantJSON) {
			return false, nil
		}
	}
	return true, nil
}

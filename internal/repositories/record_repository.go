package repositories

import (
	"context"
	"errors"

	"github.com/eddy-backend/eddy/internal/entities"
)

// ErrRecordNotFound is returned when no record exists for an entity and identifier
var ErrRecordNotFound = errors.New("record not found")

// RecordFilter defines filter criteria for listing records.
// All set criteria must match.
type RecordFilter struct {
	OwnerID *int64                 // Filter by owning principal (optional)
	IDs     []int64                // Filter by identifiers (optional)
	Equals  map[string]interface{} // Filter by field values, compared as JSON (optional)
}

// RecordRepository defines the interface for record data access.
// It is keyed by entity name and identifier and knows nothing about schemas.
type RecordRepository interface {
	// GetByID retrieves a record, ErrRecordNotFound if absent
	GetByID(ctx context.Context, entity string, id int64) (*entities.Record, error)

	// List retrieves the records of an entity matching the filter (nil = all), ordered by ID
	List(ctx context.Context, entity string, filter *RecordFilter) ([]*entities.Record, error)

	// Save inserts a record (ID 0, an ID is assigned) or replaces an existing one
	Save(ctx context.Context, record *entities.Record) (*entities.Record, error)

	// Delete removes a record, ErrRecordNotFound if absent
	Delete(ctx context.Context, entity string, id int64) error
}

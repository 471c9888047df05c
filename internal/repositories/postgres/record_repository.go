package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/eddy-backend/eddy/internal/entities"
	"github.com/eddy-backend/eddy/internal/repositories"
	"github.com/lib/pq"
)

// PostgresRecordRepository implements RecordRepository using PostgreSQL.
// Every entity shares the records table; field values live in a JSONB column.
type PostgresRecordRepository struct {
	db *sql.DB
}

// NewPostgresRecordRepository creates a new PostgreSQL record repository
func NewPostgresRecordRepository(db *sql.DB) repositories.RecordRepository {
	return &PostgresRecordRepository{db: db}
}

// GetByID retrieves a record by entity and identifier
func (r *PostgresRecordRepository) GetByID(ctx context.Context, entity string, id int64) (*entities.Record, error) {
	query := `
		SELECT id, entity, owner_id, data, created_at, updated_at
		FROM records
		WHERE entity = $1 AND id = $2
	`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, entity, id))
	if err == sql.ErrNoRows {
		return nil, repositories.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, nil
}

// List retrieves records matching the filter
func (r *PostgresRecordRepository) List(ctx context.Context, entity string, filter *repositories.RecordFilter) ([]*entities.Record, error) {
	query := `
		SELECT id, entity, owner_id, data, created_at, updated_at
		FROM records
		WHERE entity = $1
	`
	args := []interface{}{entity}
	argIdx := 2

	// Build dynamic WHERE clause based on filter
	if filter != nil {
		if filter.OwnerID != nil {
			query += fmt.Sprintf(" AND owner_id = $%d", argIdx)
			args = append(args, *filter.OwnerID)
			argIdx++
		}
		if filter.IDs != nil {
			query += fmt.Sprintf(" AND id = ANY($%d)", argIdx)
			args = append(args, pq.Array(filter.IDs))
			argIdx++
		}
		// Whole-value JSONB equality; containment would let {} match every object
		names := make([]string, 0, len(filter.Equals))
		for name := range filter.Equals {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			value, err := json.Marshal(filter.Equals[name])
			if err != nil {
				return nil, fmt.Errorf("failed to marshal filter: %w", err)
			}
			query += fmt.Sprintf(" AND data -> $%d::text = $%d::jsonb", argIdx, argIdx+1)
			args = append(args, name, string(value))
			argIdx += 2
		}
	}
	query += " ORDER BY id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []*entities.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return records, nil
}

// Save inserts a new record or replaces the values of an existing one
func (r *PostgresRecordRepository) Save(ctx context.Context, record *entities.Record) (*entities.Record, error) {
	if err := record.Validate(); err != nil {
		return nil, fmt.Errorf("invalid record: %w", err)
	}

	data, err := json.Marshal(record.Values)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record values: %w", err)
	}
	if record.Values == nil {
		data = []byte("{}")
	}

	owner := sql.NullInt64{}
	if record.OwnerID != nil {
		owner = sql.NullInt64{Int64: *record.OwnerID, Valid: true}
	}

	saved := record.Clone()
	now := time.Now()

	if record.ID == 0 {
		query := `
			INSERT INTO records (entity, owner_id, data, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at, updated_at
		`
		err = r.db.QueryRowContext(ctx, query, record.Entity, owner, string(data), now, now).
			Scan(&saved.ID, &saved.CreatedAt, &saved.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to insert record: %w", err)
		}
		return saved, nil
	}

	query := `
		UPDATE records
		SET owner_id = $1, data = $2, updated_at = $3
		WHERE entity = $4 AND id = $5
		RETURNING created_at, updated_at
	`
	err = r.db.QueryRowContext(ctx, query, owner, string(data), now, record.Entity, record.ID).
		Scan(&saved.CreatedAt, &saved.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, repositories.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update record: %w", err)
	}
	return saved, nil
}

// Delete removes a record
func (r *PostgresRecordRepository) Delete(ctx context.Context, entity string, id int64) error {
	query := `DELETE FROM records WHERE entity = $1 AND id = $2`
	result, err := r.db.ExecContext(ctx, query, entity, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return repositories.ErrRecordNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanRecord reads one row. JSON numbers are kept as json.Number so integers survive intact.
func scanRecord(row rowScanner) (*entities.Record, error) {
	var (
		rec   entities.Record
		owner sql.NullInt64
		data  []byte
	)
	if err := row.Scan(&rec.ID, &rec.Entity, &owner, &data, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if owner.Valid {
		rec.SetOwner(owner.Int64)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&rec.Values); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record values: %w", err)
	}
	if rec.Values == nil {
		rec.Values = make(map[string]interface{})
	}
	return &rec, nil
}

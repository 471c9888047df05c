package entities

import (
	"fmt"
	"time"
)

// Record represents a stored instance of an entity
// Example: project:7 {label: "P1", workspace: 3} owned by user 1
type Record struct {
	ID        int64                  // System-assigned identifier (0 until first save)
	Entity    string                 // Entity name
	OwnerID   *int64                 // Owning principal, nil for principals and global catalogs
	Values    map[string]interface{} // Field values keyed by field name (references hold ids)
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewRecord creates an empty record for the entity
func NewRecord(entity string) *Record {
	return &Record{
		Entity: entity,
		Values: make(map[string]interface{}),
	}
}

// String returns a string representation of the record
// Format: entity:id
func (r *Record) String() string {
	return fmt.Sprintf("%s:%d", r.Entity, r.ID)
}

// Get returns the value of a field
func (r *Record) Get(name string) (interface{}, bool) {
	v, ok := r.Values[name]
	return v, ok
}

// Set assigns the value of a field
func (r *Record) Set(name string, value interface{}) {
	if r.Values == nil {
		r.Values = make(map[string]interface{})
	}
	r.Values[name] = value
}

// SetOwner assigns the owning principal
func (r *Record) SetOwner(id int64) {
	r.OwnerID = &id
}

// OwnedBy reports whether the record's owner is the given principal
func (r *Record) OwnedBy(id int64) bool {
	return r.OwnerID != nil && *r.OwnerID == id
}

// Clone returns a copy of the record that can be mutated independently.
// Slice values are copied; nested JSON objects are shared.
func (r *Record) Clone() *Record {
	c := *r
	if r.OwnerID != nil {
		owner := *r.OwnerID
		c.OwnerID = &owner
	}
	c.Values = make(map[string]interface{}, len(r.Values))
	for k, v := range r.Values {
		if ids, ok := v.([]int64); ok {
			v = append([]int64(nil), ids...)
		}
		c.Values[k] = v
	}
	return &c
}

// Validate checks if the record can be written
func (r *Record) Validate() error {
	if r.Entity == "" {
		return fmt.Errorf("entity is required")
	}
	if r.ID < 0 {
		return fmt.Errorf("invalid record ID: %d", r.ID)
	}
	return nil
}

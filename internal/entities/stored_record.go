package entities

import (
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// StoredRecord represents one persisted record of an entity
// Example: customer#3 with data {"Name":"Ada"}
type StoredRecord struct {
	Entity    string            // Entity name (e.g., "customer")
	ID        uint64            // Record ID, unique per entity, never 0 once stored
	Data      []byte            // JSON encoded record fields
	Links     map[string]uint64 // Virtual to-one foreign keys by property name (optional)
	UpdatedAt time.Time
}

// RecordKey returns the cache key of a record
// Format: entity/id
func RecordKey(entity string, id uint64) string {
	return entity + "/" + strconv.FormatUint(id, 10)
}

// Key returns the cache key of the record
func (r *StoredRecord) Key() string {
	return RecordKey(r.Entity, r.ID)
}

// String returns a string representation of the stored record
// Format: entity#id
func (r *StoredRecord) String() string {
	return fmt.Sprintf("%s#%d", r.Entity, r.ID)
}

// Link returns the virtual foreign key stored under property, 0 if absent
func (r *StoredRecord) Link(property string) uint64 {
	return r.Links[property]
}

// EncodeLinks returns the JSON form of Links for storage
// A record without links encodes as an empty object.
func (r *StoredRecord) EncodeLinks() ([]byte, error) {
	if len(r.Links) == 0 {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(r.Links)
	if err != nil {
		return nil, fmt.Errorf("failed to encode links of %s: %w", r, err)
	}
	return data, nil
}

// DecodeLinks parses stored JSON links into Links
func (r *StoredRecord) DecodeLinks(data []byte) error {
	r.Links = nil
	if len(data) == 0 {
		return nil
	}
	var links map[string]uint64
	if err := json.Unmarshal(data, &links); err != nil {
		return fmt.Errorf("failed to decode links of %s: %w", r, err)
	}
	if len(links) > 0 {
		r.Links = links
	}
	return nil
}

// Validate checks if the stored record is valid
func (r *StoredRecord) Validate() error {
	if r.Entity == "" {
		return fmt.Errorf("entity is required")
	}
	if r.ID == 0 {
		return fmt.Errorf("record ID is required")
	}
	if len(r.Data) == 0 {
		return fmt.Errorf("record data is required")
	}
	if !json.Valid(r.Data) {
		return fmt.Errorf("record data must be valid JSON")
	}
	for property, id := range r.Links {
		if property == "" {
			return fmt.Errorf("link property name is required")
		}
		if id == 0 {
			return fmt.Errorf("link %s: zero target ID must be omitted", property)
		}
	}
	return nil
}

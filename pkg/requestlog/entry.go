package requestlog

import (
	"encoding/json"
	"maps"
	"time"

	"github.com/google/uuid"
)

// Entry captures a single request received by an imposter.
type Entry struct {
	// ID is a unique identifier for the entry.
	ID string

	// Timestamp is when the request was received.
	Timestamp time.Time

	// Request holds the protocol-specific request fields.
	Request map[string]any
}

// NewEntry creates an Entry for the given request fields, stamped now.
func NewEntry(request map[string]any) *Entry {
	return &Entry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Request:   request,
	}
}

// MarshalJSON flattens the request fields next to the entry metadata so a
// recorded request reads like the request itself.
func (e *Entry) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Request)+2)
	maps.Copy(out, e.Request)
	out["id"] = e.ID
	out["timestamp"] = e.Timestamp.Format(time.RFC3339Nano)
	return json.Marshal(out)
}

// Handles metadata.json, the durable home of a collection's id counter.

package jsonldb

import (
	"encoding/json"
	"fmt"
	"time"
)

// Metadata is persisted as metadata.json in the collection directory.
type Metadata struct {
	// NextID is the last id handed out. The next allocation returns NextID+1.
	NextID int64 `json:"id"`
	// Count is the number of rows at the last successful write.
	Count int `json:"count"`
	// Modified is the time of the last successful write.
	Modified time.Time `json:"datetime"`
}

// localISOFormat is an ISO-8601 timestamp without zone, as written by older
// versions of the store.
const localISOFormat = "2006-01-02T15:04:05.999999999"

// UnmarshalJSON accepts RFC 3339 timestamps and zone-less ISO-8601 ones.
func (m *Metadata) UnmarshalJSON(b []byte) error {
	var raw struct {
		NextID   json.Number `json:"id"`
		Count    int         `json:"count"`
		Modified string      `json:"datetime"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	id, ok := ParseID(raw.NextID)
	if raw.NextID != "" && !ok {
		return fmt.Errorf("invalid id counter %q", raw.NextID)
	}
	m.NextID = id
	m.Count = raw.Count
	m.Modified = time.Time{}
	if raw.Modified == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw.Modified)
	if err != nil {
		if t, err = time.ParseInLocation(localISOFormat, raw.Modified, time.Local); err != nil {
			return fmt.Errorf("invalid datetime %q: %w", raw.Modified, err)
		}
	}
	m.Modified = t
	return nil
}

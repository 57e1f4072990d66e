// Package output writes extraction results as Singer messages, one JSON
// object per line: a SCHEMA message per stream, a RECORD message per record
// and a STATE message after every page.
package output

import (
	"encoding/json"
	"time"
)

// Message types.
const (
	TypeSchema = "SCHEMA"
	TypeRecord = "RECORD"
	TypeState  = "STATE"
)

// Message is one line of output.
type Message struct {
	Type          string          `json:"type"`
	Stream        string          `json:"stream,omitempty"`
	Record        any             `json:"record,omitempty"`
	TimeExtracted *time.Time      `json:"time_extracted,omitempty"`
	Schema        json.RawMessage `json:"schema,omitempty"`
	KeyProperties []string        `json:"key_properties,omitempty"`
	Value         any             `json:"value,omitempty"`
}

// Bookmark is the resumable position of one stream inside a STATE message.
type Bookmark struct {
	// NextPage is the continuation token, null once the stream is complete.
	NextPage *string `json:"next_page"`

	RunID string `json:"run_id,omitempty"`
}

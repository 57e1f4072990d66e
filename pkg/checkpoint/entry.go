package checkpoint

import (
	"time"
)

// Entry is the stored checkpoint.
type Entry struct {
	// Stream is the stream the token belongs to.
	Stream string `json:"stream"`

	// Token is the continuation token of the next page to fetch.
	Token string `json:"token"`

	// Pages is how many pages the saving run had completed.
	Pages int `json:"pages"`

	// RunID identifies the run that saved the entry.
	RunID string `json:"run_id,omitempty"`

	// SavedAt is when the entry was written.
	SavedAt time.Time `json:"saved_at"`
}

// Age returns the time since the entry was saved.
func (e *Entry) Age() time.Duration {
	return time.Since(e.SavedAt)
}

// Package stream defines the extraction capability of an upstream stream and
// its single concrete implementation, the FrontApp events stream.
package stream

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/Sternrassler/frontapp-tap/pkg/ratelimit"
)

// Stream is everything the extraction loop needs to know about one endpoint.
type Stream interface {
	// Name is the stream name used in emitted messages and checkpoints.
	Name() string

	// Path is the endpoint path relative to the API root.
	Path() string

	// KeyProperties are the primary key fields of emitted records.
	KeyProperties() []string

	// Schema is the JSON schema of emitted records.
	Schema() json.RawMessage

	// BuildParams returns the query for the page identified by token.
	// An empty token means the first page.
	BuildParams(token string) (url.Values, error)

	// Classify decides what to do with a response.
	Classify(statusCode int, headers http.Header, now time.Time) ratelimit.Verdict

	// ParseRecords extracts the raw records from a page body.
	ParseRecords(body []byte) ([]Record, error)

	// NextToken extracts the continuation token from a page body.
	// It returns "" on the last page.
	NextToken(body []byte) (string, error)

	// PostProcess normalizes one raw record.
	PostProcess(raw Record) (NormalizedRecord, error)
}

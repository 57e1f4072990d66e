package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Sternrassler/frontapp-tap/pkg/config"
	"github.com/Sternrassler/frontapp-tap/pkg/pagination"
	"github.com/Sternrassler/frontapp-tap/pkg/ratelimit"
)

// EventsStream extracts /events.
//
// Events are sorted by creation time but the q[after] and q[before] filters
// apply to emission time. The two usually match, not always.
type EventsStream struct {
	cfg config.ExtractionConfig
}

// NewEventsStream creates the events stream for a run.
func NewEventsStream(cfg config.ExtractionConfig) *EventsStream {
	return &EventsStream{cfg: cfg}
}

// Name implements Stream.
func (s *EventsStream) Name() string { return "events" }

// Path implements Stream.
func (s *EventsStream) Path() string { return "/events" }

// KeyProperties implements Stream.
func (s *EventsStream) KeyProperties() []string { return []string{"id"} }

// Schema implements Stream.
func (s *EventsStream) Schema() json.RawMessage { return json.RawMessage(eventsSchema) }

// BuildParams implements Stream.
func (s *EventsStream) BuildParams(token string) (url.Values, error) {
	return pagination.ParamsFor(s.cfg, token)
}

// Classify implements Stream using the configured quota ceiling.
func (s *EventsStream) Classify(statusCode int, headers http.Header, now time.Time) ratelimit.Verdict {
	return ratelimit.Classify(statusCode, headers, now, s.cfg.QuotaPercent)
}

type resultsEnvelope struct {
	Results []json.RawMessage `json:"_results"`
}

// ParseRecords implements Stream. Records are read from _results.
func (s *EventsStream) ParseRecords(body []byte) ([]Record, error) {
	var env resultsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}

	records := make([]Record, 0, len(env.Results))
	for i, raw := range env.Results {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()

		var rec Record
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decode result %d: %w", i, err)
		}
		if rec == nil {
			return nil, fmt.Errorf("decode result %d: not an object", i)
		}
		records = append(records, rec)
	}
	return records, nil
}

// NextToken implements Stream. The token is _pagination.next.
func (s *EventsStream) NextToken(body []byte) (string, error) {
	return pagination.ExtractContinuationToken(body)
}

// PostProcess implements Stream.
func (s *EventsStream) PostProcess(raw Record) (NormalizedRecord, error) {
	return Normalize(raw)
}

const eventsSchema = `{
  "type": "object",
  "properties": {
    "_links": {
      "type": ["object", "null"],
      "properties": {
        "self": {"type": ["string", "null"]}
      }
    },
    "id": {"type": ["string", "null"]},
    "type": {"type": ["string", "null"]},
    "emitted_at": {"type": ["number", "null"]},
    "emitted_timestamp": {"type": ["string", "null"], "format": "date-time"},
    "conversation": {"type": ["object", "null"], "additionalProperties": true},
    "source": {"type": ["object", "null"], "additionalProperties": true},
    "target": {"type": ["object", "null"], "additionalProperties": true}
  }
}`

package checkpoint

import (
	"net/url"
	"sort"
	"strings"
)

// Key identifies the checkpoint of one stream and filter combination.
type Key struct {
	// Stream is the stream name, e.g. "events".
	Stream string

	// Filters are the first-page query parameters of the run.
	Filters url.Values
}

// KeyFor builds the key of a stream run started with the given first-page params.
func KeyFor(stream string, filters url.Values) Key {
	return Key{Stream: stream, Filters: filters}
}

// String generates a deterministic Redis key.
// Format: frontapp:checkpoint:stream:param1=v1,v2:param2=v3
// Values are query-escaped, so a comma or colon inside a value cannot collide
// with the separators.
//
// Example:
//
//	frontapp:checkpoint:events:limit=15:q[types]=inbound,outbound:sort_order=asc
func (k Key) String() string {
	parts := []string{"frontapp", "checkpoint"}

	if stream := strings.TrimSpace(k.Stream); stream != "" {
		parts = append(parts, stream)
	}

	if len(k.Filters) > 0 {
		names := make([]string, 0, len(k.Filters))
		for name := range k.Filters {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			// Multi-valued filters keep their order; q[types] order is part of the query.
			values := make([]string, len(k.Filters[name]))
			for i, v := range k.Filters[name] {
				values[i] = url.QueryEscape(v)
			}
			parts = append(parts, name+"="+strings.Join(values, ","))
		}
	}

	return strings.Join(parts, ":")
}

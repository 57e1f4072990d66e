package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/Sternrassler/frontapp-tap/pkg/stream"
)

// CatalogEntry describes one stream in discovery mode.
type CatalogEntry struct {
	Stream        string          `json:"stream"`
	TapStreamID   string          `json:"tap_stream_id"`
	Schema        json.RawMessage `json:"schema"`
	KeyProperties []string        `json:"key_properties"`
}

// Catalog is the discovery document.
type Catalog struct {
	Streams []CatalogEntry `json:"streams"`
}

// NewCatalog builds the catalog of the given streams.
func NewCatalog(streams ...stream.Stream) Catalog {
	c := Catalog{Streams: make([]CatalogEntry, 0, len(streams))}
	for _, s := range streams {
		c.Streams = append(c.Streams, CatalogEntry{
			Stream:        s.Name(),
			TapStreamID:   s.Name(),
			Schema:        s.Schema(),
			KeyProperties: s.KeyProperties(),
		})
	}
	return c
}

// WriteCatalog writes the catalog as indented JSON.
func WriteCatalog(w io.Writer, streams ...stream.Stream) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(NewCatalog(streams...)); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	return nil
}

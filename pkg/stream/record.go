package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Record is one raw upstream object. Numbers are json.Number so they are
// emitted exactly as received.
type Record map[string]any

// ID returns the record's id field, or "" when absent.
func (r Record) ID() string {
	if id, ok := r["id"].(string); ok {
		return id
	}
	return ""
}

// NormalizedRecord is a raw record with a derived field placed first.
type NormalizedRecord struct {
	// DerivedKey and DerivedValue are emitted before every original field.
	DerivedKey   string
	DerivedValue any

	// Fields are the original fields, unmodified.
	Fields Record
}

// Get returns a field, preferring an original field over the derived one.
func (n NormalizedRecord) Get(key string) (any, bool) {
	if v, ok := n.Fields[key]; ok {
		return v, true
	}
	if key == n.DerivedKey {
		return n.DerivedValue, true
	}
	return nil, false
}

// Map flattens the record. An original field with the derived key wins.
func (n NormalizedRecord) Map() map[string]any {
	out := make(map[string]any, len(n.Fields)+1)
	out[n.DerivedKey] = n.DerivedValue
	for k, v := range n.Fields {
		out[k] = v
	}
	return out
}

// MarshalJSON writes the derived key first, then the original fields in
// sorted order.
func (n NormalizedRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	first, _ := n.Get(n.DerivedKey)
	if err := writeField(&buf, n.DerivedKey, first); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(n.Fields))
	for k := range n.Fields {
		if k != n.DerivedKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		buf.WriteByte(',')
		if err := writeField(&buf, k, n.Fields[k]); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeField(buf *bytes.Buffer, key string, value any) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	v, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal field %s: %w", key, err)
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	return nil
}

package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/frontapp-tap/pkg/config"
	"github.com/Sternrassler/frontapp-tap/pkg/stream"
)

var extractedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return extractedAt }

func lines(t *testing.T, buf *bytes.Buffer) []map[string]json.RawMessage {
	t.Helper()

	var out []map[string]json.RawMessage
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		var msg map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &msg), "line %q", scanner.Text())
		out = append(out, msg)
	}
	require.NoError(t, scanner.Err())
	return out
}

func TestWriter_WriteStream(t *testing.T) {
	cfg, err := config.NewExtractionConfig(100, 15, config.SortAsc, nil, "", "")
	require.NoError(t, err)

	var buf bytes.Buffer
	w := NewWriter(&buf, fixedClock)
	require.NoError(t, w.WriteStream(stream.NewEventsStream(cfg)))

	msgs := lines(t, &buf)
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `"SCHEMA"`, string(msgs[0]["type"]))
	assert.JSONEq(t, `"events"`, string(msgs[0]["stream"]))
	assert.JSONEq(t, `["id"]`, string(msgs[0]["key_properties"]))
	assert.Contains(t, string(msgs[0]["schema"]), "emitted_timestamp")
}

func TestWriter_WriteSchemaRejectsInvalidJSON(t *testing.T) {
	w := NewWriter(&bytes.Buffer{}, fixedClock)
	assert.Error(t, w.WriteSchema("events", json.RawMessage(`{`), nil))
}

func TestWriter_Record(t *testing.T) {
	rec, err := stream.Normalize(stream.Record{
		"id":         "evt_1",
		"emitted_at": json.Number("1700000000.5"),
		"type":       "inbound",
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	w := NewWriter(&buf, fixedClock)
	require.NoError(t, w.Record("events", rec))

	line := buf.String()
	assert.True(t, strings.HasSuffix(line, "\n"))
	assert.Equal(t,
		`{"type":"RECORD","stream":"events","record":{"emitted_timestamp":"2023-11-14T22:13:20.500000+00:00","emitted_at":1700000000.5,"id":"evt_1","type":"inbound"},"time_extracted":"2024-03-01T12:00:00Z"}`+"\n",
		line)
	assert.Equal(t, 1, w.Count("events"))
	assert.Equal(t, 0, w.Count("other"))
}

func TestWriter_PageDone(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, fixedClock).WithRunID("run-1")

	token := "https://api2.frontapp.com/events?page_token=abc"
	require.NoError(t, w.PageDone("events", token))
	require.NoError(t, w.PageDone("events", ""))

	msgs := lines(t, &buf)
	require.Len(t, msgs, 2)

	assert.JSONEq(t, `"STATE"`, string(msgs[0]["type"]))
	assert.JSONEq(t, `{"events":{"next_page":"`+token+`","run_id":"run-1"}}`, string(msgs[0]["value"]))
	assert.JSONEq(t, `{"events":{"next_page":null,"run_id":"run-1"}}`, string(msgs[1]["value"]))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestWriter_PropagatesWriteErrors(t *testing.T) {
	w := NewWriter(failingWriter{}, fixedClock)

	err := w.PageDone("events", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write STATE message: broken pipe")
}

package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Sternrassler/frontapp-tap/pkg/stream"
)

// Writer serializes messages to an io.Writer. It is safe for concurrent use
// and implements extract.Sink.
type Writer struct {
	mu        sync.Mutex
	w         io.Writer
	clock     func() time.Time
	runID     string
	bookmarks map[string]Bookmark
	counts    map[string]int
}

// NewWriter creates a Writer. A nil clock uses time.Now.
func NewWriter(w io.Writer, clock func() time.Time) *Writer {
	if clock == nil {
		clock = time.Now
	}
	return &Writer{
		w:         w,
		clock:     clock,
		bookmarks: make(map[string]Bookmark),
		counts:    make(map[string]int),
	}
}

// WithRunID tags bookmarks with the id of the current run.
func (w *Writer) WithRunID(runID string) *Writer {
	w.runID = runID
	return w
}

// WriteSchema emits the SCHEMA message of a stream.
func (w *Writer) WriteSchema(streamName string, schema json.RawMessage, keyProperties []string) error {
	if !json.Valid(schema) {
		return fmt.Errorf("schema for %s is not valid JSON", streamName)
	}
	return w.write(Message{
		Type:          TypeSchema,
		Stream:        streamName,
		Schema:        schema,
		KeyProperties: keyProperties,
	})
}

// WriteStream emits the SCHEMA message of s.
func (w *Writer) WriteStream(s stream.Stream) error {
	return w.WriteSchema(s.Name(), s.Schema(), s.KeyProperties())
}

// Record emits a RECORD message.
func (w *Writer) Record(streamName string, rec stream.NormalizedRecord) error {
	extracted := w.clock().UTC()
	if err := w.write(Message{
		Type:          TypeRecord,
		Stream:        streamName,
		Record:        rec,
		TimeExtracted: &extracted,
	}); err != nil {
		return err
	}

	w.mu.Lock()
	w.counts[streamName]++
	w.mu.Unlock()
	return nil
}

// PageDone updates the stream's bookmark and emits a STATE message.
func (w *Writer) PageDone(streamName string, nextToken string) error {
	w.mu.Lock()
	bookmark := Bookmark{RunID: w.runID}
	if nextToken != "" {
		token := nextToken
		bookmark.NextPage = &token
	}
	w.bookmarks[streamName] = bookmark

	state := make(map[string]Bookmark, len(w.bookmarks))
	for name, b := range w.bookmarks {
		state[name] = b
	}
	w.mu.Unlock()

	return w.write(Message{Type: TypeState, Value: state})
}

// Count returns how many records were written for a stream.
func (w *Writer) Count(streamName string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.counts[streamName]
}

func (w *Writer) write(msg Message) error {
	line, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", msg.Type, err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(line); err != nil {
		return fmt.Errorf("write %s message: %w", msg.Type, err)
	}
	return nil
}

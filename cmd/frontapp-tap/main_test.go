package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/frontapp-tap/internal/testutil"
)

type message struct {
	Type   string          `json:"type"`
	Stream string          `json:"stream"`
	Record map[string]any  `json:"record"`
	Value  json.RawMessage `json:"value"`
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func parseMessages(t *testing.T, out string) []message {
	t.Helper()

	var msgs []message
	scanner := bufio.NewScanner(bytes.NewBufferString(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var msg message
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &msg), "line %q", scanner.Text())
		msgs = append(msgs, msg)
	}
	return msgs
}

func TestRun_EmitsSingerMessages(t *testing.T) {
	mock := testutil.NewMockFront("secret", 5, 2)
	defer mock.Close()

	t.Setenv("FRONTAPP_API_KEY", "secret")
	t.Setenv("FRONTAPP_API_URL", mock.URL())
	t.Setenv("FRONTAPP_LIMIT", "2")

	stdout, stderr, err := execute(t)
	require.NoError(t, err, "stderr: %s", stderr)

	msgs := parseMessages(t, stdout)
	require.NotEmpty(t, msgs)
	assert.Equal(t, "SCHEMA", msgs[0].Type)
	assert.Equal(t, "events", msgs[0].Stream)

	var ids []string
	var states int
	for _, msg := range msgs[1:] {
		switch msg.Type {
		case "RECORD":
			ids = append(ids, msg.Record["id"].(string))
			assert.NotEmpty(t, msg.Record["emitted_timestamp"])
		case "STATE":
			states++
		}
	}
	assert.Equal(t, mock.EventIDs(), ids)
	assert.Equal(t, 3, states, "one STATE per page")

	last := msgs[len(msgs)-1]
	require.Equal(t, "STATE", last.Type)
	var state map[string]map[string]any
	require.NoError(t, json.Unmarshal(last.Value, &state))
	assert.Nil(t, state["events"]["next_page"])
	assert.NotEmpty(t, state["events"]["run_id"])

	assert.Contains(t, stderr, "Run finished")
	assert.NotContains(t, stdout, "Run finished", "logs must not reach stdout")

	for _, auth := range mock.Authorizations() {
		assert.Equal(t, "Bearer secret", auth)
	}
}

func TestRun_ConfigFile(t *testing.T) {
	mock := testutil.NewMockFront("from-file", 1, 15)
	defer mock.Close()

	path := filepath.Join(t.TempDir(), "config.json")
	body, _ := json.Marshal(map[string]any{
		"api_key": "from-file",
		"api_url": mock.URL(),
		"q_types": []string{"inbound"},
	})
	require.NoError(t, os.WriteFile(path, body, 0o600))

	_, stderr, err := execute(t, "--config", path)
	require.NoError(t, err, "stderr: %s", stderr)

	queries := mock.Queries()
	require.Len(t, queries, 1)
	assert.Equal(t, []string{"inbound"}, queries[0]["q[types]"])
	assert.Equal(t, "asc", queries[0].Get("sort_order"))
}

func TestRun_EnvFile(t *testing.T) {
	mock := testutil.NewMockFront("from-dotenv", 1, 15)
	defer mock.Close()

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("FRONTAPP_API_KEY=from-dotenv\nFRONTAPP_API_URL="+mock.URL()+"\n"), 0o600))

	// godotenv does not override variables that are already set.
	t.Setenv("FRONTAPP_API_KEY", "")
	os.Unsetenv("FRONTAPP_API_KEY")
	t.Setenv("FRONTAPP_API_URL", "")
	os.Unsetenv("FRONTAPP_API_URL")

	_, stderr, err := execute(t, "--env-file", path)
	require.NoError(t, err, "stderr: %s", stderr)
	assert.Equal(t, 1, mock.RequestCount())
}

func TestRun_MissingAPIKey(t *testing.T) {
	t.Setenv("FRONTAPP_API_KEY", "")

	_, _, err := execute(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APIKey")
}

func TestRun_ResumeRequiresRedis(t *testing.T) {
	t.Setenv("FRONTAPP_API_KEY", "secret")
	t.Setenv("FRONTAPP_REDIS_URL", "")

	_, _, err := execute(t, "--resume")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--resume requires redis_url")
}

func TestRun_FatalUpstreamError(t *testing.T) {
	mock := testutil.NewMockFront("secret", 3, 15)
	defer mock.Close()

	t.Setenv("FRONTAPP_API_KEY", "wrong")
	t.Setenv("FRONTAPP_API_URL", mock.URL())

	stdout, _, err := execute(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401 Client Error: Unauthorized for path: /events")
	assert.Equal(t, 1, mock.RequestCount(), "client errors are not retried")

	msgs := parseMessages(t, stdout)
	require.Len(t, msgs, 1)
	assert.Equal(t, "SCHEMA", msgs[0].Type)
}

func TestDiscover(t *testing.T) {
	stdout, _, err := execute(t, "--discover")
	require.NoError(t, err)

	var catalog struct {
		Streams []struct {
			Stream        string   `json:"stream"`
			KeyProperties []string `json:"key_properties"`
		} `json:"streams"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &catalog))
	require.Len(t, catalog.Streams, 1)
	assert.Equal(t, "events", catalog.Streams[0].Stream)
	assert.Equal(t, []string{"id"}, catalog.Streams[0].KeyProperties)
}

func TestVersion(t *testing.T) {
	stdout, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "frontapp-tap dev (unknown)\n", stdout)
}

func TestRejectsArguments(t *testing.T) {
	_, _, err := execute(t, "unexpected")
	assert.Error(t, err)
}

package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text")

	Debug("hidden", "k", "v")
	Info("visible", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
}

func TestSetLevelAtRuntime(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "WARN", "text")

	Info("before")
	SetLevel("DEBUG")
	Debug("after")

	out := buf.String()
	assert.NotContains(t, out, "before")
	assert.Contains(t, out, "after")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json")

	Info("lock acquired", KeyPath, "/var/mail/alice", KeyEpoch, 4)

	line := strings.TrimSpace(buf.String())
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "lock acquired", entry["msg"])
	assert.Equal(t, "/var/mail/alice", entry[KeyPath])
	assert.Equal(t, float64(4), entry[KeyEpoch])
}

func TestInvalidLevelIgnored(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text")

	SetLevel("SHOUTING")
	Info("still works")

	assert.Contains(t, buf.String(), "still works")
}

func TestInitWithFileOutput(t *testing.T) {
	path := t.TempDir() + "/mboxd.log"
	require.NoError(t, Init(Config{Level: "INFO", Format: "text", Output: path}))

	Info("to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")

	// Restore stderr output for other tests.
	require.NoError(t, Init(Config{Output: "stderr"}))
}

package llog

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, flush, err := InitLogger(
		WithLevel("debug"),
		WithEncoding("json"),
		WithServiceName("oneshot"),
		WithOutput(&buf),
	)
	require.NoError(t, err)
	defer flush()

	logger.Infow("connection closed", "conn", "abc")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "connection closed", line["msg"])
	assert.Equal(t, "abc", line["conn"])
	assert.Equal(t, "oneshot", line["service"])
	assert.Same(t, logger, GetLogger())
}

func TestSetLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := InitLogger(WithLevel("info"), WithOutput(&buf))
	require.NoError(t, err)

	require.NoError(t, SetLevel("error"))
	logger.Info("hidden")
	assert.Zero(t, buf.Len())

	logger.Error("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestInitLoggerRejectsBadLevel(t *testing.T) {
	_, _, err := InitLogger(WithLevel("loud"), WithOutput(&bytes.Buffer{}))
	assert.Error(t, err)
}

func TestInitLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oneshot.log")
	logger, flush, err := InitLogger(WithFilename(path), WithOutput(&bytes.Buffer{}))
	require.NoError(t, err)
	logger.Warn("to file")
	flush()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}

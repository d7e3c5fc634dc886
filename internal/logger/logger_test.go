package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hanpama/viewexec/internal/reqid"
)

func TestNewJSONLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Format: "json"}, &buf)
	l.Info("hidden")
	l.Warn("shown", "view", "frontpage")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	require.Equal(t, "shown", rec["msg"])
	require.Equal(t, "frontpage", rec["view"])
}

func TestNewUnknownLevelIsInfo(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "chatty"}, &buf)
	l.Debug("hidden")
	l.Info("shown")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "msg=shown")
}

func TestWithRequest(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{}, &buf)
	ctx := reqid.WithID(context.Background(), "abc")
	WithRequest(ctx, l).Info("x")
	WithRequest(context.Background(), l).Info("y")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Contains(t, lines[0], "request_id=abc")
	require.NotContains(t, lines[1], "request_id")
}

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_ContextAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := Logger(&buf, true, slog.LevelDebug)

	ctx := AppendCtx(context.Background(), slog.String("name", "jxlctl"))
	ctx = AppendCtx(ctx, slog.Int("threads", 4))
	log.InfoContext(ctx, "hello", "k", "v")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "jxlctl", rec["name"])
	assert.Equal(t, float64(4), rec["threads"])
	assert.Equal(t, "v", rec["k"])
}

func TestLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	log := Logger(&buf, false, slog.LevelWarn)
	log.Info("dropped")
	assert.Zero(t, buf.Len())
	log.With("handle", "abc").Warn("kept")
	assert.Contains(t, buf.String(), "kept")
	assert.Contains(t, buf.String(), "handle=abc")
}

func TestAppendCtx_NilParent(t *testing.T) {
	ctx := AppendCtx(nil, slog.String("a", "b"))
	require.NotNil(t, ctx)
}

func TestRotatingWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jxl.log")
	w := RotatingWriter(path, 1, 1, 1, false)
	log := Logger(w, false, slog.LevelInfo)
	log.Info("rotating")
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "rotating")
}

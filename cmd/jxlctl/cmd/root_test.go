package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	root := NewRoot(context.Background(), "test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute(), "jxlctl %v", args)
	return out.String()
}

func TestEncodeInfoDecode(t *testing.T) {
	dir := t.TempDir()
	src := image.NewNRGBA(image.Rect(0, 0, 33, 21))
	for y := 0; y < 21; y++ {
		for x := 0; x < 33; x++ {
			src.SetNRGBA(x, y, color.NRGBA{uint8(x * 7), uint8(y * 11), 128, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))
	pngPath := filepath.Join(dir, "in.png")
	require.NoError(t, os.WriteFile(pngPath, buf.Bytes(), 0644))

	for _, runner := range []string{"none", "pool", "threads"} {
		t.Run(runner, func(t *testing.T) {
			jxlPath := filepath.Join(dir, runner+".jxl.zst")
			outPath := filepath.Join(dir, runner+".png.gz")
			run(t, "encode", "--runner", runner, "--lossless", "--metrics", pngPath, jxlPath)

			var report struct {
				Signature string `json:"signature"`
				Info      struct {
					Width  int
					Height int
				} `json:"info"`
			}
			require.NoError(t, json.Unmarshal([]byte(run(t, "info", jxlPath)), &report))
			assert.Equal(t, "codestream", report.Signature)
			assert.Equal(t, 33, report.Info.Width)
			assert.Equal(t, 21, report.Info.Height)

			run(t, "decode", "--runner", runner, jxlPath, outPath)
			_, err := os.Stat(outPath)
			require.NoError(t, err)
		})
	}
}

func TestPresetAndVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preset.yaml")
	run(t, "preset", path)
	_, err := os.Stat(path)
	require.NoError(t, err)
	assert.Contains(t, run(t, "--config", path, "version"), "test libjxl/")
}

func TestMemoryLimit(t *testing.T) {
	dir := t.TempDir()
	src := image.NewGray(image.Rect(0, 0, 64, 64))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))
	pngPath := filepath.Join(dir, "in.png")
	require.NoError(t, os.WriteFile(pngPath, buf.Bytes(), 0644))

	root := NewRoot(context.Background(), "test")
	root.SetArgs([]string{"encode", "--memory-limit", "64", pngPath, filepath.Join(dir, "out.jxl")})
	root.SetErr(&bytes.Buffer{})
	require.Error(t, root.Execute())
}

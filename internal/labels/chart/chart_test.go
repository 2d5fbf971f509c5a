package chart

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhao-Qihao/xbzl-data/internal/labels"
)

func sampleHistogram() *labels.ClassHistogram {
	h := labels.NewClassHistogram()
	for _, c := range []string{"car", "car", "truck", "traffic_cone"} {
		h.Add(c)
	}
	return h
}

func TestWriteHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, "scene_1 class distribution", sampleHistogram()))

	html := buf.String()
	assert.Contains(t, html, "<html")
	assert.Contains(t, html, "scene_1 class distribution")
	assert.Contains(t, html, "traffic_cone")
}

func TestWriteHTMLEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, "empty", labels.NewClassHistogram()))
	assert.NotZero(t, buf.Len())
}

func TestWritePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dist.png")
	require.NoError(t, WritePNG(path, "scene_1", sampleHistogram()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), 8)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\n"), data[:8])
}

func TestWritePNGEmpty(t *testing.T) {
	err := WritePNG(filepath.Join(t.TempDir(), "dist.png"), "empty", labels.NewClassHistogram())
	assert.ErrorIs(t, err, ErrEmpty)
}

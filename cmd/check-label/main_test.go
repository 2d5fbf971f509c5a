package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhao-Qihao/xbzl-data/internal/db"
	"github.com/Zhao-Qihao/xbzl-data/internal/labels"
	"github.com/Zhao-Qihao/xbzl-data/internal/monitoring"
)

func openStore(t *testing.T) *db.DB {
	t.Helper()
	t.Cleanup(monitoring.Quiet())
	store, err := db.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestWriteChartsSkipsEmptyPNG(t *testing.T) {
	dir := t.TempDir()
	htmlPath := filepath.Join(dir, "classes.html")
	pngPath := filepath.Join(dir, "classes.png")

	err := writeCharts("empty", labels.NewClassHistogram(), htmlPath, pngPath)
	require.NoError(t, err)

	assert.FileExists(t, htmlPath)
	_, err = os.Stat(pngPath)
	assert.True(t, os.IsNotExist(err), "png written for empty histogram")
}

func TestWriteChartsPNG(t *testing.T) {
	pngPath := filepath.Join(t.TempDir(), "classes.png")
	h := labels.NewClassHistogram()
	h.AddN("car", 3)

	require.NoError(t, writeCharts("scene", h, "", pngPath))
	assert.FileExists(t, pngPath)
}

func TestShowRun(t *testing.T) {
	store := openStore(t)
	h := labels.NewClassHistogram()
	h.AddN("car", 2)
	h.Add("bus")
	recorded, err := store.RecordRun(&labels.Report{Scene: "scene-01", TotalFrames: 4, Histogram: h})
	require.NoError(t, err)

	var out bytes.Buffer
	run, err := showRun(store, recorded.ID, &out)
	require.NoError(t, err)

	assert.Equal(t, "scene-01", run.Scene)
	assert.Equal(t, h.Entries(), run.Histogram().Entries())
	assert.Contains(t, out.String(), recorded.ID)
	assert.Contains(t, out.String(), "car=2 bus=1")

	_, err = showRun(store, "missing", &out)
	assert.Error(t, err)
}

func TestMigrateSchema(t *testing.T) {
	store := openStore(t)

	var out bytes.Buffer
	require.NoError(t, migrateSchema(store, "version", &out))
	assert.Equal(t, "schema version 1 dirty=false\n", out.String())

	out.Reset()
	require.NoError(t, migrateSchema(store, "down", &out))
	assert.Equal(t, "schema version 0 dirty=false\n", out.String())

	assert.Error(t, migrateSchema(store, "sideways", &out))
}

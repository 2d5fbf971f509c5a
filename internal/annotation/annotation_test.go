package annotation

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhao-Qihao/xbzl-data/internal/fsutil"
	"github.com/Zhao-Qihao/xbzl-data/internal/labels"
	"github.com/Zhao-Qihao/xbzl-data/internal/monitoring"
)

const sampleExport = `[
  {
    "objects": [
      {
        "className": "car",
        "contour": {
          "center3D": {"x": 12.34567, "y": -3.2, "z": 0.9996},
          "size3D": {"x": 4.5, "y": 1.9, "z": 1.6},
          "rotation3D": {"x": 0, "y": 0, "z": 1.5707963}
        }
      },
      {
        "className": "pedestrian",
        "contour": {
          "center3D": {"x": 2, "y": 3, "z": 0},
          "size3D": {"x": 0.6, "y": 0.6, "z": 1.75},
          "rotation3D": {"x": 0, "y": 0, "z": -0.0001}
        }
      }
    ]
  },
  {"objects": [{"className": "ignored"}]}
]`

func TestParseExport(t *testing.T) {
	records, err := ParseExport([]byte(sampleExport))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "12.346 -3.2 1.0 4.5 1.9 1.6 1.571 car", records[0].String())
	assert.Equal(t, "2.0 3.0 0.0 0.6 0.6 1.75 -0.0 pedestrian", records[1].String())
}

func TestParseExportErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"empty array", `[]`},
		{"object not array", `{"objects": []}`},
		{"missing contour", `[{"objects": [{"className": "car", "contour": {}}]}]`},
		{"missing class", `[{"objects": [{"contour": {"center3D": {}, "size3D": {}, "rotation3D": {}}}]}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseExport([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestParseExportNoObjects(t *testing.T) {
	records, err := ParseExport([]byte(`[{"objects": []}]`))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFindResultDir(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	scene := "/data/scene_1"
	require.NoError(t, mfs.MkdirAll(filepath.Join(scene, "scene_1-20250925", ResultDir), 0755))
	require.NoError(t, mfs.MkdirAll(filepath.Join(scene, "scene_1-20250924", ResultDir), 0755))
	require.NoError(t, mfs.WriteFile(filepath.Join(scene, "scene_1-notes"), nil, 0644))
	require.NoError(t, mfs.MkdirAll(filepath.Join(scene, "scene_2-20250101"), 0755))

	dir, err := FindResultDir(mfs, scene)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(scene, "scene_1-20250924", ResultDir), dir)

	_, err = FindResultDir(mfs, "/data/scene_2")
	assert.Error(t, err)
}

func TestConvertScene(t *testing.T) {
	defer monitoring.Quiet()()
	mfs := fsutil.NewMemoryFileSystem()
	scene := "/data/scene_1"
	result := filepath.Join(scene, "scene_1-20250924", ResultDir)
	require.NoError(t, mfs.WriteFile(filepath.Join(result, "1758683129.json"), []byte(sampleExport), 0644))
	require.NoError(t, mfs.WriteFile(filepath.Join(result, "1758683130.json"), []byte(`[{"objects": []}]`), 0644))
	require.NoError(t, mfs.WriteFile(filepath.Join(result, "summary.csv"), []byte("x"), 0644))

	n, err := ConvertScene(mfs, scene)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := mfs.ReadFile(filepath.Join(scene, labels.LabelDir, "1758683129.txt"))
	require.NoError(t, err)
	assert.Equal(t, "12.346 -3.2 1.0 4.5 1.9 1.6 1.571 car\n2.0 3.0 0.0 0.6 0.6 1.75 -0.0 pedestrian\n", string(got))

	empty, err := mfs.ReadFile(filepath.Join(scene, labels.LabelDir, "1758683130.txt"))
	require.NoError(t, err)
	assert.Empty(t, empty)

	// The converted scene passes validation cleanly.
	report, err := labels.NewValidator(mfs, labels.DefaultOptions(), nil).Scan(scene)
	require.NoError(t, err)
	assert.Equal(t, 2, report.TotalFrames)
	assert.Empty(t, report.Diagnostics)
	assert.Equal(t, []labels.ClassCount{{Class: "car", Count: 1}, {Class: "pedestrian", Count: 1}}, report.Histogram.Entries())
}

func TestConvertSceneBadJSONIsFatal(t *testing.T) {
	defer monitoring.Quiet()()
	mfs := fsutil.NewMemoryFileSystem()
	result := filepath.Join("/s/scene_3", "scene_3-x", ResultDir)
	require.NoError(t, mfs.WriteFile(filepath.Join(result, "1.json"), []byte(`[`), 0644))

	_, err := ConvertScene(mfs, "/s/scene_3")
	assert.ErrorContains(t, err, "1.json")
}

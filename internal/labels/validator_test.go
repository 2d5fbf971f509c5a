package labels

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhao-Qihao/xbzl-data/internal/fsutil"
	"github.com/Zhao-Qihao/xbzl-data/internal/testutil"
)

func newMemScene(t *testing.T, files map[string]string) (*fsutil.MemoryFileSystem, string) {
	t.Helper()
	mfs := fsutil.NewMemoryFileSystem()
	scene := filepath.Join("/data", "scene_1")
	require.NoError(t, mfs.MkdirAll(filepath.Join(scene, LabelDir), 0755))
	for name, content := range files {
		require.NoError(t, mfs.WriteFile(filepath.Join(scene, LabelDir, name), []byte(content), 0644))
	}
	return mfs, scene
}

func kinds(diags []Diagnostic) []Kind {
	out := make([]Kind, 0, len(diags))
	for _, d := range diags {
		out = append(out, d.Kind)
	}
	return out
}

func TestCheckLine(t *testing.T) {
	v := NewValidator(fsutil.NewMemoryFileSystem(), DefaultOptions(), nil)

	tests := []struct {
		name      string
		line      string
		wantKinds []Kind
		wantClass string // counted class, empty if the line is skipped
	}{
		{"well formed", "1.0 2.0 3.0 4.0 5.0 6.0 0.1 car", []Kind{}, "car"},
		{"tabs and extra spaces", "  1\t2  3 4 5 6 0.1   truck  ", []Kind{}, "truck"},
		{"too few fields", "1 2 3 car", []Kind{KindSchema}, ""},
		{"too many fields", "1 2 3 4 5 6 7 8 car", []Kind{KindSchema}, ""},
		{"empty line", "", []Kind{KindSchema}, ""},
		{"bad float", "1 2 abc 4 5 6 0.1 car", []Kind{KindParse}, ""},
		{"class in numeric slot", "1 2 3 4 5 6 car car", []Kind{KindParse}, ""},
		{"exactly limit", "100 -100 3 4 5 6 0.1 car", []Kind{}, "car"},
		{"just above limit", "100.0001 2 3 4 5 6 0.1 car", []Kind{KindValueRange}, "car"},
		{"negative above limit", "1 2 3 4 5 6 -250 bus", []Kind{KindValueRange}, "bus"},
		{"nan", "nan 2 3 4 5 6 0.1 car", []Kind{KindNonFinite}, "car"},
		{"inf is also large", "1 2 3 4 5 Inf 0.1 car", []Kind{KindNonFinite, KindValueRange}, "car"},
		{"overflow literal", "1e999 2 3 4 5 6 0.1 car", []Kind{KindNonFinite, KindValueRange}, "car"},
		{"hex literal", "0x1p3 2 3 4 5 6 0.1 bus", []Kind{KindParse}, ""},
		{"signed hex literal", "1 2 3 4 5 6 -0X10 bus", []Kind{KindParse}, ""},
		{"unknown class", "1 2 3 4 5 6 0.1 unknown_thing", []Kind{KindUnknownClass}, "unknown_thing"},
		{"everything wrong but parsable", "NaN 200 3 4 5 6 0.1 spaceship", []Kind{KindNonFinite, KindValueRange, KindUnknownClass}, "spaceship"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hist := NewClassHistogram()
			diags := v.CheckLine("a.txt", 3, tt.line, hist)

			if diff := cmp.Diff(tt.wantKinds, kinds(diags)); diff != "" {
				t.Errorf("diagnostic kinds mismatch (-want +got):\n%s", diff)
			}
			for _, d := range diags {
				assert.Equal(t, 3, d.Line)
				assert.Equal(t, "a.txt", d.Path)
			}
			if tt.wantClass == "" {
				assert.Equal(t, 0, hist.Total(), "skipped line must not be counted")
			} else {
				assert.Equal(t, 1, hist.Count(tt.wantClass))
				assert.Equal(t, 1, hist.Total())
			}
		})
	}
}

func TestCheckLineMessages(t *testing.T) {
	v := NewValidator(fsutil.NewMemoryFileSystem(), DefaultOptions(), nil)
	hist := NewClassHistogram()

	d := v.CheckLine("a.txt", 1, "bad line", hist)
	require.Len(t, d, 1)
	assert.Equal(t, "expected 8 fields, got 2", d[0].Message)

	d = v.CheckLine("a.txt", 1, "1 2 x 4 5 6 7 car", hist)
	require.Len(t, d, 1)
	assert.Contains(t, d[0].Message, `parsing "x"`)

	d = v.CheckLine("a.txt", 1, "1 2 300 4 5 6 0.5 car", hist)
	require.Len(t, d, 1)
	assert.Equal(t, "values exceed magnitude 100: [1 2 300 4 5 6 0.5]", d[0].Message)

	d = v.CheckLine("a.txt", 1, "1 2 3 4 5 6 0.5 tram", hist)
	require.Len(t, d, 1)
	assert.Equal(t, `class "tram" is not in the allowed class list`, d[0].Message)
}

func TestCustomVocabularyAndLimit(t *testing.T) {
	opts := Options{Vocabulary: NewVocabulary("cyclist"), ValueLimit: 10, Extension: ".txt"}
	v := NewValidator(fsutil.NewMemoryFileSystem(), opts, nil)
	hist := NewClassHistogram()

	assert.Empty(t, v.CheckLine("a.txt", 1, "1 2 3 4 5 6 0.1 cyclist", hist))
	assert.Equal(t, []Kind{KindValueRange, KindUnknownClass}, kinds(v.CheckLine("a.txt", 2, "11 2 3 4 5 6 0.1 car", hist)))
	assert.Equal(t, []ClassCount{{"cyclist", 1}, {"car", 1}}, hist.Entries())
}

func TestNewValidatorFillsDefaults(t *testing.T) {
	v := NewValidator(fsutil.NewMemoryFileSystem(), Options{ValueLimit: 100}, nil)
	assert.Equal(t, ".txt", v.Options().Extension)
	assert.True(t, v.Options().Vocabulary.Contains("traffic_cone"))
}

func TestValidateFileReportsLinesInOrder(t *testing.T) {
	mfs, scene := newMemScene(t, map[string]string{
		"a.txt": "1 2 3 4 5 6 0.1 car\nbad line\n1 2 3 4 5 6 0.1 tram\n\n",
	})
	var out bytes.Buffer
	v := NewValidator(mfs, DefaultOptions(), &out)
	hist := NewClassHistogram()

	path := filepath.Join(scene, LabelDir, "a.txt")
	diags, err := v.ValidateFile(path, hist)
	require.NoError(t, err)

	require.Len(t, diags, 3)
	assert.Equal(t, []int{2, 3, 4}, []int{diags[0].Line, diags[1].Line, diags[2].Line})
	assert.Equal(t, []Kind{KindSchema, KindUnknownClass, KindSchema}, kinds(diags))
	assert.Equal(t, []ClassCount{{"car", 1}, {"tram", 1}}, hist.Entries())

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "[ERROR] "+path+" line 2: expected 8 fields, got 2", lines[0])
}

func TestValidateFileLineEndings(t *testing.T) {
	mfs, scene := newMemScene(t, map[string]string{
		"cr.txt":   "1 2 3 4 5 6 0.1 car\r1 2 3 4 5 6 0.1 bus\r",
		"crlf.txt": "1 2 3 4 5 6 0.1 car\r\nshort\r\n1 2 3 4 5 6 0.1 bus",
	})
	v := NewValidator(mfs, DefaultOptions(), nil)

	hist := NewClassHistogram()
	diags, err := v.ValidateFile(filepath.Join(scene, LabelDir, "cr.txt"), hist)
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Equal(t, []ClassCount{{"car", 1}, {"bus", 1}}, hist.Entries())

	hist = NewClassHistogram()
	diags, err = v.ValidateFile(filepath.Join(scene, LabelDir, "crlf.txt"), hist)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, 2, diags[0].Line)
	assert.Equal(t, []ClassCount{{"car", 1}, {"bus", 1}}, hist.Entries())
}

func TestScanSurvivesOversizedLine(t *testing.T) {
	long := strings.Repeat("x", 2<<20)
	mfs, scene := newMemScene(t, map[string]string{
		"a.txt": "1 2 3 4 5 6 0.1 car\n" + long + "\n1 2 3 4 5 6 0.1 truck\n",
	})
	v := NewValidator(mfs, DefaultOptions(), nil)

	report, err := v.Run(scene)
	require.NoError(t, err)
	assert.Equal(t, []ClassCount{{"car", 1}, {"truck", 1}}, report.Histogram.Entries())
	require.Len(t, report.Diagnostics, 1)
	assert.Equal(t, KindSchema, report.Diagnostics[0].Kind)
	assert.Equal(t, 2, report.Diagnostics[0].Line)
	assert.Contains(t, report.Diagnostics[0].Message, "exceeds")

	_, err = mfs.ReadFile(filepath.Join(scene, StatisticsFile))
	assert.NoError(t, err)
}

func TestValidateFileMissingIsFatal(t *testing.T) {
	v := NewValidator(fsutil.NewMemoryFileSystem(), DefaultOptions(), nil)
	_, err := v.ValidateFile("/nope/a.txt", NewClassHistogram())
	assert.Error(t, err)
}

func TestScanEndToEnd(t *testing.T) {
	mfs, scene := newMemScene(t, map[string]string{
		"a.txt": "1.0 2.0 3.0 4.0 5.0 6.0 0.1 car\nbad line\n",
		"b.txt": "1.0 2.0 3.0 4.0 5.0 6.0 0.1 truck\n",
	})
	v := NewValidator(mfs, DefaultOptions(), nil)

	report, err := v.Scan(scene)
	require.NoError(t, err)

	assert.Equal(t, 2, report.TotalFrames)
	assert.Equal(t, []ClassCount{{"car", 1}, {"truck", 1}}, report.Histogram.Entries())
	require.Len(t, report.Diagnostics, 1)
	assert.Equal(t, KindSchema, report.Diagnostics[0].Kind)
	assert.Equal(t, filepath.Join(scene, LabelDir, "a.txt"), report.Diagnostics[0].Path)
	assert.Equal(t, 2, report.Diagnostics[0].Line)
	assert.Equal(t, 1, report.Errors())
	assert.Equal(t, 0, report.Warnings())
}

func TestScanCountsEveryFileAsFrame(t *testing.T) {
	mfs, scene := newMemScene(t, map[string]string{
		"1.txt":     "",
		"2.txt":     "garbage\n",
		"3.txt":     "1 2 3 4 5 6 0.1 bus\n",
		"notes.md":  "1 2 3 4 5 6 0.1 car\n",
		"README":    "",
		"4.txt.bak": "1 2 3 4 5 6 0.1 car\n",
	})
	require.NoError(t, mfs.MkdirAll(filepath.Join(scene, LabelDir, "old.txt"), 0755))
	v := NewValidator(mfs, DefaultOptions(), nil)

	report, err := v.Scan(scene)
	require.NoError(t, err)
	assert.Equal(t, 3, report.TotalFrames)
	assert.Equal(t, []ClassCount{{"bus", 1}}, report.Histogram.Entries())
}

func TestScanMissingLabelsDirIsFatal(t *testing.T) {
	v := NewValidator(fsutil.NewMemoryFileSystem(), DefaultOptions(), nil)
	_, err := v.Scan("/data/empty_scene")
	assert.Error(t, err)
}

func TestRunWritesStatistics(t *testing.T) {
	mfs, scene := newMemScene(t, map[string]string{
		"a.txt": "1 2 3 4 5 6 0.1 truck\n1 2 3 4 5 6 0.1 car\n",
		"b.txt": "1 2 3 4 5 6 0.1 truck\n1 2 3 4 5 6 0.1 unknown_thing\n",
	})
	var out bytes.Buffer
	v := NewValidator(mfs, DefaultOptions(), &out)

	_, err := v.Run(scene)
	require.NoError(t, err)

	want := "Total frames: 2\nClass distribution:\ntruck: 2\ncar: 1\nunknown_thing: 1\n"
	got, err := mfs.ReadFile(filepath.Join(scene, StatisticsFile))
	require.NoError(t, err)
	assert.Equal(t, want, string(got))
	assert.True(t, strings.HasSuffix(out.String(), "\nCheck complete.\n\n"+want), out.String())
}

func TestRunIsIdempotent(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFiles(t, root, map[string]string{
		"labels/1700000000.txt": "1 2 3 4 5 6 0.1 car\n1 2 3 4 5 6 0.1 pedestrian\n",
		"labels/1700000001.txt": "1 2 3 4 5 6 0.1 car\nshort\n",
	})
	v := NewValidator(fsutil.OSFileSystem{}, DefaultOptions(), nil)

	_, err := v.Run(root)
	require.NoError(t, err)
	first := testutil.ReadFile(t, root, StatisticsFile)

	_, err = v.Run(root)
	require.NoError(t, err)
	second := testutil.ReadFile(t, root, StatisticsFile)

	assert.Equal(t, first, second)
	assert.Equal(t, "Total frames: 2\nClass distribution:\ncar: 2\npedestrian: 1\n", second)
}

func TestOptionsFromConfig(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 100.0, opts.ValueLimit)
	assert.Equal(t, ".txt", opts.Extension)
	assert.Equal(t, 7, opts.Vocabulary.Len())
}

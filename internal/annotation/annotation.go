// Package annotation converts the JSON export of the annotation platform
// into per-frame label files.
//
// An export scene looks like:
//
//	scene_1/
//	  scene_1-20250924/result/1758683129.json
//	  labels/1758683129.txt   (written)
package annotation

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Zhao-Qihao/xbzl-data/internal/fsutil"
	"github.com/Zhao-Qihao/xbzl-data/internal/labels"
	"github.com/Zhao-Qihao/xbzl-data/internal/monitoring"
	"github.com/Zhao-Qihao/xbzl-data/internal/security"
)

// ResultDir is the export subdirectory holding one JSON file per frame.
const ResultDir = "result"

// Vec3 is a 3-vector in the export schema.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Contour is the 3D box of an exported object.
type Contour struct {
	Center3D   *Vec3 `json:"center3D"`
	Size3D     *Vec3 `json:"size3D"`
	Rotation3D *Vec3 `json:"rotation3D"`
}

// Object is one annotated object.
type Object struct {
	ClassName string  `json:"className"`
	Contour   Contour `json:"contour"`
}

// Frame is one element of the exported array. Element 0 holds the ground
// truth; later elements are ignored.
type Frame struct {
	Objects []Object `json:"objects"`
}

// Record converts o into a label record with every value rounded to three
// decimals.
func (o Object) Record() (labels.Record, error) {
	c := o.Contour
	if c.Center3D == nil || c.Size3D == nil || c.Rotation3D == nil {
		return labels.Record{}, errors.New("object contour lacks center3D, size3D or rotation3D")
	}
	if o.ClassName == "" {
		return labels.Record{}, errors.New("object has no className")
	}
	return labels.Record{
		X:     labels.RoundValue(c.Center3D.X),
		Y:     labels.RoundValue(c.Center3D.Y),
		Z:     labels.RoundValue(c.Center3D.Z),
		DX:    labels.RoundValue(c.Size3D.X),
		DY:    labels.RoundValue(c.Size3D.Y),
		DZ:    labels.RoundValue(c.Size3D.Z),
		Yaw:   labels.RoundValue(c.Rotation3D.Z),
		Class: o.ClassName,
	}, nil
}

// ParseExport decodes one exported JSON document into label records.
func ParseExport(data []byte) ([]labels.Record, error) {
	var frames []Frame
	if err := json.Unmarshal(data, &frames); err != nil {
		return nil, fmt.Errorf("failed to parse export JSON: %w", err)
	}
	if len(frames) == 0 {
		return nil, errors.New("export JSON has no ground-truth element")
	}

	records := make([]labels.Record, 0, len(frames[0].Objects))
	for i, obj := range frames[0].Objects {
		r, err := obj.Record()
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", i, err)
		}
		records = append(records, r)
	}
	return records, nil
}

// FindResultDir returns <scene>/<name>-*/result for the first matching
// export directory in name order, where name is the base name of scene.
func FindResultDir(fsys fsutil.FileSystem, scene string) (string, error) {
	entries, err := fsys.ReadDir(scene)
	if err != nil {
		return "", fmt.Errorf("failed to list scene: %w", err)
	}
	prefix := filepath.Base(filepath.Clean(scene)) + "-"
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			return filepath.Join(scene, e.Name(), ResultDir), nil
		}
	}
	return "", fmt.Errorf("no %s* export directory in %s", prefix, scene)
}

// ConvertFile writes the label file for one export JSON into outDir and
// returns its path and the number of objects written.
func ConvertFile(fsys fsutil.FileSystem, jsonPath, outDir string) (string, int, error) {
	data, err := fsys.ReadFile(jsonPath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read %s: %w", jsonPath, err)
	}
	records, err := ParseExport(data)
	if err != nil {
		return "", 0, fmt.Errorf("%s: %w", jsonPath, err)
	}

	stem := strings.TrimSuffix(filepath.Base(jsonPath), filepath.Ext(jsonPath))
	out, err := security.JoinWithin(outDir, stem+".txt")
	if err != nil {
		return "", 0, err
	}

	var b strings.Builder
	for _, r := range records {
		b.WriteString(r.String())
		b.WriteByte('\n')
	}
	if err := fsys.WriteFile(out, []byte(b.String()), 0644); err != nil {
		return "", 0, fmt.Errorf("failed to write %s: %w", out, err)
	}
	return out, len(records), nil
}

// ConvertScene converts every export JSON of scene into <scene>/labels and
// returns the number of label files written.
func ConvertScene(fsys fsutil.FileSystem, scene string) (int, error) {
	resultDir, err := FindResultDir(fsys, scene)
	if err != nil {
		return 0, err
	}
	entries, err := fsys.ReadDir(resultDir)
	if err != nil {
		return 0, fmt.Errorf("failed to list %s: %w", resultDir, err)
	}

	outDir := filepath.Join(scene, labels.LabelDir)
	if err := fsys.MkdirAll(outDir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", outDir, err)
	}

	written := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		in := filepath.Join(resultDir, e.Name())
		monitoring.Logf("processing %s", in)
		if _, _, err := ConvertFile(fsys, in, outDir); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

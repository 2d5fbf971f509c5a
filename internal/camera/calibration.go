package camera

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Zhao-Qihao/xbzl-data/internal/fsutil"
	"github.com/Zhao-Qihao/xbzl-data/internal/monitoring"
	"github.com/Zhao-Qihao/xbzl-data/internal/pointcloud"
	"github.com/Zhao-Qihao/xbzl-data/internal/security"
)

// Scene layout used by the calibration writer.
const (
	ConfigDir    = "camera_config"
	FrameCloudIn = "lidar_point_cloud_0"
)

// Number is a float that always encodes with a fractional part, so 1000
// is written as 1000.0. Magnitudes below 1e-4 or from 1e16 up use
// exponent notation.
type Number float64

func (n Number) MarshalJSON() ([]byte, error) {
	v := float64(n)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("cannot encode %v in camera config", v)
	}
	if abs := math.Abs(v); abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return []byte(strconv.FormatFloat(v, 'e', -1, 64)), nil
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return []byte(s), nil
}

// InternalParams is the camera matrix block of one calibration entry.
type InternalParams struct {
	FX Number `json:"fx"`
	FY Number `json:"fy"`
	CX Number `json:"cx"`
	CY Number `json:"cy"`
}

// Calibration is one camera entry of camera_config.json.
type Calibration struct {
	Internal InternalParams `json:"camera_internal"`
	Width    int            `json:"width"`
	Height   int            `json:"height"`
	External []Number       `json:"camera_external"`
	RowMajor bool           `json:"rowMajor"`
}

// BuildCalibration assembles the calibration entries in camera order. Each
// camera's extrinsic is looked up by its input folder name.
func BuildCalibration(cams []*Camera, ext pointcloud.Extrinsics) ([]Calibration, error) {
	out := make([]Calibration, 0, len(cams))
	for _, cam := range cams {
		t, err := ext.Lookup(cam.Spec.Name)
		if err != nil {
			return nil, fmt.Errorf("camera %s: %w", cam.Spec.Name, err)
		}
		rm := t.RowMajor()
		external := make([]Number, len(rm))
		for i, v := range rm {
			external[i] = Number(v)
		}

		k := cam.OutputIntrinsics()
		w, h := cam.OutputSize()
		out = append(out, Calibration{
			Internal: InternalParams{FX: Number(k.FX), FY: Number(k.FY), CX: Number(k.CX), CY: Number(k.CY)},
			Width:    w,
			Height:   h,
			External: external,
			RowMajor: true,
		})
	}
	return out, nil
}

// EncodeCalibration renders entries with four-space indentation.
func EncodeCalibration(entries []Calibration) ([]byte, error) {
	data, err := json.MarshalIndent(entries, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode camera config: %w", err)
	}
	return data, nil
}

// WriteCalibration writes the encoded entries to path.
func WriteCalibration(fsys fsutil.FileSystem, path string, entries []Calibration) ([]byte, error) {
	data, err := EncodeCalibration(entries)
	if err != nil {
		return nil, err
	}
	if err := fsys.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := fsys.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write camera config: %w", err)
	}
	return data, nil
}

// DistributeCalibration copies data to <scene>/camera_config/<stem>.json
// for every .pcd frame under <scene>/lidar_point_cloud_0 and returns the
// number of files written. A scene without merged clouds writes nothing.
func DistributeCalibration(fsys fsutil.FileSystem, scene string, data []byte) (int, error) {
	cloudDir := filepath.Join(scene, FrameCloudIn)
	entries, err := fsys.ReadDir(cloudDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			monitoring.Logf("no %s under %s, skipping per-frame camera config", FrameCloudIn, scene)
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read %s: %w", cloudDir, err)
	}

	outDir := filepath.Join(scene, ConfigDir)
	if err := fsys.MkdirAll(outDir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", outDir, err)
	}

	written := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".pcd" {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), ".pcd")
		path, err := security.JoinWithin(outDir, stem+".json")
		if err != nil {
			return written, err
		}
		if err := fsys.WriteFile(path, data, 0644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", path, err)
		}
		written++
	}
	return written, nil
}


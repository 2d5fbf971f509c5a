package pointcloud

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/Zhao-Qihao/xbzl-data/internal/fsutil"
	"github.com/Zhao-Qihao/xbzl-data/internal/monitoring"
	"github.com/Zhao-Qihao/xbzl-data/internal/security"
)

// Format is the on-disk encoding of a merged cloud.
type Format string

const (
	FormatPCD Format = "pcd"
	FormatBIN Format = "bin"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatPCD, FormatBIN:
		return f, nil
	}
	return "", fmt.Errorf("unknown point cloud format %q (want pcd or bin)", s)
}

// Preset is a named merge recipe.
type Preset struct {
	Name    string
	Sensors []string
	OutDir  string
	Format  Format
}

var presets = map[string]Preset{
	"all": {
		Name:    "all",
		Sensors: []string{"LIDAR_FRONT", "LIDAR_LEFT", "LIDAR_REAR", "LIDAR_RIGHT", "LIDAR_TOP_32", "LIDAR_TOP_128"},
		OutDir:  "lidar_point_cloud_0",
		Format:  FormatPCD,
	},
	"top32-front": {
		Name:    "top32-front",
		Sensors: []string{"LIDAR_FRONT", "LIDAR_TOP_32", "LIDAR_TOP_128"},
		OutDir:  "lidar_point_cloud_1",
		Format:  FormatBIN,
	},
}

// LookupPreset returns the preset called name.
func LookupPreset(name string) (Preset, error) {
	p, ok := presets[name]
	if !ok {
		names := make([]string, 0, len(presets))
		for n := range presets {
			names = append(names, n)
		}
		sort.Strings(names)
		return Preset{}, fmt.Errorf("unknown preset %q (available: %s)", name, strings.Join(names, ", "))
	}
	p.Sensors = append([]string(nil), p.Sensors...)
	return p, nil
}

// MergeOptions selects the sensors of a merge and the frames involved.
type MergeOptions struct {
	Sensors []string
	// Reference is the sensor whose frame the extrinsics map into. Its
	// clouds are used as-is before the final transform.
	Reference string
	// Target is the sensor whose frame merged clouds are written in. Its
	// files also define the timestamps to merge.
	Target string
}

// Merger fuses per-sensor clouds of a scene into the target sensor frame.
type Merger struct {
	fs       fsutil.FileSystem
	scene    string
	opts     MergeOptions
	toTarget map[string]Transform // sensor frame -> target frame
	missing  map[string]bool      // sensors without an extrinsic
}

// NewMerger prepares the per-sensor transforms. The extrinsic of the target
// is required; a sensor without one only fails a merge when it has data.
func NewMerger(fsys fsutil.FileSystem, scene string, ext Extrinsics, opts MergeOptions) (*Merger, error) {
	if len(opts.Sensors) == 0 {
		return nil, fmt.Errorf("no sensors to merge")
	}
	target, err := ext.Lookup(opts.Target)
	if err != nil {
		return nil, fmt.Errorf("target sensor: %w", err)
	}
	if !target.IsRigid() {
		monitoring.Logf("warning: extrinsic of %s is not a rigid transform", opts.Target)
	}
	refToTarget, err := target.Inverse()
	if err != nil {
		return nil, fmt.Errorf("target sensor %s: %w", opts.Target, err)
	}

	m := &Merger{
		fs:       fsys,
		scene:    scene,
		opts:     opts,
		toTarget: make(map[string]Transform, len(opts.Sensors)),
		missing:  make(map[string]bool),
	}
	for _, s := range opts.Sensors {
		if s == opts.Reference {
			m.toTarget[s] = refToTarget
			continue
		}
		t, ok := ext[s]
		if !ok {
			m.missing[s] = true
			continue
		}
		if !t.IsRigid() {
			monitoring.Logf("warning: extrinsic of %s is not a rigid transform", s)
		}
		m.toTarget[s] = refToTarget.Mul(t)
	}
	return m, nil
}

// Timestamps lists the frame identifiers found in the target sensor folder:
// the part of each file name before the first dot, parsed as an integer.
// Names that are not integers are skipped.
func (m *Merger) Timestamps() ([]string, error) {
	dir := filepath.Join(m.scene, m.opts.Target)
	entries, err := m.fs.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	seen := make(map[int64]bool)
	var stamps []int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		stem, _, _ := strings.Cut(e.Name(), ".")
		ts, err := strconv.ParseInt(stem, 10, 64)
		if err != nil {
			monitoring.Logf("skipping %s: not a timestamp", filepath.Join(dir, e.Name()))
			continue
		}
		if !seen[ts] {
			seen[ts] = true
			stamps = append(stamps, ts)
		}
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i] < stamps[j] })

	out := make([]string, len(stamps))
	for i, ts := range stamps {
		out[i] = strconv.FormatInt(ts, 10)
	}
	return out, nil
}

// MergeFrame loads <scene>/<sensor>/<ts>.pcd for every sensor that has it
// and returns the union expressed in the target frame, along with the
// sensors that contributed.
func (m *Merger) MergeFrame(ts string) (Cloud, []string, error) {
	var merged Cloud
	var used []string
	for _, s := range m.opts.Sensors {
		path := filepath.Join(m.scene, s, ts+".pcd")
		if _, err := m.fs.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if m.missing[s] {
			return nil, nil, fmt.Errorf("%s has data for %s but no extrinsic", s, ts)
		}

		cloud, err := m.readCloud(path)
		if err != nil {
			return nil, nil, err
		}
		merged = append(merged, m.toTarget[s].Apply(cloud)...)
		used = append(used, s)
	}
	return merged, used, nil
}

func (m *Merger) readCloud(path string) (Cloud, error) {
	f, err := m.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	cloud, _, err := ReadPCD(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cloud, nil
}

// Run merges every timestamp and writes <scene>/<outDir>/<ts>.<format>.
// It returns the number of frames written.
func (m *Merger) Run(outDir string, format Format) (int, error) {
	stamps, err := m.Timestamps()
	if err != nil {
		return 0, err
	}
	dir := filepath.Join(m.scene, outDir)
	if err := m.fs.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	written := 0
	for _, ts := range stamps {
		cloud, used, err := m.MergeFrame(ts)
		if err != nil {
			return written, err
		}
		path, err := security.JoinWithin(dir, ts+"."+string(format))
		if err != nil {
			return written, err
		}
		if err := m.writeCloud(path, cloud, format); err != nil {
			return written, err
		}
		written++
		monitoring.Logf("saved merged cloud %s (%d points from %s)", path, len(cloud), strings.Join(used, ", "))
	}
	return written, nil
}

func (m *Merger) writeCloud(path string, c Cloud, format Format) error {
	var buf bytes.Buffer
	var err error
	switch format {
	case FormatBIN:
		err = WriteBIN(&buf, c)
	default:
		err = WritePCD(&buf, c)
	}
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := m.fs.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

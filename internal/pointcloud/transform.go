package pointcloud

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// RigidTolerance bounds |det(R)-1| for IsRigid.
const RigidTolerance = 0.01

// Transform is a 4x4 homogeneous transform.
type Transform struct {
	m *mat.Dense
}

// NewTransform builds a transform from 16 row-major values.
func NewTransform(rowMajor [16]float64) Transform {
	data := make([]float64, 16)
	copy(data, rowMajor[:])
	return Transform{m: mat.NewDense(4, 4, data)}
}

// Identity returns the identity transform.
func Identity() Transform {
	return NewTransform([16]float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
}

// TransformFromRows builds a transform from a 4x4 nested slice as found in
// extrinsics JSON files.
func TransformFromRows(rows [][]float64) (Transform, error) {
	if len(rows) != 4 {
		return Transform{}, fmt.Errorf("expected 4 rows, got %d", len(rows))
	}
	var rm [16]float64
	for i, row := range rows {
		if len(row) != 4 {
			return Transform{}, fmt.Errorf("row %d: expected 4 columns, got %d", i, len(row))
		}
		copy(rm[i*4:], row)
	}
	return NewTransform(rm), nil
}

// RowMajor returns the 16 matrix values in row-major order.
func (t Transform) RowMajor() [16]float64 {
	var out [16]float64
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			out[i*4+j] = t.m.At(i, j)
		}
	}
	return out
}

// Mul returns t·o, the transform applying o first and then t.
func (t Transform) Mul(o Transform) Transform {
	var out mat.Dense
	out.Mul(t.m, o.m)
	return Transform{m: &out}
}

// Inverse returns the inverse transform.
func (t Transform) Inverse() (Transform, error) {
	var inv mat.Dense
	if err := inv.Inverse(t.m); err != nil {
		return Transform{}, fmt.Errorf("transform is not invertible: %w", err)
	}
	return Transform{m: &inv}, nil
}

// IsRigid reports whether the rotation block has determinant close to 1 and
// the last row is [0 0 0 1].
func (t Transform) IsRigid() bool {
	rot := t.m.Slice(0, 3, 0, 3)
	if math.Abs(mat.Det(rot)-1.0) > RigidTolerance {
		return false
	}
	if t.m.At(3, 0) != 0 || t.m.At(3, 1) != 0 || t.m.At(3, 2) != 0 || math.Abs(t.m.At(3, 3)-1.0) > 0.001 {
		return false
	}
	return true
}

// Apply returns a new cloud with every point mapped through t.
func (t Transform) Apply(c Cloud) Cloud {
	T := t.RowMajor()
	out := make(Cloud, len(c))
	for i, p := range c {
		out[i] = Point{
			X: T[0]*p.X + T[1]*p.Y + T[2]*p.Z + T[3],
			Y: T[4]*p.X + T[5]*p.Y + T[6]*p.Z + T[7],
			Z: T[8]*p.X + T[9]*p.Y + T[10]*p.Z + T[11],
		}
	}
	return out
}

// Extrinsics maps sensor names to their transform into a common frame.
type Extrinsics map[string]Transform

// ParseExtrinsics decodes a JSON object of sensor name to 4x4 matrix.
func ParseExtrinsics(data []byte) (Extrinsics, error) {
	var raw map[string][][]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse extrinsics JSON: %w", err)
	}
	ext := make(Extrinsics, len(raw))
	for name, rows := range raw {
		t, err := TransformFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("extrinsic %s: %w", name, err)
		}
		ext[name] = t
	}
	return ext, nil
}

// LoadExtrinsics reads an extrinsics JSON file.
func LoadExtrinsics(path string) (Extrinsics, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read extrinsics: %w", err)
	}
	return ParseExtrinsics(data)
}

// Lookup returns the transform for sensor.
func (e Extrinsics) Lookup(sensor string) (Transform, error) {
	t, ok := e[sensor]
	if !ok {
		return Transform{}, fmt.Errorf("no extrinsic for sensor %s (have %s)", sensor, strings.Join(e.Sensors(), ", "))
	}
	return t, nil
}

// Sensors returns the sensor names in sorted order.
func (e Extrinsics) Sensors() []string {
	names := make([]string, 0, len(e))
	for n := range e {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

package camera

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Parameters holds the KEY: value pairs of a camera parameter file.
// Values that parse as numbers are kept as float64, everything else as text.
type Parameters struct {
	numbers map[string]float64
	text    map[string]string
}

// ParseParameters reads a parameter file. Lines without a colon are
// ignored, as are values of "/", "null" or nothing.
func ParseParameters(r io.Reader) (*Parameters, error) {
	p := &Parameters{numbers: make(map[string]float64), text: make(map[string]string)}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if value == "" || value == "/" || value == "null" {
			continue
		}
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			p.numbers[key] = f
			delete(p.text, key)
		} else {
			p.text[key] = value
			delete(p.numbers, key)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read camera parameters: %w", err)
	}
	return p, nil
}

// LoadParameters reads the parameter file at path.
func LoadParameters(path string) (*Parameters, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open camera parameters: %w", err)
	}
	defer f.Close()
	p, err := ParseParameters(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Float returns the numeric value of key.
func (p *Parameters) Float(key string) (float64, bool) {
	v, ok := p.numbers[key]
	return v, ok
}

// FloatOr returns the numeric value of key or def when it is absent.
func (p *Parameters) FloatOr(key string, def float64) float64 {
	if v, ok := p.numbers[key]; ok {
		return v
	}
	return def
}

// Text returns the non-numeric value of key.
func (p *Parameters) Text(key string) (string, bool) {
	v, ok := p.text[key]
	return v, ok
}

// Require returns the numeric values of keys, or an error listing every
// key that is missing or not a number.
func (p *Parameters) Require(keys ...string) ([]float64, error) {
	out := make([]float64, len(keys))
	var missing []string
	for i, k := range keys {
		v, ok := p.numbers[k]
		if !ok {
			missing = append(missing, k)
			continue
		}
		out[i] = v
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required camera parameters: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// Intrinsics reads FX, FY, CX and CY.
func (p *Parameters) Intrinsics() (Intrinsics, error) {
	v, err := p.Require("FX", "FY", "CX", "CY")
	if err != nil {
		return Intrinsics{}, err
	}
	return Intrinsics{FX: v[0], FY: v[1], CX: v[2], CY: v[3]}, nil
}

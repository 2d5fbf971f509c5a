package labels

import (
	"strconv"
	"strings"
)

// Record is one 3D box of a label file.
type Record struct {
	X, Y, Z    float64 // box centre
	DX, DY, DZ float64 // box size
	Yaw        float64 // rotation about the vertical axis, radians
	Class      string
}

// Values returns the numeric fields in file order.
func (r Record) Values() [NumericFields]float64 {
	return [NumericFields]float64{r.X, r.Y, r.Z, r.DX, r.DY, r.DZ, r.Yaw}
}

// String formats r as a label line without the trailing newline.
func (r Record) String() string {
	var b strings.Builder
	for _, v := range r.Values() {
		b.WriteString(FormatValue(v))
		b.WriteByte(' ')
	}
	b.WriteString(r.Class)
	return b.String()
}

// RoundValue rounds v to three decimal places, ties to even.
func RoundValue(v float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 3, 64), 64)
	if err != nil {
		return v // NaN and Inf format as themselves
	}
	return r
}

// FormatValue prints v in its shortest form, keeping at least one
// fractional digit so integral values read as floats ("2.0", "-0.0").
func FormatValue(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if strings.ContainsAny(s, ".NI") { // fraction, NaN, ±Inf
		return s
	}
	return s + ".0"
}

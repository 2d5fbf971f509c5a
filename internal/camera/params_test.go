package camera

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fisheyeParams = `CAMERA: CAM_FRONT_3M
FX: 1000.5
FY: 1001
CX: 960
CY: 768
K1: 0.1
K2: /
K3: null
K4:
TIME: 2024-01-01 12:00:00
no separator here
`

func TestParseParameters(t *testing.T) {
	p, err := ParseParameters(strings.NewReader(fisheyeParams))
	require.NoError(t, err)

	fx, ok := p.Float("FX")
	require.True(t, ok)
	assert.Equal(t, 1000.5, fx)

	for _, k := range []string{"K2", "K3", "K4"} {
		_, ok := p.Float(k)
		assert.False(t, ok, "%s should be ignored", k)
	}
	assert.Equal(t, 0.0, p.FloatOr("K2", 0))

	name, ok := p.Text("CAMERA")
	require.True(t, ok)
	assert.Equal(t, "CAM_FRONT_3M", name)

	// Only the first colon separates key and value.
	ts, ok := p.Text("TIME")
	require.True(t, ok)
	assert.Equal(t, "2024-01-01 12:00:00", ts)

	k, err := p.Intrinsics()
	require.NoError(t, err)
	assert.Equal(t, Intrinsics{FX: 1000.5, FY: 1001, CX: 960, CY: 768}, k)
}

func TestRequireListsMissingKeys(t *testing.T) {
	p, err := ParseParameters(strings.NewReader("FX: 1\nCX: abc\n"))
	require.NoError(t, err)

	_, err = p.Require("FX", "FY", "CX")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FY, CX")

	_, err = p.Intrinsics()
	assert.Error(t, err)
}

func TestLoadParametersMissingFile(t *testing.T) {
	_, err := LoadParameters(t.TempDir() + "/missing.txt")
	assert.Error(t, err)
}

package camera

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhao-Qihao/xbzl-data/internal/config"
)

func TestRationalDistort(t *testing.T) {
	tests := []struct {
		name   string
		d      Rational
		x, y   float64
		xd, yd float64
	}{
		{"zero coefficients", Rational{}, 0.3, -0.2, 0.3, -0.2},
		{"k1 only", Rational{K1: 0.5}, 0.1, 0, 0.1005, 0},
		{"k4 divides", Rational{K4: 1}, 0.1, 0, 0.1 / 1.01, 0},
		{"tangential", Rational{P1: 0.1, P2: 0.2}, 0.1, 0.1, 0.1 + 0.002 + 0.2*0.04, 0.1 + 0.1*0.04 + 0.004},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			xd, yd := tt.d.Distort(tt.x, tt.y)
			assert.InDelta(t, tt.xd, xd, 1e-12)
			assert.InDelta(t, tt.yd, yd, 1e-12)
		})
	}
}

func TestEquidistantDistort(t *testing.T) {
	xd, yd := Equidistant{}.Distort(1, 0)
	assert.InDelta(t, math.Pi/4, xd, 1e-12)
	assert.Equal(t, 0.0, yd)

	theta := math.Pi / 4
	want := theta * (1 + 0.1*theta*theta)
	xd, _ = Equidistant{K1: 0.1}.Distort(1, 0)
	assert.InDelta(t, want, xd, 1e-12)

	// The optical axis maps to itself.
	xd, yd = Equidistant{K1: 0.3}.Distort(0, 0)
	assert.Equal(t, 0.0, xd)
	assert.Equal(t, 0.0, yd)
}

func TestNewCamera(t *testing.T) {
	const intr = "FX: 800\nFY: 800\nCX: 320\nCY: 240\n"
	pinhole := config.CameraSpec{Name: "CAM_BACK_3MH", Model: config.ModelPinhole, Width: 640, Height: 480}
	fisheye := config.CameraSpec{Name: "CAM_LEFT_3M", Model: config.ModelFisheye, Width: 640, Height: 480}

	t.Run("pinhole needs all coefficients", func(t *testing.T) {
		p, err := ParseParameters(strings.NewReader(intr + "K1: 0.1\nK2: 0\nP1: 0\nP2: 0\nK3: 0\nK4: 0\nK5: 0\n"))
		require.NoError(t, err)
		_, err = NewCamera(pinhole, p)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "K6")
	})

	t.Run("pinhole", func(t *testing.T) {
		p, err := ParseParameters(strings.NewReader(intr + "K1: 0.1\nK2: 0.2\nP1: 0.3\nP2: 0.4\nK3: 0.5\nK4: 0.6\nK5: 0.7\nK6: 0.8\n"))
		require.NoError(t, err)
		cam, err := NewCamera(pinhole, p)
		require.NoError(t, err)
		assert.Equal(t, Rational{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8}, cam.Distortion)
		assert.Equal(t, Bilinear, cam.Filter)
	})

	t.Run("fisheye defaults missing coefficients", func(t *testing.T) {
		p, err := ParseParameters(strings.NewReader(intr + "K1: 0.1\nK3: null\n"))
		require.NoError(t, err)
		cam, err := NewCamera(fisheye, p)
		require.NoError(t, err)
		assert.Equal(t, Equidistant{K1: 0.1}, cam.Distortion)
		assert.Equal(t, Bicubic, cam.Filter)
	})

	t.Run("missing intrinsics", func(t *testing.T) {
		p, err := ParseParameters(strings.NewReader("FX: 800\n"))
		require.NoError(t, err)
		_, err = NewCamera(fisheye, p)
		assert.Error(t, err)
	})

	t.Run("unknown model", func(t *testing.T) {
		p, err := ParseParameters(strings.NewReader(intr))
		require.NoError(t, err)
		_, err = NewCamera(config.CameraSpec{Name: "X", Model: "omni"}, p)
		assert.Error(t, err)
	})
}

func TestOutputIntrinsicsCrop(t *testing.T) {
	cam := &Camera{
		Spec:       config.CameraSpec{Name: "CAM_FRONT_8M", Model: config.ModelPinhole, Width: 3840, Height: 2160, Crop: true},
		Intrinsics: Intrinsics{FX: 2000, FY: 2000, CX: 1920, CY: 1080},
	}
	assert.Equal(t, Intrinsics{FX: 2000, FY: 2000, CX: 960, CY: 768}, cam.OutputIntrinsics())
	w, h := cam.OutputSize()
	assert.Equal(t, 1920, w)
	assert.Equal(t, 1536, h)

	cam.Spec.Crop = false
	assert.Equal(t, cam.Intrinsics, cam.OutputIntrinsics())
	w, h = cam.OutputSize()
	assert.Equal(t, 3840, w)
	assert.Equal(t, 2160, h)
}

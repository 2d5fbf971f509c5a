// Package camera undistorts camera images and writes the per-frame camera
// calibration consumed by the annotation platform.
package camera

import (
	"fmt"
	"math"

	"github.com/Zhao-Qihao/xbzl-data/internal/config"
)

// Intrinsics is a pinhole camera matrix without skew.
type Intrinsics struct {
	FX, FY, CX, CY float64
}

// Project maps normalised image coordinates to pixels.
func (k Intrinsics) Project(x, y float64) (u, v float64) {
	return k.FX*x + k.CX, k.FY*y + k.CY
}

// Unproject maps pixels to normalised image coordinates.
func (k Intrinsics) Unproject(u, v float64) (x, y float64) {
	return (u - k.CX) / k.FX, (v - k.CY) / k.FY
}

// Shift returns k with the principal point moved by (-dx, -dy), as after
// cropping dx columns from the left and dy rows from the top.
func (k Intrinsics) Shift(dx, dy float64) Intrinsics {
	k.CX -= dx
	k.CY -= dy
	return k
}

// Distortion maps an ideal normalised point to its distorted position.
type Distortion interface {
	Distort(x, y float64) (xd, yd float64)
}

// Rational is the 8-coefficient rational lens model
// (k1 k2 p1 p2 k3 k4 k5 k6).
type Rational struct {
	K1, K2, P1, P2, K3, K4, K5, K6 float64
}

func (d Rational) Distort(x, y float64) (float64, float64) {
	r2 := x*x + y*y
	r4 := r2 * r2
	r6 := r4 * r2
	radial := (1 + d.K1*r2 + d.K2*r4 + d.K3*r6) / (1 + d.K4*r2 + d.K5*r4 + d.K6*r6)
	xd := x*radial + 2*d.P1*x*y + d.P2*(r2+2*x*x)
	yd := y*radial + d.P1*(r2+2*y*y) + 2*d.P2*x*y
	return xd, yd
}

// Equidistant is the fisheye model θd = θ(1 + k1θ² + k2θ⁴ + k3θ⁶ + k4θ⁸).
type Equidistant struct {
	K1, K2, K3, K4 float64
}

func (d Equidistant) Distort(x, y float64) (float64, float64) {
	r := math.Hypot(x, y)
	if r < 1e-8 {
		return x, y
	}
	theta := math.Atan(r)
	t2 := theta * theta
	t4 := t2 * t2
	thetaD := theta * (1 + d.K1*t2 + d.K2*t4 + d.K3*t4*t2 + d.K4*t4*t4)
	scale := thetaD / r
	return x * scale, y * scale
}

// Interpolation selects the remap filter.
type Interpolation int

const (
	Bilinear Interpolation = iota
	Bicubic
)

// Camera is one camera of the rig ready for undistortion.
type Camera struct {
	Spec       config.CameraSpec
	Intrinsics Intrinsics
	Distortion Distortion
	Filter     Interpolation
}

// NewCamera builds a camera from its CameraSpec and parameter file contents.
// Pinhole cameras need all eight rational coefficients and are resampled
// bilinearly; fisheye coefficients default to zero and use bicubic
// resampling.
func NewCamera(spec config.CameraSpec, p *Parameters) (*Camera, error) {
	k, err := p.Intrinsics()
	if err != nil {
		return nil, fmt.Errorf("camera %s: %w", spec.Name, err)
	}
	cam := &Camera{Spec: spec, Intrinsics: k}

	switch spec.Model {
	case config.ModelPinhole:
		v, err := p.Require("K1", "K2", "P1", "P2", "K3", "K4", "K5", "K6")
		if err != nil {
			return nil, fmt.Errorf("camera %s: %w", spec.Name, err)
		}
		cam.Distortion = Rational{K1: v[0], K2: v[1], P1: v[2], P2: v[3], K3: v[4], K4: v[5], K5: v[6], K6: v[7]}
		cam.Filter = Bilinear
	case config.ModelFisheye:
		cam.Distortion = Equidistant{
			K1: p.FloatOr("K1", 0),
			K2: p.FloatOr("K2", 0),
			K3: p.FloatOr("K3", 0),
			K4: p.FloatOr("K4", 0),
		}
		cam.Filter = Bicubic
	default:
		return nil, fmt.Errorf("camera %s: unknown model %q", spec.Name, spec.Model)
	}
	return cam, nil
}

// OutputIntrinsics returns the camera matrix of the images written by
// Undistort, accounting for the optional centre crop.
func (c *Camera) OutputIntrinsics() Intrinsics {
	if !c.Spec.Crop {
		return c.Intrinsics
	}
	left, top := cropOffset(c.Spec.Width, c.Spec.Height, CropWidth, CropHeight)
	return c.Intrinsics.Shift(float64(left), float64(top))
}

// OutputSize returns the width and height of the images written by
// Undistort.
func (c *Camera) OutputSize() (int, int) {
	if c.Spec.Crop {
		return CropWidth, CropHeight
	}
	return c.Spec.Width, c.Spec.Height
}

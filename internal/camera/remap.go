package camera

import (
	"image"
	"math"
)

// Map holds, for every destination pixel, the source coordinate to sample.
type Map struct {
	W, H int
	X, Y []float32
}

// BuildMap computes the undistortion map for a w×h image: destination pixels
// are unprojected with newK, distorted by d and projected with k. The
// rotation between the two views is the identity.
func BuildMap(k, newK Intrinsics, d Distortion, w, h int) *Map {
	m := &Map{W: w, H: h, X: make([]float32, w*h), Y: make([]float32, w*h)}
	for v := 0; v < h; v++ {
		for u := 0; u < w; u++ {
			x, y := newK.Unproject(float64(u), float64(v))
			xd, yd := d.Distort(x, y)
			su, sv := k.Project(xd, yd)
			i := v*w + u
			m.X[i] = float32(su)
			m.Y[i] = float32(sv)
		}
	}
	return m
}

// Remap samples src at the map coordinates. Samples falling outside src
// read as opaque black.
func Remap(src *image.NRGBA, m *Map, filter Interpolation) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, m.W, m.H))
	s := sampler{img: src, w: src.Rect.Dx(), h: src.Rect.Dy()}
	for v := 0; v < m.H; v++ {
		for u := 0; u < m.W; u++ {
			i := v*m.W + u
			var px [4]float64
			if filter == Bicubic {
				px = s.bicubic(float64(m.X[i]), float64(m.Y[i]))
			} else {
				px = s.bilinear(float64(m.X[i]), float64(m.Y[i]))
			}
			o := dst.PixOffset(u, v)
			for c := 0; c < 4; c++ {
				dst.Pix[o+c] = clamp8(px[c])
			}
		}
	}
	return dst
}

type sampler struct {
	img  *image.NRGBA
	w, h int
}

var border = [4]float64{0, 0, 0, 255}

// at returns pixel (x, y) relative to the image origin, or the border
// colour outside.
func (s sampler) at(x, y int) [4]float64 {
	if x < 0 || y < 0 || x >= s.w || y >= s.h {
		return border
	}
	o := s.img.PixOffset(s.img.Rect.Min.X+x, s.img.Rect.Min.Y+y)
	p := s.img.Pix[o : o+4 : o+4]
	return [4]float64{float64(p[0]), float64(p[1]), float64(p[2]), float64(p[3])}
}

func (s sampler) bilinear(x, y float64) [4]float64 {
	x0, y0 := math.Floor(x), math.Floor(y)
	fx, fy := x-x0, y-y0
	ix, iy := int(x0), int(y0)

	var out [4]float64
	weights := [4]float64{(1 - fx) * (1 - fy), fx * (1 - fy), (1 - fx) * fy, fx * fy}
	coords := [4][2]int{{ix, iy}, {ix + 1, iy}, {ix, iy + 1}, {ix + 1, iy + 1}}
	for n, c := range coords {
		if weights[n] == 0 {
			continue
		}
		p := s.at(c[0], c[1])
		for ch := range out {
			out[ch] += weights[n] * p[ch]
		}
	}
	return out
}

// cubicWeights are the Keys kernel weights (a = -0.75) for the four taps
// around a sample at fractional offset t.
func cubicWeights(t float64) [4]float64 {
	const a = -0.75
	var w [4]float64
	w[0] = ((a*(t+1)-5*a)*(t+1)+8*a)*(t+1) - 4*a
	w[1] = ((a+2)*t-(a+3))*t*t + 1
	w[2] = ((a+2)*(1-t)-(a+3))*(1-t)*(1-t) + 1
	w[3] = 1 - w[0] - w[1] - w[2]
	return w
}

func (s sampler) bicubic(x, y float64) [4]float64 {
	x0, y0 := math.Floor(x), math.Floor(y)
	wx, wy := cubicWeights(x-x0), cubicWeights(y-y0)
	ix, iy := int(x0), int(y0)

	var out [4]float64
	for j := 0; j < 4; j++ {
		if wy[j] == 0 {
			continue
		}
		for i := 0; i < 4; i++ {
			w := wx[i] * wy[j]
			if w == 0 {
				continue
			}
			p := s.at(ix+i-1, iy+j-1)
			for ch := range out {
				out[ch] += w * p[ch]
			}
		}
	}
	return out
}

func clamp8(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

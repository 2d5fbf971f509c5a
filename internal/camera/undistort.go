package camera

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/Zhao-Qihao/xbzl-data/internal/config"
	"github.com/Zhao-Qihao/xbzl-data/internal/monitoring"
)

// Centre crop applied to cameras with Crop set.
const (
	CropWidth  = 1920
	CropHeight = 1536
)

// JPEGQuality is used when writing .jpg outputs.
const JPEGQuality = 95

// cropOffset returns the top-left corner of a centred cw×ch window in a
// w×h image.
func cropOffset(w, h, cw, ch int) (left, top int) {
	return (w - cw) / 2, (h - ch) / 2
}

// CenterCrop cuts the centred cw×ch window out of img.
func CenterCrop(img image.Image, cw, ch int) (*image.NRGBA, error) {
	b := img.Bounds()
	if b.Dx() < cw || b.Dy() < ch {
		return nil, fmt.Errorf("cannot crop %dx%d image to %dx%d", b.Dx(), b.Dy(), cw, ch)
	}
	left, top := cropOffset(b.Dx(), b.Dy(), cw, ch)
	rect := image.Rect(left, top, left+cw, top+ch).Add(b.Min)
	return imaging.Crop(img, rect), nil
}

// Undistorter resamples images of one camera. Maps are built lazily per
// input size and reused across frames.
type Undistorter struct {
	cam *Camera

	mu   sync.Mutex
	maps map[image.Point]*Map
}

// NewUndistorter returns an Undistorter for cam.
func NewUndistorter(cam *Camera) *Undistorter {
	return &Undistorter{cam: cam, maps: make(map[image.Point]*Map)}
}

func (u *Undistorter) mapFor(w, h int) *Map {
	u.mu.Lock()
	defer u.mu.Unlock()
	key := image.Pt(w, h)
	if m, ok := u.maps[key]; ok {
		return m
	}
	k := u.cam.Intrinsics
	m := BuildMap(k, k, u.cam.Distortion, w, h)
	u.maps[key] = m
	return m
}

// Undistort removes lens distortion from img, keeping the camera matrix,
// and applies the centre crop when the camera asks for one.
func (u *Undistorter) Undistort(img image.Image) (*image.NRGBA, error) {
	src := imaging.Clone(img)
	dropAlpha(src)
	b := src.Bounds()
	out := Remap(src, u.mapFor(b.Dx(), b.Dy()), u.cam.Filter)
	if u.cam.Spec.Crop {
		return CenterCrop(out, CropWidth, CropHeight)
	}
	return out, nil
}

// dropAlpha makes every pixel opaque. Outputs are written as 3-channel
// images, as the source cameras deliver them.
func dropAlpha(img *image.NRGBA) {
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
}

// IsImage reports whether name has an extension the undistorter handles.
func IsImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg":
		return true
	}
	return false
}

// ListImages returns the image files in dir, sorted by name.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && IsImage(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// UndistortFile reads src, undistorts it and writes dst. The encoder is
// chosen from the destination extension.
func (u *Undistorter) UndistortFile(src, dst string) error {
	img, err := imaging.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	out, err := u.Undistort(img)
	if err != nil {
		return fmt.Errorf("%s: %w", src, err)
	}
	if err := imaging.Save(out, dst, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return fmt.Errorf("failed to save %s: %w", dst, err)
	}
	return nil
}

// UndistortDir processes every image of inDir into outDir under the same
// file name. Images that fail are logged and skipped; the returned count
// covers the images written.
func (u *Undistorter) UndistortDir(inDir, outDir string) (int, error) {
	names, err := ListImages(inDir)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", outDir, err)
	}

	written := 0
	for _, name := range names {
		src := filepath.Join(inDir, name)
		dst := filepath.Join(outDir, name)
		if err := u.UndistortFile(src, dst); err != nil {
			monitoring.Logf("error processing image %s: %v", src, err)
			continue
		}
		written++
	}
	return written, nil
}

// Result summarises one camera of a scene run.
type Result struct {
	Camera  string
	Output  string
	Written int
	Err     error
}

// UndistortScene runs every camera of specs over scene. Parameter files
// are read from paramsDir. A camera whose parameters cannot be loaded is
// reported in its Result and the remaining cameras still run. The cameras
// that were set up successfully are returned alongside the results.
func UndistortScene(scene, paramsDir string, specs []config.CameraSpec) ([]*Camera, []Result) {
	var cams []*Camera
	results := make([]Result, 0, len(specs))
	for _, spec := range specs {
		res := Result{Camera: spec.Name, Output: spec.Output}
		cam, err := loadCamera(paramsDir, spec)
		if err != nil {
			res.Err = err
			monitoring.Logf("skipping camera %s: %v", spec.Name, err)
			results = append(results, res)
			continue
		}
		cams = append(cams, cam)

		n, err := NewUndistorter(cam).UndistortDir(filepath.Join(scene, spec.Name), filepath.Join(scene, spec.Output))
		res.Written, res.Err = n, err
		if err != nil {
			monitoring.Logf("camera %s: %v", spec.Name, err)
		} else {
			monitoring.Logf("camera %s: %d images -> %s", spec.Name, n, spec.Output)
		}
		results = append(results, res)
	}
	return cams, results
}

func loadCamera(paramsDir string, spec config.CameraSpec) (*Camera, error) {
	p, err := LoadParameters(filepath.Join(paramsDir, spec.ParamFile))
	if err != nil {
		return nil, err
	}
	return NewCamera(spec, p)
}

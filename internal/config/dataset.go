package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DatasetConfig holds the dataset conventions shared by the scene tools.
// Every field is optional; the Get* methods fall back to the defaults of the
// standard eight-sensor rig, so a partial JSON file only overrides what it
// names.
type DatasetConfig struct {
	// Label validation
	ClassNames     []string `json:"class_names,omitempty"`
	ValueLimit     *float64 `json:"value_limit,omitempty"`
	LabelExtension *string  `json:"label_extension,omitempty"`

	// Timestamp alignment
	AlignFolders   []string `json:"align_folders,omitempty"`
	TruncateDigits *int     `json:"truncate_digits,omitempty"`

	// LiDAR merge
	MergeSensors   []string `json:"merge_sensors,omitempty"`
	ReferenceLidar *string  `json:"reference_lidar,omitempty"`
	TargetLidar    *string  `json:"target_lidar,omitempty"`

	// Cameras, in camera_image_<i> order
	Cameras []CameraSpec `json:"cameras,omitempty"`
}

// CameraSpec describes one camera of the rig.
type CameraSpec struct {
	Name      string `json:"name"`       // input folder, e.g. CAM_FRONT_8M
	Model     string `json:"model"`      // "pinhole" or "fisheye"
	ParamFile string `json:"param_file"` // relative to the parameters directory
	Output    string `json:"output"`     // output folder, e.g. camera_image_0
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Crop      bool   `json:"crop,omitempty"`
}

// Camera models understood by the undistort tool.
const (
	ModelPinhole = "pinhole"
	ModelFisheye = "fisheye"
)

var (
	defaultClassNames = []string{"car", "truck", "bus", "bicycle", "pedestrian", "traffic_cone", "barrier"}

	defaultAlignFolders = []string{
		"LIDAR_FRONT",
		"LIDAR_REAR",
		"LIDAR_TOP_32",
		"CAM_FRONT_8M",
		"CAM_FRONT_3M",
		"CAM_LEFT_3M",
		"CAM_RIGHT_3M",
		"CAM_BACK_3MH",
	}

	defaultCameras = []CameraSpec{
		{Name: "CAM_FRONT_8M", Model: ModelPinhole, ParamFile: "pinhole-front.txt", Output: "camera_image_0", Width: 3840, Height: 2160},
		{Name: "CAM_FRONT_3M", Model: ModelFisheye, ParamFile: "fisheye-front.txt", Output: "camera_image_1", Width: 1920, Height: 1536},
		{Name: "CAM_LEFT_3M", Model: ModelFisheye, ParamFile: "fisheye-left.txt", Output: "camera_image_2", Width: 1920, Height: 1536},
		{Name: "CAM_RIGHT_3M", Model: ModelFisheye, ParamFile: "fisheye-right.txt", Output: "camera_image_3", Width: 1920, Height: 1536},
		{Name: "CAM_BACK_3MH", Model: ModelPinhole, ParamFile: "pinhole-back.txt", Output: "camera_image_4", Width: 1920, Height: 1536},
	}
)

// EmptyDatasetConfig returns a DatasetConfig with every field unset.
func EmptyDatasetConfig() *DatasetConfig {
	return &DatasetConfig{}
}

// LoadDatasetConfig loads a DatasetConfig from a JSON file.
// The file must have a .json extension and be at most 1MB.
func LoadDatasetConfig(path string) (*DatasetConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyDatasetConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadOrEmpty loads path when it is non-empty and returns an empty config
// otherwise. CLIs call it with the value of their -config flag.
func LoadOrEmpty(path string) (*DatasetConfig, error) {
	if path == "" {
		return EmptyDatasetConfig(), nil
	}
	return LoadDatasetConfig(path)
}

// Validate checks that the configured values are usable.
func (c *DatasetConfig) Validate() error {
	for i, name := range c.ClassNames {
		if name == "" || strings.ContainsAny(name, " \t\r\n") {
			return fmt.Errorf("class_names[%d] must be a single non-empty token, got %q", i, name)
		}
	}
	if c.ValueLimit != nil && *c.ValueLimit < 0 {
		return fmt.Errorf("value_limit must be non-negative, got %f", *c.ValueLimit)
	}
	if c.LabelExtension != nil && !strings.HasPrefix(*c.LabelExtension, ".") {
		return fmt.Errorf("label_extension must start with '.', got %q", *c.LabelExtension)
	}
	if c.TruncateDigits != nil && *c.TruncateDigits < 0 {
		return fmt.Errorf("truncate_digits must be non-negative, got %d", *c.TruncateDigits)
	}
	for i, cam := range c.Cameras {
		if cam.Name == "" || cam.Output == "" || cam.ParamFile == "" {
			return fmt.Errorf("cameras[%d]: name, param_file and output are required", i)
		}
		if cam.Model != ModelPinhole && cam.Model != ModelFisheye {
			return fmt.Errorf("cameras[%d] (%s): unknown model %q", i, cam.Name, cam.Model)
		}
		if cam.Width <= 0 || cam.Height <= 0 {
			return fmt.Errorf("cameras[%d] (%s): width and height must be positive", i, cam.Name)
		}
	}
	return nil
}

// GetClassNames returns the configured class vocabulary or the default one.
func (c *DatasetConfig) GetClassNames() []string {
	if len(c.ClassNames) == 0 {
		return append([]string(nil), defaultClassNames...)
	}
	return append([]string(nil), c.ClassNames...)
}

// GetValueLimit returns the label magnitude warning threshold.
func (c *DatasetConfig) GetValueLimit() float64 {
	if c.ValueLimit == nil {
		return 100
	}
	return *c.ValueLimit
}

// GetLabelExtension returns the label file extension.
func (c *DatasetConfig) GetLabelExtension() string {
	if c.LabelExtension == nil || *c.LabelExtension == "" {
		return ".txt"
	}
	return *c.LabelExtension
}

// GetAlignFolders returns the sensor folders copied by the alignment tool.
func (c *DatasetConfig) GetAlignFolders() []string {
	if len(c.AlignFolders) == 0 {
		return append([]string(nil), defaultAlignFolders...)
	}
	return append([]string(nil), c.AlignFolders...)
}

// GetTruncateDigits returns how many trailing timestamp digits are dropped.
func (c *DatasetConfig) GetTruncateDigits() int {
	if c.TruncateDigits == nil {
		return 9 // nanoseconds -> seconds
	}
	return *c.TruncateDigits
}

// GetMergeSensors returns the configured merge order, or nil to let the
// merge preset decide.
func (c *DatasetConfig) GetMergeSensors() []string {
	if len(c.MergeSensors) == 0 {
		return nil
	}
	return append([]string(nil), c.MergeSensors...)
}

// GetReferenceLidar returns the sensor whose frame the extrinsics map into.
func (c *DatasetConfig) GetReferenceLidar() string {
	if c.ReferenceLidar == nil || *c.ReferenceLidar == "" {
		return "LIDAR_TOP_128"
	}
	return *c.ReferenceLidar
}

// GetTargetLidar returns the sensor whose frame merged clouds are written in.
func (c *DatasetConfig) GetTargetLidar() string {
	if c.TargetLidar == nil || *c.TargetLidar == "" {
		return "LIDAR_TOP_32"
	}
	return *c.TargetLidar
}

// GetCameras returns the camera rig description.
func (c *DatasetConfig) GetCameras() []CameraSpec {
	if len(c.Cameras) == 0 {
		return append([]CameraSpec(nil), defaultCameras...)
	}
	return append([]CameraSpec(nil), c.Cameras...)
}

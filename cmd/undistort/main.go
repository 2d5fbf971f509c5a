// Command undistort removes lens distortion from the camera images of a
// scene and writes the camera calibration for each merged frame.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/Zhao-Qihao/xbzl-data/internal/camera"
	"github.com/Zhao-Qihao/xbzl-data/internal/config"
	"github.com/Zhao-Qihao/xbzl-data/internal/fsutil"
	"github.com/Zhao-Qihao/xbzl-data/internal/pointcloud"
	"github.com/Zhao-Qihao/xbzl-data/internal/version"
)

func main() {
	var (
		scenePath  = flag.String("path", "", "scene directory with CAM_* folders (required)")
		paramsDir  = flag.String("params-dir", "utils/Parameters", "directory of camera parameter files")
		extPath    = flag.String("extrinsics", "utils/32m2cameras.json", "camera extrinsics JSON keyed by camera folder")
		calibPath  = flag.String("camera-config", "utils/camera_config.json", "where to write the combined camera config")
		cropFront  = flag.Bool("crop-front", false, "centre-crop CAM_FRONT_8M to 1920x1536")
		configPath = flag.String("config", "", "dataset config JSON")
		showVer    = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVer {
		fmt.Println(version.String("undistort"))
		return
	}
	if *scenePath == "" {
		fmt.Fprintln(os.Stderr, "-path is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadOrEmpty(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	specs := cfg.GetCameras()
	if *cropFront {
		for i := range specs {
			if specs[i].Name == "CAM_FRONT_8M" {
				specs[i].Crop = true
			}
		}
	}

	cams, results := camera.UndistortScene(*scenePath, *paramsDir, specs)
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	fmt.Printf("undistorted %d of %d cameras\n", len(results)-failed, len(results))

	ext, err := pointcloud.LoadExtrinsics(*extPath)
	if err != nil {
		log.Fatalf("load camera extrinsics: %v", err)
	}
	entries, err := camera.BuildCalibration(cams, ext)
	if err != nil {
		log.Fatalf("camera config: %v", err)
	}
	fsys := fsutil.OSFileSystem{}
	data, err := camera.WriteCalibration(fsys, *calibPath, entries)
	if err != nil {
		log.Fatalf("%v", err)
	}
	n, err := camera.DistributeCalibration(fsys, *scenePath, data)
	if err != nil {
		log.Fatalf("%v", err)
	}
	fmt.Printf("wrote %s and %d per-frame copies\n", *calibPath, n)
}

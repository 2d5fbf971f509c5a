// Command merge-pcd fuses the per-sensor LiDAR clouds of a scene into one
// cloud per timestamp.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/Zhao-Qihao/xbzl-data/internal/config"
	"github.com/Zhao-Qihao/xbzl-data/internal/fsutil"
	"github.com/Zhao-Qihao/xbzl-data/internal/pointcloud"
	"github.com/Zhao-Qihao/xbzl-data/internal/version"
)

func main() {
	var (
		scenePath  = flag.String("path", "", "scene directory with LIDAR_* folders (required)")
		extPath    = flag.String("extrinsics", "utils/lidar2m128.json", "LiDAR extrinsics JSON")
		presetName = flag.String("preset", "all", "merge preset: all or top32-front")
		sensors    = flag.String("sensors", "", "comma-separated sensors, overrides the preset")
		outDir     = flag.String("out", "", "output folder inside the scene (default from preset)")
		format     = flag.String("format", "", "output format pcd or bin (default from preset)")
		configPath = flag.String("config", "", "dataset config JSON")
		showVer    = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVer {
		fmt.Println(version.String("merge-pcd"))
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
	preset, err := pointcloud.LookupPreset(*presetName)
	if err != nil {
		log.Fatalf("%v", err)
	}

	opts := pointcloud.MergeOptions{
		Sensors:   preset.Sensors,
		Reference: cfg.GetReferenceLidar(),
		Target:    cfg.GetTargetLidar(),
	}
	if s := cfg.GetMergeSensors(); s != nil {
		opts.Sensors = s
	}
	if *sensors != "" {
		opts.Sensors = splitList(*sensors)
	}
	out := preset.OutDir
	if *outDir != "" {
		out = *outDir
	}
	outFormat := preset.Format
	if *format != "" {
		if outFormat, err = pointcloud.ParseFormat(*format); err != nil {
			log.Fatalf("%v", err)
		}
	}

	ext, err := pointcloud.LoadExtrinsics(*extPath)
	if err != nil {
		log.Fatalf("load extrinsics: %v", err)
	}
	merger, err := pointcloud.NewMerger(fsutil.OSFileSystem{}, *scenePath, ext, opts)
	if err != nil {
		log.Fatalf("merge: %v", err)
	}
	n, err := merger.Run(out, outFormat)
	if err != nil {
		log.Fatalf("merge: %v", err)
	}
	fmt.Printf("merged %d frames into %s\n", n, out)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

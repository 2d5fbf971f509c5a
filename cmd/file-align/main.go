// Command file-align copies raw sensor folders into a scene with their
// nanosecond timestamps truncated to seconds.
package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/Zhao-Qihao/xbzl-data/internal/align"
	"github.com/Zhao-Qihao/xbzl-data/internal/config"
	"github.com/Zhao-Qihao/xbzl-data/internal/version"
)

func main() {
	var (
		src        = flag.String("src", "scene_1_unaligned", "source scene with raw sensor folders")
		dst        = flag.String("dst", "scene_1", "target scene")
		folders    = flag.String("folders", "", "comma-separated sensor folders, overrides the config")
		digits     = flag.Int("digits", -1, "trailing timestamp digits to drop (default from config, 9)")
		configPath = flag.String("config", "", "dataset config JSON")
		showVer    = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVer {
		fmt.Println(version.String("file-align"))
		return
	}

	cfg, err := config.LoadOrEmpty(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	names := cfg.GetAlignFolders()
	if *folders != "" {
		names = splitList(*folders)
	}
	n := cfg.GetTruncateDigits()
	if *digits >= 0 {
		n = *digits
	}

	copied, err := align.AlignScene(*src, *dst, names, n)
	if err != nil {
		log.Fatalf("align: %v", err)
	}
	fmt.Printf("aligned %d files from %s into %s\n", copied, *src, *dst)
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

// Command extract-label converts annotation platform exports of a scene
// into label files.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/Zhao-Qihao/xbzl-data/internal/annotation"
	"github.com/Zhao-Qihao/xbzl-data/internal/fsutil"
	"github.com/Zhao-Qihao/xbzl-data/internal/version"
)

func main() {
	scenePath := flag.String("path", "", "scene directory containing the <scene>-* export (required)")
	showVer := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVer {
		fmt.Println(version.String("extract-label"))
		return
	}
	if *scenePath == "" {
		fmt.Fprintln(os.Stderr, "-path is required")
		flag.Usage()
		os.Exit(2)
	}

	n, err := annotation.ConvertScene(fsutil.OSFileSystem{}, *scenePath)
	if err != nil {
		log.Fatalf("extract labels: %v", err)
	}
	fmt.Printf("wrote %d label files\n", n)
}

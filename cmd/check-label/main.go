// Command check-label validates the label files of a scene and writes its
// class statistics.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/Zhao-Qihao/xbzl-data/internal/config"
	"github.com/Zhao-Qihao/xbzl-data/internal/db"
	"github.com/Zhao-Qihao/xbzl-data/internal/fsutil"
	"github.com/Zhao-Qihao/xbzl-data/internal/labels"
	"github.com/Zhao-Qihao/xbzl-data/internal/labels/chart"
	"github.com/Zhao-Qihao/xbzl-data/internal/version"
)

func main() {
	var (
		scenePath  = flag.String("path", "", "scene directory containing labels/ (required unless -run or -migrate)")
		configPath = flag.String("config", "", "dataset config JSON")
		classes    = flag.String("classes", "", "comma-separated class list, overrides the config")
		dbPath     = flag.String("db", "", "sqlite database to record the run in")
		history    = flag.Int("history", 0, "list this many recorded runs for the scene (needs -db)")
		runID      = flag.String("run", "", "print a recorded run and chart it instead of validating (needs -db)")
		migration  = flag.String("migrate", "", "schema action to run and exit: down or version (needs -db)")
		chartHTML  = flag.String("chart-html", "", "write an HTML bar chart of the class distribution")
		chartPNG   = flag.String("chart-png", "", "write a PNG bar chart of the class distribution")
		showVer    = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVer {
		fmt.Println(version.String("check-label"))
		return
	}
	if (*history > 0 || *runID != "" || *migration != "") && *dbPath == "" {
		log.Fatalf("-history, -run and -migrate need -db")
	}

	if *migration != "" || *runID != "" {
		store, err := db.Open(*dbPath)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer store.Close()

		if *migration != "" {
			if err := migrateSchema(store, *migration, os.Stdout); err != nil {
				log.Fatalf("migrate: %v", err)
			}
			return
		}
		run, err := showRun(store, *runID, os.Stdout)
		if err != nil {
			log.Fatalf("show run: %v", err)
		}
		if err := writeCharts("Class distribution: "+run.Scene, run.Histogram(), *chartHTML, *chartPNG); err != nil {
			log.Fatalf("write chart: %v", err)
		}
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
	opts := labels.OptionsFromConfig(cfg)
	if *classes != "" {
		opts.Vocabulary = labels.NewVocabulary(splitList(*classes)...)
	}

	fmt.Printf("Checking label files under %s...\n\n", filepath.Join(*scenePath, labels.LabelDir))
	v := labels.NewValidator(fsutil.OSFileSystem{}, opts, os.Stdout)
	report, err := v.Run(*scenePath)
	if err != nil {
		log.Fatalf("check labels: %v", err)
	}

	if *dbPath != "" {
		store, err := db.Open(*dbPath)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer store.Close()

		run, err := store.RecordRun(report)
		if err != nil {
			log.Fatalf("record run: %v", err)
		}
		fmt.Printf("\nRecorded run %s\n", run.ID)

		if *history > 0 {
			runs, err := store.ListRuns(report.Scene, *history)
			if err != nil {
				log.Fatalf("list runs: %v", err)
			}
			fmt.Printf("\nRecent runs for %s:\n", report.Scene)
			for i := range runs {
				fmt.Println(runs[i].String())
			}
		}
	}

	title := "Class distribution: " + filepath.Base(filepath.Clean(*scenePath))
	if err := writeCharts(title, report.Histogram, *chartHTML, *chartPNG); err != nil {
		log.Fatalf("write chart: %v", err)
	}
}

// writeCharts writes whichever of the HTML and PNG charts has a path. A PNG
// of an empty histogram is skipped with a log line.
func writeCharts(title string, hist *labels.ClassHistogram, htmlPath, pngPath string) error {
	if htmlPath != "" {
		if err := writeHTMLChart(htmlPath, title, hist); err != nil {
			return fmt.Errorf("html chart: %w", err)
		}
	}
	if pngPath != "" {
		err := chart.WritePNG(pngPath, title, hist)
		if errors.Is(err, chart.ErrEmpty) {
			log.Printf("skipping png chart %s: no classes counted", pngPath)
			return nil
		}
		if err != nil {
			return fmt.Errorf("png chart: %w", err)
		}
	}
	return nil
}

func showRun(store *db.DB, id string, w io.Writer) (*db.Run, error) {
	run, err := store.GetRun(id)
	if err != nil {
		return nil, err
	}
	fmt.Fprintln(w, run.String())
	return run, nil
}

func migrateSchema(store *db.DB, action string, w io.Writer) error {
	switch action {
	case "down":
		if err := store.MigrateDown(); err != nil {
			return err
		}
	case "version":
	default:
		return fmt.Errorf("unknown migrate action %q (want down or version)", action)
	}
	version, dirty, err := store.MigrateVersion()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "schema version %d dirty=%t\n", version, dirty)
	return nil
}

func writeHTMLChart(path, title string, hist *labels.ClassHistogram) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := chart.WriteHTML(f, title, hist); err != nil {
		f.Close()
		return err
	}
	return f.Close()
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

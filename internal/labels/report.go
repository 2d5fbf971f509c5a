package labels

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Zhao-Qihao/xbzl-data/internal/fsutil"
)

// StatisticsFile is the name of the summary written into the scene directory.
const StatisticsFile = "statistics.txt"

// Report is the outcome of validating one scene.
type Report struct {
	Scene       string
	TotalFrames int
	Histogram   *ClassHistogram
	Diagnostics []Diagnostic
}

// Errors returns the number of ERROR diagnostics.
func (r *Report) Errors() int { return r.count(SeverityError) }

// Warnings returns the number of WARNING diagnostics.
func (r *Report) Warnings() int { return r.count(SeverityWarning) }

func (r *Report) count(s Severity) int {
	n := 0
	for _, d := range r.Diagnostics {
		if d.Severity() == s {
			n++
		}
	}
	return n
}

// Summary renders the frame count and class distribution:
//
//	Total frames: 2
//	Class distribution:
//	car: 1
//	truck: 1
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Total frames: %d\n", r.TotalFrames)
	b.WriteString("Class distribution:\n")
	for _, e := range r.Histogram.Entries() {
		fmt.Fprintf(&b, "%s: %d\n", e.Class, e.Count)
	}
	return b.String()
}

// StatisticsPath returns where Save writes the summary.
func (r *Report) StatisticsPath() string {
	return filepath.Join(r.Scene, StatisticsFile)
}

// Save writes the summary to the scene's statistics file, replacing any
// previous content.
func (r *Report) Save(fsys fsutil.FileSystem) error {
	path := r.StatisticsPath()
	w, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := w.Write([]byte(r.Summary())); err != nil {
		w.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}

// Package labels validates per-frame 3D box label files and tallies the class
// distribution of a scene.
//
// A label file holds one object per line:
//
//	x y z dx dy dz yaw class_name
//
// Validation is fail-soft: malformed lines are reported and skipped,
// suspicious lines are reported and still counted. Only I/O failures on the
// labels directory or a label file abort a run.
package labels

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Zhao-Qihao/xbzl-data/internal/config"
	"github.com/Zhao-Qihao/xbzl-data/internal/fsutil"
)

const (
	// FieldCount is the number of whitespace-separated tokens on a label line.
	FieldCount = 8
	// NumericFields is the number of leading float tokens.
	NumericFields = FieldCount - 1

	// LabelDir is the scene subdirectory holding label files.
	LabelDir = "labels"

	maxLineBytes = 1 << 20
)

// Options controls what the validator accepts.
type Options struct {
	Vocabulary Vocabulary
	// ValueLimit is the magnitude above which a value draws a warning.
	ValueLimit float64
	// Extension selects label files inside the labels directory.
	Extension string
}

// DefaultOptions returns the options of the standard dataset.
func DefaultOptions() Options {
	return OptionsFromConfig(config.EmptyDatasetConfig())
}

// OptionsFromConfig builds Options from the label section of cfg.
func OptionsFromConfig(cfg *config.DatasetConfig) Options {
	return Options{
		Vocabulary: NewVocabulary(cfg.GetClassNames()...),
		ValueLimit: cfg.GetValueLimit(),
		Extension:  cfg.GetLabelExtension(),
	}
}

// Validator checks label files read through a FileSystem and writes each
// diagnostic to out as soon as it is found.
type Validator struct {
	fs   fsutil.FileSystem
	opts Options
	out  io.Writer
}

// NewValidator creates a validator. An empty vocabulary or extension in opts
// falls back to the defaults; a nil out discards console output.
func NewValidator(fsys fsutil.FileSystem, opts Options, out io.Writer) *Validator {
	def := DefaultOptions()
	if opts.Vocabulary.Len() == 0 {
		opts.Vocabulary = def.Vocabulary
	}
	if opts.Extension == "" {
		opts.Extension = def.Extension
	}
	if out == nil {
		out = io.Discard
	}
	return &Validator{fs: fsys, opts: opts, out: out}
}

// Options returns the effective options.
func (v *Validator) Options() Options { return v.opts }

// ValidateFile checks every line of the label file at path, adding each
// record whose numeric fields parse to hist. Diagnostics are returned in line
// order. The returned error is non-nil only when the file cannot be read.
func (v *Validator) ValidateFile(path string, hist *ClassHistogram) ([]Diagnostic, error) {
	f, err := v.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open label file: %w", err)
	}
	defer f.Close()

	var diags []Diagnostic
	lr := newLineReader(f, maxLineBytes)
	line := 0
	for {
		text, tooLong, err := lr.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return diags, fmt.Errorf("failed to read label file %s: %w", path, err)
		}
		line++
		var found []Diagnostic
		if tooLong {
			found = []Diagnostic{{Path: path, Line: line, Kind: KindSchema, Message: fmt.Sprintf("line exceeds %d bytes", maxLineBytes)}}
		} else {
			found = v.CheckLine(path, line, text, hist)
		}
		for _, d := range found {
			fmt.Fprintln(v.out, d)
			diags = append(diags, d)
		}
	}
	return diags, nil
}

// lineReader splits input on \n, \r\n and a bare \r. A line longer than
// limit bytes is drained and flagged instead of returned.
type lineReader struct {
	r     *bufio.Reader
	limit int
	buf   []byte
}

func newLineReader(r io.Reader, limit int) *lineReader {
	return &lineReader{r: bufio.NewReaderSize(r, 64*1024), limit: limit}
}

// next returns the following line without its terminator. io.EOF is
// returned once no bytes remain.
func (lr *lineReader) next() (string, bool, error) {
	lr.buf = lr.buf[:0]
	tooLong, started := false, false
	for {
		b, err := lr.r.ReadByte()
		if err != nil {
			if err == io.EOF && started {
				return string(lr.buf), tooLong, nil
			}
			return "", false, err
		}
		started = true
		switch b {
		case '\n':
			return string(lr.buf), tooLong, nil
		case '\r':
			if next, err := lr.r.Peek(1); err == nil && next[0] == '\n' {
				lr.r.ReadByte()
			}
			return string(lr.buf), tooLong, nil
		}
		if len(lr.buf) < lr.limit {
			lr.buf = append(lr.buf, b)
		} else {
			tooLong = true
		}
	}
}

// CheckLine validates a single label line. The record is counted in hist
// once its numeric fields parse, before the NaN, range and vocabulary checks
// run, so flagged records remain visible in the distribution.
func (v *Validator) CheckLine(path string, line int, text string, hist *ClassHistogram) []Diagnostic {
	diag := func(kind Kind, format string, args ...any) Diagnostic {
		return Diagnostic{Path: path, Line: line, Kind: kind, Message: fmt.Sprintf(format, args...)}
	}

	parts := strings.Fields(text)
	if len(parts) != FieldCount {
		return []Diagnostic{diag(KindSchema, "expected %d fields, got %d", FieldCount, len(parts))}
	}

	values := make([]float64, NumericFields)
	for i, tok := range parts[:NumericFields] {
		f, err := parseValue(tok)
		if err != nil {
			return []Diagnostic{diag(KindParse, "failed to parse value: %v", err)}
		}
		values[i] = f
	}
	class := parts[NumericFields]
	hist.Add(class)

	var diags []Diagnostic
	nonFinite, large := false, false
	for _, f := range values {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			nonFinite = true
		}
		if math.Abs(f) > v.opts.ValueLimit {
			large = true
		}
	}
	if nonFinite {
		diags = append(diags, diag(KindNonFinite, "contains NaN or Inf"))
	}
	if large {
		diags = append(diags, diag(KindValueRange, "values exceed magnitude %g: %v", v.opts.ValueLimit, values))
	}
	if !v.opts.Vocabulary.Contains(class) {
		diags = append(diags, diag(KindUnknownClass, "class %q is not in the allowed class list", class))
	}
	return diags
}

// parseValue parses a float token. Literals too large for float64 parse to
// ±Inf and are left for the non-finite check rather than rejected.
// Hexadecimal literals are rejected.
func parseValue(tok string) (float64, error) {
	digits := strings.ToLower(strings.TrimLeft(tok, "+-"))
	if strings.HasPrefix(digits, "0x") {
		return 0, &strconv.NumError{Func: "ParseFloat", Num: tok, Err: strconv.ErrSyntax}
	}
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, err
	}
	return f, nil
}

// ListLabelFiles returns the label files in dir, in name order.
// Directories are skipped even if their name carries the label extension.
func (v *Validator) ListLabelFiles(dir string) ([]string, error) {
	entries, err := v.fs.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list label directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), v.opts.Extension) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

// Scan validates every label file of sceneDir and returns the resulting
// report without persisting it. Each file counts as one frame regardless of
// its content.
func (v *Validator) Scan(sceneDir string) (*Report, error) {
	files, err := v.ListLabelFiles(filepath.Join(sceneDir, LabelDir))
	if err != nil {
		return nil, err
	}

	report := &Report{
		Scene:       sceneDir,
		TotalFrames: len(files),
		Histogram:   NewClassHistogram(),
	}
	for _, path := range files {
		diags, err := v.ValidateFile(path, report.Histogram)
		report.Diagnostics = append(report.Diagnostics, diags...)
		if err != nil {
			return nil, err
		}
	}
	return report, nil
}

// Run scans sceneDir, writes its statistics file and prints the summary.
func (v *Validator) Run(sceneDir string) (*Report, error) {
	report, err := v.Scan(sceneDir)
	if err != nil {
		return nil, err
	}
	if err := report.Save(v.fs); err != nil {
		return nil, err
	}
	fmt.Fprintf(v.out, "\nCheck complete.\n\n%s", report.Summary())
	return report, nil
}

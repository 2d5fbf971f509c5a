package labels

import "fmt"

// Kind classifies a per-line validation finding.
type Kind int

const (
	// KindSchema: the line does not split into exactly FieldCount tokens.
	KindSchema Kind = iota
	// KindParse: one of the numeric tokens is not a float literal.
	KindParse
	// KindNonFinite: a parsed value is NaN or infinite.
	KindNonFinite
	// KindValueRange: a parsed value exceeds the magnitude limit.
	KindValueRange
	// KindUnknownClass: the class token is outside the vocabulary.
	KindUnknownClass
)

func (k Kind) String() string {
	switch k {
	case KindSchema:
		return "schema"
	case KindParse:
		return "parse"
	case KindNonFinite:
		return "non-finite"
	case KindValueRange:
		return "value-range"
	case KindUnknownClass:
		return "unknown-class"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Severity is the console tag of a diagnostic.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

// Severity returns the tag printed for findings of this kind. Only the
// magnitude check is a warning.
func (k Kind) Severity() Severity {
	if k == KindValueRange {
		return SeverityWarning
	}
	return SeverityError
}

// Diagnostic is one finding for one line of one label file.
type Diagnostic struct {
	Path    string
	Line    int // 1-indexed
	Kind    Kind
	Message string
}

// Severity returns the severity implied by the diagnostic kind.
func (d Diagnostic) Severity() Severity { return d.Kind.Severity() }

// String formats the diagnostic as a single console line, e.g.
// "[ERROR] scene/labels/a.txt line 2: expected 8 fields, got 2".
func (d Diagnostic) String() string {
	return fmt.Sprintf("[%s] %s line %d: %s", d.Severity(), d.Path, d.Line, d.Message)
}

package dsl

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for programmatic checks via errors.Is().
var (
	// ErrStructural indicates a missing symbol, entryNode or nodes list.
	ErrStructural = errors.New("structural error")

	// ErrSchema indicates wrong field types, unknown operand kinds, unknown
	// node types or excessive nesting.
	ErrSchema = errors.New("schema error")

	// ErrReference indicates a successor or entry node that does not exist,
	// a duplicate node id, or a cycle.
	ErrReference = errors.New("reference error")

	// ErrSemantic indicates unknown functions or actions, arity mismatches,
	// invalid operators and non-binary condition expressions.
	ErrSemantic = errors.New("semantic error")

	// ErrFinancial tags advisory findings. It never makes a graph invalid.
	ErrFinancial = errors.New("financial warning")
)

// Category classifies a diagnostic.
type Category int

const (
	Structural Category = iota + 1
	Schema
	Reference
	Semantic
	Financial
)

func (c Category) String() string {
	switch c {
	case Structural:
		return "structural"
	case Schema:
		return "schema"
	case Reference:
		return "reference"
	case Semantic:
		return "semantic"
	case Financial:
		return "financial"
	default:
		return "unknown"
	}
}

func (c Category) sentinel() error {
	switch c {
	case Structural:
		return ErrStructural
	case Schema:
		return ErrSchema
	case Reference:
		return ErrReference
	case Semantic:
		return ErrSemantic
	case Financial:
		return ErrFinancial
	default:
		return nil
	}
}

// Severity separates defects from advisories.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// Diagnostic is one finding of a validation pass.
type Diagnostic struct {
	Category Category
	Severity Severity
	NodeID   string // empty for graph-level findings
	Msg      string
}

func (d *Diagnostic) Error() string {
	if d == nil {
		return ""
	}
	return d.Msg
}

func (d *Diagnostic) Unwrap() error { return d.Category.sentinel() }

// IsWarning reports whether the diagnostic is advisory.
func (d *Diagnostic) IsWarning() bool { return d.Severity == SeverityWarning }

// Report accumulates diagnostics. The zero value is ready to use.
type Report struct {
	Issues []Diagnostic
}

func (r *Report) add(cat Category, sev Severity, nodeID, msg string) {
	r.Issues = append(r.Issues, Diagnostic{Category: cat, Severity: sev, NodeID: nodeID, Msg: msg})
}

func (r *Report) errorf(cat Category, nodeID, format string, args ...any) {
	r.add(cat, SeverityError, nodeID, fmt.Sprintf(format, args...))
}

func (r *Report) warnf(cat Category, nodeID, format string, args ...any) {
	r.add(cat, SeverityWarning, nodeID, fmt.Sprintf(format, args...))
}

func (r *Report) merge(o Report) {
	r.Issues = append(r.Issues, o.Issues...)
}

// HasErrors reports whether any diagnostic is an error.
func (r Report) HasErrors() bool {
	for i := range r.Issues {
		if !r.Issues[i].IsWarning() {
			return true
		}
	}
	return false
}

// Errors returns the error messages in the order they were found.
func (r Report) Errors() []string {
	out := []string{}
	for i := range r.Issues {
		if !r.Issues[i].IsWarning() {
			out = append(out, r.Issues[i].Msg)
		}
	}
	return out
}

// Warnings returns the warning messages in the order they were found.
func (r Report) Warnings() []string {
	out := []string{}
	for i := range r.Issues {
		if r.Issues[i].IsWarning() {
			out = append(out, r.Issues[i].Msg)
		}
	}
	return out
}

func joinNames(names []string) string {
	return strings.Join(names, ", ")
}

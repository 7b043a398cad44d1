// Package dsl validates strategy graphs against the DSL catalog.
//
// A Validator is immutable once built and holds no per-call state, so one
// value can serve any number of goroutines. Every pass collects all
// diagnostics instead of stopping at the first; only a missing entry node
// cuts connectivity analysis short.
package dsl

import (
	"errors"

	"github.com/algomatic/stratgraph/pkg/catalog"
	"github.com/algomatic/stratgraph/pkg/ir"
)

// DefaultMaxDepth bounds function-call nesting inside one operand.
const DefaultMaxDepth = 32

// Validator checks strategy graphs against a catalog.
type Validator struct {
	cat        *catalog.Catalog
	maxDepth   int
	cycleCheck bool
}

// Option configures a Validator.
type Option func(*Validator)

// WithMaxDepth sets the maximum operand nesting depth. Values below 1 are
// ignored.
func WithMaxDepth(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.maxDepth = n
		}
	}
}

// WithCycleCheck enables or disables cycle rejection. With the check off,
// a back edge is treated like any already-visited node.
func WithCycleCheck(on bool) Option {
	return func(v *Validator) { v.cycleCheck = on }
}

// NewValidator returns a validator bound to cat.
func NewValidator(cat *catalog.Catalog, opts ...Option) *Validator {
	v := &Validator{cat: cat, maxDepth: DefaultMaxDepth, cycleCheck: true}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Catalog returns the catalog the validator checks against.
func (v *Validator) Catalog() *catalog.Catalog { return v.cat }

// Result is the outcome of a full validation pass.
type Result struct {
	IsValid  bool         `json:"isValid"`
	Errors   []string     `json:"errors"`
	Warnings []string     `json:"warnings"`
	Issues   []Diagnostic `json:"-"`
}

// Err returns nil for a valid result, or every error diagnostic joined.
func (r Result) Err() error {
	var errs []error
	for i := range r.Issues {
		if !r.Issues[i].IsWarning() {
			errs = append(errs, &r.Issues[i])
		}
	}
	return errors.Join(errs...)
}

// Validate runs the full pass: basic structure, duplicate ids and every
// node, connectivity from the entry node, and the financial lint. The graph
// is only read.
func (v *Validator) Validate(g *ir.Graph, timeframe string) Result {
	var r Report
	if g == nil {
		g = &ir.Graph{}
	}

	v.checkStructure(g, &r)
	if len(g.Nodes) == 0 {
		return newResult(r)
	}

	ids := g.NodeIDs()
	v.checkIDs(g, &r)
	for _, n := range g.Nodes {
		r.merge(v.ValidateNode(n, ids))
	}

	// An empty entryNode was already reported as structural.
	if g.EntryNode != "" {
		r.merge(v.AnalyzeConnectivity(g))
	}
	v.lint(g, timeframe, &r)

	return newResult(r)
}

// Validate is a convenience wrapper around NewValidator(cat).Validate.
func Validate(cat *catalog.Catalog, g *ir.Graph, timeframe string) Result {
	return NewValidator(cat).Validate(g, timeframe)
}

func (v *Validator) checkStructure(g *ir.Graph, r *Report) {
	if g.Symbol == "" {
		r.errorf(Structural, "", "Missing or invalid symbol")
	}
	if g.EntryNode == "" {
		r.errorf(Structural, "", "Missing or invalid entryNode")
	}
	if len(g.Nodes) == 0 {
		r.errorf(Structural, "", "nodes must be a non-empty array")
	}
}

func (v *Validator) checkIDs(g *ir.Graph, r *Report) {
	counts := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		if n == nil || n.NodeID() == "" {
			r.errorf(Schema, "", "Node at index %d: missing id", i)
			continue
		}
		counts[n.NodeID()]++
	}
	reported := make(map[string]bool)
	for _, n := range g.Nodes {
		if n == nil {
			continue
		}
		id := n.NodeID()
		if counts[id] > 1 && !reported[id] {
			reported[id] = true
			r.errorf(Reference, id, "Duplicate node ID: %s", id)
		}
	}
}

// newResult flattens a report, dropping repeated warnings. The node check
// and the connectivity pass both flag implicit branches.
func newResult(r Report) Result {
	seen := make(map[string]bool)
	issues := make([]Diagnostic, 0, len(r.Issues))
	for _, d := range r.Issues {
		if d.IsWarning() {
			if seen[d.Msg] {
				continue
			}
			seen[d.Msg] = true
		}
		issues = append(issues, d)
	}
	out := Report{Issues: issues}
	errs := out.Errors()
	return Result{
		IsValid:  len(errs) == 0,
		Errors:   errs,
		Warnings: out.Warnings(),
		Issues:   issues,
	}
}

// Package repair rewrites the malformed shapes language models commonly emit
// into canonical strategy graph IR before validation.
//
// Normalize mutates the graph it is given and must own it exclusively for
// the duration of the call; Normalized works on a copy. Every rewrite is
// recorded as a note appended to the graph's warnings. A repaired graph is a
// fixed point: normalizing it again changes nothing and adds no notes.
package repair

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/algomatic/stratgraph/pkg/ir"
)

// Default quantities applied to actions that omit qty.
const (
	DefaultEntryQty = 10
	DefaultExitQty  = 100
)

// Options controls a repair pass.
type Options struct {
	// DefaultSymbol fills an empty graph symbol. It is upper-cased.
	DefaultSymbol string
}

// Normalize repairs g in place and returns the notes it appended to
// g.Warnings, in the order the rewrites were made.
func Normalize(g *ir.Graph, opts Options) []string {
	if g == nil {
		return nil
	}
	n := &normalizer{g: g}

	if g.Symbol == "" && opts.DefaultSymbol != "" {
		g.Symbol = strings.ToUpper(opts.DefaultSymbol)
	}
	for _, node := range g.Nodes {
		if c, ok := node.(*ir.ConditionNode); ok {
			n.condition(c)
		}
	}
	for _, node := range g.Nodes {
		if a, ok := node.(*ir.ActionNode); ok {
			n.action(a)
		}
	}
	return n.notes
}

// Normalized returns a repaired deep copy of g and the notes recorded on it.
// g itself is not modified.
func Normalized(g *ir.Graph, opts Options) (*ir.Graph, []string) {
	c := g.Clone()
	notes := Normalize(c, opts)
	return c, notes
}

type normalizer struct {
	g     *ir.Graph
	notes []string
}

func (n *normalizer) note(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	n.notes = append(n.notes, msg)
	n.g.AddWarning(msg)
}

func (n *normalizer) condition(c *ir.ConditionNode) {
	switch e := c.Expr.(type) {
	case *ir.FuncCallExpr:
		if !e.Incomplete() {
			return
		}
		c.Expr = &ir.BinaryExpr{Op: "==", Left: ir.Number(1), Right: ir.Number(1)}
		n.note("Auto-fixed: Converted incomplete position condition to pass-through (always true). Consider manually specifying position checking logic.")
	case *ir.UnaryExpr:
		c.Expr = &ir.BinaryExpr{Op: "==", Left: e.Operand, Right: ir.Number(0)}
		n.note("Auto-fixed: Converted NOT operator to == 0 comparison")
	}
}

func (n *normalizer) action(a *ir.ActionNode) {
	if a.ActionType == "" {
		return
	}

	if a.Symbol == "" && !symbolExempt(a.ActionType) && n.g.Symbol != "" {
		a.Symbol = n.g.Symbol
		n.note("Auto-fixed: Added symbol %q to %s action", a.Symbol, a.ActionType)
	}

	switch a.ActionType {
	case ir.EnterLong, ir.EnterShort:
		if a.Qty == nil {
			a.Qty = ir.Numeric(DefaultEntryQty)
			a.QtyType = ir.QtyPercentEquity
			n.note("Auto-fixed: Added default qty %d%% equity to %s action", DefaultEntryQty, a.ActionType)
		}
	case ir.ExitLong, ir.ExitShort:
		if a.Qty != nil && !a.Qty.IsNumeric() {
			text := strings.ToUpper(a.Qty.Text)
			pct := ExitPercent(text)
			a.Qty = ir.Numeric(pct)
			n.note("Auto-fixed: Converted string qty %q to numeric %s%%", text, strconv.FormatFloat(pct, 'f', -1, 64))
		}
		if a.Qty == nil {
			a.Qty = ir.Numeric(DefaultExitQty)
		}
		a.QtyType = ir.QtyPercentPosition
	}
}

// symbolExempt reports whether the action applies to no single instrument.
func symbolExempt(k ir.ActionKind) bool {
	return k == ir.NoAction || k == ir.ExitAll || k == ir.CancelOrders
}

// ExitPercent maps a textual exit quantity to a percentage of the position:
// "ALL" and "100%" are 100, "HALF" and "50%" are 50, "<n>%" is n, and
// anything else (including a zero or unparsable percentage) is 100.
func ExitPercent(text string) float64 {
	s := strings.ToUpper(strings.TrimSpace(text))
	switch s {
	case "ALL", "100%":
		return 100
	case "HALF", "50%":
		return 50
	}
	if num, ok := strings.CutSuffix(s, "%"); ok {
		if v := leadingNumber(num); v != 0 {
			return v
		}
	}
	return DefaultExitQty
}

// leadingNumber parses the longest numeric prefix of s, returning 0 when
// there is none.
func leadingNumber(s string) float64 {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) {
		c := s[end]
		if (c >= '0' && c <= '9') || c == '.' || (end == 0 && (c == '-' || c == '+')) {
			end++
			continue
		}
		break
	}
	for ; end > 0; end-- {
		if v, err := strconv.ParseFloat(s[:end], 64); err == nil {
			return v
		}
	}
	return 0
}

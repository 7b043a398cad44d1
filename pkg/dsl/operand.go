package dsl

import (
	"slices"
	"strconv"

	"github.com/algomatic/stratgraph/pkg/ir"
)

// priceIdentifiers are the series the runtime resolves by name. Other
// identifiers are tolerated with a warning.
var priceIdentifiers = []string{"close", "open", "high", "low", "volume"}

// OperandContext locates an operand for diagnostics.
type OperandContext struct {
	NodeID string
	Side   string // "left", "right", "left.args[0]", ...
}

// ValidateOperand checks one operand and, recursively, its arguments.
func (v *Validator) ValidateOperand(op ir.Operand, ctx OperandContext) Report {
	w := operandWalk{v: v, nodeID: ctx.NodeID}
	w.visit(op, ctx.Side, 1)
	return w.r
}

type operandWalk struct {
	v      *Validator
	nodeID string
	r      Report
	// tooDeep stops the whole walk once the depth limit is hit, so a
	// pathological tree produces one diagnostic instead of one per branch.
	tooDeep bool
}

func (w *operandWalk) visit(op ir.Operand, side string, depth int) {
	if w.tooDeep {
		return
	}
	if depth > w.v.maxDepth {
		w.tooDeep = true
		w.r.errorf(Schema, w.nodeID, "Expression %s in node %s: nesting exceeds maximum depth %d", side, w.nodeID, w.v.maxDepth)
		return
	}

	switch o := op.(type) {
	case nil:
		w.r.errorf(Schema, w.nodeID, "Expression %s in node %s: missing operand", side, w.nodeID)
	case *ir.MalformedOperand:
		w.malformed(o, side)
	case *ir.NumberLiteral, *ir.StringLiteral, *ir.BoolLiteral:
		// host type was checked while decoding
	case *ir.Identifier:
		if o.Name == "" {
			w.r.errorf(Schema, w.nodeID, "Expression %s in node %s: identifier must have name", side, w.nodeID)
		} else if !slices.Contains(priceIdentifiers, o.Name) {
			w.r.warnf(Semantic, w.nodeID, "Expression %s in node %s: identifier '%s' may not be recognized", side, w.nodeID, o.Name)
		}
	case *ir.FuncCall:
		w.funcCall(o, side, depth)
	}
}

func (w *operandWalk) malformed(o *ir.MalformedOperand, side string) {
	switch {
	case o.Kind == "":
		w.r.errorf(Schema, w.nodeID, "Expression %s in node %s: missing 'kind' field", side, w.nodeID)
	case !slices.Contains(ir.OperandKinds, o.Kind):
		w.r.errorf(Schema, w.nodeID, "Expression %s in node %s: invalid kind '%s'. Valid: %s", side, w.nodeID, o.Kind, joinNames(ir.OperandKinds))
	default:
		w.r.errorf(Schema, w.nodeID, "Expression %s in node %s: %s", side, w.nodeID, o.Reason)
	}
}

func (w *operandWalk) funcCall(fc *ir.FuncCall, side string, depth int) {
	cat := w.v.cat
	switch {
	case fc.Name == "":
		w.r.errorf(Schema, w.nodeID, "Expression %s in node %s: funcCall must have name", side, w.nodeID)
	case !cat.HasFunction(fc.Name):
		w.r.errorf(Semantic, w.nodeID, "Expression %s in node %s: unknown function '%s'. Valid: %s", side, w.nodeID, fc.Name, joinNames(cat.FunctionNames()))
	default:
		required := cat.FunctionSpec(fc.Name).RequiredArgs()
		if len(fc.Args) < required {
			w.r.errorf(Semantic, w.nodeID, "Function %s in node %s: requires %d args, got %d", fc.Name, w.nodeID, required, len(fc.Args))
		}
		for i, arg := range fc.Args {
			w.visit(arg, argSide(side, i), depth+1)
			if w.tooDeep {
				return
			}
		}
	}

	if off := fc.Offset; off != nil {
		if !cat.IsOffsetUnit(off.Unit) {
			w.r.errorf(Schema, w.nodeID, "Offset in node %s: invalid unit '%s'. Valid: %s", w.nodeID, off.Unit, joinNames(cat.OffsetUnits()))
		}
		if off.Value == nil || *off.Value < 0 {
			w.r.errorf(Schema, w.nodeID, "Offset in node %s: value must be a non-negative number", w.nodeID)
		}
	}
}

func argSide(side string, i int) string {
	return side + ".args[" + strconv.Itoa(i) + "]"
}

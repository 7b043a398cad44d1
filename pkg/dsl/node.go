package dsl

import (
	"github.com/algomatic/stratgraph/pkg/ir"
)

// ValidateBinaryExpr checks a condition's comparison and both operands.
// Diagnostics carry nodeID.
func (v *Validator) ValidateBinaryExpr(e *ir.BinaryExpr, nodeID string) Report {
	var r Report
	switch {
	case e.Op == "":
		r.errorf(Schema, nodeID, "Expression in node %s: missing operator", nodeID)
	case v.cat.IsArithmetic(e.Op):
		r.errorf(Semantic, nodeID, "Expression in node %s: arithmetic operator '%s' cannot be the comparison. Valid: %s", nodeID, e.Op, joinNames(v.cat.ComparisonOperators()))
	case !v.cat.IsComparison(e.Op):
		r.errorf(Semantic, nodeID, "Expression in node %s: invalid comparison operator '%s'. Valid: %s", nodeID, e.Op, joinNames(v.cat.ComparisonOperators()))
	}

	if e.Left == nil {
		r.errorf(Schema, nodeID, "Expression in node %s: missing left operand", nodeID)
	} else {
		r.merge(v.ValidateOperand(e.Left, OperandContext{NodeID: nodeID, Side: "left"}))
	}
	if e.Right == nil {
		r.errorf(Schema, nodeID, "Expression in node %s: missing right operand", nodeID)
	} else {
		r.merge(v.ValidateOperand(e.Right, OperandContext{NodeID: nodeID, Side: "right"}))
	}
	return r
}

// ValidateNode checks one node's shape. ids is the set of node ids in the
// graph, used to resolve successors.
func (v *Validator) ValidateNode(n ir.Node, ids map[string]bool) Report {
	var r Report
	switch n := n.(type) {
	case *ir.ConditionNode:
		v.validateCondition(n, ids, &r)
	case *ir.ActionNode:
		v.validateAction(n, ids, &r)
	case *ir.UnknownNode:
		r.errorf(Schema, n.ID, "Node %s: invalid type '%s', must be 'condition' or 'action'", n.ID, n.Type)
	case nil:
		r.errorf(Schema, "", "Node: missing node")
	}
	return r
}

func (v *Validator) validateCondition(n *ir.ConditionNode, ids map[string]bool, r *Report) {
	switch e := n.Expr.(type) {
	case nil:
		r.errorf(Schema, n.ID, "Condition node %s: missing expression", n.ID)
	case *ir.BinaryExpr:
		r.merge(v.ValidateBinaryExpr(e, n.ID))
	case *ir.UnaryExpr:
		r.errorf(Semantic, n.ID, "Condition node %s: negation operator '%s' is not supported, compare the operand with 0 instead", n.ID, e.Op)
	default:
		kind := e.ExprKind()
		if kind == "" {
			kind = "<missing>"
		}
		r.errorf(Semantic, n.ID, "Condition node %s: expr.kind must be 'binary', got '%s'", n.ID, kind)
	}

	checkSuccessor(r, n.ID, "Condition node", "nextIfTrue", n.NextIfTrue, ids)
	checkSuccessor(r, n.ID, "Condition node", "nextIfFalse", n.NextIfFalse, ids)
	if n.NextIfTrue == "" {
		warnImplicitBranch(r, n.ID, "nextIfTrue")
	}
	if n.NextIfFalse == "" {
		warnImplicitBranch(r, n.ID, "nextIfFalse")
	}
}

func (v *Validator) validateAction(n *ir.ActionNode, ids map[string]bool, r *Report) {
	defer checkSuccessor(r, n.ID, "Action node", "next", n.Next, ids)

	if n.ActionType == "" {
		r.errorf(Schema, n.ID, "Action node %s: missing actionType", n.ID)
		return
	}
	if !v.cat.HasAction(string(n.ActionType)) {
		r.errorf(Semantic, n.ID, "Action node %s: unsupported actionType '%s'. Valid: %s", n.ID, n.ActionType, joinNames(v.cat.ActionNames()))
		return
	}

	if needsSymbol(n.ActionType) && n.Symbol == "" {
		r.warnf(Schema, n.ID, "Action node %s: %s should have a symbol (will use top-level symbol)", n.ID, n.ActionType)
	}

	switch {
	case n.Qty == nil:
		if n.ActionType.IsEntry() {
			r.errorf(Semantic, n.ID, "Action node %s: %s requires qty", n.ID, n.ActionType)
		}
	case !n.Qty.IsNumeric():
		r.errorf(Schema, n.ID, "Action node %s: qty must be a number, got %s", n.ID, n.Qty)
	}
	if n.Qty != nil && n.QtyType != "" && !v.cat.IsQtyKind(string(n.QtyType)) {
		r.errorf(Schema, n.ID, "Action node %s: qtyType must be one of [%s], got '%s'", n.ID, joinNames(v.cat.QtyKinds()), n.QtyType)
	}

	switch n.ActionType {
	case ir.SetStop:
		if !n.HasParam("stop_price") {
			r.warnf(Schema, n.ID, "Action node %s: SET_STOP should have params.stop_price", n.ID)
		}
	case ir.SetTrailingStop:
		if !n.HasParam("trail_percent") {
			r.warnf(Schema, n.ID, "Action node %s: SET_TRAILING_STOP should have params.trail_percent", n.ID)
		}
	case ir.SetTakeProfit:
		if !n.HasParam("take_profit_price") {
			r.warnf(Schema, n.ID, "Action node %s: SET_TAKE_PROFIT should have params.take_profit_price", n.ID)
		}
	}
}

// needsSymbol reports whether the action addresses a specific instrument.
func needsSymbol(k ir.ActionKind) bool {
	switch k {
	case ir.EnterLong, ir.EnterShort, ir.ExitLong, ir.ExitShort,
		ir.SetStop, ir.SetTrailingStop, ir.SetTakeProfit, ir.CancelOrders:
		return true
	}
	return false
}

func checkSuccessor(r *Report, id, what, field, target string, ids map[string]bool) {
	if target != "" && !ids[target] {
		r.errorf(Reference, id, "%s %s: %s points to non-existent node '%s'", what, id, field, target)
	}
}

func warnImplicitBranch(r *Report, id, field string) {
	r.warnf(Financial, id, "Condition node %s: no explicit %s (implicit branch treated as no trade)", id, field)
}

package ir

// WalkOperands visits every operand reachable from e, parents before their
// arguments, together with its nesting depth (1 for the operands of the
// expression itself). The walk uses an explicit stack, so arbitrarily deep
// input cannot exhaust the goroutine stack. Returning false from fn skips
// the operand's arguments.
func WalkOperands(e Expr, fn func(o Operand, depth int) bool) {
	type item struct {
		op    Operand
		depth int
	}
	var stack []item
	push := func(o Operand, depth int) {
		if o != nil {
			stack = append(stack, item{o, depth})
		}
	}
	switch e := e.(type) {
	case *BinaryExpr:
		push(e.Right, 1)
		push(e.Left, 1)
	case *FuncCallExpr:
		push(&e.Call, 1)
	case *UnaryExpr:
		push(e.Operand, 1)
	}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(it.op, it.depth) {
			continue
		}
		if fc, ok := it.op.(*FuncCall); ok {
			for i := len(fc.Args) - 1; i >= 0; i-- {
				push(fc.Args[i], it.depth+1)
			}
		}
	}
}

// FuncCalls returns every function call in e at any nesting depth, in
// source order.
func FuncCalls(e Expr) []*FuncCall {
	var calls []*FuncCall
	WalkOperands(e, func(o Operand, _ int) bool {
		if fc, ok := o.(*FuncCall); ok {
			calls = append(calls, fc)
		}
		return true
	})
	return calls
}

// FuncCalls returns every function call used by the graph's condition
// nodes, in node order.
func (g *Graph) FuncCalls() []*FuncCall {
	var calls []*FuncCall
	for _, n := range g.Nodes {
		if c, ok := n.(*ConditionNode); ok {
			calls = append(calls, FuncCalls(c.Expr)...)
		}
	}
	return calls
}

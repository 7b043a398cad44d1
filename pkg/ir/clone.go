package ir

import "encoding/json"

// Clone returns a deep copy of the graph. Params values are copied
// recursively for the JSON value shapes (maps, slices, scalars).
func (g *Graph) Clone() *Graph {
	if g == nil {
		return nil
	}
	c := &Graph{
		Symbol:         g.Symbol,
		EntryNode:      g.EntryNode,
		Warnings:       append([]string(nil), g.Warnings...),
		SuggestedEdits: append([]string(nil), g.SuggestedEdits...),
	}
	if g.Nodes != nil {
		c.Nodes = make([]Node, len(g.Nodes))
		for i, n := range g.Nodes {
			c.Nodes[i] = CloneNode(n)
		}
	}
	return c
}

// CloneNode returns a deep copy of n.
func CloneNode(n Node) Node {
	switch n := n.(type) {
	case *ConditionNode:
		c := *n
		c.Expr = CloneExpr(n.Expr)
		return &c
	case *ActionNode:
		c := *n
		if n.Qty != nil {
			q := *n.Qty
			c.Qty = &q
		}
		if n.Params != nil {
			c.Params = cloneValue(n.Params).(map[string]any)
		}
		return &c
	case *UnknownNode:
		c := *n
		c.Raw = cloneRaw(n.Raw)
		return &c
	default:
		return nil
	}
}

// CloneExpr returns a deep copy of e.
func CloneExpr(e Expr) Expr {
	switch e := e.(type) {
	case *BinaryExpr:
		return &BinaryExpr{Op: e.Op, Left: CloneOperand(e.Left), Right: CloneOperand(e.Right)}
	case *FuncCallExpr:
		return &FuncCallExpr{Call: *CloneOperand(&e.Call).(*FuncCall)}
	case *UnaryExpr:
		return &UnaryExpr{Kind: e.Kind, Op: e.Op, Operand: CloneOperand(e.Operand)}
	case *UnknownExpr:
		return &UnknownExpr{Kind: e.Kind, Raw: cloneRaw(e.Raw)}
	default:
		return nil
	}
}

// CloneOperand returns a deep copy of o.
func CloneOperand(o Operand) Operand {
	switch o := o.(type) {
	case *NumberLiteral:
		c := *o
		return &c
	case *StringLiteral:
		c := *o
		return &c
	case *BoolLiteral:
		c := *o
		return &c
	case *Identifier:
		c := *o
		return &c
	case *FuncCall:
		c := &FuncCall{Name: o.Name}
		if o.Args != nil {
			c.Args = make([]Operand, len(o.Args))
			for i, a := range o.Args {
				c.Args[i] = CloneOperand(a)
			}
		}
		if o.Offset != nil {
			off := Offset{Unit: o.Offset.Unit}
			if o.Offset.Value != nil {
				v := *o.Offset.Value
				off.Value = &v
			}
			c.Offset = &off
		}
		return c
	case *MalformedOperand:
		return &MalformedOperand{Kind: o.Kind, Reason: o.Reason, Raw: cloneRaw(o.Raw)}
	default:
		return nil
	}
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(v))
		for k, e := range v {
			m[k] = cloneValue(e)
		}
		return m
	case []any:
		s := make([]any, len(v))
		for i, e := range v {
			s[i] = cloneValue(e)
		}
		return s
	default:
		return v
	}
}

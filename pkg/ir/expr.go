package ir

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Expr is the expression held by a condition node. Only *BinaryExpr is
// valid; the other variants preserve malformed model output so the repair
// pass can rewrite it and the validator can report it.
type Expr interface {
	ExprKind() string
	String() string
	isExpr()
}

// BinaryExpr is a comparison between two operands. Left or Right is nil
// when the model omitted it.
type BinaryExpr struct {
	Op    string
	Left  Operand
	Right Operand
}

func (*BinaryExpr) ExprKind() string { return KindBinary }
func (*BinaryExpr) isExpr()          {}

func (e *BinaryExpr) String() string {
	return operandString(e.Left) + " " + e.Op + " " + operandString(e.Right)
}

// FuncCallExpr is a bare function call used as a whole condition. The DSL
// reserves funcCall for operands, so this is always malformed.
type FuncCallExpr struct {
	Call FuncCall
}

func (*FuncCallExpr) ExprKind() string { return KindFuncCall }
func (*FuncCallExpr) isExpr()          {}

func (e *FuncCallExpr) String() string { return e.Call.String() }

// Incomplete reports whether the call lacks a name or an args array, the
// model's most common truncated-output shape.
func (e *FuncCallExpr) Incomplete() bool {
	return e.Call.Name == "" || e.Call.Args == nil
}

// UnaryExpr is a logical negation ("!", "NOT", "not"), which the DSL does
// not support directly.
type UnaryExpr struct {
	Kind    string
	Op      string
	Operand Operand
}

func (e *UnaryExpr) ExprKind() string { return e.Kind }
func (*UnaryExpr) isExpr()            {}

func (e *UnaryExpr) String() string {
	return e.Op + " " + operandString(e.Operand)
}

// IsNegation reports whether op is one of the negation spellings the model
// produces.
func IsNegation(op string) bool {
	return op == "!" || op == "NOT" || op == "not"
}

// UnknownExpr keeps any other expression shape.
type UnknownExpr struct {
	Kind string
	Raw  json.RawMessage
}

func (e *UnknownExpr) ExprKind() string { return e.Kind }
func (*UnknownExpr) isExpr()            {}
func (e *UnknownExpr) String() string   { return "?" }

// Operand is a value inside a comparison.
type Operand interface {
	OperandKind() string
	String() string
	isOperand()
}

// NumberLiteral is a numeric constant.
type NumberLiteral struct {
	Value float64
}

func (*NumberLiteral) OperandKind() string { return KindNumberLiteral }
func (*NumberLiteral) isOperand()          {}
func (o *NumberLiteral) String() string    { return strconv.FormatFloat(o.Value, 'f', -1, 64) }

// Number returns a number literal operand.
func Number(v float64) *NumberLiteral { return &NumberLiteral{Value: v} }

// StringLiteral is a string constant such as a session time.
type StringLiteral struct {
	Value string
}

func (*StringLiteral) OperandKind() string { return KindStringLiteral }
func (*StringLiteral) isOperand()          {}
func (o *StringLiteral) String() string    { return strconv.Quote(o.Value) }

// BoolLiteral is a boolean constant.
type BoolLiteral struct {
	Value bool
}

func (*BoolLiteral) OperandKind() string { return KindBoolLiteral }
func (*BoolLiteral) isOperand()          {}
func (o *BoolLiteral) String() string    { return strconv.FormatBool(o.Value) }

// Identifier names a runtime-resolved series such as close or volume.
type Identifier struct {
	Name string
}

func (*Identifier) OperandKind() string { return KindIdentifier }
func (*Identifier) isOperand()          {}
func (o *Identifier) String() string    { return o.Name }

// FuncCall invokes a catalog function. Args is nil when the model sent no
// args array at all, and non-nil (possibly empty) when it sent one.
type FuncCall struct {
	Name   string
	Args   []Operand
	Offset *Offset
}

func (*FuncCall) OperandKind() string { return KindFuncCall }
func (*FuncCall) isOperand()          {}

func (o *FuncCall) String() string {
	var b strings.Builder
	b.WriteString(o.Name)
	b.WriteByte('(')
	for i, a := range o.Args {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(operandString(a))
	}
	b.WriteByte(')')
	if o.Offset != nil {
		b.WriteByte('[')
		if o.Offset.Value != nil {
			b.WriteString(strconv.FormatFloat(*o.Offset.Value, 'f', -1, 64))
		} else {
			b.WriteByte('?')
		}
		b.WriteByte(' ')
		b.WriteString(o.Offset.Unit)
		b.WriteByte(']')
	}
	return b.String()
}

// Offset evaluates a function call Value units in the past. Value is nil
// when the model sent something other than a number.
type Offset struct {
	Unit  string
	Value *float64
}

// MalformedOperand carries a wire defect (missing or unknown kind, value of
// the wrong type) through to validation.
type MalformedOperand struct {
	Kind   string
	Reason string
	Raw    json.RawMessage
}

func (o *MalformedOperand) OperandKind() string { return o.Kind }
func (*MalformedOperand) isOperand()            {}
func (*MalformedOperand) String() string        { return "?" }

func operandString(o Operand) string {
	if o == nil {
		return "?"
	}
	return o.String()
}

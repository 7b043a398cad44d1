package ir

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotObject is returned when the document is valid JSON but its top level
// is not an object.
var ErrNotObject = errors.New("strategy graph must be a JSON object")

// ParseGraph decodes a strategy graph from its wire form. Only input that is
// not JSON, or whose top level is not an object, fails; every other defect is
// kept in the returned graph for the validator to report.
func ParseGraph(data []byte) (*Graph, error) {
	var g Graph
	if err := g.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return &g, nil
}

type wireGraph struct {
	Symbol         string   `json:"symbol"`
	EntryNode      string   `json:"entryNode"`
	Nodes          []Node   `json:"nodes"`
	Warnings       []string `json:"warnings,omitempty"`
	SuggestedEdits []string `json:"suggestedEdits,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (g *Graph) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireGraph{
		Symbol:         g.Symbol,
		EntryNode:      g.EntryNode,
		Nodes:          g.Nodes,
		Warnings:       g.Warnings,
		SuggestedEdits: g.SuggestedEdits,
	})
}

// UnmarshalJSON implements json.Unmarshaler with tolerant decoding.
func (g *Graph) UnmarshalJSON(data []byte) error {
	fields, err := decodeObject(data)
	if err != nil {
		return err
	}
	*g = Graph{
		Symbol:         rawString(fields["symbol"]),
		EntryNode:      rawString(fields["entryNode"]),
		Warnings:       rawStrings(fields["warnings"]),
		SuggestedEdits: rawStrings(fields["suggestedEdits"]),
	}
	if elems, ok := rawArray(fields["nodes"]); ok {
		g.Nodes = DecodeNodes(elems)
	}
	return nil
}

// DecodeNodes decodes a list of raw node documents. Callers that receive
// nodes outside of a full graph (an edit request, for example) use it to get
// the same tolerant handling as ParseGraph. The result is never nil.
func DecodeNodes(elems []json.RawMessage) []Node {
	nodes := make([]Node, 0, len(elems))
	for _, raw := range elems {
		nodes = append(nodes, decodeNode(raw))
	}
	return nodes
}

func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode strategy graph: %w", err)
	}
	if _, ok := v.(map[string]any); !ok {
		return nil, ErrNotObject
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decode strategy graph: %w", err)
	}
	return fields, nil
}

// ---------------------------------------------------------------------------
// Nodes
// ---------------------------------------------------------------------------

func decodeNode(raw json.RawMessage) Node {
	fields, ok := rawObject(raw)
	if !ok {
		return &UnknownNode{Raw: raw}
	}
	id := rawString(fields["id"])
	switch typ := rawString(fields["type"]); typ {
	case TypeCondition:
		n := &ConditionNode{
			ID:          id,
			NextIfTrue:  rawString(fields["nextIfTrue"]),
			NextIfFalse: rawString(fields["nextIfFalse"]),
		}
		if e, ok := fields["expr"]; ok && !isNull(e) {
			n.Expr = decodeExpr(e)
		}
		return n
	case TypeAction:
		n := &ActionNode{
			ID:         id,
			ActionType: ActionKind(rawString(fields["actionType"])),
			Symbol:     rawString(fields["symbol"]),
			Qty:        decodeQuantity(fields["qty"]),
			QtyType:    QtyKind(rawString(fields["qtyType"])),
			Next:       rawString(fields["next"]),
		}
		if n.QtyType == "" {
			n.QtyType = QtyKind(rawString(fields["qty_type"]))
		}
		if p, ok := fields["params"]; ok && !isNull(p) {
			var params map[string]any
			if json.Unmarshal(p, &params) == nil {
				n.Params = params
			}
		}
		return n
	default:
		return &UnknownNode{ID: id, Type: typ, Raw: raw}
	}
}

func decodeQuantity(raw json.RawMessage) *Quantity {
	if raw == nil || isNull(raw) {
		return nil
	}
	if v, ok := rawNumber(raw); ok {
		return Numeric(v)
	}
	if s, ok := rawStringOK(raw); ok {
		if s == "" {
			return nil
		}
		return &Quantity{Text: s}
	}
	return nil
}

type wireCondition struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	Expr        Expr    `json:"expr"`
	NextIfTrue  *string `json:"nextIfTrue"`
	NextIfFalse *string `json:"nextIfFalse"`
}

// MarshalJSON implements json.Marshaler. Absent successors encode as null.
func (n *ConditionNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireCondition{
		ID:          n.ID,
		Type:        TypeCondition,
		Expr:        n.Expr,
		NextIfTrue:  ref(n.NextIfTrue),
		NextIfFalse: ref(n.NextIfFalse),
	})
}

type wireAction struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	ActionType ActionKind     `json:"actionType"`
	Symbol     string         `json:"symbol,omitempty"`
	Qty        *Quantity      `json:"qty,omitempty"`
	QtyType    QtyKind        `json:"qtyType,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
	Next       *string        `json:"next"`
}

// MarshalJSON implements json.Marshaler.
func (n *ActionNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireAction{
		ID:         n.ID,
		Type:       TypeAction,
		ActionType: n.ActionType,
		Symbol:     n.Symbol,
		Qty:        n.Qty,
		QtyType:    n.QtyType,
		Params:     n.Params,
		Next:       ref(n.Next),
	})
}

// MarshalJSON re-emits the node exactly as it was received.
func (n *UnknownNode) MarshalJSON() ([]byte, error) {
	if len(n.Raw) > 0 {
		return n.Raw, nil
	}
	return json.Marshal(map[string]string{"id": n.ID, "type": n.Type})
}

// MarshalJSON implements json.Marshaler.
func (q *Quantity) MarshalJSON() ([]byte, error) {
	if q.Text != "" {
		return json.Marshal(q.Text)
	}
	return json.Marshal(q.Value)
}

func ref(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func decodeExpr(raw json.RawMessage) Expr {
	fields, ok := rawObject(raw)
	if !ok {
		return &UnknownExpr{Raw: raw}
	}
	kind := rawString(fields["kind"])
	op := rawString(fields["op"])
	switch {
	case kind == KindFuncCall:
		return &FuncCallExpr{Call: *decodeFuncCall(fields)}
	case IsNegation(op):
		u := &UnaryExpr{Kind: kind, Op: op}
		if r, ok := fields["right"]; ok && !isNull(r) {
			u.Operand = decodeOperand(r)
		} else if l, ok := fields["left"]; ok && !isNull(l) {
			u.Operand = decodeOperand(l)
		}
		return u
	case kind == KindBinary:
		e := &BinaryExpr{Op: op}
		if l, ok := fields["left"]; ok && !isNull(l) {
			e.Left = decodeOperand(l)
		}
		if r, ok := fields["right"]; ok && !isNull(r) {
			e.Right = decodeOperand(r)
		}
		return e
	default:
		return &UnknownExpr{Kind: kind, Raw: raw}
	}
}

type wireBinary struct {
	Kind  string  `json:"kind"`
	Op    string  `json:"op"`
	Left  Operand `json:"left"`
	Right Operand `json:"right"`
}

// MarshalJSON implements json.Marshaler.
func (e *BinaryExpr) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireBinary{Kind: KindBinary, Op: e.Op, Left: e.Left, Right: e.Right})
}

// MarshalJSON implements json.Marshaler.
func (e *FuncCallExpr) MarshalJSON() ([]byte, error) {
	return e.Call.MarshalJSON()
}

// MarshalJSON implements json.Marshaler.
func (e *UnaryExpr) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind  string  `json:"kind,omitempty"`
		Op    string  `json:"op"`
		Right Operand `json:"right"`
	}{e.Kind, e.Op, e.Operand})
}

// MarshalJSON re-emits the expression exactly as it was received.
func (e *UnknownExpr) MarshalJSON() ([]byte, error) {
	if len(e.Raw) > 0 {
		return e.Raw, nil
	}
	return json.Marshal(map[string]string{"kind": e.Kind})
}

// ---------------------------------------------------------------------------
// Operands
// ---------------------------------------------------------------------------

func decodeOperand(raw json.RawMessage) Operand {
	fields, ok := rawObject(raw)
	if !ok {
		return &MalformedOperand{Reason: "operand must be an object", Raw: raw}
	}
	kindRaw, ok := fields["kind"]
	kind, isStr := rawStringOK(kindRaw)
	if !ok || !isStr || kind == "" {
		return &MalformedOperand{Reason: "missing 'kind' field", Raw: raw}
	}
	value := fields["value"]
	switch kind {
	case KindNumberLiteral:
		if v, ok := rawNumber(value); ok {
			return &NumberLiteral{Value: v}
		}
		return &MalformedOperand{Kind: kind, Reason: "numberLiteral must have numeric value", Raw: raw}
	case KindStringLiteral:
		if v, ok := rawStringOK(value); ok {
			return &StringLiteral{Value: v}
		}
		return &MalformedOperand{Kind: kind, Reason: "stringLiteral must have string value", Raw: raw}
	case KindBoolLiteral:
		var v bool
		if value != nil && json.Unmarshal(value, &v) == nil && !isNull(value) {
			return &BoolLiteral{Value: v}
		}
		return &MalformedOperand{Kind: kind, Reason: "boolLiteral must have boolean value", Raw: raw}
	case KindIdentifier:
		return &Identifier{Name: rawString(fields["name"])}
	case KindFuncCall:
		return decodeFuncCall(fields)
	default:
		return &MalformedOperand{Kind: kind, Reason: fmt.Sprintf("invalid kind '%s'", kind), Raw: raw}
	}
}

func decodeFuncCall(fields map[string]json.RawMessage) *FuncCall {
	fc := &FuncCall{Name: rawString(fields["name"])}
	if elems, ok := rawArray(fields["args"]); ok {
		fc.Args = make([]Operand, 0, len(elems))
		for _, a := range elems {
			fc.Args = append(fc.Args, decodeOperand(a))
		}
	}
	if raw, ok := fields["offset"]; ok && !isNull(raw) {
		off := &Offset{}
		if of, ok := rawObject(raw); ok {
			off.Unit = rawString(of["unit"])
			if v, ok := rawNumber(of["value"]); ok {
				off.Value = &v
			}
		}
		fc.Offset = off
	}
	return fc
}

type wireFuncCall struct {
	Kind   string    `json:"kind"`
	Name   string    `json:"name"`
	Args   []Operand `json:"args"`
	Offset *Offset   `json:"offset,omitempty"`
}

// MarshalJSON implements json.Marshaler. A nil Args slice encodes as null so
// that an incomplete call survives a round trip.
func (o *FuncCall) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireFuncCall{Kind: KindFuncCall, Name: o.Name, Args: o.Args, Offset: o.Offset})
}

// MarshalJSON implements json.Marshaler.
func (o *Offset) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Unit  string   `json:"unit"`
		Value *float64 `json:"value"`
	}{o.Unit, o.Value})
}

type wireLiteral struct {
	Kind  string `json:"kind"`
	Value any    `json:"value"`
}

// MarshalJSON implements json.Marshaler.
func (o *NumberLiteral) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireLiteral{KindNumberLiteral, o.Value})
}

// MarshalJSON implements json.Marshaler.
func (o *StringLiteral) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireLiteral{KindStringLiteral, o.Value})
}

// MarshalJSON implements json.Marshaler.
func (o *BoolLiteral) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireLiteral{KindBoolLiteral, o.Value})
}

// MarshalJSON implements json.Marshaler.
func (o *Identifier) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind string `json:"kind"`
		Name string `json:"name"`
	}{KindIdentifier, o.Name})
}

// MarshalJSON re-emits the operand exactly as it was received.
func (o *MalformedOperand) MarshalJSON() ([]byte, error) {
	if len(o.Raw) > 0 {
		return o.Raw, nil
	}
	return []byte("null"), nil
}

// ---------------------------------------------------------------------------
// Raw value helpers
// ---------------------------------------------------------------------------

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func rawObject(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	t := bytes.TrimSpace(raw)
	if len(t) == 0 || t[0] != '{' {
		return nil, false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(t, &m); err != nil {
		return nil, false
	}
	return m, true
}

func rawArray(raw json.RawMessage) ([]json.RawMessage, bool) {
	t := bytes.TrimSpace(raw)
	if len(t) == 0 || t[0] != '[' {
		return nil, false
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(t, &elems); err != nil {
		return nil, false
	}
	return elems, true
}

func rawStringOK(raw json.RawMessage) (string, bool) {
	t := bytes.TrimSpace(raw)
	if len(t) == 0 || t[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(t, &s); err != nil {
		return "", false
	}
	return s, true
}

// rawString returns the string value of raw, or "" for anything that is not
// a JSON string.
func rawString(raw json.RawMessage) string {
	s, _ := rawStringOK(raw)
	return s
}

func rawNumber(raw json.RawMessage) (float64, bool) {
	t := bytes.TrimSpace(raw)
	if len(t) == 0 || (t[0] != '-' && (t[0] < '0' || t[0] > '9')) {
		return 0, false
	}
	var v float64
	if err := json.Unmarshal(t, &v); err != nil {
		return 0, false
	}
	return v, true
}

func rawStrings(raw json.RawMessage) []string {
	elems, ok := rawArray(raw)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(elems))
	for _, e := range elems {
		if s, ok := rawStringOK(e); ok {
			out = append(out, s)
		}
	}
	return out
}

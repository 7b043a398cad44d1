// Package catalog holds the strategy DSL catalog: the functions, actions,
// operators, offset units and quantity kinds a strategy graph may use,
// each with its argument schema.
//
// A Catalog is built once (Load, LoadFile or Default) and never modified
// afterwards, so a single value is shared by reference between any number
// of concurrent validations without locking.
package catalog

import (
	"slices"
)

// ArgSpec describes one argument of a function or action.
type ArgSpec struct {
	Name          string   `yaml:"name" json:"name"`
	Type          string   `yaml:"type" json:"type"`
	AllowedValues []string `yaml:"allowed_values,omitempty" json:"allowedValues,omitempty"`
	Min           *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max           *float64 `yaml:"max,omitempty" json:"max,omitempty"`
	Default       any      `yaml:"default,omitempty" json:"default,omitempty"`
}

// Required reports whether the argument has no default.
func (a ArgSpec) Required() bool {
	return a.Default == nil
}

// FunctionSpec is a catalog function.
type FunctionSpec struct {
	Name        string    `yaml:"name" json:"name"`
	Category    string    `yaml:"category" json:"category"`
	Description string    `yaml:"description" json:"description"`
	Args        []ArgSpec `yaml:"args" json:"args"`
	ReturnType  string    `yaml:"return_type" json:"returnType"`
}

// RequiredArgs returns the number of arguments without a default.
func (f *FunctionSpec) RequiredArgs() int {
	n := 0
	for _, a := range f.Args {
		if a.Required() {
			n++
		}
	}
	return n
}

// ActionSpec is a catalog action.
type ActionSpec struct {
	Name        string    `yaml:"name" json:"name"`
	Description string    `yaml:"description" json:"description"`
	Args        []ArgSpec `yaml:"args" json:"args"`
}

// Operators groups the operator tables.
type Operators struct {
	Arithmetic []string `yaml:"arithmetic" json:"arithmetic"`
	Comparison []string `yaml:"comparison" json:"comparison"`
}

// Catalog is the loaded DSL catalog. All slices returned by its methods are
// copies; the catalog itself is read-only.
type Catalog struct {
	version     string
	description string
	types       []string
	operators   Operators
	offsetUnits []string
	qtyKinds    []string
	timeframes  []string

	functions []FunctionSpec
	actions   []ActionSpec
	fnIndex   map[string]int
	actIndex  map[string]int
}

// Version returns the catalog version string.
func (c *Catalog) Version() string { return c.version }

// Description returns the catalog's prose description of the DSL.
func (c *Catalog) Description() string { return c.description }

// Types returns the DSL data types.
func (c *Catalog) Types() []string { return slices.Clone(c.types) }

// FunctionNames returns every function name in catalog order.
func (c *Catalog) FunctionNames() []string {
	names := make([]string, len(c.functions))
	for i, f := range c.functions {
		names[i] = f.Name
	}
	return names
}

// ActionNames returns every action name in catalog order.
func (c *Catalog) ActionNames() []string {
	names := make([]string, len(c.actions))
	for i, a := range c.actions {
		names[i] = a.Name
	}
	return names
}

// Functions returns every function spec in catalog order.
func (c *Catalog) Functions() []FunctionSpec { return slices.Clone(c.functions) }

// Actions returns every action spec in catalog order.
func (c *Catalog) Actions() []ActionSpec { return slices.Clone(c.actions) }

// FunctionSpec returns the named function, or nil.
func (c *Catalog) FunctionSpec(name string) *FunctionSpec {
	i, ok := c.fnIndex[name]
	if !ok {
		return nil
	}
	f := c.functions[i]
	return &f
}

// ActionSpec returns the named action, or nil.
func (c *Catalog) ActionSpec(name string) *ActionSpec {
	i, ok := c.actIndex[name]
	if !ok {
		return nil
	}
	a := c.actions[i]
	return &a
}

// HasFunction reports whether name is a catalog function.
func (c *Catalog) HasFunction(name string) bool {
	_, ok := c.fnIndex[name]
	return ok
}

// HasAction reports whether name is a catalog action.
func (c *Catalog) HasAction(name string) bool {
	_, ok := c.actIndex[name]
	return ok
}

// ComparisonOperators returns the comparison operators.
func (c *Catalog) ComparisonOperators() []string { return slices.Clone(c.operators.Comparison) }

// ArithmeticOperators returns the arithmetic operators.
func (c *Catalog) ArithmeticOperators() []string { return slices.Clone(c.operators.Arithmetic) }

// IsComparison reports whether op is a comparison operator.
func (c *Catalog) IsComparison(op string) bool { return slices.Contains(c.operators.Comparison, op) }

// IsArithmetic reports whether op is an arithmetic operator.
func (c *Catalog) IsArithmetic(op string) bool { return slices.Contains(c.operators.Arithmetic, op) }

// OffsetUnits returns the allowed offset units.
func (c *Catalog) OffsetUnits() []string { return slices.Clone(c.offsetUnits) }

// IsOffsetUnit reports whether unit is an allowed offset unit.
func (c *Catalog) IsOffsetUnit(unit string) bool { return slices.Contains(c.offsetUnits, unit) }

// QtyKinds returns the allowed quantity kinds.
func (c *Catalog) QtyKinds() []string { return slices.Clone(c.qtyKinds) }

// IsQtyKind reports whether kind is an allowed quantity kind.
func (c *Catalog) IsQtyKind(kind string) bool { return slices.Contains(c.qtyKinds, kind) }

// Timeframes returns the supported bar timeframes.
func (c *Catalog) Timeframes() []string { return slices.Clone(c.timeframes) }

// IsTimeframe reports whether tf is a supported timeframe.
func (c *Catalog) IsTimeframe(tf string) bool { return slices.Contains(c.timeframes, tf) }

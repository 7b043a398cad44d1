// Package prompt renders the instructions sent to the language model that
// turns a natural-language trading strategy into a strategy graph.
//
// The system prompt is generated from the catalog, so the model is only
// ever told about functions and actions the validator will accept.
package prompt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/algomatic/stratgraph/pkg/catalog"
)

// Version identifies the prompt text for a catalog. It is recorded with
// every interpreted strategy.
func Version(cat *catalog.Catalog) string {
	return "dsl-v" + cat.Version()
}

// System returns the system prompt for cat.
func System(cat *catalog.Catalog) string {
	var b strings.Builder

	b.WriteString(preamble)
	fmt.Fprintf(&b, "\n## DSL SPECIFICATION v%s:\n%s\n\n", cat.Version(), cat.Description())
	fmt.Fprintf(&b, "### DATA TYPES:\n%s\n", strings.Join(cat.Types(), ", "))
	writeOperators(&b, cat)
	writeFunctions(&b, cat)
	writeActions(&b, cat)
	fmt.Fprintf(&b, "\n### QUANTITY TYPES:\n%s\n", strings.Join(cat.QtyKinds(), ", "))
	b.WriteString(outputFormat)

	return b.String()
}

// User returns the per-request prompt for a strategy description.
func User(query, symbol, timeframe string) string {
	return fmt.Sprintf(`
User Strategy Query: %q

Context:
- Symbol: %s
- Timeframe: %s
- Goal: Convert this natural language strategy into a structured graph of condition and action nodes

Please analyze the user's strategy and return a valid JSON graph structure following the format specified in the system prompt.
If the strategy is ambiguous, make reasonable assumptions for a retail trader and note them in warnings.
`, query, symbol, timeframe)
}

func writeOperators(b *strings.Builder, cat *catalog.Catalog) {
	fmt.Fprintf(b, `
### OPERATORS:
- Arithmetic: %s
- Comparison: %s

### OFFSETS (for time-series lookback):
- Units: %s
- Syntax: Use "offset" field with {unit: "bars|days|...", value: N}
- Example: {"kind": "funcCall", "name": "rsi", "args": [...], "offset": {"unit": "bars", "value": 1}}
`,
		strings.Join(cat.ArithmeticOperators(), ", "),
		strings.Join(cat.ComparisonOperators(), ", "),
		strings.Join(cat.OffsetUnits(), ", "),
	)
}

// writeFunctions lists functions grouped by category, categories in order
// of first appearance.
func writeFunctions(b *strings.Builder, cat *catalog.Catalog) {
	var order []string
	groups := make(map[string][]catalog.FunctionSpec)
	for _, f := range cat.Functions() {
		if _, seen := groups[f.Category]; !seen {
			order = append(order, f.Category)
		}
		groups[f.Category] = append(groups[f.Category], f)
	}

	for _, category := range order {
		fmt.Fprintf(b, "\n### %s FUNCTIONS:\n", strings.ToUpper(category))
		for _, f := range groups[category] {
			fmt.Fprintf(b, "- %s(%s) → %s\n  %s\n", f.Name, formatArgs(f.Args, true), f.ReturnType, f.Description)
		}
	}
}

func writeActions(b *strings.Builder, cat *catalog.Catalog) {
	b.WriteString("\n### SUPPORTED ACTIONS:\n")
	for _, a := range cat.Actions() {
		fmt.Fprintf(b, "- %s(%s)\n  %s\n", a.Name, formatArgs(a.Args, false), a.Description)
	}
}

func formatArgs(args []catalog.ArgSpec, withBounds bool) string {
	parts := make([]string, len(args))
	for i, a := range args {
		s := a.Name + ": " + a.Type
		if len(a.AllowedValues) > 0 {
			s += " [" + strings.Join(a.AllowedValues, "|") + "]"
		}
		if withBounds && (a.Min != nil || a.Max != nil) {
			lo, hi := "0", "∞"
			if a.Min != nil {
				lo = formatFloat(*a.Min)
			}
			if a.Max != nil {
				hi = formatFloat(*a.Max)
			}
			s += " (" + lo + "-" + hi + ")"
		}
		if a.Default != nil {
			s += fmt.Sprintf(" default=%v", a.Default)
		}
		parts[i] = s
	}
	return strings.Join(parts, ", ")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

const preamble = `You are an expert algorithmic trading strategy interpreter. Your job is to convert natural language trading strategies into a structured graph representation.

## CRITICAL CONSTRAINTS - READ CAREFULLY:
1. You MUST ONLY use functions and actions from the DSL SPECIFICATION below
2. Do NOT invent or use any function/action not listed in the spec
3. Each condition node must contain EXACTLY ONE comparison (left op right)
4. Do NOT use AND/OR inside expr. To express "A AND B", create two condition nodes and connect with nextIfTrue
5. Every path in the graph MUST terminate in an action node
6. Return ONLY valid JSON, no markdown code fences, no explanation text
7. Financial accuracy is critical - these strategies will be used by real traders
8. POSITION CONDITIONS: If user mentions "don't already have a position" or similar, ALWAYS use binary expression with position_size() function - NEVER generate incomplete funcCall
`

const outputFormat = `
## OUTPUT FORMAT - STRICTLY FOLLOW THIS STRUCTURE:

### Top-level Response:
{
  "symbol": "AAPL",
  "entryNode": "cond1",
  "nodes": [ ... ],
  "warnings": [ ... ],
  "suggestedEdits": [ ... ]
}

### Condition Node Format:
{
  "id": "cond1",
  "type": "condition",
  "expr": {
    "kind": "binary",
    "op": "<",
    "left": {
      "kind": "funcCall",
      "name": "rsi",
      "args": [
        { "kind": "identifier", "name": "close" },
        { "kind": "numberLiteral", "value": 14 }
      ]
    },
    "right": { "kind": "numberLiteral", "value": 30 }
  },
  "nextIfTrue": "cond2",
  "nextIfFalse": "actNoTrade"
}

### Action Node Format:
{
  "id": "actBuy1",
  "type": "action",
  "actionType": "ENTER_LONG",
  "symbol": "AAPL",
  "qty": 10,
  "qtyType": "PERCENT_EQUITY",
  "params": {},
  "next": null
}

### Expression Object Kinds:
- numberLiteral: { "kind": "numberLiteral", "value": 30 }
- stringLiteral: { "kind": "stringLiteral", "value": "09:30" }
- boolLiteral:   { "kind": "boolLiteral", "value": true }
- identifier:    { "kind": "identifier", "name": "close" }
- funcCall:      { "kind": "funcCall", "name": "rsi", "args": [...] }

## CRITICAL: EXPRESSING AND/OR LOGIC

DO NOT use "AND" or "OR" operators inside expr. Instead, chain condition nodes:

### For "RSI < 30 AND price > EMA(20)":
1. cond1: RSI < 30 → nextIfTrue: "cond2", nextIfFalse: "actNoTrade"
2. cond2: price > EMA(20) → nextIfTrue: "actBuy", nextIfFalse: "actNoTrade"

### For "RSI > 70 OR price < EMA(20)":
1. cond1: RSI > 70 → nextIfTrue: "actSell", nextIfFalse: "cond2"
2. cond2: price < EMA(20) → nextIfTrue: "actSell", nextIfFalse: "actNoTrade"

## VALIDATION RULES:
1. All node IDs must be unique
2. All nextIfTrue, nextIfFalse, next must reference existing node IDs or be null
3. Entry node must exist in nodes array
4. All branches must terminate in an action node
5. The graph must not contain cycles
6. expr.kind must be "binary" for condition nodes (ALWAYS need "kind", "op", "left", "right")
7. Function names in funcCall must be from the function catalog
8. actionType must be from the action list

## HANDLING POSITION CONDITIONS:
Position conditions check whether we already have an open position. These are ALWAYS expressed as binary comparisons using position_size().

- "but don't already have a long position" → position_size("SYMBOL") == 0
- "if we have a long position" → position_size("SYMBOL") > 0
- "close any open position" → position_size("SYMBOL") != 0

NEVER generate incomplete funcCall like { "kind": "funcCall" } with no name.

## CRITICAL: qty MUST ALWAYS BE A NUMBER
- For ENTER_LONG/ENTER_SHORT: qty is the quantity or percentage of equity (use qtyType: "PERCENT_EQUITY")
- For EXIT_LONG/EXIT_SHORT: qty is ALWAYS a percentage (1-100) of the open position (use qtyType: "PERCENT_POSITION")
  - Use qty: 100 for "exit all" or "close position" (DEFAULT if not specified)
  - Use qty: 50 for "exit half"
  - Use qty: 25 for "exit quarter"
- NEVER use strings like "ALL" or "HALF" for qty

## WARNINGS TO INCLUDE:
- Missing stop-loss protection
- No exit conditions defined
- Unusual indicator parameters
- Position sizing concerns
- Time-based conditions on daily timeframe may not work as expected

Remember: You are building a trading system for real retail traders. Financial accuracy and safety are paramount.`

package dsl

import (
	"sort"

	"github.com/algomatic/stratgraph/pkg/ir"
)

// RequiredFunctions walks every condition expression and returns the sorted
// set of function names the graph calls. The code generator links one
// indicator runtime per name.
func RequiredFunctions(g *ir.Graph) []string {
	seen := make(map[string]bool)
	for _, fc := range g.FuncCalls() {
		if fc.Name != "" {
			seen[fc.Name] = true
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

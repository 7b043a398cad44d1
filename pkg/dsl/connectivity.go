package dsl

import (
	"strings"

	"github.com/algomatic/stratgraph/pkg/ir"
)

// DFS colours.
const (
	white = iota
	grey
	black
)

// AnalyzeConnectivity walks the graph from its entry node. An action ends
// its condition path but a non-empty next chains to a follow-up action;
// absent condition branches are flagged as implicit no-trade branches. A
// back edge to a node still on the current path is a cycle and
// is reported as a reference error unless the check is disabled. Nodes the
// walk never reaches are reported as warnings.
//
// A missing entry node ends the analysis immediately. Dangling successors
// are skipped here; ValidateNode reports them.
func (v *Validator) AnalyzeConnectivity(g *ir.Graph) Report {
	var r Report

	byID := make(map[string]ir.Node, len(g.Nodes))
	for _, n := range g.Nodes {
		if n == nil {
			continue
		}
		if _, dup := byID[n.NodeID()]; !dup {
			byID[n.NodeID()] = n
		}
	}
	if _, ok := byID[g.EntryNode]; !ok || g.EntryNode == "" {
		r.errorf(Reference, "", "Entry node '%s' does not exist", g.EntryNode)
		return r
	}

	type frame struct {
		id    string
		succs []string
	}
	color := make(map[string]int, len(byID))
	var stack []frame
	var path []string

	enter := func(id string) {
		color[id] = grey
		path = append(path, id)
		f := frame{id: id}
		switch n := byID[id].(type) {
		case *ir.ActionNode:
			if n.Next != "" && byID[n.Next] != nil {
				f.succs = append(f.succs, n.Next)
			}
		case *ir.ConditionNode:
			for _, s := range [...]struct{ field, target string }{
				{"nextIfTrue", n.NextIfTrue},
				{"nextIfFalse", n.NextIfFalse},
			} {
				switch {
				case s.target == "":
					warnImplicitBranch(&r, id, s.field)
				case byID[s.target] != nil:
					f.succs = append(f.succs, s.target)
				}
			}
		}
		stack = append(stack, f)
	}

	enter(g.EntryNode)
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if len(top.succs) == 0 {
			color[top.id] = black
			path = path[:len(path)-1]
			stack = stack[:len(stack)-1]
			continue
		}
		next := top.succs[0]
		top.succs = top.succs[1:]

		switch color[next] {
		case white:
			enter(next)
		case grey:
			if v.cycleCheck {
				r.errorf(Reference, top.id, "Cycle detected: %s", cyclePath(path, next))
			}
		}
	}

	seen := make(map[string]bool, len(byID))
	for _, n := range g.Nodes {
		if n == nil || n.NodeID() == "" || seen[n.NodeID()] {
			continue
		}
		seen[n.NodeID()] = true
		if color[n.NodeID()] == white {
			r.warnf(Reference, n.NodeID(), "Node %s is not reachable from entry node '%s'", n.NodeID(), g.EntryNode)
		}
	}
	return r
}

// cyclePath renders the part of path that starts at target, closed back to
// target: "a -> b -> a".
func cyclePath(path []string, target string) string {
	start := 0
	for i, id := range path {
		if id == target {
			start = i
			break
		}
	}
	parts := append(append([]string(nil), path[start:]...), target)
	return strings.Join(parts, " -> ")
}

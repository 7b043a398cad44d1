package dsl

import (
	"slices"
	"strconv"

	"github.com/algomatic/stratgraph/pkg/ir"
)

var (
	movingAverages   = []string{"ema", "sma", "wma"}
	intradayFuncs    = []string{"timeBetween", "timeOfDay", "sessionOpen"}
	higherTimeframes = []string{"1D", "1W"}
)

// LintFinancials returns advisory warnings about the strategy's risk
// profile: entries without exits, extreme indicator periods and intraday
// filters on daily or weekly bars. It never reports errors.
func (v *Validator) LintFinancials(g *ir.Graph, timeframe string) []string {
	var r Report
	v.lint(g, timeframe, &r)
	return r.Warnings()
}

// LintFinancials is a convenience wrapper for callers without a validator.
func LintFinancials(g *ir.Graph, timeframe string) []string {
	var r Report
	(&Validator{}).lint(g, timeframe, &r)
	return r.Warnings()
}

func (v *Validator) lint(g *ir.Graph, timeframe string, r *Report) {
	var hasEntry, hasExit bool
	for _, n := range g.Nodes {
		a, ok := n.(*ir.ActionNode)
		if !ok {
			continue
		}
		switch {
		case a.ActionType.IsEntry():
			hasEntry = true
		case a.ActionType.IsExit(), a.ActionType == ir.SetStop, a.ActionType == ir.SetTrailingStop:
			hasExit = true
		}
	}
	if hasEntry && !hasExit {
		r.warnf(Financial, "", "Strategy enters positions but has no explicit exit or stop-loss condition - highly risky")
	}

	intraday := false
	for _, n := range g.Nodes {
		c, ok := n.(*ir.ConditionNode)
		if !ok {
			continue
		}
		for _, fc := range ir.FuncCalls(c.Expr) {
			checkPeriod(fc, c.ID, r)
			if slices.Contains(intradayFuncs, fc.Name) {
				intraday = true
			}
		}
	}
	if intraday && slices.Contains(higherTimeframes, timeframe) {
		r.warnf(Financial, "", "Intraday time filters on %s timeframe may not work as intended", timeframe)
	}
}

// checkPeriod flags extreme lookback periods. The period is the second
// argument when it is a number literal.
func checkPeriod(fc *ir.FuncCall, nodeID string, r *Report) {
	if len(fc.Args) < 2 {
		return
	}
	lit, ok := fc.Args[1].(*ir.NumberLiteral)
	if !ok {
		return
	}
	p := lit.Value
	ps := strconv.FormatFloat(p, 'f', -1, 64)

	switch {
	case fc.Name == "rsi":
		if p < 5 {
			r.warnf(Financial, nodeID, "RSI period %s in node %s is unusually short", ps, nodeID)
		}
		if p > 50 {
			r.warnf(Financial, nodeID, "RSI period %s in node %s is unusually long", ps, nodeID)
		}
	case slices.Contains(movingAverages, fc.Name):
		if p < 2 {
			r.warnf(Financial, nodeID, "Moving average period %s in node %s is too short", ps, nodeID)
		}
		if p > 500 {
			r.warnf(Financial, nodeID, "Moving average period %s in node %s is unusually long", ps, nodeID)
		}
	}
}

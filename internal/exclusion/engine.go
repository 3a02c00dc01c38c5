// Package exclusion runs deterministic, non-configurable eligibility checks
// after the rule engine. Predicates are independent of the tenant ruleset:
// they encode scheme-level eligibility, not tenant preference, and compose
// with rule-driven exclusion by logical OR.
//
// Concrete regulatory thresholds are intentionally not hard-coded here;
// predicates are registered so scheme updates land as new predicates rather
// than edits scattered through the pipeline.
package exclusion

import (
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/canonical"
)

// Predicate is one eligibility check. Check returns true and a comment when
// the row must be excluded from reporting.
type Predicate struct {
	Name  string
	Check func(*canonical.Row) (bool, string)
}

// Stats summarizes one exclusion pass.
type Stats struct {
	// Excluded counts rows newly excluded by predicates (rows already
	// excluded by rules are not re-counted).
	Excluded int `json:"excluded"`
	// ByPredicate maps predicate name to rows it excluded.
	ByPredicate map[string]int `json:"byPredicate,omitempty"`
}

// Engine evaluates an ordered predicate list.
type Engine struct {
	predicates []Predicate
}

// New returns an engine with the given predicates, evaluated in order.
func New(predicates ...Predicate) *Engine {
	return &Engine{predicates: predicates}
}

// Default returns the engine with the standard eligibility checks.
func Default() *Engine {
	return New(NotTradeCredit)
}

// Apply runs every predicate over the batch. Predicate exclusion ORs with
// any exclusion already set by rules; an excluded row keeps its original
// comment.
func (e *Engine) Apply(rows []*canonical.Row) Stats {
	stats := Stats{ByPredicate: make(map[string]int)}

	for _, row := range rows {
		for _, p := range e.predicates {
			excluded, comment := p.Check(row)
			if !excluded {
				continue
			}
			if !row.Exclude {
				stats.Excluded++
			}
			stats.ByPredicate[p.Name]++
			row.SetExclude(comment)
		}
	}

	return stats
}

// NotTradeCredit excludes rows whose trade-credit flag is explicitly false:
// payments outside a trade credit arrangement are not reportable. A missing
// flag does not exclude; eligibility is decided on declared data only.
var NotTradeCredit = Predicate{
	Name: "not_trade_credit",
	Check: func(row *canonical.Row) (bool, string) {
		v := row.Get(canonical.FieldTradeCreditFlag)
		if v.Kind == canonical.ValueBool && !v.Bool {
			return true, "not a trade credit arrangement"
		}
		return false, ""
	},
}

package rules

// engine.go is the interpreter. It is pure: no state survives an Apply call
// beyond the mutations recorded on the rows themselves, which is what makes
// re-running a batch safe.

import (
	"strings"

	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/canonical"
)

// Stats summarizes one Apply pass.
type Stats struct {
	// RulesTried counts enabled rules evaluated; disabled rules are
	// skipped and not counted.
	RulesTried int `json:"rulesTried"`
	// RowsAffected counts distinct rows touched by at least one action.
	RowsAffected int `json:"rowsAffected"`
	// Fired maps rule ID to the number of rows it fired on.
	Fired map[string]int `json:"fired,omitempty"`
}

// Apply evaluates the ruleset over the batch in declaration order. A rule
// fires on a row only when every condition matches and the rule's ID is not
// already recorded on the row, so re-processing an already-processed batch
// is a no-op.
func Apply(rows []*canonical.Row, set Ruleset) Stats {
	stats := Stats{Fired: make(map[string]int)}
	touched := make(map[int]bool)

	for _, rule := range set {
		if !rule.Enabled {
			continue
		}
		stats.RulesTried++

		for _, row := range rows {
			if row.HasRule(rule.ID) {
				continue
			}
			if !matches(row, rule.When) {
				continue
			}

			row.MarkRule(rule.ID)
			stats.Fired[rule.ID]++
			if len(rule.Then) > 0 {
				touched[row.RowNo] = true
			}
			for _, action := range rule.Then {
				execute(row, action)
			}
		}
	}

	stats.RowsAffected = len(touched)
	return stats
}

// matches reports whether every condition holds against the row's current
// values.
func matches(row *canonical.Row, conditions []Condition) bool {
	for _, c := range conditions {
		if !evaluate(row.Get(c.Field), c) {
			return false
		}
	}
	return true
}

func evaluate(v canonical.Value, c Condition) bool {
	switch c.Op {
	case OpIsNull:
		return v.IsNull()
	case OpNotNull:
		return !v.IsNull()
	case OpIn:
		if v.IsNull() {
			return false
		}
		for _, candidate := range c.Values {
			if equals(v, candidate) {
				return true
			}
		}
		return false
	case OpEq:
		return !v.IsNull() && equals(v, c.Value)
	case OpNe:
		return !v.IsNull() && !equals(v, c.Value)
	case OpGt, OpGte, OpLt, OpLte:
		cmp, ok := compare(v, c.Value)
		if !ok {
			return false
		}
		switch c.Op {
		case OpGt:
			return cmp > 0
		case OpGte:
			return cmp >= 0
		case OpLt:
			return cmp < 0
		default:
			return cmp <= 0
		}
	default:
		return false
	}
}

// equals compares type-aware: numbers and dates compare by value, strings
// case-insensitively.
func equals(v canonical.Value, operand string) bool {
	cmp, ok := compare(v, operand)
	if ok {
		return cmp == 0
	}
	return strings.EqualFold(v.Render(), strings.TrimSpace(operand))
}

// compare orders the row value against the operand in the value's own
// domain. Returns ok=false when the operand cannot be interpreted in that
// domain; ordered comparators then fail closed.
func compare(v canonical.Value, operand string) (int, bool) {
	switch v.Kind {
	case canonical.ValueNumber:
		n, ok := canonical.ParseAmount(operand)
		if !ok {
			return 0, false
		}
		switch {
		case v.Num < n:
			return -1, true
		case v.Num > n:
			return 1, true
		default:
			return 0, true
		}
	case canonical.ValueDate:
		t, ok := canonical.ParseDate(operand)
		if !ok {
			return 0, false
		}
		switch {
		case v.Time.Before(t):
			return -1, true
		case v.Time.After(t):
			return 1, true
		default:
			return 0, true
		}
	case canonical.ValueString:
		o := strings.TrimSpace(operand)
		return strings.Compare(strings.ToLower(v.Str), strings.ToLower(o)), true
	case canonical.ValueBool:
		b, ok := canonical.ParseBool(operand)
		if !ok {
			return 0, false
		}
		if v.Bool == b {
			return 0, true
		}
		return 1, false // booleans have no useful ordering
	default:
		return 0, false
	}
}

// execute applies one action to the row.
func execute(row *canonical.Row, action Action) {
	switch action.Type {
	case ActionSetField:
		row.Set(action.Field, canonical.Parse(action.Field, action.Value))
	case ActionExclude:
		row.SetExclude(action.Comment)
	}
}

// Package rules implements the declarative row-level rule engine. A ruleset
// is data: a small condition/action AST persisted as JSON inside the column
// map and evaluated by a direct interpreter, so tenants configure behavior
// without any string-dispatch or code changes.
package rules

import (
	"encoding/json"
	"fmt"

	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/canonical"
)

// Op is a condition comparator.
type Op string

const (
	OpEq      Op = "eq"
	OpNe      Op = "neq"
	OpGt      Op = "gt"
	OpGte     Op = "gte"
	OpLt      Op = "lt"
	OpLte     Op = "lte"
	OpIn      Op = "in"
	OpIsNull  Op = "isNull"
	OpNotNull Op = "notNull"
)

// Condition compares a row's current field value against an operand. The
// value seen is the row's value at evaluation time, possibly already mutated
// by an earlier rule in the same pass: semantics are sequential, not
// simultaneous.
type Condition struct {
	Field  canonical.Field `json:"field"`
	Op     Op              `json:"op"`
	Value  string          `json:"value,omitempty"`
	Values []string        `json:"values,omitempty"` // operands for OpIn
}

// ActionType discriminates the action union.
type ActionType string

const (
	ActionSetField ActionType = "setField"
	ActionExclude  ActionType = "exclude"
)

// Action is one rule effect: assign a field or flag the row excluded.
type Action struct {
	Type    ActionType      `json:"type"`
	Field   canonical.Field `json:"field,omitempty"`
	Value   string          `json:"value,omitempty"`
	Comment string          `json:"comment,omitempty"`
}

// Scope limits what a rule may read. Only row scope is executed; cross-row
// scope is reserved and rejected at validation.
type Scope string

const (
	ScopeRow      Scope = "row"
	ScopeCrossRow Scope = "crossRow"
)

// Rule is one ordered, idempotent rule. All conditions must match
// (conjunctive) for the actions to fire.
type Rule struct {
	ID      string      `json:"id"`
	Label   string      `json:"label,omitempty"`
	Enabled bool        `json:"enabled"`
	Scope   Scope       `json:"scope,omitempty"`
	When    []Condition `json:"when"`
	Then    []Action    `json:"then"`
}

// Ruleset is an ordered list of rules; order is firing order.
type Ruleset []Rule

// Validate rejects rulesets the interpreter cannot execute: blank or
// duplicate IDs, unknown comparators or action types, unknown canonical
// fields, and cross-row scope (reserved, not implemented).
func (rs Ruleset) Validate() error {
	ids := make(map[string]bool, len(rs))
	for i, r := range rs {
		if r.ID == "" {
			return fmt.Errorf("rule %d has no id", i)
		}
		if ids[r.ID] {
			return fmt.Errorf("duplicate rule id %q", r.ID)
		}
		ids[r.ID] = true

		if r.Scope == ScopeCrossRow {
			return fmt.Errorf("rule %q: cross-row scope is reserved and not executable", r.ID)
		}

		for _, c := range r.When {
			switch c.Op {
			case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpIsNull, OpNotNull:
			default:
				return fmt.Errorf("rule %q: unknown comparator %q", r.ID, c.Op)
			}
			if !canonical.Known(c.Field) {
				return fmt.Errorf("rule %q: unknown field %q", r.ID, c.Field)
			}
		}
		for _, a := range r.Then {
			switch a.Type {
			case ActionSetField:
				if !canonical.Known(a.Field) {
					return fmt.Errorf("rule %q: unknown field %q", r.ID, a.Field)
				}
			case ActionExclude:
			default:
				return fmt.Errorf("rule %q: unknown action type %q", r.ID, a.Type)
			}
		}
	}
	return nil
}

// ParseRuleset decodes and validates a JSON ruleset.
func ParseRuleset(data []byte) (Ruleset, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var rs Ruleset
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("decode ruleset: %w", err)
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return rs, nil
}

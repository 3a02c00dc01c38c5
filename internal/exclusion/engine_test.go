package exclusion

import (
	"testing"

	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/canonical"
)

func TestNotTradeCreditPredicate(t *testing.T) {
	tests := []struct {
		name string
		flag canonical.Value
		want bool
	}{
		{"explicit false excludes", canonical.Bool(false), true},
		{"explicit true keeps", canonical.Bool(true), false},
		{"missing flag keeps", canonical.Null(), false},
		{"unparsed string keeps", canonical.String("maybe"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := canonical.NewRow(1)
			row.Set(canonical.FieldTradeCreditFlag, tt.flag)

			got, comment := NotTradeCredit.Check(row)
			if got != tt.want {
				t.Errorf("Check() = %v, want %v", got, tt.want)
			}
			if got && comment == "" {
				t.Error("exclusion must carry a comment")
			}
		})
	}
}

func TestApplyComposesWithRuleExclusionByOR(t *testing.T) {
	alreadyExcluded := canonical.NewRow(1)
	alreadyExcluded.SetExclude("excluded by rule")
	alreadyExcluded.Set(canonical.FieldTradeCreditFlag, canonical.Bool(false))

	freshlyExcluded := canonical.NewRow(2)
	freshlyExcluded.Set(canonical.FieldTradeCreditFlag, canonical.Bool(false))

	kept := canonical.NewRow(3)
	kept.Set(canonical.FieldTradeCreditFlag, canonical.Bool(true))

	rows := []*canonical.Row{alreadyExcluded, freshlyExcluded, kept}
	stats := Default().Apply(rows)

	// Already-excluded row stays excluded with its original comment.
	if !alreadyExcluded.Exclude || alreadyExcluded.ExcludeComment != "excluded by rule" {
		t.Errorf("rule exclusion lost: %+v", alreadyExcluded)
	}
	// Only the freshly excluded row counts.
	if stats.Excluded != 1 {
		t.Errorf("Excluded = %d, want 1", stats.Excluded)
	}
	if !freshlyExcluded.Exclude {
		t.Error("row 2 should be excluded")
	}
	if kept.Exclude {
		t.Error("row 3 should not be excluded")
	}
	if stats.ByPredicate["not_trade_credit"] != 2 {
		t.Errorf("ByPredicate = %v, want 2 matches", stats.ByPredicate)
	}
}

func TestApplyDeterministicOverRepeatedRuns(t *testing.T) {
	row := canonical.NewRow(1)
	row.Set(canonical.FieldTradeCreditFlag, canonical.Bool(false))

	eng := Default()
	eng.Apply([]*canonical.Row{row})
	second := eng.Apply([]*canonical.Row{row})

	if second.Excluded != 0 {
		t.Errorf("second pass Excluded = %d, want 0 (already excluded)", second.Excluded)
	}
	if row.ExcludeComment != "not a trade credit arrangement" {
		t.Errorf("comment = %q", row.ExcludeComment)
	}
}

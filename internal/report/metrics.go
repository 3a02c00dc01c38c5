// Package report computes payment-time statistics over the staged row set.
// Computation is single-pass, field-level best-effort: a malformed value on
// one row increments a quality counter and never aborts the aggregation.
package report

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/canonical"
)

// Draft carries the user-editable report metadata merged into the output.
type Draft struct {
	EntityName   string            `json:"entityName,omitempty"`
	EntityID     string            `json:"entityId,omitempty"`
	PeriodStart  string            `json:"periodStart,omitempty"`
	PeriodEnd    string            `json:"periodEnd,omitempty"`
	Declarations map[string]string `json:"declarations,omitempty"`
}

// Header is the report identity block.
type Header struct {
	EntityName  string    `json:"entityName,omitempty"`
	EntityID    string    `json:"entityId,omitempty"`
	PeriodStart string    `json:"periodStart,omitempty"`
	PeriodEnd   string    `json:"periodEnd,omitempty"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Percentiles of the payment-delay sample, in days.
type Percentiles struct {
	P0   *float64 `json:"p0"`
	P50  *float64 `json:"p50"`
	P80  *float64 `json:"p80"`
	P95  *float64 `json:"p95"`
	P100 *float64 `json:"p100"`
}

// Computed holds the aggregate statistics. Percentage metrics are nil, not
// zero, when their denominator is empty.
type Computed struct {
	PaymentCount      int         `json:"paymentCount"`
	TotalPaymentValue float64     `json:"totalPaymentValue"`
	AverageDelayDays  *float64    `json:"averageDelayDays"`
	DelayPercentiles  Percentiles `json:"delayPercentiles"`
	TermDaysMode      *int        `json:"termDaysMode"`

	PaidWithinTermsPct *float64 `json:"paidWithinTermsPct"`
	PaidWithin30Pct    *float64 `json:"paidWithin30Pct"`
	Paid31To60Pct      *float64 `json:"paid31To60Pct"`
	Paid61To90Pct      *float64 `json:"paid61To90Pct"`
	PaidOver90Pct      *float64 `json:"paidOver90Pct"`
}

// Quality reports the data coverage behind the computed figures.
type Quality struct {
	BasedOnRowCount      int      `json:"basedOnRowCount"`
	ExcludedRowCount     int      `json:"excludedRowCount"`
	MissingPaymentDate   int      `json:"missingPaymentDate"`
	MissingReferenceDate int      `json:"missingReferenceDate"`
	MissingAmount        int      `json:"missingAmount"`
	MissingTermDays      int      `json:"missingTermDays"`
	Notes                []string `json:"notes,omitempty"`
}

// Report is the derived, never-persisted view over the staged rows.
type Report struct {
	Header       Header            `json:"header"`
	Declarations map[string]string `json:"declarations"`
	Computed     Computed          `json:"computed"`
	Quality      Quality           `json:"quality"`
}

// Compute aggregates the non-excluded rows into a report. Excluded rows
// contribute only to the excluded count.
func Compute(rows []*canonical.Row, draft Draft) *Report {
	rpt := &Report{
		Header: Header{
			EntityName:  draft.EntityName,
			EntityID:    draft.EntityID,
			PeriodStart: draft.PeriodStart,
			PeriodEnd:   draft.PeriodEnd,
			GeneratedAt: time.Now().UTC(),
		},
		Declarations: draft.Declarations,
	}
	if rpt.Declarations == nil {
		rpt.Declarations = map[string]string{}
	}

	var (
		delays    []float64
		termDays  []int
		delaySum  float64
		inTerms   int
		termBoth  int
		within30  int
		in31to60  int
		in61to90  int
		over90    int
	)

	for _, row := range rows {
		if row.Exclude {
			rpt.Quality.ExcludedRowCount++
			continue
		}
		rpt.Quality.BasedOnRowCount++

		if amt := row.Get(canonical.FieldPaymentAmount); amt.Kind == canonical.ValueNumber {
			rpt.Computed.PaymentCount++
			rpt.Computed.TotalPaymentValue += canonical.Magnitude(amt.Num)
		} else {
			rpt.Quality.MissingAmount++
		}

		term, hasTerm := termDaysOf(row)
		if hasTerm {
			termDays = append(termDays, term)
		} else {
			rpt.Quality.MissingTermDays++
		}

		paid := row.Get(canonical.FieldPaymentDate)
		if paid.Kind != canonical.ValueDate {
			rpt.Quality.MissingPaymentDate++
			continue
		}
		ref, ok := referenceDate(row)
		if !ok {
			rpt.Quality.MissingReferenceDate++
			continue
		}

		delay := float64(int(paid.Time.Sub(ref).Hours() / 24))
		delays = append(delays, delay)
		delaySum += delay

		switch {
		case delay <= 30:
			within30++
		case delay <= 60:
			in31to60++
		case delay <= 90:
			in61to90++
		default:
			over90++
		}

		if hasTerm {
			termBoth++
			if delay <= float64(term) {
				inTerms++
			}
		}
	}

	if n := len(delays); n > 0 {
		avg := roundHalfUp(delaySum / float64(n))
		rpt.Computed.AverageDelayDays = &avg

		sorted := make([]float64, n)
		copy(sorted, delays)
		sort.Float64s(sorted)
		rpt.Computed.DelayPercentiles = Percentiles{
			P0:   ptr(percentile(sorted, 0)),
			P50:  ptr(percentile(sorted, 50)),
			P80:  ptr(percentile(sorted, 80)),
			P95:  ptr(percentile(sorted, 95)),
			P100: ptr(percentile(sorted, 100)),
		}

		rpt.Computed.PaidWithin30Pct = pct(within30, n)
		rpt.Computed.Paid31To60Pct = pct(in31to60, n)
		rpt.Computed.Paid61To90Pct = pct(in61to90, n)
		rpt.Computed.PaidOver90Pct = pct(over90, n)
	} else {
		rpt.Quality.note("no rows had both a payment date and a reference date; delay metrics unavailable")
	}

	if termBoth > 0 {
		rpt.Computed.PaidWithinTermsPct = pct(inTerms, termBoth)
	} else {
		rpt.Quality.note("no rows had both a payment delay and payment terms; paid-within-terms unavailable")
	}

	if mode, ok := modeOf(termDays); ok {
		rpt.Computed.TermDaysMode = &mode
	}

	return rpt
}

func (q *Quality) note(format string, args ...any) {
	q.Notes = append(q.Notes, fmt.Sprintf(format, args...))
}

// referenceDate picks the date payment delay is measured from: the later of
// invoice issue and receipt when both are present (the shorter period), else
// whichever exists, else the notice date, else the supply date.
func referenceDate(row *canonical.Row) (time.Time, bool) {
	issue := row.Get(canonical.FieldInvoiceIssueDate)
	receipt := row.Get(canonical.FieldInvoiceReceiptDate)

	hasIssue := issue.Kind == canonical.ValueDate
	hasReceipt := receipt.Kind == canonical.ValueDate
	switch {
	case hasIssue && hasReceipt:
		if receipt.Time.After(issue.Time) {
			return receipt.Time, true
		}
		return issue.Time, true
	case hasIssue:
		return issue.Time, true
	case hasReceipt:
		return receipt.Time, true
	}

	if notice := row.Get(canonical.FieldNoticeDate); notice.Kind == canonical.ValueDate {
		return notice.Time, true
	}
	if supply := row.Get(canonical.FieldSupplyDate); supply.Kind == canonical.ValueDate {
		return supply.Time, true
	}
	return time.Time{}, false
}

func termDaysOf(row *canonical.Row) (int, bool) {
	v := row.Get(canonical.FieldPaymentTermDays)
	if v.Kind != canonical.ValueNumber {
		return 0, false
	}
	return int(v.Num), true
}

// percentile computes the exact linear-interpolation percentile over a
// sorted sample. p0 is the minimum, p100 the maximum.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// modeOf returns the most frequent value, ties broken by first encounter.
func modeOf(values []int) (int, bool) {
	if len(values) == 0 {
		return 0, false
	}
	counts := make(map[int]int, len(values))
	var order []int
	for _, v := range values {
		if counts[v] == 0 {
			order = append(order, v)
		}
		counts[v]++
	}
	best := order[0]
	for _, v := range order[1:] {
		if counts[v] > counts[best] {
			best = v
		}
	}
	return best, true
}

// pct returns the rounded percentage num/den*100, nil on a zero denominator.
func pct(num, den int) *float64 {
	if den == 0 {
		return nil
	}
	v := roundHalfUp(float64(num) / float64(den) * 100)
	return &v
}

// roundHalfUp rounds to 2 decimals with ties away from zero's lower side
// (0.005 rounds to 0.01).
func roundHalfUp(x float64) float64 {
	return math.Floor(x*100+0.5) / 100
}

func ptr(v float64) *float64 { return &v }

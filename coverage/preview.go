package coverage

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PREVIEW - What a payment would do, before it is recorded
// =============================================================================

// LineKind classifies a preview line.
type LineKind string

const (
	LineEnrollment LineKind = "enrollment"
	LinePeriod     LineKind = "period"
	LineCarry      LineKind = "carry"
	LineInfo       LineKind = "info"
)

// LineItem is one human-readable step of a payment distribution.
type LineItem struct {
	Kind        LineKind
	Amount      decimal.Decimal
	Description string
	Complete    bool
}

// Outcome is the cumulative state a payment would leave behind.
type Outcome struct {
	EnrollmentPaid   decimal.Decimal
	PeriodsCompleted int
	Carry            decimal.Decimal
}

// Preview is the result of PreviewPayment.
type Preview struct {
	Items             []LineItem
	EnrollmentApplied decimal.Decimal
	PeriodsAdded      int
	Result            Outcome
	Valid             bool
	Message           string
}

// PreviewPayment applies one hypothetical payment to the student's current
// state using exactly the step Reconcile uses. Recording the payment and
// replaying the history lands on Result, provided the payment sorts last.
func PreviewPayment(amount decimal.Decimal, concept Concept, current State, p Pricing) Preview {
	before := tallyOf(current)
	out := Preview{
		Result: Outcome{
			EnrollmentPaid:   before.enrollment,
			PeriodsCompleted: before.periods,
			Carry:            before.carry,
		},
		EnrollmentApplied: decimal.Zero,
	}

	switch {
	case !p.Valid():
		out.Message = "course has no valid monthly price"
		return out
	case !concept.Valid():
		out.Message = fmt.Sprintf("unknown payment concept %q", concept)
		return out
	case !Round2(amount).IsPositive():
		out.Message = "amount must be greater than zero"
		return out
	}

	after, items := apply(before, amount, concept, p)

	out.Items = items
	out.EnrollmentApplied = Round2(after.enrollment.Sub(before.enrollment))
	out.PeriodsAdded = after.periods - before.periods
	out.Result = Outcome{
		EnrollmentPaid:   Round2(after.enrollment),
		PeriodsCompleted: after.periods,
		Carry:            Round2(after.carry),
	}
	out.Valid, out.Message = summarize(out, before, p)
	return out
}

// summarize builds the one-line message shown next to the breakdown.
func summarize(pv Preview, before tally, p Pricing) (bool, string) {
	covers := false
	for _, it := range pv.Items {
		if it.Kind != LineInfo {
			covers = true
			break
		}
	}
	if !covers {
		return false, "this payment does not cover any concept"
	}

	var parts []string
	if pv.EnrollmentApplied.IsPositive() {
		if pv.Result.EnrollmentPaid.GreaterThanOrEqual(p.enrollmentFee()) {
			parts = append(parts, "enrollment complete")
		} else {
			parts = append(parts, "enrollment partial payment")
		}
	}
	if pv.PeriodsAdded > 0 {
		parts = append(parts, fmt.Sprintf("%d period(s)", pv.PeriodsAdded))
	}
	if pv.Result.Carry.GreaterThan(before.carry) {
		parts = append(parts, fmt.Sprintf("+%s credit", FormatMoney(pv.Result.Carry.Sub(before.carry))))
	}
	if len(parts) == 0 {
		return true, "payment accepted"
	}
	return true, strings.Join(parts, " | ")
}

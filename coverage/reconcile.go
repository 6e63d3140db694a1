/*
reconcile.go - Full replay of a student's payments

PURPOSE:
  Reconcile is the single source of the derived coverage fields. Callers
  never patch enrollment paid, periods or carry incrementally: every insert
  or delete of a payment re-runs Reconcile over the whole payment set and
  writes the four results back as one unit.

ALGORITHM:
  1. Sort payments by PaidAt ascending. Payments without a timestamp go last.
     Equal timestamps keep insertion order (Seq, then stable sort).
  2. Start from zero: enrollment 0, periods 0, carry 0.
  3. Skip non-positive amounts. Otherwise apply the payment by concept:
       enrollment - fill the enrollment shortfall, drop any excess
       period     - add to carry, extract whole periods, keep the remainder
       auto       - fill the enrollment shortfall first; only a payment that
                    completes it lets the remainder flow into periods
  4. End date = start + periods x 30 days (start itself when periods == 0).

DEGENERATE INPUT:
  No start date or a non-positive monthly price yields Zero(): nothing paid
  and no end date. This is "no active coverage", not an error.

EXAMPLE ($50/month, $30 enrollment, classes start 2025-01-01):
  auto $50, auto $50
    payment 1: $30 -> enrollment (complete), $20 -> carry
    payment 2: carry 70 -> 1 period, carry 20
  => enrollment 30, periods 1, carry 20, end 2025-01-31

SEE ALSO:
  - preview.go: runs the same apply step once against the current state
*/
package coverage

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// tally is the running accumulator of the replay.
type tally struct {
	enrollment decimal.Decimal
	periods    int
	carry      decimal.Decimal
}

func tallyOf(s State) tally {
	return tally{enrollment: s.enrollmentPaid, periods: s.periods, carry: s.carry}
}

// Reconcile replays entries against pricing. It never fails.
func Reconcile(p Pricing, start *Date, entries []Entry) State {
	if start == nil || start.IsZero() || !p.Valid() {
		return Zero()
	}

	var t tally
	for _, e := range sortEntries(entries) {
		if !e.Amount.IsPositive() {
			continue
		}
		concept := e.Concept
		if !concept.Valid() {
			// Rows written before concepts existed are general payments.
			concept = ConceptAuto
		}
		t, _ = apply(t, e.Amount, concept, p)
	}

	return State{
		enrollmentPaid: Round2(t.enrollment),
		periods:        t.periods,
		carry:          Round2(t.carry),
		endDate:        CoverageEnd(*start, t.periods),
		hasEnd:         true,
	}
}

// sortEntries returns a sorted copy; the input is left untouched.
func sortEntries(entries []Entry) []Entry {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		switch {
		case a.PaidAt.IsZero() && b.PaidAt.IsZero():
			return a.Seq < b.Seq
		case a.PaidAt.IsZero():
			return false
		case b.PaidAt.IsZero():
			return true
		case !a.PaidAt.Equal(b.PaidAt):
			return a.PaidAt.Before(b.PaidAt)
		default:
			return a.Seq < b.Seq
		}
	})
	return sorted
}

// =============================================================================
// APPLY - One payment against a running tally
// =============================================================================

// apply is the per-payment branch shared by Reconcile and PreviewPayment.
// The line items describe what happened; Reconcile discards them.
func apply(t tally, amount decimal.Decimal, concept Concept, p Pricing) (tally, []LineItem) {
	amount = Round2(amount)
	if !amount.IsPositive() {
		return t, nil
	}

	switch concept {
	case ConceptEnrollment:
		return applyEnrollmentOnly(t, amount, p)

	case ConceptPeriod:
		return applyPeriods(t, amount, p)

	case ConceptAuto:
		var items []LineItem
		leftover := amount
		shortfall := enrollmentShortfall(t, p)
		if shortfall.IsPositive() {
			if amount.GreaterThanOrEqual(shortfall) {
				t.enrollment = Round2(t.enrollment.Add(shortfall))
				leftover = Round2(amount.Sub(shortfall))
				items = append(items, LineItem{
					Kind:        LineEnrollment,
					Amount:      shortfall,
					Description: fmt.Sprintf("enrollment fully paid: %s", FormatMoney(shortfall)),
					Complete:    true,
				})
			} else {
				t.enrollment = Round2(t.enrollment.Add(amount))
				leftover = decimal.Zero
				items = append(items, LineItem{
					Kind:   LineEnrollment,
					Amount: amount,
					Description: fmt.Sprintf("enrollment partial payment: %s (missing %s)",
						FormatMoney(amount), FormatMoney(shortfall.Sub(amount))),
					Complete: false,
				})
			}
		}
		if leftover.IsPositive() {
			var periodItems []LineItem
			t, periodItems = applyPeriods(t, leftover, p)
			items = append(items, periodItems...)
		}
		return t, items

	default:
		panic(fmt.Sprintf("coverage: unhandled concept %q", concept))
	}
}

func enrollmentShortfall(t tally, p Pricing) decimal.Decimal {
	shortfall := p.enrollmentFee().Sub(t.enrollment)
	if shortfall.IsNegative() {
		return decimal.Zero
	}
	return shortfall
}

// applyEnrollmentOnly fills the enrollment shortfall. Whatever exceeds it is
// dropped, not carried into periods.
func applyEnrollmentOnly(t tally, amount decimal.Decimal, p Pricing) (tally, []LineItem) {
	shortfall := enrollmentShortfall(t, p)
	if shortfall.IsZero() {
		return t, []LineItem{{
			Kind:        LineInfo,
			Amount:      decimal.Zero,
			Description: "enrollment already paid",
		}}
	}

	applied := decimal.Min(amount, shortfall)
	t.enrollment = Round2(t.enrollment.Add(applied))
	complete := applied.Equal(shortfall)

	desc := fmt.Sprintf("enrollment partial payment: %s (missing %s)",
		FormatMoney(applied), FormatMoney(shortfall.Sub(applied)))
	if complete {
		desc = fmt.Sprintf("enrollment fully paid: %s", FormatMoney(applied))
	}
	items := []LineItem{{Kind: LineEnrollment, Amount: applied, Description: desc, Complete: complete}}

	if excess := amount.Sub(applied); excess.IsPositive() {
		items = append(items, LineItem{
			Kind:        LineInfo,
			Amount:      excess,
			Description: fmt.Sprintf("%s exceeds the enrollment fee and is not applied", FormatMoney(excess)),
		})
	}
	return t, items
}

// applyPeriods adds amount to the carry and extracts whole periods. The
// division works on the unrounded total; only the remainder is rounded.
func applyPeriods(t tally, amount decimal.Decimal, p Pricing) (tally, []LineItem) {
	total := t.carry.Add(amount)
	whole, rest := total.QuoRem(p.MonthlyPrice, 0)
	n := int(whole.IntPart())

	t.periods += n
	t.carry = Round2(rest)

	var items []LineItem
	if n > 0 {
		paid := p.MonthlyPrice.Mul(decimal.NewFromInt(int64(n)))
		items = append(items, LineItem{
			Kind:        LinePeriod,
			Amount:      Round2(paid),
			Description: fmt.Sprintf("%d period(s) completed: %s", n, FormatMoney(paid)),
			Complete:    true,
		})
	}
	if t.carry.IsPositive() {
		items = append(items, LineItem{
			Kind:   LineCarry,
			Amount: t.carry,
			Description: fmt.Sprintf("remaining credit: %s, needs %s more",
				FormatMoney(t.carry), FormatMoney(p.MonthlyPrice.Sub(t.carry))),
			Complete: false,
		})
	}
	return t, items
}

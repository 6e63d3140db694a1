package coverage

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STATE - Derived coverage fields
// =============================================================================

// State holds the four values derived from a student's payment history.
//
// The fields are unexported on purpose: a State can only come out of
// Reconcile, or out of Restore when the persistence layer reads back what a
// previous Reconcile produced. Nothing else can set them.
type State struct {
	enrollmentPaid decimal.Decimal
	periods        int
	carry          decimal.Decimal
	endDate        Date
	hasEnd         bool
}

// Zero is the "no coverage" state: nothing paid, no end date.
func Zero() State { return State{} }

// Restore rebuilds a State from stored columns. It only accepts values that
// Reconcile could have produced.
func Restore(enrollmentPaid decimal.Decimal, periods int, carry decimal.Decimal, endDate *Date) (State, error) {
	if enrollmentPaid.IsNegative() {
		return State{}, fmt.Errorf("restore coverage: negative enrollment paid %s", enrollmentPaid)
	}
	if periods < 0 {
		return State{}, fmt.Errorf("restore coverage: negative periods %d", periods)
	}
	if carry.IsNegative() {
		return State{}, fmt.Errorf("restore coverage: negative carry %s", carry)
	}
	s := State{
		enrollmentPaid: Round2(enrollmentPaid),
		periods:        periods,
		carry:          Round2(carry),
	}
	if endDate != nil {
		s.endDate = *endDate
		s.hasEnd = true
	}
	return s, nil
}

func (s State) EnrollmentPaid() decimal.Decimal { return s.enrollmentPaid }
func (s State) PeriodsCompleted() int           { return s.periods }
func (s State) Carry() decimal.Decimal          { return s.carry }

// EndDate returns the coverage end date. ok is false when coverage could not
// be computed at all (no start date or unusable pricing).
func (s State) EndDate() (d Date, ok bool) { return s.endDate, s.hasEnd }

// EndDatePtr is EndDate for callers that store a nullable column.
func (s State) EndDatePtr() *Date {
	if !s.hasEnd {
		return nil
	}
	d := s.endDate
	return &d
}

// HasCoverage reports whether at least one whole period is paid.
func (s State) HasCoverage() bool { return s.periods > 0 }

// EnrollmentPending is what is still owed on the enrollment fee.
func (s State) EnrollmentPending(p Pricing) decimal.Decimal {
	pending := p.enrollmentFee().Sub(s.enrollmentPaid)
	if pending.IsNegative() {
		return decimal.Zero
	}
	return pending
}

// EnrollmentComplete reports whether the enrollment fee is fully covered.
func (s State) EnrollmentComplete(p Pricing) bool {
	return s.EnrollmentPending(p).IsZero()
}

// EnrollmentPercent is the covered share of the fee, 0-100. A course without
// an enrollment fee counts as 100.
func (s State) EnrollmentPercent(p Pricing) decimal.Decimal {
	fee := p.enrollmentFee()
	if fee.IsZero() {
		return decimal.NewFromInt(100)
	}
	pct := s.enrollmentPaid.Div(fee).Mul(decimal.NewFromInt(100))
	if pct.GreaterThan(decimal.NewFromInt(100)) {
		pct = decimal.NewFromInt(100)
	}
	return pct.Round(0)
}

// Equal compares two states field by field.
func (s State) Equal(o State) bool {
	return s.enrollmentPaid.Equal(o.enrollmentPaid) &&
		s.periods == o.periods &&
		s.carry.Equal(o.carry) &&
		s.hasEnd == o.hasEnd &&
		(!s.hasEnd || s.endDate.Equal(o.endDate))
}

func (s State) String() string {
	end := "none"
	if s.hasEnd {
		end = s.endDate.String()
	}
	return fmt.Sprintf("enrollment=%s periods=%d carry=%s end=%s",
		s.enrollmentPaid.StringFixed(2), s.periods, s.carry.StringFixed(2), end)
}

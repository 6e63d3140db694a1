package coverage_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/tuition-engine/coverage"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func money(s string) decimal.Decimal { return coverage.MustMoney(s) }

func pricing(monthly, enrollment string) coverage.Pricing {
	return coverage.Pricing{MonthlyPrice: money(monthly), EnrollmentFee: money(enrollment)}
}

func jan1() *coverage.Date {
	d := coverage.NewDate(2025, time.January, 1)
	return &d
}

func day(n int) time.Time {
	return time.Date(2025, time.January, n, 10, 0, 0, 0, time.UTC)
}

func pay(amount string, concept coverage.Concept, at time.Time, seq int64) coverage.Entry {
	return coverage.Entry{Amount: money(amount), Concept: concept, PaidAt: at, Seq: seq}
}

func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, money(want).Equal(got), append([]any{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

func endDate(t *testing.T, s coverage.State) coverage.Date {
	t.Helper()
	d, ok := s.EndDate()
	require.True(t, ok, "expected an end date")
	return d
}

// =============================================================================
// REFERENCE SCENARIOS ($50/month, $30 enrollment, classes start 2025-01-01)
// =============================================================================

func TestReconcile_SingleAutoPayment_CoversEnrollmentLeavesCredit(t *testing.T) {
	// GIVEN: One $50 auto payment
	// WHEN: Replaying
	// THEN: $30 closes enrollment, $20 stays as carry, no period, no extension

	s := coverage.Reconcile(pricing("50", "30"), jan1(), []coverage.Entry{
		pay("50", coverage.ConceptAuto, day(1), 1),
	})

	assertMoney(t, "30", s.EnrollmentPaid())
	assert.Equal(t, 0, s.PeriodsCompleted())
	assertMoney(t, "20", s.Carry())
	assert.Equal(t, "2025-01-01", endDate(t, s).String())
}

func TestReconcile_TwoAutoPayments_OnePeriod(t *testing.T) {
	s := coverage.Reconcile(pricing("50", "30"), jan1(), []coverage.Entry{
		pay("50", coverage.ConceptAuto, day(1), 1),
		pay("50", coverage.ConceptAuto, day(5), 2),
	})

	assertMoney(t, "30", s.EnrollmentPaid())
	assert.Equal(t, 1, s.PeriodsCompleted())
	assertMoney(t, "20", s.Carry())
	assert.Equal(t, "2025-01-31", endDate(t, s).String())
}

func TestReconcile_PeriodConcept_NoEnrollmentFee(t *testing.T) {
	s := coverage.Reconcile(pricing("50", "0"), jan1(), []coverage.Entry{
		pay("150", coverage.ConceptPeriod, day(1), 1),
	})

	assertMoney(t, "0", s.EnrollmentPaid())
	assert.Equal(t, 3, s.PeriodsCompleted())
	assertMoney(t, "0", s.Carry())
	// 90 days after Jan 1st.
	assert.Equal(t, "2025-04-01", endDate(t, s).String())
}

func TestReconcile_DeletingPaymentRestoresCarry(t *testing.T) {
	// GIVEN: Enrollment already settled
	history := []coverage.Entry{
		pay("30", coverage.ConceptEnrollment, day(1), 1),
	}
	p := pricing("50", "30")
	before := coverage.Reconcile(p, jan1(), history)

	// WHEN: A $25 auto payment is added
	after := coverage.Reconcile(p, jan1(), append(history, pay("25", coverage.ConceptAuto, day(2), 2)))
	assert.Equal(t, 0, after.PeriodsCompleted())
	assertMoney(t, "25", after.Carry())
	assert.Equal(t, endDate(t, before), endDate(t, after))

	// THEN: Removing it again gives back the exact previous state
	reverted := coverage.Reconcile(p, jan1(), history)
	assert.True(t, before.Equal(reverted), "before=%s reverted=%s", before, reverted)
}

// =============================================================================
// BRANCH RULES
// =============================================================================

func TestReconcile_EnrollmentConcept_DropsExcess(t *testing.T) {
	s := coverage.Reconcile(pricing("50", "30"), jan1(), []coverage.Entry{
		pay("100", coverage.ConceptEnrollment, day(1), 1),
	})

	assertMoney(t, "30", s.EnrollmentPaid())
	assert.Equal(t, 0, s.PeriodsCompleted())
	assertMoney(t, "0", s.Carry(), "excess over the fee is not carried")
}

func TestReconcile_AutoPartialEnrollment_NothingFlowsToPeriods(t *testing.T) {
	s := coverage.Reconcile(pricing("50", "30"), jan1(), []coverage.Entry{
		pay("20", coverage.ConceptAuto, day(1), 1),
	})

	assertMoney(t, "20", s.EnrollmentPaid())
	assertMoney(t, "0", s.Carry())

	s = coverage.Reconcile(pricing("50", "30"), jan1(), []coverage.Entry{
		pay("20", coverage.ConceptAuto, day(1), 1),
		pay("70", coverage.ConceptAuto, day(2), 2),
	})
	assertMoney(t, "30", s.EnrollmentPaid())
	assert.Equal(t, 1, s.PeriodsCompleted())
	assertMoney(t, "10", s.Carry())
}

func TestReconcile_PeriodConcept_IgnoresEnrollmentShortfall(t *testing.T) {
	s := coverage.Reconcile(pricing("50", "30"), jan1(), []coverage.Entry{
		pay("50", coverage.ConceptPeriod, day(1), 1),
	})

	assertMoney(t, "0", s.EnrollmentPaid())
	assert.Equal(t, 1, s.PeriodsCompleted())
	assert.Equal(t, "2025-01-31", endDate(t, s).String())
}

func TestReconcile_InterleavingConceptsChangesOutcome(t *testing.T) {
	// An enrollment payment before an auto payment settles the fee first, so
	// the auto money reaches periods. Reversed, the auto payment pays the fee
	// and the enrollment payment is dropped entirely.
	p := pricing("50", "30")

	enrollmentFirst := coverage.Reconcile(p, jan1(), []coverage.Entry{
		pay("30", coverage.ConceptEnrollment, day(1), 1),
		pay("50", coverage.ConceptAuto, day(2), 2),
	})
	autoFirst := coverage.Reconcile(p, jan1(), []coverage.Entry{
		pay("50", coverage.ConceptAuto, day(1), 1),
		pay("30", coverage.ConceptEnrollment, day(2), 2),
	})

	assert.Equal(t, 1, enrollmentFirst.PeriodsCompleted())
	assertMoney(t, "0", enrollmentFirst.Carry())

	assert.Equal(t, 0, autoFirst.PeriodsCompleted())
	assertMoney(t, "20", autoFirst.Carry())
}

func TestReconcile_SkipsNonPositiveAmounts(t *testing.T) {
	s := coverage.Reconcile(pricing("50", "0"), jan1(), []coverage.Entry{
		pay("0", coverage.ConceptAuto, day(1), 1),
		pay("-40", coverage.ConceptPeriod, day(2), 2),
		pay("50", coverage.ConceptAuto, day(3), 3),
	})

	assert.Equal(t, 1, s.PeriodsCompleted())
	assertMoney(t, "0", s.Carry())
}

func TestReconcile_UnknownConceptTreatedAsAuto(t *testing.T) {
	s := coverage.Reconcile(pricing("50", "30"), jan1(), []coverage.Entry{
		{Amount: money("80"), Concept: coverage.Concept("legacy"), PaidAt: day(1), Seq: 1},
	})

	assertMoney(t, "30", s.EnrollmentPaid())
	assert.Equal(t, 1, s.PeriodsCompleted())
}

func TestReconcile_RoundsToCents(t *testing.T) {
	s := coverage.Reconcile(pricing("33.33", "0"), jan1(), []coverage.Entry{
		pay("10.005", coverage.ConceptPeriod, day(1), 1),
		pay("23.33", coverage.ConceptPeriod, day(2), 2),
		pay("33.33", coverage.ConceptPeriod, day(3), 3),
	})

	assert.Equal(t, 2, s.PeriodsCompleted())
	assertMoney(t, "0.01", s.Carry())
}

// =============================================================================
// ORDERING
// =============================================================================

func TestReconcile_SortsByTimestampNotInsertion(t *testing.T) {
	p := pricing("50", "30")
	inserted := []coverage.Entry{
		pay("30", coverage.ConceptEnrollment, day(10), 1),
		pay("50", coverage.ConceptAuto, day(2), 2),
	}
	chronological := []coverage.Entry{
		pay("50", coverage.ConceptAuto, day(2), 2),
		pay("30", coverage.ConceptEnrollment, day(10), 1),
	}

	assert.True(t, coverage.Reconcile(p, jan1(), inserted).Equal(coverage.Reconcile(p, jan1(), chronological)))
}

func TestReconcile_MissingTimestampSortsLast(t *testing.T) {
	p := pricing("50", "30")
	s := coverage.Reconcile(p, jan1(), []coverage.Entry{
		pay("30", coverage.ConceptEnrollment, time.Time{}, 1),
		pay("50", coverage.ConceptAuto, day(3), 2),
	})

	// The auto payment runs first and pays the fee; the undated enrollment
	// payment then finds nothing left to cover.
	assertMoney(t, "30", s.EnrollmentPaid())
	assert.Equal(t, 0, s.PeriodsCompleted())
	assertMoney(t, "20", s.Carry())
}

func TestReconcile_EqualTimestampsKeepInsertionOrder(t *testing.T) {
	p := pricing("50", "30")
	at := day(4)
	s := coverage.Reconcile(p, jan1(), []coverage.Entry{
		pay("30", coverage.ConceptEnrollment, at, 2),
		pay("50", coverage.ConceptAuto, at, 1),
	})

	// Seq 1 (auto) goes first.
	assert.Equal(t, 0, s.PeriodsCompleted())
	assertMoney(t, "20", s.Carry())
}

func TestReconcile_DoesNotMutateInput(t *testing.T) {
	entries := []coverage.Entry{
		pay("10", coverage.ConceptAuto, day(9), 1),
		pay("20", coverage.ConceptAuto, day(1), 2),
	}
	coverage.Reconcile(pricing("50", "0"), jan1(), entries)
	assert.Equal(t, int64(1), entries[0].Seq)
}

// =============================================================================
// PROPERTIES
// =============================================================================

func TestReconcile_Idempotent(t *testing.T) {
	p := pricing("45", "25")
	entries := []coverage.Entry{
		pay("12.5", coverage.ConceptAuto, day(1), 1),
		pay("60", coverage.ConceptPeriod, day(3), 2),
		pay("40", coverage.ConceptAuto, day(7), 3),
		pay("5", coverage.ConceptEnrollment, day(8), 4),
	}

	a := coverage.Reconcile(p, jan1(), entries)
	b := coverage.Reconcile(p, jan1(), entries)
	assert.True(t, a.Equal(b))
}

func TestReconcile_SameConceptReorderingIsCommutative(t *testing.T) {
	p := pricing("50", "30")
	for _, concept := range []coverage.Concept{coverage.ConceptAuto, coverage.ConceptPeriod, coverage.ConceptEnrollment} {
		a := coverage.Reconcile(p, jan1(), []coverage.Entry{
			pay("40", concept, day(1), 1),
			pay("40", concept, day(2), 2),
			pay("40", concept, day(3), 3),
		})
		b := coverage.Reconcile(p, jan1(), []coverage.Entry{
			pay("40", concept, day(3), 1),
			pay("40", concept, day(1), 2),
			pay("40", concept, day(2), 3),
		})
		assert.True(t, a.Equal(b), "concept %s: %s vs %s", concept, a, b)
	}
}

func TestReconcile_ConservationWithoutEnrollmentFee(t *testing.T) {
	p := pricing("37.5", "0")
	amounts := []string{"12.34", "50", "0.99", "100", "7.77", "37.5", "19.01"}

	var entries []coverage.Entry
	total := decimal.Zero
	for i, a := range amounts {
		entries = append(entries, pay(a, coverage.ConceptAuto, day(i+1), int64(i+1)))
		total = total.Add(money(a))

		s := coverage.Reconcile(p, jan1(), entries)
		accounted := p.MonthlyPrice.Mul(decimal.NewFromInt(int64(s.PeriodsCompleted()))).Add(s.Carry())
		assert.True(t, total.Sub(accounted).Abs().LessThanOrEqual(money("0.01")),
			"after %d payments: paid %s, accounted %s", i+1, total, accounted)
		assert.True(t, s.Carry().LessThan(p.MonthlyPrice))
	}
}

func TestReconcile_ZeroPeriodsMeansEndEqualsStart(t *testing.T) {
	s := coverage.Reconcile(pricing("50", "30"), jan1(), []coverage.Entry{
		pay("49.99", coverage.ConceptPeriod, day(1), 1),
	})

	assert.Equal(t, 0, s.PeriodsCompleted())
	assert.Equal(t, *jan1(), endDate(t, s))
	assert.False(t, s.HasCoverage())
}

// =============================================================================
// DEGENERATE INPUT
// =============================================================================

func TestReconcile_DegenerateInputsGiveZeroCoverage(t *testing.T) {
	entries := []coverage.Entry{pay("500", coverage.ConceptAuto, day(1), 1)}

	tests := []struct {
		name    string
		pricing coverage.Pricing
		start   *coverage.Date
	}{
		{"no start date", pricing("50", "30"), nil},
		{"zero monthly price", pricing("0", "30"), jan1()},
		{"negative monthly price", pricing("-10", "0"), jan1()},
		{"zero-value start date", pricing("50", "0"), &coverage.Date{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := coverage.Reconcile(tt.pricing, tt.start, entries)
			assert.True(t, s.Equal(coverage.Zero()))
			_, ok := s.EndDate()
			assert.False(t, ok)
		})
	}
}

func TestReconcile_NoPayments(t *testing.T) {
	s := coverage.Reconcile(pricing("50", "30"), jan1(), nil)
	assert.Equal(t, 0, s.PeriodsCompleted())
	assert.Equal(t, "2025-01-01", endDate(t, s).String())
}

// =============================================================================
// CONCEPT PARSING
// =============================================================================

func TestParseConcept(t *testing.T) {
	tests := []struct {
		in   string
		want coverage.Concept
	}{
		{"", coverage.ConceptAuto},
		{"auto", coverage.ConceptAuto},
		{"Enrollment", coverage.ConceptEnrollment},
		{"inscripcion", coverage.ConceptEnrollment},
		{"period", coverage.ConceptPeriod},
		{" mensualidad ", coverage.ConceptPeriod},
	}
	for _, tt := range tests {
		got, err := coverage.ParseConcept(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := coverage.ParseConcept("donation")
	assert.ErrorIs(t, err, coverage.ErrUnknownConcept)
}

func TestRestore_RejectsImpossibleValues(t *testing.T) {
	_, err := coverage.Restore(money("-1"), 0, decimal.Zero, nil)
	assert.Error(t, err)
	_, err = coverage.Restore(decimal.Zero, -2, decimal.Zero, nil)
	assert.Error(t, err)
	_, err = coverage.Restore(decimal.Zero, 0, money("-0.5"), nil)
	assert.Error(t, err)

	end := coverage.NewDate(2025, time.March, 2)
	s, err := coverage.Restore(money("30"), 2, money("10"), &end)
	require.NoError(t, err)
	assert.Equal(t, 2, s.PeriodsCompleted())
	assert.Equal(t, end, endDate(t, s))
}

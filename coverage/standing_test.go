package coverage_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/warp/tuition-engine/coverage"
)

func TestStanding_Labels(t *testing.T) {
	p := pricing("50", "0")
	// Two periods: end date 2025-03-02.
	s := coverage.Reconcile(p, jan1(), []coverage.Entry{pay("100", coverage.ConceptPeriod, day(1), 1)})

	tests := []struct {
		name      string
		today     coverage.Date
		label     coverage.Label
		days      int
		remaining int
	}{
		{"before classes start", coverage.NewDate(2024, time.December, 20), coverage.LabelNotStarted, 72, 72},
		{"well inside coverage", coverage.NewDate(2025, time.January, 15), coverage.LabelCurrent, 46, 46},
		{"seven days left", coverage.NewDate(2025, time.February, 23), coverage.LabelExpiring, 7, 7},
		{"last day", coverage.NewDate(2025, time.March, 2), coverage.LabelExpiring, 0, 0},
		{"one day late", coverage.NewDate(2025, time.March, 3), coverage.LabelExpired, -1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := coverage.Standing(s, jan1(), tt.today)
			assert.Equal(t, tt.label, st.Label)
			assert.Equal(t, tt.days, st.DaysToExpiry)
			assert.Equal(t, tt.remaining, st.DaysRemaining)
			assert.Equal(t, tt.days < 0, st.Expired)
		})
	}
}

func TestStanding_NoCoverage(t *testing.T) {
	p := pricing("50", "30")
	s := coverage.Reconcile(p, jan1(), []coverage.Entry{pay("50", coverage.ConceptAuto, day(1), 1)})

	st := coverage.Standing(s, jan1(), coverage.NewDate(2025, time.January, 10))
	assert.Equal(t, coverage.LabelNoCoverage, st.Label)
	assert.True(t, st.HasStarted)
	assert.False(t, st.Expired)

	st = coverage.Standing(coverage.Zero(), nil, coverage.NewDate(2025, time.January, 10))
	assert.Equal(t, coverage.LabelNoCoverage, st.Label)
	assert.False(t, st.HasStarted)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		days int
		want coverage.Category
		ok   bool
	}{
		{10, "", false},
		{4, "", false},
		{3, coverage.CategoryPreExpiry, true},
		{2, "", false},
		{0, "", false},
		{-1, coverage.CategoryPostExpiry, true},
		{-2, "", false},
		{-6, "", false},
		{-7, coverage.CategoryCritical, true},
		{-8, "", false},
		{-13, "", false},
		{-14, coverage.CategoryCritical, true},
		{-21, coverage.CategoryCritical, true},
		{-70, coverage.CategoryCritical, true},
		{-71, "", false},
	}

	for _, tt := range tests {
		got, ok := coverage.Classify(tt.days)
		assert.Equal(t, tt.ok, ok, "days=%d", tt.days)
		assert.Equal(t, tt.want, got, "days=%d", tt.days)
	}
}

func TestClassify_AtMostOneReminderPerDay(t *testing.T) {
	// Walking an expiry through 60 consecutive days, each day yields at most
	// one category and pre/post reminders fire exactly once.
	counts := map[coverage.Category]int{}
	for days := 30; days >= -30; days-- {
		if c, ok := coverage.Classify(days); ok {
			counts[c]++
		}
	}
	assert.Equal(t, 1, counts[coverage.CategoryPreExpiry])
	assert.Equal(t, 1, counts[coverage.CategoryPostExpiry])
	assert.Equal(t, 4, counts[coverage.CategoryCritical]) // -7, -14, -21, -28
}

func TestDate_Arithmetic(t *testing.T) {
	start := coverage.NewDate(2025, time.January, 1)
	assert.Equal(t, "2025-01-31", coverage.CoverageEnd(start, 1).String())
	assert.Equal(t, "2025-04-01", coverage.CoverageEnd(start, 3).String())
	assert.Equal(t, start, coverage.CoverageEnd(start, 0))

	// Across a DST boundary in a real zone the day count stays whole.
	loc, err := time.LoadLocation("America/New_York")
	if err == nil {
		a := coverage.DateOf(time.Date(2025, time.March, 8, 23, 0, 0, 0, loc))
		b := coverage.DateOf(time.Date(2025, time.March, 10, 1, 0, 0, 0, loc))
		assert.Equal(t, 2, a.DaysUntil(b))
	}

	d, err := coverage.ParseDate("2025-02-28")
	assert.NoError(t, err)
	assert.Equal(t, 1, d.DaysUntil(coverage.NewDate(2025, time.March, 1)))

	_, err = coverage.ParseDate("28/02/2025")
	assert.Error(t, err)
}

func TestParseLabel(t *testing.T) {
	for _, in := range []string{"no-coverage", "not-started", "current", " Expiring ", "EXPIRED"} {
		l, ok := coverage.ParseLabel(in)
		assert.True(t, ok, in)
		assert.NotEmpty(t, l)
	}
	_, ok := coverage.ParseLabel("overdue")
	assert.False(t, ok)
	_, ok = coverage.ParseLabel("")
	assert.False(t, ok)
}

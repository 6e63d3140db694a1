package coverage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/tuition-engine/coverage"
)

func TestSuggest_NewStudent(t *testing.T) {
	p := pricing("50", "30")
	got := coverage.Suggest(coverage.Reconcile(p, jan1(), nil), p)

	require.Len(t, got, 4)
	assert.Equal(t, "Complete enrollment", got[0].Title)
	assertMoney(t, "30", got[0].Amount)
	assert.Equal(t, coverage.ConceptEnrollment, got[0].Concept)

	assert.Equal(t, "1 period", got[1].Title)
	assert.Equal(t, "Enrollment + 1 period", got[2].Title)
	assertMoney(t, "80", got[2].Amount)
	assert.Equal(t, coverage.ConceptAuto, got[2].Concept)

	assert.Equal(t, "3 periods", got[3].Title)
	assertMoney(t, "150", got[3].Amount)
	assert.Equal(t, coverage.PriorityLow, got[3].Priority)
}

func TestSuggest_WithCredit(t *testing.T) {
	p := pricing("50", "30")
	s := coverage.Reconcile(p, jan1(), []coverage.Entry{pay("50", coverage.ConceptAuto, day(1), 1)})

	got := coverage.Suggest(s, p)

	require.Len(t, got, 3)
	assert.Equal(t, "Complete current period", got[0].Title)
	assertMoney(t, "30", got[0].Amount)
	assert.Equal(t, coverage.ConceptPeriod, got[0].Concept)
	assert.Contains(t, got[0].Description, "$20.00")
}

func TestSuggest_InvalidPricing(t *testing.T) {
	assert.Nil(t, coverage.Suggest(coverage.Zero(), pricing("0", "30")))
}

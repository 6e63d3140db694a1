package coverage

import "strings"

// =============================================================================
// STANDING - Where a student stands relative to today
// =============================================================================

// ExpiringSoonDays is the window in which coverage counts as about to expire.
const ExpiringSoonDays = 7

// Label is a coarse payment status for lists and dashboards.
type Label string

const (
	LabelNoCoverage Label = "no-coverage"
	LabelNotStarted Label = "not-started"
	LabelCurrent    Label = "current"
	LabelExpiring   Label = "expiring"
	LabelExpired    Label = "expired"
)

// ParseLabel accepts one of the five labels, case-insensitively.
func ParseLabel(s string) (Label, bool) {
	l := Label(strings.ToLower(strings.TrimSpace(s)))
	switch l {
	case LabelNoCoverage, LabelNotStarted, LabelCurrent, LabelExpiring, LabelExpired:
		return l, true
	}
	return "", false
}

// Status describes a student's coverage as of a given day.
type Status struct {
	HasStarted    bool
	DaysToExpiry  int // signed; negative once expired
	DaysRemaining int // DaysToExpiry clamped at zero
	Expired       bool
	ExpiringSoon  bool
	Label         Label
}

// Standing evaluates s against today. A nil start means classes have no date
// yet, so nothing has started.
func Standing(s State, start *Date, today Date) Status {
	var st Status
	if start != nil && !start.IsZero() {
		st.HasStarted = today.AfterOrEqual(*start)
	}

	end, ok := s.EndDate()
	if !ok || !s.HasCoverage() {
		st.Label = LabelNoCoverage
		return st
	}

	st.DaysToExpiry = today.DaysUntil(end)
	st.DaysRemaining = max(st.DaysToExpiry, 0)
	st.Expired = st.DaysToExpiry < 0
	st.ExpiringSoon = st.DaysToExpiry >= 0 && st.DaysToExpiry <= ExpiringSoonDays

	switch {
	case !st.HasStarted:
		st.Label = LabelNotStarted
	case st.Expired:
		st.Label = LabelExpired
	case st.ExpiringSoon:
		st.Label = LabelExpiring
	default:
		st.Label = LabelCurrent
	}
	return st
}

// =============================================================================
// REMINDER CATEGORIES
// =============================================================================

// Category is the kind of reminder a student is due today.
type Category string

const (
	CategoryPreExpiry  Category = "pre_expiry"  // exactly 3 days before the end date
	CategoryPostExpiry Category = "post_expiry" // exactly 1 day after
	CategoryCritical   Category = "critical"    // every 7th day from day 7 on
)

const (
	preExpiryDays     = 3
	postExpiryDays    = -1
	criticalStartDays = -7
	criticalEvery     = 7
)

// Classify maps the signed days to expiry onto a reminder category. Each
// condition holds for a single absolute day, so a daily run cannot repeat a
// reminder.
func Classify(daysToExpiry int) (Category, bool) {
	switch {
	case daysToExpiry == preExpiryDays:
		return CategoryPreExpiry, true
	case daysToExpiry == postExpiryDays:
		return CategoryPostExpiry, true
	case daysToExpiry <= criticalStartDays && (-daysToExpiry)%criticalEvery == 0:
		return CategoryCritical, true
	default:
		return "", false
	}
}

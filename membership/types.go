/*
Package membership owns courses, students and payments, and keeps every
student's derived coverage in step with their payment history.

PURPOSE:
  The coverage package knows how to replay payments. This package decides
  when to replay them: after every payment insert or delete, after a course
  price change and after a student changes course or start date. Each replay
  runs under the student's lock and inside one store transaction, so the
  four derived fields are always written together.

KEY CONCEPTS:
  Course:  billing plan (monthly price + enrollment fee)
  Student: person enrolled in at most one course; carries a coverage.State
  Payment: money received, tagged with a concept, never edited in place

RECOMPUTE TRIGGERS:
  RecordPayment, DeletePayment                  -> replay one student
  UpdateStudent (course or classes start moved) -> replay one student
  UpdateCourse (price or fee changed)           -> replay every student in it
  Recompute                                     -> manual repair

SEE ALSO:
  - coverage/reconcile.go: the replay itself
  - store.go: persistence contract
  - locker.go: per-student serialization
*/
package membership

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/tuition-engine/coverage"
)

// =============================================================================
// RECORDS
// =============================================================================

// Course is a billing plan.
type Course struct {
	ID            string
	Name          string
	Description   string
	MonthlyPrice  decimal.Decimal
	EnrollmentFee decimal.Decimal
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Pricing is the view of the course the replay reads.
func (c Course) Pricing() coverage.Pricing {
	return coverage.Pricing{MonthlyPrice: c.MonthlyPrice, EnrollmentFee: c.EnrollmentFee}
}

// Student is an enrolled person. Coverage is derived; SaveStudent never
// writes it, only WriteCoverage does.
type Student struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	Notes        string
	CourseID     string // empty when not enrolled
	ClassesStart *coverage.Date
	Active       bool
	Coverage     coverage.State
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FullName joins first and last name.
func (s Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// Payment is money received from a student. Seq is assigned by the store on
// insert and only grows; the replay uses it to order payments that share a
// timestamp.
type Payment struct {
	ID        string
	StudentID string
	Amount    decimal.Decimal
	PaidAt    time.Time
	Concept   coverage.Concept
	Method    string
	Reference string
	Notes     string
	Seq       int64
	CreatedAt time.Time
}

// Entry converts the payment to what the replay consumes.
func (p Payment) Entry() coverage.Entry {
	return coverage.Entry{Amount: p.Amount, PaidAt: p.PaidAt, Concept: p.Concept, Seq: p.Seq}
}

// Enrollment pairs an active student with the course they attend.
type Enrollment struct {
	Student Student
	Course  Course
}

// StudentFilter narrows ListStudents. Zero value lists everybody.
type StudentFilter struct {
	CourseID   string
	ActiveOnly bool
	Search     string // case-insensitive match on name or email
}

// Matches reports whether s passes the filter.
func (f StudentFilter) Matches(s Student) bool {
	if f.CourseID != "" && s.CourseID != f.CourseID {
		return false
	}
	if f.ActiveOnly && !s.Active {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		hay := strings.ToLower(s.FullName() + " " + s.Email)
		if !strings.Contains(hay, q) {
			return false
		}
	}
	return true
}

// =============================================================================
// INPUTS
// =============================================================================

// CourseInput carries the editable fields of a course.
type CourseInput struct {
	Name          string
	Description   string
	MonthlyPrice  decimal.Decimal
	EnrollmentFee decimal.Decimal
	Active        *bool // nil keeps the current value (true on create)
}

// StudentInput carries the editable fields of a student.
type StudentInput struct {
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	Notes        string
	CourseID     string
	ClassesStart *coverage.Date
	Active       *bool
}

// PaymentInput describes a payment to record or preview. A zero PaidAt
// means "now".
type PaymentInput struct {
	Amount    decimal.Decimal
	PaidAt    time.Time
	Concept   coverage.Concept
	Method    string
	Reference string
	Notes     string
}

// =============================================================================
// READ MODELS
// =============================================================================

// StudentSummary is everything the student detail page shows.
type StudentSummary struct {
	Student           Student
	Course            *Course
	Status            coverage.Status
	EnrollmentPending decimal.Decimal
	EnrollmentPercent decimal.Decimal
	TotalPaid         decimal.Decimal
	PaymentCount      int
	LastPayment       *Payment
}

// StudentStanding is a student with their status as of a given day.
type StudentStanding struct {
	Student Student
	Status  coverage.Status
}

// PaymentReport is the payments received over a range of calendar days.
// A nil bound is open.
type PaymentReport struct {
	From     *coverage.Date
	To       *coverage.Date
	Payments []Payment
	Total    decimal.Decimal
}

// Stats are the dashboard counters.
type Stats struct {
	ActiveStudents     int
	Courses            int
	ExpiringSoon       int
	Expired            int
	NoCoverage         int
	CollectedThisMonth decimal.Decimal
}

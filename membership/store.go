package membership

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/tuition-engine/coverage"
)

// =============================================================================
// STORE - Persistence contract
// =============================================================================

// Store persists courses, students and payments.
//
// Get methods return ErrCourseNotFound, ErrStudentNotFound or
// ErrPaymentNotFound (possibly wrapped) for unknown IDs.
//
// Implementations:
//   - membership/store: in-memory, snapshot + rollback transactions
//   - store/sqlite: SQLite
type Store interface {
	SaveCourse(ctx context.Context, c Course) error
	GetCourse(ctx context.Context, id string) (*Course, error)
	ListCourses(ctx context.Context) ([]Course, error)
	DeleteCourse(ctx context.Context, id string) error
	CountStudentsInCourse(ctx context.Context, courseID string) (int, error)

	// SaveStudent inserts or updates the student's own fields. The derived
	// coverage columns are left untouched; use WriteCoverage.
	// Returns ErrDuplicateEmail when another student has the same email.
	SaveStudent(ctx context.Context, s Student) error
	GetStudent(ctx context.Context, id string) (*Student, error)
	ListStudents(ctx context.Context, f StudentFilter) ([]Student, error)
	// DeleteStudent removes the student and all their payments.
	DeleteStudent(ctx context.Context, id string) error

	// WriteCoverage replaces the four derived fields in one update.
	WriteCoverage(ctx context.Context, studentID string, state coverage.State) error

	// InsertPayment stores p and returns it with Seq (and CreatedAt) set.
	InsertPayment(ctx context.Context, p Payment) (Payment, error)
	GetPayment(ctx context.Context, id string) (*Payment, error)
	DeletePayment(ctx context.Context, id string) error
	// ListPaymentsForStudent returns the student's payments in insertion order.
	ListPaymentsForStudent(ctx context.Context, studentID string) ([]Payment, error)
	// RecentPayments returns the latest payments by PaidAt, newest first.
	RecentPayments(ctx context.Context, limit int) ([]Payment, error)
	// PaymentsBetween returns payments with PaidAt in [from, to), oldest first
	// with ties in insertion order. A zero bound is open. Payments without a
	// timestamp are never included.
	PaymentsBetween(ctx context.Context, from, to time.Time) ([]Payment, error)
	// SumPayments totals payments with PaidAt in [from, to).
	SumPayments(ctx context.Context, from, to time.Time) (decimal.Decimal, error)

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

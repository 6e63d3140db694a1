package membership

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/tuition-engine/coverage"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// PaymentHook runs after a payment is committed. Errors are logged, never
// returned to the caller: the payment is already recorded.
type PaymentHook func(ctx context.Context, s Student, c Course, p Payment, after coverage.State) error

// Service is the entry point for every mutation of membership data.
type Service struct {
	store Store
	locks Locker
	log   *zap.Logger
	now   func() time.Time
	loc   *time.Location
	hooks []PaymentHook
}

// Option configures a Service.
type Option func(*Service)

// WithLocker replaces the in-process KeyedMutex, e.g. with a RedisLocker.
func WithLocker(l Locker) Option { return func(s *Service) { s.locks = l } }

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.log = l } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithLocation sets the business timezone used for "today" and month bounds.
func WithLocation(loc *time.Location) Option { return func(s *Service) { s.loc = loc } }

// OnPaymentRecorded registers a hook fired after RecordPayment commits.
func OnPaymentRecorded(h PaymentHook) Option {
	return func(s *Service) { s.hooks = append(s.hooks, h) }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		locks: NewKeyedMutex(),
		log:   zap.NewNop(),
		now:   time.Now,
		loc:   time.UTC,
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.Named("membership")
	return s
}

// Today is the current calendar day in the business timezone.
func (s *Service) Today() coverage.Date {
	return coverage.DateOf(s.now().In(s.loc))
}

// Location is the business timezone.
func (s *Service) Location() *time.Location { return s.loc }

// =============================================================================
// COURSES
// =============================================================================

func validateCourse(in CourseInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return invalidf("name", "name is required")
	}
	if !in.MonthlyPrice.IsPositive() {
		return invalid("monthly_price", ErrInvalidPrice)
	}
	if in.EnrollmentFee.IsNegative() {
		return invalidf("enrollment_fee", "enrollment fee cannot be negative")
	}
	return nil
}

func (s *Service) CreateCourse(ctx context.Context, in CourseInput) (*Course, error) {
	if err := validateCourse(in); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	c := Course{
		ID:            uuid.NewString(),
		Name:          strings.TrimSpace(in.Name),
		Description:   strings.TrimSpace(in.Description),
		MonthlyPrice:  coverage.Round2(in.MonthlyPrice),
		EnrollmentFee: coverage.Round2(in.EnrollmentFee),
		Active:        in.Active == nil || *in.Active,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.SaveCourse(ctx, c); err != nil {
		return nil, fmt.Errorf("save course: %w", err)
	}
	s.log.Info("course created", zap.String("course_id", c.ID), zap.String("name", c.Name))
	return &c, nil
}

// UpdateCourse edits a course. A price or fee change replays every student
// in the course, since their coverage was computed against the old pricing.
// The course is saved even when some replays fail; the error then wraps
// ErrRepriceIncomplete and POST /students/{id}/recompute repairs the rest.
func (s *Service) UpdateCourse(ctx context.Context, id string, in CourseInput) (*Course, error) {
	if err := validateCourse(in); err != nil {
		return nil, err
	}
	c, err := s.store.GetCourse(ctx, id)
	if err != nil {
		return nil, err
	}

	price, fee := coverage.Round2(in.MonthlyPrice), coverage.Round2(in.EnrollmentFee)
	repriced := !c.MonthlyPrice.Equal(price) || !c.EnrollmentFee.Equal(fee)

	c.Name = strings.TrimSpace(in.Name)
	c.Description = strings.TrimSpace(in.Description)
	c.MonthlyPrice = price
	c.EnrollmentFee = fee
	if in.Active != nil {
		c.Active = *in.Active
	}
	c.UpdatedAt = s.now().UTC()
	if err := s.store.SaveCourse(ctx, *c); err != nil {
		return nil, fmt.Errorf("save course: %w", err)
	}

	if repriced {
		if err := s.recomputeCourse(ctx, c.ID); err != nil {
			return c, err
		}
	}
	return c, nil
}

// recomputeCourse replays every student of the course. One failing student
// does not stop the others; the failures come back combined.
func (s *Service) recomputeCourse(ctx context.Context, courseID string) error {
	students, err := s.store.ListStudents(ctx, StudentFilter{CourseID: courseID})
	if err != nil {
		return fmt.Errorf("list students of course %s: %w", courseID, err)
	}

	var errs error
	failed := 0
	for _, st := range students {
		if _, err := s.Recompute(ctx, st.ID); err != nil {
			failed++
			errs = multierr.Append(errs, fmt.Errorf("recompute student %s: %w", st.ID, err))
			s.log.Warn("reprice replay failed", zap.String("course_id", courseID), zap.String("student_id", st.ID), zap.Error(err))
		}
	}
	s.log.Info("course repriced",
		zap.String("course_id", courseID),
		zap.Int("students", len(students)),
		zap.Int("failed", failed),
	)
	if errs != nil {
		return fmt.Errorf("%w: %d of %d students not replayed: %w", ErrRepriceIncomplete, failed, len(students), errs)
	}
	return nil
}

func (s *Service) GetCourse(ctx context.Context, id string) (*Course, error) {
	return s.store.GetCourse(ctx, id)
}

func (s *Service) ListCourses(ctx context.Context) ([]Course, error) {
	return s.store.ListCourses(ctx)
}

// DeleteCourse refuses to remove a course students still reference.
func (s *Service) DeleteCourse(ctx context.Context, id string) error {
	return s.store.WithTx(ctx, func(tx Store) error {
		if _, err := tx.GetCourse(ctx, id); err != nil {
			return err
		}
		n, err := tx.CountStudentsInCourse(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %d student(s)", ErrCourseInUse, n)
		}
		return tx.DeleteCourse(ctx, id)
	})
}

// =============================================================================
// STUDENTS
// =============================================================================

func (s *Service) validateStudent(ctx context.Context, tx Store, in StudentInput) error {
	if strings.TrimSpace(in.FirstName) == "" {
		return invalidf("first_name", "first name is required")
	}
	if e := strings.TrimSpace(in.Email); e != "" && !strings.Contains(e, "@") {
		return invalidf("email", "invalid email address %q", e)
	}
	if in.CourseID != "" {
		if _, err := tx.GetCourse(ctx, in.CourseID); err != nil {
			if errors.Is(err, ErrCourseNotFound) {
				return invalid("course_id", ErrCourseNotFound)
			}
			return err
		}
	}
	return nil
}

func (s *Service) CreateStudent(ctx context.Context, in StudentInput) (*Student, error) {
	now := s.now().UTC()
	st := Student{
		ID:           uuid.NewString(),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:        strings.TrimSpace(in.Phone),
		Notes:        in.Notes,
		CourseID:     in.CourseID,
		ClassesStart: in.ClassesStart,
		Active:       in.Active == nil || *in.Active,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.store.WithTx(ctx, func(tx Store) error {
		if err := s.validateStudent(ctx, tx, in); err != nil {
			return err
		}
		if err := tx.SaveStudent(ctx, st); err != nil {
			return err
		}
		// No payments yet, but the end date still follows the start date.
		_, err := s.replay(ctx, tx, st.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("student created", zap.String("student_id", st.ID), zap.String("course_id", st.CourseID))
	return s.store.GetStudent(ctx, st.ID)
}

// UpdateStudent edits a student. Changing course or classes start replays
// their payments.
func (s *Service) UpdateStudent(ctx context.Context, id string, in StudentInput) (*Student, error) {
	unlock, err := s.locks.Lock(ctx, studentKey(id))
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = s.store.WithTx(ctx, func(tx Store) error {
		st, err := tx.GetStudent(ctx, id)
		if err != nil {
			return err
		}
		if err := s.validateStudent(ctx, tx, in); err != nil {
			return err
		}

		moved := st.CourseID != in.CourseID || !sameDate(st.ClassesStart, in.ClassesStart)

		st.FirstName = strings.TrimSpace(in.FirstName)
		st.LastName = strings.TrimSpace(in.LastName)
		st.Email = strings.ToLower(strings.TrimSpace(in.Email))
		st.Phone = strings.TrimSpace(in.Phone)
		st.Notes = in.Notes
		st.CourseID = in.CourseID
		st.ClassesStart = in.ClassesStart
		if in.Active != nil {
			st.Active = *in.Active
		}
		st.UpdatedAt = s.now().UTC()

		if err := tx.SaveStudent(ctx, *st); err != nil {
			return err
		}
		if moved {
			_, err = s.replay(ctx, tx, id)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.store.GetStudent(ctx, id)
}

func sameDate(a, b *coverage.Date) bool {
	switch {
	case a == nil && b == nil:
		return true
	case a == nil || b == nil:
		return false
	default:
		return a.Equal(*b)
	}
}

func (s *Service) GetStudent(ctx context.Context, id string) (*Student, error) {
	return s.store.GetStudent(ctx, id)
}

func (s *Service) ListStudents(ctx context.Context, f StudentFilter) ([]Student, error) {
	return s.store.ListStudents(ctx, f)
}

// DeleteStudent removes the student together with their payments.
func (s *Service) DeleteStudent(ctx context.Context, id string) error {
	unlock, err := s.locks.Lock(ctx, studentKey(id))
	if err != nil {
		return err
	}
	defer unlock()

	return s.store.WithTx(ctx, func(tx Store) error {
		if _, err := tx.GetStudent(ctx, id); err != nil {
			return err
		}
		return tx.DeleteStudent(ctx, id)
	})
}

// ActiveEnrollments returns active students that have a course, each with
// their course. Read fresh on every call.
func (s *Service) ActiveEnrollments(ctx context.Context) ([]Enrollment, error) {
	students, err := s.store.ListStudents(ctx, StudentFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	courses, err := s.store.ListCourses(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Course, len(courses))
	for _, c := range courses {
		byID[c.ID] = c
	}

	var out []Enrollment
	for _, st := range students {
		c, ok := byID[st.CourseID]
		if !ok {
			continue
		}
		out = append(out, Enrollment{Student: st, Course: c})
	}
	return out, nil
}

// Enrollment returns the student with their course. A student without a
// course is a validation error.
func (s *Service) Enrollment(ctx context.Context, studentID string) (*Enrollment, error) {
	st, course, err := loadEnrollment(ctx, s.store, studentID)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, invalid("student_id", ErrNoCourse)
	}
	return &Enrollment{Student: *st, Course: *course}, nil
}

// StudentsByStatus lists the students passing f whose label as of today is
// one of labels (any label when none are given). Most urgent first: no
// coverage, then fewest days to expiry, then by name.
func (s *Service) StudentsByStatus(ctx context.Context, f StudentFilter, today coverage.Date, labels ...coverage.Label) ([]StudentStanding, error) {
	students, err := s.store.ListStudents(ctx, f)
	if err != nil {
		return nil, err
	}
	want := make(map[coverage.Label]bool, len(labels))
	for _, l := range labels {
		want[l] = true
	}

	out := make([]StudentStanding, 0, len(students))
	for _, st := range students {
		status := coverage.Standing(st.Coverage, st.ClassesStart, today)
		if len(want) > 0 && !want[status.Label] {
			continue
		}
		out = append(out, StudentStanding{Student: st, Status: status})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		aNone, bNone := a.Status.Label == coverage.LabelNoCoverage, b.Status.Label == coverage.LabelNoCoverage
		if aNone != bNone {
			return aNone
		}
		if !aNone && a.Status.DaysToExpiry != b.Status.DaysToExpiry {
			return a.Status.DaysToExpiry < b.Status.DaysToExpiry
		}
		return strings.ToLower(a.Student.FullName()) < strings.ToLower(b.Student.FullName())
	})
	return out, nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

// validatePayment checks everything RecordPayment needs before touching
// the store.
func validatePayment(st *Student, c *Course, in PaymentInput) error {
	if !coverage.Round2(in.Amount).IsPositive() {
		return invalid("amount", ErrInvalidAmount)
	}
	if !in.Concept.Valid() {
		return invalid("concept", fmt.Errorf("%w: %q", coverage.ErrUnknownConcept, in.Concept))
	}
	if !st.Active {
		return invalid("student_id", ErrStudentInactive)
	}
	if c == nil {
		return invalid("student_id", ErrNoCourse)
	}
	if !c.MonthlyPrice.IsPositive() {
		return invalid("course_id", ErrInvalidPrice)
	}
	if st.ClassesStart == nil || st.ClassesStart.IsZero() {
		return invalid("classes_start", ErrNoStartDate)
	}
	return nil
}

// loadEnrollment reads a student and their course (nil when unassigned).
func loadEnrollment(ctx context.Context, tx Store, studentID string) (*Student, *Course, error) {
	st, err := tx.GetStudent(ctx, studentID)
	if err != nil {
		return nil, nil, err
	}
	if st.CourseID == "" {
		return st, nil, nil
	}
	c, err := tx.GetCourse(ctx, st.CourseID)
	if errors.Is(err, ErrCourseNotFound) {
		return st, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return st, c, nil
}

// RecordPayment validates, inserts and replays in one transaction.
func (s *Service) RecordPayment(ctx context.Context, studentID string, in PaymentInput) (*Payment, coverage.State, error) {
	if in.Concept == "" {
		in.Concept = coverage.ConceptAuto
	}
	if in.PaidAt.IsZero() {
		in.PaidAt = s.now()
	}

	unlock, err := s.locks.Lock(ctx, studentKey(studentID))
	if err != nil {
		return nil, coverage.State{}, err
	}
	defer unlock()

	var (
		saved  Payment
		state  coverage.State
		st     *Student
		course *Course
	)
	err = s.store.WithTx(ctx, func(tx Store) error {
		var err error
		st, course, err = loadEnrollment(ctx, tx, studentID)
		if err != nil {
			return err
		}
		if err := validatePayment(st, course, in); err != nil {
			return err
		}

		saved, err = tx.InsertPayment(ctx, Payment{
			ID:        uuid.NewString(),
			StudentID: studentID,
			Amount:    coverage.Round2(in.Amount),
			PaidAt:    in.PaidAt.UTC(),
			Concept:   in.Concept,
			Method:    strings.TrimSpace(in.Method),
			Reference: strings.TrimSpace(in.Reference),
			Notes:     in.Notes,
		})
		if err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}

		state, err = s.replay(ctx, tx, studentID)
		return err
	})
	if err != nil {
		return nil, coverage.State{}, err
	}

	s.log.Info("payment recorded",
		zap.String("student_id", studentID),
		zap.String("payment_id", saved.ID),
		zap.String("amount", saved.Amount.StringFixed(2)),
		zap.String("concept", saved.Concept.String()),
		zap.Int("periods", state.PeriodsCompleted()),
		zap.String("carry", state.Carry().StringFixed(2)),
	)

	st.Coverage = state
	for _, h := range s.hooks {
		if err := h(ctx, *st, *course, saved, state); err != nil {
			s.log.Warn("payment hook failed", zap.String("payment_id", saved.ID), zap.Error(err))
		}
	}
	return &saved, state, nil
}

// DeletePayment removes a payment and replays the remaining history.
func (s *Service) DeletePayment(ctx context.Context, paymentID string) (coverage.State, error) {
	p, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return coverage.State{}, err
	}

	unlock, err := s.locks.Lock(ctx, studentKey(p.StudentID))
	if err != nil {
		return coverage.State{}, err
	}
	defer unlock()

	var state coverage.State
	err = s.store.WithTx(ctx, func(tx Store) error {
		if err := tx.DeletePayment(ctx, paymentID); err != nil {
			return err
		}
		state, err = s.replay(ctx, tx, p.StudentID)
		return err
	})
	if err != nil {
		return coverage.State{}, err
	}

	s.log.Info("payment deleted",
		zap.String("student_id", p.StudentID),
		zap.String("payment_id", paymentID),
		zap.Int("periods", state.PeriodsCompleted()),
	)
	return state, nil
}

func (s *Service) ListPayments(ctx context.Context, studentID string) ([]Payment, error) {
	if _, err := s.store.GetStudent(ctx, studentID); err != nil {
		return nil, err
	}
	return s.store.ListPaymentsForStudent(ctx, studentID)
}

func (s *Service) RecentPayments(ctx context.Context, limit int) ([]Payment, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.store.RecentPayments(ctx, limit)
}

// PaymentsBetween reports the payments made from the start of from through
// the end of to, both calendar days in the business timezone.
func (s *Service) PaymentsBetween(ctx context.Context, from, to *coverage.Date) (*PaymentReport, error) {
	if from != nil && to != nil && to.Before(*from) {
		return nil, invalidf("to", "to (%s) is before from (%s)", to, from)
	}
	var lo, hi time.Time
	if from != nil {
		lo = s.midnight(*from)
	}
	if to != nil {
		hi = s.midnight(to.AddDays(1))
	}

	payments, err := s.store.PaymentsBetween(ctx, lo, hi)
	if err != nil {
		return nil, err
	}
	rep := &PaymentReport{From: from, To: to, Payments: payments, Total: decimal.Zero}
	for _, p := range payments {
		rep.Total = rep.Total.Add(p.Amount)
	}
	return rep, nil
}

func (s *Service) midnight(d coverage.Date) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, s.loc).UTC()
}

// =============================================================================
// REPLAY
// =============================================================================

// Recompute replays a student's full history and stores the result.
func (s *Service) Recompute(ctx context.Context, studentID string) (coverage.State, error) {
	unlock, err := s.locks.Lock(ctx, studentKey(studentID))
	if err != nil {
		return coverage.State{}, err
	}
	defer unlock()

	var state coverage.State
	err = s.store.WithTx(ctx, func(tx Store) error {
		state, err = s.replay(ctx, tx, studentID)
		return err
	})
	return state, err
}

// replay must run inside a transaction while holding the student's lock.
func (s *Service) replay(ctx context.Context, tx Store, studentID string) (coverage.State, error) {
	st, course, err := loadEnrollment(ctx, tx, studentID)
	if err != nil {
		return coverage.State{}, err
	}
	payments, err := tx.ListPaymentsForStudent(ctx, studentID)
	if err != nil {
		return coverage.State{}, fmt.Errorf("load payments: %w", err)
	}

	var pricing coverage.Pricing
	if course != nil {
		pricing = course.Pricing()
	}
	entries := make([]coverage.Entry, len(payments))
	for i, p := range payments {
		entries[i] = p.Entry()
	}

	state := coverage.Reconcile(pricing, st.ClassesStart, entries)
	if err := tx.WriteCoverage(ctx, studentID, state); err != nil {
		return coverage.State{}, fmt.Errorf("write coverage: %w", err)
	}

	s.log.Debug("coverage replayed",
		zap.String("student_id", studentID),
		zap.Int("payments", len(payments)),
		zap.Stringer("state", state),
	)
	return state, nil
}

// =============================================================================
// READ-ONLY HELPERS
// =============================================================================

// Preview simulates a payment against the student's stored coverage.
func (s *Service) Preview(ctx context.Context, studentID string, amount decimal.Decimal, concept coverage.Concept) (coverage.Preview, error) {
	st, course, err := loadEnrollment(ctx, s.store, studentID)
	if err != nil {
		return coverage.Preview{}, err
	}
	if concept == "" {
		concept = coverage.ConceptAuto
	}
	var pricing coverage.Pricing
	if course != nil {
		pricing = course.Pricing()
	}
	return coverage.PreviewPayment(amount, concept, st.Coverage, pricing), nil
}

// Suggestions lists quick-pay amounts for a student.
func (s *Service) Suggestions(ctx context.Context, studentID string) ([]coverage.Suggestion, error) {
	st, course, err := loadEnrollment(ctx, s.store, studentID)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, nil
	}
	return coverage.Suggest(st.Coverage, course.Pricing()), nil
}

// Summary gathers the student detail view as of today.
func (s *Service) Summary(ctx context.Context, studentID string, today coverage.Date) (*StudentSummary, error) {
	st, course, err := loadEnrollment(ctx, s.store, studentID)
	if err != nil {
		return nil, err
	}
	payments, err := s.store.ListPaymentsForStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}

	sum := &StudentSummary{
		Student:           *st,
		Course:            course,
		Status:            coverage.Standing(st.Coverage, st.ClassesStart, today),
		EnrollmentPending: decimal.Zero,
		EnrollmentPercent: decimal.Zero,
		TotalPaid:         decimal.Zero,
		PaymentCount:      len(payments),
	}
	if course != nil {
		sum.EnrollmentPending = st.Coverage.EnrollmentPending(course.Pricing())
		sum.EnrollmentPercent = st.Coverage.EnrollmentPercent(course.Pricing())
	}
	for i := range payments {
		p := payments[i]
		sum.TotalPaid = sum.TotalPaid.Add(p.Amount)
		if sum.LastPayment == nil || p.PaidAt.After(sum.LastPayment.PaidAt) {
			sum.LastPayment = &p
		}
	}
	return sum, nil
}

// Stats computes the dashboard counters as of today.
func (s *Service) Stats(ctx context.Context, today coverage.Date) (*Stats, error) {
	students, err := s.store.ListStudents(ctx, StudentFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	courses, err := s.store.ListCourses(ctx)
	if err != nil {
		return nil, err
	}

	out := &Stats{ActiveStudents: len(students), Courses: len(courses)}
	for _, st := range students {
		status := coverage.Standing(st.Coverage, st.ClassesStart, today)
		switch status.Label {
		case coverage.LabelExpiring:
			out.ExpiringSoon++
		case coverage.LabelExpired:
			out.Expired++
		case coverage.LabelNoCoverage:
			out.NoCoverage++
		}
	}

	first := today.StartOfMonth()
	next := first.Time().AddDate(0, 1, 0)
	out.CollectedThisMonth, err = s.store.SumPayments(ctx, s.midnight(first), s.midnight(coverage.DateOf(next)))
	if err != nil {
		return nil, err
	}
	return out, nil
}

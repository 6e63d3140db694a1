/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements membership.Store and notify.RunLog using SQLite. The same
  schema runs on PostgreSQL with minor dialect changes.

INTERFACES IMPLEMENTED:
  membership.Store: courses, students, payments, derived coverage
  notify.RunLog:    reminder run history and the once-per-day guard

KEY TABLES:
  courses:           Billing plans
  students:          Person data + the four derived coverage columns
  payments:          Payment history; seq is the insertion order
  notification_runs: One row per reminder batch

DERIVED COLUMNS:
  students.enrollment_paid, periods_completed, carry and coverage_end are
  written only by WriteCoverage, in a single UPDATE. SaveStudent's upsert
  never lists them.

MONEY AND TIME:
  Amounts are stored as decimal TEXT, never REAL. Timestamps are UTC text
  in a fixed-width layout so string order equals time order. Calendar days
  are YYYY-MM-DD.

CONCURRENCY:
  SQLite allows one writer. The pool is capped at a single connection, so
  statements and transactions are serialized by database/sql itself.
  busy_timeout covers other processes sharing the file.

USAGE:
  store, err := sqlite.New("./tuition.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := membership.NewService(store)

SEE ALSO:
  - membership/store.go: Interface definition
  - membership/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/tuition-engine/coverage"
	"github.com/warp/tuition-engine/membership"
	"github.com/warp/tuition-engine/notify"
)

// timeLayout is RFC3339 with fixed nanoseconds; always written in UTC.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements all storage interfaces using SQLite.
type Store struct {
	queries
	db *sql.DB
}

var (
	_ membership.Store = (*Store)(nil)
	_ notify.RunLog    = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"
	if dbPath != ":memory:" {
		dsn += "&_journal_mode=WAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: a second one to ":memory:" would be a different database.
	db.SetMaxOpenConns(1)

	store := &Store{queries: queries{db: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS courses (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		monthly_price TEXT NOT NULL,
		enrollment_fee TEXT NOT NULL DEFAULT '0',
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL DEFAULT '',
		email TEXT,
		phone TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		course_id TEXT REFERENCES courses(id),
		classes_start TEXT,
		active INTEGER NOT NULL DEFAULT 1,

		-- Derived by replaying payments; written only by WriteCoverage
		enrollment_paid TEXT NOT NULL DEFAULT '0',
		periods_completed INTEGER NOT NULL DEFAULT 0,
		carry TEXT NOT NULL DEFAULT '0',
		coverage_end TEXT,

		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_students_email
		ON students(email COLLATE NOCASE) WHERE email IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_students_course
		ON students(course_id);

	-- seq is the insertion order; it breaks ties between equal paid_at values
	CREATE TABLE IF NOT EXISTS payments (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		student_id TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
		amount TEXT NOT NULL,
		paid_at TEXT,
		concept TEXT NOT NULL DEFAULT 'auto',
		method TEXT NOT NULL DEFAULT '',
		reference TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_student
		ON payments(student_id, seq);
	CREATE INDEX IF NOT EXISTS idx_payments_paid_at
		ON payments(paid_at DESC);

	-- Reminder batches
	CREATE TABLE IF NOT EXISTS notification_runs (
		id TEXT PRIMARY KEY,
		run_date TEXT NOT NULL,
		trigger_kind TEXT NOT NULL,
		status TEXT NOT NULL,
		summary_json TEXT,
		error TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_notification_runs_date
		ON notification_runs(run_date, status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(membership.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{queries: queries{db: sqlTx}}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore reads and writes through the open transaction.
type txStore struct {
	queries
}

// WithTx joins the enclosing transaction.
func (ts *txStore) WithTx(_ context.Context, fn func(membership.Store) error) error {
	return fn(ts)
}

// dbtx is what *sql.DB and *sql.Tx have in common.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds every statement; Store and txStore differ only in db.
type queries struct {
	db dbtx
}

// =============================================================================
// COURSES
// =============================================================================

const courseColumns = `id, name, description, monthly_price, enrollment_fee, active, created_at, updated_at`

func (q queries) SaveCourse(ctx context.Context, c membership.Course) error {
	query := `
		INSERT INTO courses (` + courseColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			monthly_price = excluded.monthly_price,
			enrollment_fee = excluded.enrollment_fee,
			active = excluded.active,
			updated_at = excluded.updated_at
	`
	_, err := q.db.ExecContext(ctx, query,
		c.ID, c.Name, c.Description,
		c.MonthlyPrice.String(), c.EnrollmentFee.String(),
		c.Active,
		formatTime(orNow(c.CreatedAt)), formatTime(orNow(c.UpdatedAt)),
	)
	if err != nil {
		return fmt.Errorf("failed to save course: %w", err)
	}
	return nil
}

func (q queries) GetCourse(ctx context.Context, id string) (*membership.Course, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+courseColumns+" FROM courses WHERE id = ?", id)
	c, err := scanCourse(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", membership.ErrCourseNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (q queries) ListCourses(ctx context.Context) ([]membership.Course, error) {
	rows, err := q.db.QueryContext(ctx, "SELECT "+courseColumns+" FROM courses ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []membership.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q queries) DeleteCourse(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, "DELETE FROM courses WHERE id = ?", id)
	if err != nil {
		if isForeignKeyError(err) {
			return fmt.Errorf("%w: %s", membership.ErrCourseInUse, id)
		}
		return err
	}
	return requireAffected(res, membership.ErrCourseNotFound, id)
}

func (q queries) CountStudentsInCourse(ctx context.Context, courseID string) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM students WHERE course_id = ?", courseID).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCourse(r scanner) (membership.Course, error) {
	var c membership.Course
	var price, fee, createdAt, updatedAt string
	if err := r.Scan(&c.ID, &c.Name, &c.Description, &price, &fee, &c.Active, &createdAt, &updatedAt); err != nil {
		return c, err
	}
	c.MonthlyPrice = parseMoney(price)
	c.EnrollmentFee = parseMoney(fee)
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return c, nil
}

// =============================================================================
// STUDENTS
// =============================================================================

const studentColumns = `id, first_name, last_name, email, phone, notes, course_id, classes_start, active,
	enrollment_paid, periods_completed, carry, coverage_end, created_at, updated_at`

// SaveStudent upserts the student's own fields. The derived columns keep
// their defaults on insert and are never touched on update.
func (q queries) SaveStudent(ctx context.Context, s membership.Student) error {
	query := `
		INSERT INTO students (id, first_name, last_name, email, phone, notes, course_id,
			classes_start, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			email = excluded.email,
			phone = excluded.phone,
			notes = excluded.notes,
			course_id = excluded.course_id,
			classes_start = excluded.classes_start,
			active = excluded.active,
			updated_at = excluded.updated_at
	`
	_, err := q.db.ExecContext(ctx, query,
		s.ID, s.FirstName, s.LastName,
		nullString(strings.ToLower(strings.TrimSpace(s.Email))),
		s.Phone, s.Notes,
		nullString(s.CourseID),
		nullDate(s.ClassesStart),
		s.Active,
		formatTime(orNow(s.CreatedAt)), formatTime(orNow(s.UpdatedAt)),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s", membership.ErrDuplicateEmail, s.Email)
		}
		if isForeignKeyError(err) {
			return fmt.Errorf("%w: %s", membership.ErrCourseNotFound, s.CourseID)
		}
		return fmt.Errorf("failed to save student: %w", err)
	}
	return nil
}

func (q queries) GetStudent(ctx context.Context, id string) (*membership.Student, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+studentColumns+" FROM students WHERE id = ?", id)
	s, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", membership.ErrStudentNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (q queries) ListStudents(ctx context.Context, f membership.StudentFilter) ([]membership.Student, error) {
	query := "SELECT " + studentColumns + " FROM students WHERE 1 = 1"
	var args []any
	if f.CourseID != "" {
		query += " AND course_id = ?"
		args = append(args, f.CourseID)
	}
	if f.ActiveOnly {
		query += " AND active = 1"
	}
	query += " ORDER BY last_name, first_name"

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []membership.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		if f.Matches(s) {
			out = append(out, s)
		}
	}
	return out, rows.Err()
}

func (q queries) DeleteStudent(ctx context.Context, id string) error {
	// Payments go with the student (ON DELETE CASCADE).
	res, err := q.db.ExecContext(ctx, "DELETE FROM students WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireAffected(res, membership.ErrStudentNotFound, id)
}

// WriteCoverage stores the four derived fields in one statement.
func (q queries) WriteCoverage(ctx context.Context, studentID string, state coverage.State) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE students
		SET enrollment_paid = ?, periods_completed = ?, carry = ?, coverage_end = ?
		WHERE id = ?`,
		state.EnrollmentPaid().StringFixed(2),
		state.PeriodsCompleted(),
		state.Carry().StringFixed(2),
		nullDate(state.EndDatePtr()),
		studentID,
	)
	if err != nil {
		return fmt.Errorf("failed to write coverage: %w", err)
	}
	return requireAffected(res, membership.ErrStudentNotFound, studentID)
}

func scanStudent(r scanner) (membership.Student, error) {
	var s membership.Student
	var email, courseID, classesStart, coverageEnd sql.NullString
	var enrollmentPaid, carry, createdAt, updatedAt string
	var periods int

	if err := r.Scan(
		&s.ID, &s.FirstName, &s.LastName, &email, &s.Phone, &s.Notes, &courseID, &classesStart, &s.Active,
		&enrollmentPaid, &periods, &carry, &coverageEnd, &createdAt, &updatedAt,
	); err != nil {
		return s, err
	}

	s.Email = email.String
	s.CourseID = courseID.String
	s.ClassesStart = parseNullDate(classesStart)
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)

	state, err := coverage.Restore(parseMoney(enrollmentPaid), periods, parseMoney(carry), parseNullDate(coverageEnd))
	if err != nil {
		return s, fmt.Errorf("student %s: %w", s.ID, err)
	}
	s.Coverage = state
	return s, nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

const paymentColumns = `seq, id, student_id, amount, paid_at, concept, method, reference, notes, created_at`

func (q queries) InsertPayment(ctx context.Context, p membership.Payment) (membership.Payment, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	var paidAt sql.NullString
	if !p.PaidAt.IsZero() {
		paidAt = sql.NullString{String: formatTime(p.PaidAt), Valid: true}
	}

	res, err := q.db.ExecContext(ctx, `
		INSERT INTO payments (id, student_id, amount, paid_at, concept, method, reference, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.StudentID, p.Amount.String(), paidAt, string(p.Concept),
		p.Method, p.Reference, p.Notes, formatTime(p.CreatedAt),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return membership.Payment{}, fmt.Errorf("%w: %s", membership.ErrStudentNotFound, p.StudentID)
		}
		return membership.Payment{}, fmt.Errorf("failed to insert payment: %w", err)
	}
	p.Seq, err = res.LastInsertId()
	if err != nil {
		return membership.Payment{}, err
	}
	return p, nil
}

func (q queries) GetPayment(ctx context.Context, id string) (*membership.Payment, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+paymentColumns+" FROM payments WHERE id = ?", id)
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", membership.ErrPaymentNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (q queries) DeletePayment(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, "DELETE FROM payments WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireAffected(res, membership.ErrPaymentNotFound, id)
}

func (q queries) ListPaymentsForStudent(ctx context.Context, studentID string) ([]membership.Payment, error) {
	return q.queryPayments(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE student_id = ? ORDER BY seq", studentID)
}

func (q queries) RecentPayments(ctx context.Context, limit int) ([]membership.Payment, error) {
	return q.queryPayments(ctx,
		"SELECT "+paymentColumns+" FROM payments ORDER BY paid_at IS NULL, paid_at DESC, seq DESC LIMIT ?", limit)
}

func (q queries) PaymentsBetween(ctx context.Context, from, to time.Time) ([]membership.Payment, error) {
	query := "SELECT " + paymentColumns + " FROM payments WHERE paid_at IS NOT NULL"
	var args []any
	if !from.IsZero() {
		query += " AND paid_at >= ?"
		args = append(args, formatTime(from))
	}
	if !to.IsZero() {
		query += " AND paid_at < ?"
		args = append(args, formatTime(to))
	}
	return q.queryPayments(ctx, query+" ORDER BY paid_at, seq", args...)
}

// SumPayments adds amounts in Go so no precision is lost to REAL arithmetic.
func (q queries) SumPayments(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT amount FROM payments WHERE paid_at >= ? AND paid_at < ?",
		formatTime(from), formatTime(to))
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, err
		}
		total = total.Add(parseMoney(amount))
	}
	return total, rows.Err()
}

func (q queries) queryPayments(ctx context.Context, query string, args ...any) ([]membership.Payment, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []membership.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPayment(r scanner) (membership.Payment, error) {
	var p membership.Payment
	var amount, concept, createdAt string
	var paidAt sql.NullString
	if err := r.Scan(&p.Seq, &p.ID, &p.StudentID, &amount, &paidAt, &concept,
		&p.Method, &p.Reference, &p.Notes, &createdAt); err != nil {
		return p, err
	}
	p.Amount = parseMoney(amount)
	if paidAt.Valid {
		p.PaidAt = parseTime(paidAt.String)
	}
	// Legacy rows may hold the old Spanish tags; anything unknown replays as auto.
	if c, err := coverage.ParseConcept(concept); err == nil {
		p.Concept = c
	} else {
		p.Concept = coverage.ConceptAuto
	}
	p.CreatedAt = parseTime(createdAt)
	return p, nil
}

// =============================================================================
// NOTIFICATION RUNS (notify.RunLog)
// =============================================================================

func (s *Store) SaveRun(ctx context.Context, r notify.RunRecord) error {
	summary, err := json.Marshal(r.Summary)
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}
	var completedAt sql.NullString
	if r.CompletedAt != nil {
		completedAt = sql.NullString{String: formatTime(*r.CompletedAt), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notification_runs (id, run_date, trigger_kind, status, summary_json, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			summary_json = excluded.summary_json,
			error = excluded.error,
			completed_at = excluded.completed_at`,
		r.ID, r.Date.String(), string(r.Trigger), string(r.Status), string(summary), r.Error,
		formatTime(r.StartedAt), completedAt,
	)
	return err
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]notify.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_date, trigger_kind, status, summary_json, error, started_at, completed_at
		FROM notification_runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []notify.RunRecord
	for rows.Next() {
		var r notify.RunRecord
		var date, trigger, status, startedAt string
		var summary, completedAt sql.NullString
		if err := rows.Scan(&r.ID, &date, &trigger, &status, &summary, &r.Error, &startedAt, &completedAt); err != nil {
			return nil, err
		}
		r.Date, _ = coverage.ParseDate(date)
		r.Trigger = notify.Trigger(trigger)
		r.Status = notify.RunStatus(status)
		r.StartedAt = parseTime(startedAt)
		if completedAt.Valid {
			t := parseTime(completedAt.String)
			r.CompletedAt = &t
		}
		if summary.Valid && summary.String != "" {
			if err := json.Unmarshal([]byte(summary.String), &r.Summary); err != nil {
				return nil, fmt.Errorf("run %s: %w", r.ID, err)
			}
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *Store) HasCompletedRun(ctx context.Context, date coverage.Date) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM notification_runs WHERE run_date = ? AND status = ?",
		date.String(), string(notify.RunCompleted),
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	for _, table := range []string{"payments", "students", "courses", "notification_runs"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDate(d *coverage.Date) sql.NullString {
	if d == nil || d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDate(s sql.NullString) *coverage.Date {
	if !s.Valid || s.String == "" {
		return nil
	}
	d, err := coverage.ParseDate(s.String)
	if err != nil {
		return nil
	}
	return &d
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

func parseMoney(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func requireAffected(res sql.Result, notFound error, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", notFound, id)
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// Package store provides an in-memory membership.Store.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/tuition-engine/coverage"
	"github.com/warp/tuition-engine/membership"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	courses  map[string]membership.Course
	students map[string]membership.Student
	payments map[string]membership.Payment
	seq      int64
}

func NewMemory() *Memory {
	return &Memory{
		courses:  make(map[string]membership.Course),
		students: make(map[string]membership.Student),
		payments: make(map[string]membership.Payment),
	}
}

var _ membership.Store = (*Memory)(nil)

// locked runs fn against the unlocked view while holding the write lock.
func (m *Memory) locked(fn func(v *view) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&view{m: m})
}

func (m *Memory) rlocked(fn func(v *view) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&view{m: m})
}

func (m *Memory) SaveCourse(ctx context.Context, c membership.Course) error {
	return m.locked(func(v *view) error { return v.SaveCourse(ctx, c) })
}

func (m *Memory) GetCourse(ctx context.Context, id string) (c *membership.Course, err error) {
	err = m.rlocked(func(v *view) error { c, err = v.GetCourse(ctx, id); return err })
	return c, err
}

func (m *Memory) ListCourses(ctx context.Context) (out []membership.Course, err error) {
	err = m.rlocked(func(v *view) error { out, err = v.ListCourses(ctx); return err })
	return out, err
}

func (m *Memory) DeleteCourse(ctx context.Context, id string) error {
	return m.locked(func(v *view) error { return v.DeleteCourse(ctx, id) })
}

func (m *Memory) CountStudentsInCourse(ctx context.Context, courseID string) (n int, err error) {
	err = m.rlocked(func(v *view) error { n, err = v.CountStudentsInCourse(ctx, courseID); return err })
	return n, err
}

func (m *Memory) SaveStudent(ctx context.Context, s membership.Student) error {
	return m.locked(func(v *view) error { return v.SaveStudent(ctx, s) })
}

func (m *Memory) GetStudent(ctx context.Context, id string) (s *membership.Student, err error) {
	err = m.rlocked(func(v *view) error { s, err = v.GetStudent(ctx, id); return err })
	return s, err
}

func (m *Memory) ListStudents(ctx context.Context, f membership.StudentFilter) (out []membership.Student, err error) {
	err = m.rlocked(func(v *view) error { out, err = v.ListStudents(ctx, f); return err })
	return out, err
}

func (m *Memory) DeleteStudent(ctx context.Context, id string) error {
	return m.locked(func(v *view) error { return v.DeleteStudent(ctx, id) })
}

func (m *Memory) WriteCoverage(ctx context.Context, studentID string, state coverage.State) error {
	return m.locked(func(v *view) error { return v.WriteCoverage(ctx, studentID, state) })
}

func (m *Memory) InsertPayment(ctx context.Context, p membership.Payment) (out membership.Payment, err error) {
	err = m.locked(func(v *view) error { out, err = v.InsertPayment(ctx, p); return err })
	return out, err
}

func (m *Memory) GetPayment(ctx context.Context, id string) (p *membership.Payment, err error) {
	err = m.rlocked(func(v *view) error { p, err = v.GetPayment(ctx, id); return err })
	return p, err
}

func (m *Memory) DeletePayment(ctx context.Context, id string) error {
	return m.locked(func(v *view) error { return v.DeletePayment(ctx, id) })
}

func (m *Memory) ListPaymentsForStudent(ctx context.Context, studentID string) (out []membership.Payment, err error) {
	err = m.rlocked(func(v *view) error { out, err = v.ListPaymentsForStudent(ctx, studentID); return err })
	return out, err
}

func (m *Memory) RecentPayments(ctx context.Context, limit int) (out []membership.Payment, err error) {
	err = m.rlocked(func(v *view) error { out, err = v.RecentPayments(ctx, limit); return err })
	return out, err
}

func (m *Memory) PaymentsBetween(ctx context.Context, from, to time.Time) (out []membership.Payment, err error) {
	err = m.rlocked(func(v *view) error { out, err = v.PaymentsBetween(ctx, from, to); return err })
	return out, err
}

func (m *Memory) SumPayments(ctx context.Context, from, to time.Time) (d decimal.Decimal, err error) {
	err = m.rlocked(func(v *view) error { d, err = v.SumPayments(ctx, from, to); return err })
	return d, err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// The write lock is held for the whole of fn, so transactions are serial.
func (m *Memory) WithTx(ctx context.Context, fn func(membership.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&view{m: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

// Reset drops every course, student and payment.
func (m *Memory) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restore(memorySnapshot{
		courses:  make(map[string]membership.Course),
		students: make(map[string]membership.Student),
		payments: make(map[string]membership.Payment),
	})
	return nil
}

type memorySnapshot struct {
	courses  map[string]membership.Course
	students map[string]membership.Student
	payments map[string]membership.Payment
	seq      int64
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		courses:  make(map[string]membership.Course, len(m.courses)),
		students: make(map[string]membership.Student, len(m.students)),
		payments: make(map[string]membership.Payment, len(m.payments)),
		seq:      m.seq,
	}
	for k, v := range m.courses {
		s.courses[k] = v
	}
	for k, v := range m.students {
		s.students[k] = v
	}
	for k, v := range m.payments {
		s.payments[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.courses = s.courses
	m.students = s.students
	m.payments = s.payments
	m.seq = s.seq
}

// =============================================================================
// VIEW - Lock-free operations, caller holds m.mu
// =============================================================================

type view struct {
	m *Memory
}

func (v *view) SaveCourse(_ context.Context, c membership.Course) error {
	if old, ok := v.m.courses[c.ID]; ok {
		c.CreatedAt = old.CreatedAt
	}
	v.m.courses[c.ID] = c
	return nil
}

func (v *view) GetCourse(_ context.Context, id string) (*membership.Course, error) {
	c, ok := v.m.courses[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", membership.ErrCourseNotFound, id)
	}
	return &c, nil
}

func (v *view) ListCourses(_ context.Context) ([]membership.Course, error) {
	out := make([]membership.Course, 0, len(v.m.courses))
	for _, c := range v.m.courses {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (v *view) DeleteCourse(_ context.Context, id string) error {
	if _, ok := v.m.courses[id]; !ok {
		return fmt.Errorf("%w: %s", membership.ErrCourseNotFound, id)
	}
	delete(v.m.courses, id)
	return nil
}

func (v *view) CountStudentsInCourse(_ context.Context, courseID string) (int, error) {
	n := 0
	for _, s := range v.m.students {
		if s.CourseID == courseID {
			n++
		}
	}
	return n, nil
}

func (v *view) SaveStudent(_ context.Context, s membership.Student) error {
	if s.Email != "" {
		for id, other := range v.m.students {
			if id != s.ID && strings.EqualFold(other.Email, s.Email) {
				return fmt.Errorf("%w: %s", membership.ErrDuplicateEmail, s.Email)
			}
		}
	}
	if old, ok := v.m.students[s.ID]; ok {
		s.Coverage = old.Coverage
		s.CreatedAt = old.CreatedAt
	} else {
		s.Coverage = coverage.Zero()
	}
	v.m.students[s.ID] = s
	return nil
}

func (v *view) GetStudent(_ context.Context, id string) (*membership.Student, error) {
	s, ok := v.m.students[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", membership.ErrStudentNotFound, id)
	}
	return &s, nil
}

func (v *view) ListStudents(_ context.Context, f membership.StudentFilter) ([]membership.Student, error) {
	var out []membership.Student
	for _, s := range v.m.students {
		if f.Matches(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastName != out[j].LastName {
			return out[i].LastName < out[j].LastName
		}
		return out[i].FirstName < out[j].FirstName
	})
	return out, nil
}

func (v *view) DeleteStudent(_ context.Context, id string) error {
	if _, ok := v.m.students[id]; !ok {
		return fmt.Errorf("%w: %s", membership.ErrStudentNotFound, id)
	}
	for pid, p := range v.m.payments {
		if p.StudentID == id {
			delete(v.m.payments, pid)
		}
	}
	delete(v.m.students, id)
	return nil
}

func (v *view) WriteCoverage(_ context.Context, studentID string, state coverage.State) error {
	s, ok := v.m.students[studentID]
	if !ok {
		return fmt.Errorf("%w: %s", membership.ErrStudentNotFound, studentID)
	}
	s.Coverage = state
	v.m.students[studentID] = s
	return nil
}

func (v *view) InsertPayment(_ context.Context, p membership.Payment) (membership.Payment, error) {
	if _, ok := v.m.students[p.StudentID]; !ok {
		return membership.Payment{}, fmt.Errorf("%w: %s", membership.ErrStudentNotFound, p.StudentID)
	}
	v.m.seq++
	p.Seq = v.m.seq
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	v.m.payments[p.ID] = p
	return p, nil
}

func (v *view) GetPayment(_ context.Context, id string) (*membership.Payment, error) {
	p, ok := v.m.payments[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", membership.ErrPaymentNotFound, id)
	}
	return &p, nil
}

func (v *view) DeletePayment(_ context.Context, id string) error {
	if _, ok := v.m.payments[id]; !ok {
		return fmt.Errorf("%w: %s", membership.ErrPaymentNotFound, id)
	}
	delete(v.m.payments, id)
	return nil
}

func (v *view) ListPaymentsForStudent(_ context.Context, studentID string) ([]membership.Payment, error) {
	var out []membership.Payment
	for _, p := range v.m.payments {
		if p.StudentID == studentID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (v *view) RecentPayments(_ context.Context, limit int) ([]membership.Payment, error) {
	out := make([]membership.Payment, 0, len(v.m.payments))
	for _, p := range v.m.payments {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PaidAt.Equal(out[j].PaidAt) {
			return out[i].PaidAt.After(out[j].PaidAt)
		}
		return out[i].Seq > out[j].Seq
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (v *view) PaymentsBetween(_ context.Context, from, to time.Time) ([]membership.Payment, error) {
	var out []membership.Payment
	for _, p := range v.m.payments {
		switch {
		case p.PaidAt.IsZero():
		case !from.IsZero() && p.PaidAt.Before(from):
		case !to.IsZero() && !p.PaidAt.Before(to):
		default:
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PaidAt.Equal(out[j].PaidAt) {
			return out[i].PaidAt.Before(out[j].PaidAt)
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

func (v *view) SumPayments(_ context.Context, from, to time.Time) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, p := range v.m.payments {
		if !p.PaidAt.Before(from) && p.PaidAt.Before(to) {
			total = total.Add(p.Amount)
		}
	}
	return total, nil
}

// WithTx on a view joins the enclosing transaction.
func (v *view) WithTx(_ context.Context, fn func(membership.Store) error) error {
	return fn(v)
}

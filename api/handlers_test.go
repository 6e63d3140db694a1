/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Course, student and payment round trips through the router
- Error to status mapping
- Payment preview and suggestions
- Demo loading, manual reminder runs and the daily guard
- Dashboard counters and report data
- Test reminders and test email
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/tuition-engine/membership"
	"github.com/warp/tuition-engine/notify"
	"github.com/warp/tuition-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testNow = time.Date(2025, time.March, 10, 15, 0, 0, 0, time.UTC)

type captureSender struct {
	mu   sync.Mutex
	sent []notify.Notice
}

func (s *captureSender) Send(_ context.Context, n notify.Notice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return nil
}

type testEnv struct {
	router  *chi.Mux
	handler *Handler
	sender  *captureSender
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := func() time.Time { return testNow }
	svc := membership.NewService(store,
		membership.WithClock(clock),
		membership.WithLocation(time.UTC),
	)
	sender := &captureSender{}
	policy := notify.NewPolicy(svc, sender, nil)

	sched, err := NewReminderScheduler(policy, store, time.UTC, "FREQ=DAILY;BYHOUR=9;BYMINUTE=0;BYSECOND=0", nil)
	require.NoError(t, err)
	sched.now = clock

	h := NewHandler(svc, sched, store, nil)
	return &testEnv{
		router:  NewRouter(h, RouterOptions{EnableDemo: true}),
		handler: h,
		sender:  sender,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (e *testEnv) seedGuitarStudent(t *testing.T) (course CourseDTO, student StudentDTO) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/courses", map[string]any{
		"name": "Guitar", "monthly_price": "50", "enrollment_fee": 30,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	course = decode[CourseDTO](t, rec)

	rec = e.do(t, http.MethodPost, "/api/students", map[string]any{
		"first_name": "Ana", "last_name": "Vera", "email": "ana@example.com",
		"course_id": course.ID, "classes_start": "2025-01-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	student = decode[StudentDTO](t, rec)
	return course, student
}

// =============================================================================
// ROUND TRIPS
// =============================================================================

func TestAPI_PaymentFlow(t *testing.T) {
	// GIVEN: A $50 course with a $30 fee and a student starting Jan 1
	// WHEN: Two $50 auto payments are recorded and the second is reverted
	// THEN: Coverage follows the replay at every step

	env := newTestEnv(t)
	course, student := env.seedGuitarStudent(t)
	assert.Equal(t, "50.00", course.MonthlyPrice)
	assert.Equal(t, "30.00", course.EnrollmentFee)
	assert.Equal(t, "Ana Vera", student.FullName)
	assert.Equal(t, 0, student.Coverage.PeriodsCompleted)

	base := "/api/students/" + student.ID

	rec := env.do(t, http.MethodPost, base+"/payments", map[string]any{"amount": "50", "paid_at": "2025-01-02"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[RecordPaymentResponse](t, rec)
	assert.Equal(t, "auto", first.Payment.Concept)
	assert.Equal(t, "30.00", first.Coverage.EnrollmentPaid)
	assert.Equal(t, "20.00", first.Coverage.Carry)
	assert.Equal(t, 0, first.Coverage.PeriodsCompleted)

	rec = env.do(t, http.MethodPost, base+"/payments", map[string]any{"amount": 50, "paid_at": "2025-01-05T14:00:00Z", "method": "transfer"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	second := decode[RecordPaymentResponse](t, rec)
	assert.Equal(t, 1, second.Coverage.PeriodsCompleted)
	assert.Equal(t, "20.00", second.Coverage.Carry)
	require.NotNil(t, second.Coverage.EndDate)
	assert.Equal(t, "2025-01-31", *second.Coverage.EndDate)

	rec = env.do(t, http.MethodGet, base+"/payments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]PaymentDTO](t, rec), 2)

	rec = env.do(t, http.MethodGet, base+"/summary?as_of=2025-01-25", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sum := decode[StudentSummaryDTO](t, rec)
	assert.Equal(t, "expiring", sum.Status.Label)
	assert.Equal(t, 6, sum.Status.DaysRemaining)
	assert.Equal(t, "100.00", sum.TotalPaid)
	assert.Equal(t, 2, sum.PaymentCount)
	require.NotNil(t, sum.LastPayment)
	assert.Equal(t, second.Payment.ID, sum.LastPayment.ID)

	rec = env.do(t, http.MethodDelete, "/api/payments/"+second.Payment.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	after := decode[StudentDTO](t, rec)
	assert.Equal(t, first.Coverage, after.Coverage)

	rec = env.do(t, http.MethodPost, base+"/recompute", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, first.Coverage, decode[CoverageDTO](t, rec))
}

func TestAPI_CourseUpdateAndList(t *testing.T) {
	env := newTestEnv(t)
	course, _ := env.seedGuitarStudent(t)

	rec := env.do(t, http.MethodPut, "/api/courses/"+course.ID, map[string]any{
		"name": "Guitar II", "monthly_price": "60.5", "enrollment_fee": "0",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[CourseDTO](t, rec)
	assert.Equal(t, "Guitar II", updated.Name)
	assert.Equal(t, "60.50", updated.MonthlyPrice)

	rec = env.do(t, http.MethodGet, "/api/courses", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]CourseDTO](t, rec)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].Students)
	assert.Equal(t, 1, *list[0].Students)

	rec = env.do(t, http.MethodGet, "/api/students?q=vera&active=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]StudentDTO](t, rec), 1)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestAPI_ErrorMapping(t *testing.T) {
	env := newTestEnv(t)
	course, student := env.seedGuitarStudent(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		field  string
	}{
		{"course without name", http.MethodPost, "/api/courses", map[string]any{"monthly_price": 10}, http.StatusBadRequest, "name"},
		{"course without price", http.MethodPost, "/api/courses", map[string]any{"name": "Drums"}, http.StatusBadRequest, ""},
		{"malformed json", http.MethodPost, "/api/courses", "{", http.StatusBadRequest, ""},
		{"unknown student", http.MethodGet, "/api/students/nope", nil, http.StatusNotFound, ""},
		{"unknown payment", http.MethodDelete, "/api/payments/nope", nil, http.StatusNotFound, ""},
		{"student with unknown course", http.MethodPost, "/api/students",
			map[string]any{"first_name": "Leo", "course_id": "nope"}, http.StatusBadRequest, "course_id"},
		{"bad start date", http.MethodPost, "/api/students",
			map[string]any{"first_name": "Leo", "classes_start": "01/02/2025"}, http.StatusBadRequest, ""},
		{"duplicate email", http.MethodPost, "/api/students",
			map[string]any{"first_name": "Other", "email": "ANA@example.com"}, http.StatusConflict, ""},
		{"zero amount", http.MethodPost, "/api/students/" + student.ID + "/payments",
			map[string]any{"amount": 0}, http.StatusBadRequest, ""},
		{"unknown concept", http.MethodPost, "/api/students/" + student.ID + "/payments",
			map[string]any{"amount": 10, "concept": "donation"}, http.StatusBadRequest, ""},
		{"bad paid_at", http.MethodPost, "/api/students/" + student.ID + "/payments",
			map[string]any{"amount": 10, "paid_at": "yesterday"}, http.StatusBadRequest, ""},
		{"course in use", http.MethodDelete, "/api/courses/" + course.ID, nil, http.StatusConflict, ""},
		{"bad limit", http.MethodGet, "/api/payments?limit=ten", nil, http.StatusBadRequest, ""},
		{"bad as_of", http.MethodGet, "/api/stats?as_of=today", nil, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			resp := decode[ErrorResponse](t, rec)
			assert.NotEmpty(t, resp.Error)
			if tt.field != "" {
				assert.Equal(t, tt.field, resp.Field)
			}
		})
	}

	// Nothing above was stored.
	rec := env.do(t, http.MethodGet, "/api/payments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]PaymentDTO](t, rec))
}

func TestAPI_LegacyConceptTags(t *testing.T) {
	// GIVEN: A $50 course with a $30 fee
	// WHEN: Payments and previews use the legacy Spanish tags
	// THEN: They are stored and simulated under the canonical concept

	env := newTestEnv(t)
	_, student := env.seedGuitarStudent(t)
	base := "/api/students/" + student.ID + "/payments"

	rec := env.do(t, http.MethodPost, base+"/preview", map[string]any{"amount": "30", "concept": "Inscripcion"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pv := decode[PreviewDTO](t, rec)
	assert.True(t, pv.Valid, pv.Message)
	assert.Equal(t, "30.00", pv.EnrollmentApplied)

	rec = env.do(t, http.MethodPost, base+"/preview", map[string]any{"amount": "30", "concept": "donation"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[PreviewDTO](t, rec).Valid)

	tests := []struct {
		tag  string
		want string
	}{
		{"mensualidad", "period"},
		{"inscripcion", "enrollment"},
		{"general", "auto"},
		{" PERIOD ", "period"},
		{"", "auto"},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, base, map[string]any{"amount": "10", "concept": tt.tag})
			require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
			assert.Equal(t, tt.want, decode[RecordPaymentResponse](t, rec).Payment.Concept)
		})
	}
}

// =============================================================================
// PREVIEW AND SUGGESTIONS
// =============================================================================

func TestAPI_PreviewDoesNotRecord(t *testing.T) {
	env := newTestEnv(t)
	_, student := env.seedGuitarStudent(t)
	base := "/api/students/" + student.ID + "/payments"

	rec := env.do(t, http.MethodPost, base+"/preview", map[string]any{"amount": "50"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pv := decode[PreviewDTO](t, rec)
	assert.True(t, pv.Valid)
	assert.Equal(t, "enrollment complete | +$20.00 credit", pv.Message)
	assert.Equal(t, "30.00", pv.EnrollmentApplied)
	assert.Equal(t, "20.00", pv.Result.Carry)

	rec = env.do(t, http.MethodPost, base+"/preview", map[string]any{"amount": "0"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[PreviewDTO](t, rec).Valid)

	rec = env.do(t, http.MethodGet, base, nil)
	assert.Empty(t, decode[[]PaymentDTO](t, rec))

	rec = env.do(t, http.MethodGet, base+"/suggestions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sugg := decode[[]SuggestionDTO](t, rec)
	require.NotEmpty(t, sugg)
	assert.Equal(t, "high", sugg[0].Priority)
}

// =============================================================================
// DEMO, REMINDERS, DASHBOARD
// =============================================================================

func TestAPI_DemoRemindersAndStats(t *testing.T) {
	// GIVEN: The demo data set loaded on 2025-03-10
	// WHEN: Reminders are run manually twice, then forced
	// THEN: Exactly the three due students are reminded per run and the
	//       unforced second run is refused

	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/demo/load", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	loaded := decode[DemoLoadResponse](t, rec)
	assert.Equal(t, 2, loaded.Courses)
	assert.Equal(t, 6, loaded.Students)

	rec = env.do(t, http.MethodPost, "/api/demo/load", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[StatsDTO](t, rec)
	assert.Equal(t, "2025-03-10", stats.Date)
	assert.Equal(t, 6, stats.ActiveStudents)
	assert.Equal(t, 2, stats.Courses)
	assert.Equal(t, 1, stats.ExpiringSoon)
	assert.Equal(t, 2, stats.Expired)
	assert.Equal(t, "15.00", stats.CollectedThisMonth)

	rec = env.do(t, http.MethodPost, "/api/reminders/run", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	run := decode[RunDTO](t, rec)
	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, "manual", run.Trigger)
	assert.Equal(t, 6, run.Summary.Evaluated)
	assert.Equal(t, 3, run.Summary.Sent)
	assert.Len(t, env.sender.sent, 3)

	rec = env.do(t, http.MethodPost, "/api/reminders/run", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Len(t, env.sender.sent, 3)

	rec = env.do(t, http.MethodPost, "/api/reminders/run?force=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, env.sender.sent, 6)

	rec = env.do(t, http.MethodGet, "/api/reminders/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]RunDTO](t, rec), 2)

	rec = env.do(t, http.MethodGet, "/api/reminders/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[SchedulerStatusDTO](t, rec)
	assert.False(t, status.Running)
	require.NotNil(t, status.LastRun)
	assert.Equal(t, "completed", status.LastRun.Status)

	rec = env.do(t, http.MethodPost, "/api/demo/load?reset=true", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/students", nil)
	assert.Len(t, decode[[]StudentDTO](t, rec), 6)
}

func TestAPI_Healthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// =============================================================================
// REPORTS
// =============================================================================

func TestAPI_StudentsByStatus(t *testing.T) {
	// GIVEN: Ana covered through Jan 31 and Leo who never paid
	// WHEN: Students are listed by status
	// THEN: Each row carries its status and the filter picks the labels asked for

	env := newTestEnv(t)
	course, ana := env.seedGuitarStudent(t)
	rec := env.do(t, http.MethodPost, "/api/students/"+ana.ID+"/payments", map[string]any{"amount": "80", "paid_at": "2025-01-02"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/students", map[string]any{
		"first_name": "Leo", "email": "leo@example.com", "course_id": course.ID, "classes_start": "2025-01-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	leo := decode[StudentDTO](t, rec)

	rec = env.do(t, http.MethodGet, "/api/students?status=expiring&as_of=2025-01-28", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rows := decode[[]StudentDTO](t, rec)
	require.Len(t, rows, 1)
	assert.Equal(t, ana.ID, rows[0].ID)
	require.NotNil(t, rows[0].Status)
	assert.Equal(t, "expiring", rows[0].Status.Label)
	assert.Equal(t, 3, rows[0].Status.DaysToExpiry)

	rec = env.do(t, http.MethodGet, "/api/students?status=current&as_of=2025-01-28", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]StudentDTO](t, rec))

	// As of today (2025-03-10) Ana is 38 days late.
	rec = env.do(t, http.MethodGet, "/api/students?status=no-coverage,Expired", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rows = decode[[]StudentDTO](t, rec)
	require.Len(t, rows, 2)
	assert.Equal(t, leo.ID, rows[0].ID)
	assert.Equal(t, "no-coverage", rows[0].Status.Label)
	assert.Equal(t, "expired", rows[1].Status.Label)
	assert.Equal(t, -38, rows[1].Status.DaysToExpiry)

	rec = env.do(t, http.MethodGet, "/api/students?status=overdue", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "status", decode[ErrorResponse](t, rec).Field)

	// Without ?status the rows carry no status.
	rec = env.do(t, http.MethodGet, "/api/students", nil)
	for _, row := range decode[[]StudentDTO](t, rec) {
		assert.Nil(t, row.Status)
	}
}

func TestAPI_PaymentsByDateRange(t *testing.T) {
	env := newTestEnv(t)
	_, student := env.seedGuitarStudent(t)
	base := "/api/students/" + student.ID + "/payments"
	for _, p := range []map[string]any{
		{"amount": "80", "paid_at": "2025-01-02"},
		{"amount": "50", "paid_at": "2025-02-10T10:00:00Z"},
		{"amount": "25.50", "paid_at": "2025-02-28T23:59:00Z"},
	} {
		rec := env.do(t, http.MethodPost, base, p)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := env.do(t, http.MethodGet, "/api/payments?from=2025-02-01", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	list := decode[[]PaymentDTO](t, rec)
	require.Len(t, list, 2)
	assert.Equal(t, "50.00", list[0].Amount, "oldest first")

	rec = env.do(t, http.MethodGet, "/api/reports/payments?from=2025-02-01&to=2025-02-28", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rep := decode[PaymentReportDTO](t, rec)
	require.NotNil(t, rep.From)
	assert.Equal(t, "2025-02-01", *rep.From)
	assert.Equal(t, 2, rep.Count)
	assert.Equal(t, "75.50", rep.Total)

	rec = env.do(t, http.MethodGet, "/api/reports/payments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rep = decode[PaymentReportDTO](t, rec)
	assert.Nil(t, rep.From)
	assert.Equal(t, 3, rep.Count)
	assert.Equal(t, "155.50", rep.Total)

	tests := []struct {
		name  string
		path  string
		field string
	}{
		{"reversed range", "/api/reports/payments?from=2025-02-01&to=2025-01-01", "to"},
		{"bad from", "/api/payments?from=feb", "from"},
		{"bad to", "/api/reports/payments?to=2025-13-01", "to"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, tt.path, nil)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, tt.field, decode[ErrorResponse](t, rec).Field)
		})
	}
}

// =============================================================================
// TEST REMINDER AND TEST EMAIL
// =============================================================================

func TestAPI_SendTestReminder(t *testing.T) {
	// GIVEN: Ana covered through Mar 2, today being Mar 10
	// WHEN: A test reminder is requested for her
	// THEN: She gets the critical reminder at once and no run is recorded

	env := newTestEnv(t)
	course, ana := env.seedGuitarStudent(t)
	rec := env.do(t, http.MethodPost, "/api/students/"+ana.ID+"/payments", map[string]any{"amount": "130", "paid_at": "2025-01-02"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/students/"+ana.ID+"/reminders/test", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	n := decode[NoticeDTO](t, rec)
	assert.Equal(t, "critical", n.Category)
	assert.Equal(t, "2025-03-02", n.EndDate)
	assert.Equal(t, -8, n.DaysToExpiry)
	assert.Equal(t, "ana@example.com", n.Email)
	assert.Len(t, env.sender.sent, 1)

	rec = env.do(t, http.MethodGet, "/api/reminders/runs", nil)
	assert.Empty(t, decode[[]RunDTO](t, rec))

	rec = env.do(t, http.MethodPost, "/api/students", map[string]any{
		"first_name": "Mute", "course_id": course.ID, "classes_start": "2025-01-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	mute := decode[StudentDTO](t, rec)
	rec = env.do(t, http.MethodPost, "/api/students/"+mute.ID+"/reminders/test", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "email", decode[ErrorResponse](t, rec).Field)

	rec = env.do(t, http.MethodPost, "/api/students", map[string]any{"first_name": "Loose", "email": "loose@example.com"})
	require.Equal(t, http.StatusCreated, rec.Code)
	loose := decode[StudentDTO](t, rec)
	rec = env.do(t, http.MethodPost, "/api/students/"+loose.ID+"/reminders/test", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "student_id", decode[ErrorResponse](t, rec).Field)

	rec = env.do(t, http.MethodPost, "/api/students/nope/reminders/test", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Len(t, env.sender.sent, 1)
}

type fakeMailTester struct {
	to  []string
	err error
}

func (m *fakeMailTester) SendTest(_ context.Context, to string) error {
	if strings.TrimSpace(to) == "" {
		return notify.ErrNoEmail
	}
	if m.err != nil {
		return m.err
	}
	m.to = append(m.to, to)
	return nil
}

func TestAPI_SendTestEmail(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]any{"to": "admin@example.com"}

	rec := env.do(t, http.MethodPost, "/api/settings/test-email", body)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "no mailer configured")

	mail := &fakeMailTester{}
	env.handler.Mail = mail

	rec = env.do(t, http.MethodPost, "/api/settings/test-email", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"admin@example.com"}, mail.to)

	rec = env.do(t, http.MethodPost, "/api/settings/test-email", map[string]any{"to": ""})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "email", decode[ErrorResponse](t, rec).Field)

	mail.err = errors.New("535 authentication failed")
	rec = env.do(t, http.MethodPost, "/api/settings/test-email", body)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Details, "535")
}

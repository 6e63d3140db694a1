/*
handlers.go - HTTP API handlers for the tuition service

PURPOSE:
  Exposes courses, students, payments, reminders and the dashboard via a
  REST API. Handles HTTP request/response, JSON serialization, and delegates
  to membership.Service and the reminder scheduler.

ENDPOINTS:
  Courses:
    GET    /api/courses                         List courses
    POST   /api/courses                         Create course
    GET    /api/courses/{id}                    Get course
    PUT    /api/courses/{id}                    Update course (replays its students)
    DELETE /api/courses/{id}                    Delete unused course

  Students:
    GET    /api/students?course_id=&active=&q=  List students
    GET    /api/students?status=expiring,expired&as_of=
                                                Students by status, most urgent first
    POST   /api/students                        Create student
    GET    /api/students/{id}                   Get student
    PUT    /api/students/{id}                   Update student
    DELETE /api/students/{id}                   Delete student and payments
    GET    /api/students/{id}/summary           Detail view with status
    POST   /api/students/{id}/recompute         Replay payment history
    POST   /api/students/{id}/reminders/test    Send a test reminder now

  Payments:
    GET    /api/students/{id}/payments              Payment history
    POST   /api/students/{id}/payments              Record payment
    POST   /api/students/{id}/payments/preview      Simulate payment
    GET    /api/students/{id}/payments/suggestions  Quick-pay amounts
    GET    /api/payments?limit=                     Recent payments
    GET    /api/payments?from=&to=                  Payments over a range of days, oldest first
    DELETE /api/payments/{id}                       Revert payment

  Reminders:
    GET    /api/reminders/status                Scheduler state
    POST   /api/reminders/run?force=            Run now
    GET    /api/reminders/runs?limit=           Run history

  Dashboard and reports:
    GET    /api/stats?as_of=                    Counters
    GET    /api/reports/payments?from=&to=      Payments with count and total

  Settings:
    POST   /api/settings/test-email             Send an SMTP test message

ERROR HANDLING:
  Errors are returned as JSON with an HTTP status chosen by the membership
  error helpers:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (course in use, duplicate email, already ran today)
  - 502: The mail server refused a test message
  - 503: Student lock timed out, retry; email not configured
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - demo.go: Demo data loader
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/tuition-engine/coverage"
	"github.com/warp/tuition-engine/membership"
	"github.com/warp/tuition-engine/notify"
)

const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Resetter wipes all data. Implemented by both stores.
type Resetter interface {
	Reset(ctx context.Context) error
}

// MailTester sends a one-off message to check the SMTP settings.
type MailTester interface {
	SendTest(ctx context.Context, to string) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service   *membership.Service
	Scheduler *ReminderScheduler

	// Mail is nil when email is disabled or SMTP is not configured.
	Mail MailTester

	// RemindersEnabled reports whether the scheduler loop was started.
	RemindersEnabled bool

	// Store is used by the demo loader to wipe data; nil disables reset.
	Store Resetter

	log *zap.Logger
}

// NewHandler creates a new handler.
func NewHandler(svc *membership.Service, scheduler *ReminderScheduler, store Resetter, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Service:   svc,
		Scheduler: scheduler,
		Store:     store,
		log:       log.Named("api"),
	}
}

// =============================================================================
// COURSE HANDLERS
// =============================================================================

// ListCourses returns all courses with their student counts.
func (h *Handler) ListCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := h.Service.ListCourses(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	students, err := h.Service.ListStudents(r.Context(), membership.StudentFilter{})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	counts := make(map[string]int, len(courses))
	for _, s := range students {
		counts[s.CourseID]++
	}

	dtos := make([]CourseDTO, 0, len(courses))
	for _, c := range courses {
		dto := toCourseDTO(c)
		n := counts[c.ID]
		dto.Students = &n
		dtos = append(dtos, dto)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCourse creates a course.
func (h *Handler) CreateCourse(w http.ResponseWriter, r *http.Request) {
	var req CourseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.Service.CreateCourse(r.Context(), req.input())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCourseDTO(*c))
}

// GetCourse returns one course.
func (h *Handler) GetCourse(w http.ResponseWriter, r *http.Request) {
	c, err := h.Service.GetCourse(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCourseDTO(*c))
}

// UpdateCourse replaces a course's editable fields.
func (h *Handler) UpdateCourse(w http.ResponseWriter, r *http.Request) {
	var req CourseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.Service.UpdateCourse(r.Context(), chi.URLParam(r, "id"), req.input())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCourseDTO(*c))
}

// DeleteCourse removes a course nobody attends.
func (h *Handler) DeleteCourse(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteCourse(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// STUDENT HANDLERS
// =============================================================================

// ListStudents returns students matching the query filters.
func (h *Handler) ListStudents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := membership.StudentFilter{
		CourseID: q.Get("course_id"),
		Search:   strings.TrimSpace(q.Get("q")),
	}
	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid active flag", err)
			return
		}
		f.ActiveOnly = active
	}

	if v := q.Get("status"); v != "" {
		h.listStudentsByStatus(w, r, f, v)
		return
	}

	students, err := h.Service.ListStudents(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]StudentDTO, 0, len(students))
	for _, s := range students {
		dtos = append(dtos, toStudentDTO(s))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// listStudentsByStatus answers ?status=label[,label...] with each student's
// status as of ?as_of= or today.
func (h *Handler) listStudentsByStatus(w http.ResponseWriter, r *http.Request, f membership.StudentFilter, raw string) {
	var labels []coverage.Label
	for _, part := range strings.Split(raw, ",") {
		l, ok := coverage.ParseLabel(part)
		if !ok {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error: "Invalid status " + strconv.Quote(strings.TrimSpace(part)),
				Field: "status",
				Details: []coverage.Label{
					coverage.LabelNoCoverage, coverage.LabelNotStarted, coverage.LabelCurrent,
					coverage.LabelExpiring, coverage.LabelExpired,
				},
			})
			return
		}
		labels = append(labels, l)
	}
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}

	rows, err := h.Service.StudentsByStatus(r.Context(), f, asOf, labels...)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]StudentDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, toStandingDTO(row))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateStudent creates a student; coverage starts at zero.
func (h *Handler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	var req StudentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	s, err := h.Service.CreateStudent(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toStudentDTO(*s))
}

// GetStudent returns one student.
func (h *Handler) GetStudent(w http.ResponseWriter, r *http.Request) {
	s, err := h.Service.GetStudent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStudentDTO(*s))
}

// UpdateStudent replaces a student's editable fields.
func (h *Handler) UpdateStudent(w http.ResponseWriter, r *http.Request) {
	var req StudentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	s, err := h.Service.UpdateStudent(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStudentDTO(*s))
}

// DeleteStudent removes a student and their payments.
func (h *Handler) DeleteStudent(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteStudent(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GetStudentSummary returns the detail view, as of ?as_of= or today.
func (h *Handler) GetStudentSummary(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	sum, err := h.Service.Summary(r.Context(), chi.URLParam(r, "id"), asOf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(*sum))
}

// RecomputeStudent replays the payment history.
func (h *Handler) RecomputeStudent(w http.ResponseWriter, r *http.Request) {
	state, err := h.Service.Recompute(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCoverageDTO(state))
}

// SendTestReminder emails the student the reminder matching their current
// coverage, whether or not one is due today.
func (h *Handler) SendTestReminder(w http.ResponseWriter, r *http.Request) {
	e, err := h.Service.Enrollment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	n, err := h.Scheduler.SendTest(r.Context(), *e)
	if err != nil {
		h.failDelivery(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toNoticeDTO(n))
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// ListStudentPayments returns a student's payments in insertion order.
func (h *Handler) ListStudentPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.Service.ListPayments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTOs(payments))
}

// RecordPayment stores a payment and returns the replayed coverage.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in, err := req.input(h.Service.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	p, state, err := h.Service.RecordPayment(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, RecordPaymentResponse{
		Payment:  toPaymentDTO(*p),
		Coverage: toCoverageDTO(state),
	})
}

// PreviewPayment simulates a payment without recording it. An unusable
// amount or concept still answers 200 with valid=false.
func (h *Handler) PreviewPayment(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	pv, err := h.Service.Preview(r.Context(), chi.URLParam(r, "id"), req.Amount, parseConcept(req.Concept))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPreviewDTO(pv))
}

// PaymentSuggestions lists quick-pay amounts.
func (h *Handler) PaymentSuggestions(w http.ResponseWriter, r *http.Request) {
	sugg, err := h.Service.Suggestions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSuggestionDTOs(sugg))
}

// RecentPayments lists the latest payments across students. With ?from= or
// ?to= it lists that range of days instead, oldest first.
func (h *Handler) RecentPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("from") != "" || q.Get("to") != "" {
		rep, ok := h.paymentReport(w, r)
		if ok {
			writeJSON(w, http.StatusOK, toPaymentDTOs(rep.Payments))
		}
		return
	}

	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	payments, err := h.Service.RecentPayments(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTOs(payments))
}

// DeletePayment reverts a payment and returns the replayed coverage.
func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	state, err := h.Service.DeletePayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "deleted",
		"coverage": toCoverageDTO(state),
	})
}

// =============================================================================
// REMINDER HANDLERS
// =============================================================================

// ReminderStatus reports the scheduler state.
func (h *Handler) ReminderStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.Scheduler.Status(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dto := SchedulerStatusDTO{
		Enabled:  h.RemindersEnabled,
		Running:  st.Running,
		Rule:     st.Rule,
		Timezone: st.Timezone,
	}
	if st.NextRun != nil {
		s := timestamp(*st.NextRun)
		dto.NextRun = &s
	}
	if st.LastRun != nil {
		run := toRunDTO(*st.LastRun)
		dto.LastRun = &run
	}
	writeJSON(w, http.StatusOK, dto)
}

// RunReminders runs the policy now. Without ?force=true a second run on the
// same day is refused with 409.
func (h *Handler) RunReminders(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	run, err := h.Scheduler.RunNow(r.Context(), force)
	if errors.Is(err, ErrAlreadyRan) {
		writeError(w, http.StatusConflict, "Reminders already sent today; use force=true to send again", err)
		return
	}
	if run == nil {
		h.fail(w, r, err)
		return
	}
	// A failed run is still recorded; report it with the record.
	status := http.StatusOK
	if err != nil {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, toRunDTO(*run))
}

// ListReminderRuns returns the run history.
func (h *Handler) ListReminderRuns(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	if limit <= 0 {
		limit = 20
	}
	runs, err := h.Scheduler.Runs(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]RunDTO, 0, len(runs))
	for _, run := range runs {
		dtos = append(dtos, toRunDTO(run))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// DASHBOARD
// =============================================================================

// GetStats returns the dashboard counters.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	st, err := h.Service.Stats(r.Context(), asOf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatsDTO{
		Date:               asOf.String(),
		ActiveStudents:     st.ActiveStudents,
		Courses:            st.Courses,
		ExpiringSoon:       st.ExpiringSoon,
		Expired:            st.Expired,
		NoCoverage:         st.NoCoverage,
		CollectedThisMonth: money(st.CollectedThisMonth),
	})
}

// PaymentReport returns the payments over ?from= .. ?to= with their total.
func (h *Handler) PaymentReport(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.paymentReport(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toPaymentReportDTO(*rep))
}

func (h *Handler) paymentReport(w http.ResponseWriter, r *http.Request) (*membership.PaymentReport, bool) {
	from, ok := queryDate(w, r, "from")
	if !ok {
		return nil, false
	}
	to, ok := queryDate(w, r, "to")
	if !ok {
		return nil, false
	}
	rep, err := h.Service.PaymentsBetween(r.Context(), from, to)
	if err != nil {
		h.fail(w, r, err)
		return nil, false
	}
	return rep, true
}

// =============================================================================
// SETTINGS
// =============================================================================

// SendTestEmail sends a test message to the given address.
func (h *Handler) SendTestEmail(w http.ResponseWriter, r *http.Request) {
	if h.Mail == nil {
		writeError(w, http.StatusServiceUnavailable, "Email is not configured", nil)
		return
	}
	var req TestEmailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.Mail.SendTest(r.Context(), req.To); err != nil {
		h.failDelivery(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent", "to": strings.TrimSpace(req.To)})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// fail maps a service error onto a status code. Validation comes first: an
// unknown course_id on a student is a 400, not a 404.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var ve *membership.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: ve.Message, Field: ve.Field})
	case membership.IsClientError(err):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	case membership.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case membership.IsConflict(err):
		writeError(w, http.StatusConflict, err.Error(), nil)
	case membership.IsRetryable(err):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "Student is busy, retry", err)
	default:
		h.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

// failDelivery maps a failed outbound email: a missing address is the
// caller's problem, anything else is the mail server's.
func (h *Handler) failDelivery(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, notify.ErrNoEmail) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Field: "email"})
		return
	}
	h.log.Warn("email delivery failed", zap.String("path", r.URL.Path), zap.Error(err))
	writeError(w, http.StatusBadGateway, "Email delivery failed", err)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func queryInt(w http.ResponseWriter, r *http.Request, key string) (int, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid "+key, err)
		return 0, false
	}
	return n, true
}

// queryDate reads an optional YYYY-MM-DD query parameter.
func queryDate(w http.ResponseWriter, r *http.Request, key string) (*coverage.Date, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, true
	}
	d, err := coverage.ParseDate(v)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "Invalid " + key + " date (use YYYY-MM-DD)", Field: key, Details: err.Error(),
		})
		return nil, false
	}
	return &d, true
}

// asOf reads ?as_of=YYYY-MM-DD, defaulting to today in the business timezone.
func (h *Handler) asOf(w http.ResponseWriter, r *http.Request) (coverage.Date, bool) {
	v := r.URL.Query().Get("as_of")
	if v == "" {
		return h.Service.Today(), true
	}
	d, err := coverage.ParseDate(v)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of date (use YYYY-MM-DD)", err)
		return coverage.Date{}, false
	}
	return d, true
}

func toPaymentDTOs(in []membership.Payment) []PaymentDTO {
	out := make([]PaymentDTO, 0, len(in))
	for _, p := range in {
		out = append(out, toPaymentDTO(p))
	}
	return out
}

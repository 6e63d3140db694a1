/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Money goes out as a string with exactly two decimals ("50.00"). Requests
  accept either a JSON string or a JSON number.

DATES:
  Calendar days are YYYY-MM-DD. Instants are RFC 3339. A payment's paid_at
  also accepts a bare date, read as midnight in the business timezone.

VALIDATION:
  Validation is done by membership.Service, not in DTOs. DTOs are pure data
  carriers; handlers only parse formats.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/tuition-engine/coverage"
	"github.com/warp/tuition-engine/membership"
	"github.com/warp/tuition-engine/notify"
)

// =============================================================================
// COURSES
// =============================================================================

type CourseDTO struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	MonthlyPrice  string `json:"monthly_price"`
	EnrollmentFee string `json:"enrollment_fee"`
	Active        bool   `json:"active"`
	Students      *int   `json:"students,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`
}

type CourseRequest struct {
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	MonthlyPrice  decimal.Decimal `json:"monthly_price"`
	EnrollmentFee decimal.Decimal `json:"enrollment_fee"`
	Active        *bool           `json:"active"`
}

func (r CourseRequest) input() membership.CourseInput {
	return membership.CourseInput{
		Name:          r.Name,
		Description:   r.Description,
		MonthlyPrice:  r.MonthlyPrice,
		EnrollmentFee: r.EnrollmentFee,
		Active:        r.Active,
	}
}

func toCourseDTO(c membership.Course) CourseDTO {
	return CourseDTO{
		ID:            c.ID,
		Name:          c.Name,
		Description:   c.Description,
		MonthlyPrice:  money(c.MonthlyPrice),
		EnrollmentFee: money(c.EnrollmentFee),
		Active:        c.Active,
		CreatedAt:     timestamp(c.CreatedAt),
	}
}

// =============================================================================
// STUDENTS
// =============================================================================

type CoverageDTO struct {
	EnrollmentPaid   string  `json:"enrollment_paid"`
	PeriodsCompleted int     `json:"periods_completed"`
	Carry            string  `json:"carry"`
	EndDate          *string `json:"end_date"`
}

type StudentDTO struct {
	ID           string      `json:"id"`
	FirstName    string      `json:"first_name"`
	LastName     string      `json:"last_name"`
	FullName     string      `json:"full_name"`
	Email        string      `json:"email,omitempty"`
	Phone        string      `json:"phone,omitempty"`
	Notes        string      `json:"notes,omitempty"`
	CourseID     string      `json:"course_id,omitempty"`
	ClassesStart *string     `json:"classes_start"`
	Active       bool        `json:"active"`
	Coverage     CoverageDTO `json:"coverage"`
	Status       *StatusDTO  `json:"status,omitempty"`
	CreatedAt    string      `json:"created_at,omitempty"`
	UpdatedAt    string      `json:"updated_at,omitempty"`
}

type StudentRequest struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Notes        string `json:"notes"`
	CourseID     string `json:"course_id"`
	ClassesStart string `json:"classes_start"`
	Active       *bool  `json:"active"`
}

func (r StudentRequest) input() (membership.StudentInput, error) {
	in := membership.StudentInput{
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Email:     r.Email,
		Phone:     r.Phone,
		Notes:     r.Notes,
		CourseID:  r.CourseID,
		Active:    r.Active,
	}
	if s := strings.TrimSpace(r.ClassesStart); s != "" {
		d, err := coverage.ParseDate(s)
		if err != nil {
			return in, fmt.Errorf("invalid classes_start %q (use YYYY-MM-DD)", s)
		}
		in.ClassesStart = &d
	}
	return in, nil
}

func toCoverageDTO(s coverage.State) CoverageDTO {
	return CoverageDTO{
		EnrollmentPaid:   money(s.EnrollmentPaid()),
		PeriodsCompleted: s.PeriodsCompleted(),
		Carry:            money(s.Carry()),
		EndDate:          datePtr(s.EndDatePtr()),
	}
}

func toStudentDTO(s membership.Student) StudentDTO {
	return StudentDTO{
		ID:           s.ID,
		FirstName:    s.FirstName,
		LastName:     s.LastName,
		FullName:     s.FullName(),
		Email:        s.Email,
		Phone:        s.Phone,
		Notes:        s.Notes,
		CourseID:     s.CourseID,
		ClassesStart: datePtr(s.ClassesStart),
		Active:       s.Active,
		Coverage:     toCoverageDTO(s.Coverage),
		CreatedAt:    timestamp(s.CreatedAt),
		UpdatedAt:    timestamp(s.UpdatedAt),
	}
}

type StatusDTO struct {
	Label         string `json:"label"`
	HasStarted    bool   `json:"has_started"`
	DaysToExpiry  int    `json:"days_to_expiry"`
	DaysRemaining int    `json:"days_remaining"`
	Expired       bool   `json:"expired"`
	ExpiringSoon  bool   `json:"expiring_soon"`
}

type StudentSummaryDTO struct {
	Student           StudentDTO  `json:"student"`
	Course            *CourseDTO  `json:"course"`
	Status            StatusDTO   `json:"status"`
	EnrollmentPending string      `json:"enrollment_pending"`
	EnrollmentPercent string      `json:"enrollment_percent"`
	TotalPaid         string      `json:"total_paid"`
	PaymentCount      int         `json:"payment_count"`
	LastPayment       *PaymentDTO `json:"last_payment"`
}

func toStatusDTO(s coverage.Status) StatusDTO {
	return StatusDTO{
		Label:         string(s.Label),
		HasStarted:    s.HasStarted,
		DaysToExpiry:  s.DaysToExpiry,
		DaysRemaining: s.DaysRemaining,
		Expired:       s.Expired,
		ExpiringSoon:  s.ExpiringSoon,
	}
}

// toStandingDTO is a student row with its status filled in.
func toStandingDTO(s membership.StudentStanding) StudentDTO {
	dto := toStudentDTO(s.Student)
	st := toStatusDTO(s.Status)
	dto.Status = &st
	return dto
}

func toSummaryDTO(s membership.StudentSummary) StudentSummaryDTO {
	out := StudentSummaryDTO{
		Student:           toStudentDTO(s.Student),
		Status:            toStatusDTO(s.Status),
		EnrollmentPending: money(s.EnrollmentPending),
		EnrollmentPercent: s.EnrollmentPercent.StringFixed(1),
		TotalPaid:         money(s.TotalPaid),
		PaymentCount:      s.PaymentCount,
	}
	if s.Course != nil {
		c := toCourseDTO(*s.Course)
		out.Course = &c
	}
	if s.LastPayment != nil {
		p := toPaymentDTO(*s.LastPayment)
		out.LastPayment = &p
	}
	return out
}

// =============================================================================
// PAYMENTS
// =============================================================================

type PaymentDTO struct {
	ID        string  `json:"id"`
	StudentID string  `json:"student_id"`
	Amount    string  `json:"amount"`
	PaidAt    *string `json:"paid_at"`
	Concept   string  `json:"concept"`
	Method    string  `json:"method,omitempty"`
	Reference string  `json:"reference,omitempty"`
	Notes     string  `json:"notes,omitempty"`
	CreatedAt string  `json:"created_at,omitempty"`
}

type PaymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	PaidAt    string          `json:"paid_at"`
	Concept   string          `json:"concept"`
	Method    string          `json:"method"`
	Reference string          `json:"reference"`
	Notes     string          `json:"notes"`
}

// input converts the request. An unknown concept is passed through so the
// service reports it as a field error.
func (r PaymentRequest) input(loc *time.Location) (membership.PaymentInput, error) {
	in := membership.PaymentInput{
		Amount:    r.Amount,
		Concept:   parseConcept(r.Concept),
		Method:    r.Method,
		Reference: r.Reference,
		Notes:     r.Notes,
	}
	if s := strings.TrimSpace(r.PaidAt); s != "" {
		t, err := parseInstant(s, loc)
		if err != nil {
			return in, err
		}
		in.PaidAt = t
	}
	return in, nil
}

type RecordPaymentResponse struct {
	Payment  PaymentDTO  `json:"payment"`
	Coverage CoverageDTO `json:"coverage"`
}

func toPaymentDTO(p membership.Payment) PaymentDTO {
	dto := PaymentDTO{
		ID:        p.ID,
		StudentID: p.StudentID,
		Amount:    money(p.Amount),
		Concept:   string(p.Concept),
		Method:    p.Method,
		Reference: p.Reference,
		Notes:     p.Notes,
		CreatedAt: timestamp(p.CreatedAt),
	}
	if !p.PaidAt.IsZero() {
		s := p.PaidAt.UTC().Format(time.RFC3339)
		dto.PaidAt = &s
	}
	return dto
}

// PaymentReportDTO is the payments received over a range of days.
type PaymentReportDTO struct {
	From     *string      `json:"from"`
	To       *string      `json:"to"`
	Count    int          `json:"count"`
	Total    string       `json:"total"`
	Payments []PaymentDTO `json:"payments"`
}

func toPaymentReportDTO(r membership.PaymentReport) PaymentReportDTO {
	return PaymentReportDTO{
		From:     datePtr(r.From),
		To:       datePtr(r.To),
		Count:    len(r.Payments),
		Total:    money(r.Total),
		Payments: toPaymentDTOs(r.Payments),
	}
}

type PreviewRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	Concept string          `json:"concept"`
}

type LineItemDTO struct {
	Kind        string `json:"kind"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Complete    bool   `json:"complete"`
}

type PreviewDTO struct {
	Valid             bool          `json:"valid"`
	Message           string        `json:"message"`
	Items             []LineItemDTO `json:"items"`
	EnrollmentApplied string        `json:"enrollment_applied"`
	PeriodsAdded      int           `json:"periods_added"`
	Result            struct {
		EnrollmentPaid   string `json:"enrollment_paid"`
		PeriodsCompleted int    `json:"periods_completed"`
		Carry            string `json:"carry"`
	} `json:"result"`
}

func toPreviewDTO(p coverage.Preview) PreviewDTO {
	out := PreviewDTO{
		Valid:             p.Valid,
		Message:           p.Message,
		Items:             make([]LineItemDTO, 0, len(p.Items)),
		EnrollmentApplied: money(p.EnrollmentApplied),
		PeriodsAdded:      p.PeriodsAdded,
	}
	for _, it := range p.Items {
		out.Items = append(out.Items, LineItemDTO{
			Kind:        string(it.Kind),
			Amount:      money(it.Amount),
			Description: it.Description,
			Complete:    it.Complete,
		})
	}
	out.Result.EnrollmentPaid = money(p.Result.EnrollmentPaid)
	out.Result.PeriodsCompleted = p.Result.PeriodsCompleted
	out.Result.Carry = money(p.Result.Carry)
	return out
}

type SuggestionDTO struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Concept     string `json:"concept"`
	Priority    string `json:"priority"`
}

func toSuggestionDTOs(in []coverage.Suggestion) []SuggestionDTO {
	out := make([]SuggestionDTO, 0, len(in))
	for _, s := range in {
		out = append(out, SuggestionDTO{
			Title:       s.Title,
			Description: s.Description,
			Amount:      money(s.Amount),
			Concept:     string(s.Concept),
			Priority:    string(s.Priority),
		})
	}
	return out
}

// =============================================================================
// DASHBOARD
// =============================================================================

type StatsDTO struct {
	Date               string `json:"date"`
	ActiveStudents     int    `json:"active_students"`
	Courses            int    `json:"courses"`
	ExpiringSoon       int    `json:"expiring_soon"`
	Expired            int    `json:"expired"`
	NoCoverage         int    `json:"no_coverage"`
	CollectedThisMonth string `json:"collected_this_month"`
}

// =============================================================================
// REMINDERS
// =============================================================================

type RunDTO struct {
	ID          string         `json:"id"`
	Date        string         `json:"date"`
	Trigger     string         `json:"trigger"`
	Status      string         `json:"status"`
	Summary     notify.Summary `json:"summary"`
	Error       string         `json:"error,omitempty"`
	StartedAt   string         `json:"started_at"`
	CompletedAt *string        `json:"completed_at"`
}

func toRunDTO(r notify.RunRecord) RunDTO {
	dto := RunDTO{
		ID:        r.ID,
		Date:      r.Date.String(),
		Trigger:   string(r.Trigger),
		Status:    string(r.Status),
		Summary:   r.Summary,
		Error:     r.Error,
		StartedAt: timestamp(r.StartedAt),
	}
	if r.CompletedAt != nil {
		s := timestamp(*r.CompletedAt)
		dto.CompletedAt = &s
	}
	return dto
}

type NoticeDTO struct {
	Category     string `json:"category"`
	StudentID    string `json:"student_id"`
	Email        string `json:"email"`
	EndDate      string `json:"end_date"`
	DaysToExpiry int    `json:"days_to_expiry"`
}

func toNoticeDTO(n notify.Notice) NoticeDTO {
	return NoticeDTO{
		Category:     string(n.Category),
		StudentID:    n.StudentID,
		Email:        n.Email,
		EndDate:      n.EndDate.String(),
		DaysToExpiry: n.Days,
	}
}

type TestEmailRequest struct {
	To string `json:"to"`
}

type SchedulerStatusDTO struct {
	Enabled  bool    `json:"enabled"`
	Running  bool    `json:"running"`
	Rule     string  `json:"rule,omitempty"`
	Timezone string  `json:"timezone,omitempty"`
	NextRun  *string `json:"next_run"`
	LastRun  *RunDTO `json:"last_run"`
}

// =============================================================================
// DEMO
// =============================================================================

type DemoLoadResponse struct {
	Courses  int `json:"courses"`
	Students int `json:"students"`
	Payments int `json:"payments"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func datePtr(d *coverage.Date) *string {
	if d == nil || d.IsZero() {
		return nil
	}
	s := d.String()
	return &s
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// parseConcept maps every accepted tag, legacy ones included, onto its
// canonical Concept. Unknown tags come back lowercased and fail Valid.
func parseConcept(s string) coverage.Concept {
	if c, err := coverage.ParseConcept(s); err == nil {
		return c
	}
	return coverage.Concept(strings.ToLower(strings.TrimSpace(s)))
}

// parseInstant accepts RFC 3339 or YYYY-MM-DD (midnight in loc).
func parseInstant(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q (use RFC 3339 or YYYY-MM-DD)", s)
}

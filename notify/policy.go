/*
Package notify decides which students get a payment reminder today and sends it.

PURPOSE:
  Once a day, every active student with a course, whose classes have started
  and who has at least one paid period, is checked against their coverage end
  date. The signed day count picks at most one reminder:

    days_to_expiry == 3                  -> pre_expiry
    days_to_expiry == -1                 -> post_expiry
    days_to_expiry <= -7, multiple of 7  -> critical (weekly, forever)

  Students who never paid a full period are never contacted.

STATELESS:
  Each condition is true on exactly one day for a given end date, so the
  policy needs no "already sent" bookkeeping. Running it twice on the same
  day sends twice; the scheduler's run log keeps that from happening.

READ-ONLY:
  RunOnce reads students fresh and never writes coverage. Its only side
  effects are outbound messages and log lines.

FAILURE ISOLATION:
  A failed delivery (including a student without an email address) is logged
  and counted. The batch always continues with the next student.

SEE ALSO:
  - coverage/standing.go: Classify
  - mailer.go: SMTP delivery
  - api/scheduler.go: when RunOnce is called
*/
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/tuition-engine/coverage"
	"github.com/warp/tuition-engine/membership"
	"go.uber.org/zap"
)

// ErrNoEmail is the delivery failure recorded for students without an address.
var ErrNoEmail = errors.New("student has no email address")

// Notice is one reminder addressed to one student.
type Notice struct {
	Category          coverage.Category
	StudentID         string
	StudentName       string
	Email             string
	CourseName        string
	MonthlyPrice      decimal.Decimal
	EndDate           coverage.Date
	Days              int // signed days to expiry
	EnrollmentPending decimal.Decimal
}

// DaysOverdue is the positive number of days past the end date.
func (n Notice) DaysOverdue() int {
	if n.Days >= 0 {
		return 0
	}
	return -n.Days
}

// Sender delivers a notice. A non-nil error counts as a failed delivery.
type Sender interface {
	Send(ctx context.Context, n Notice) error
}

// Directory lists the students the policy evaluates.
type Directory interface {
	ActiveEnrollments(ctx context.Context) ([]membership.Enrollment, error)
}

// Failure records one student the batch could not reach.
type Failure struct {
	StudentID string            `json:"student_id"`
	Category  coverage.Category `json:"category"`
	Error     string            `json:"error"`
}

// Summary tallies one run.
type Summary struct {
	Date       string                    `json:"date"`
	Evaluated  int                       `json:"evaluated"`
	Sent       int                       `json:"sent"`
	Failed     int                       `json:"failed"`
	Skipped    int                       `json:"skipped"`
	ByCategory map[coverage.Category]int `json:"by_category"`
	Failures   []Failure                 `json:"failures,omitempty"`
}

// Due is how many students had a reminder due.
func (s Summary) Due() int { return s.Sent + s.Failed }

func (s Summary) String() string {
	return fmt.Sprintf("date=%s evaluated=%d sent=%d failed=%d skipped=%d",
		s.Date, s.Evaluated, s.Sent, s.Failed, s.Skipped)
}

// =============================================================================
// POLICY
// =============================================================================

type Policy struct {
	dir    Directory
	sender Sender
	log    *zap.Logger
}

func NewPolicy(dir Directory, sender Sender, log *zap.Logger) *Policy {
	if log == nil {
		log = zap.NewNop()
	}
	return &Policy{dir: dir, sender: sender, log: log.Named("notify")}
}

// Evaluate returns the notice due today for one enrollment, if any.
func Evaluate(e membership.Enrollment, today coverage.Date) (Notice, bool) {
	st := e.Student
	if !st.Active || st.ClassesStart == nil || st.ClassesStart.IsZero() {
		return Notice{}, false
	}
	if today.Before(*st.ClassesStart) {
		return Notice{}, false
	}
	if !st.Coverage.HasCoverage() {
		return Notice{}, false
	}
	end, ok := st.Coverage.EndDate()
	if !ok {
		return Notice{}, false
	}

	days := today.DaysUntil(end)
	cat, due := coverage.Classify(days)
	if !due {
		return Notice{}, false
	}
	return Notice{
		Category:          cat,
		StudentID:         st.ID,
		StudentName:       st.FullName(),
		Email:             strings.TrimSpace(st.Email),
		CourseName:        e.Course.Name,
		MonthlyPrice:      e.Course.MonthlyPrice,
		EndDate:           end,
		Days:              days,
		EnrollmentPending: st.Coverage.EnrollmentPending(e.Course.Pricing()),
	}, true
}

// TestNotice builds the reminder a student would get today, whether or not
// one is due. Before the end date it is a pre_expiry notice; past it, a
// post_expiry one, turning critical after a week. A student with no end date
// yet is treated as ending today.
func TestNotice(e membership.Enrollment, today coverage.Date) Notice {
	st := e.Student
	end, ok := st.Coverage.EndDate()
	if !ok {
		end = today
	}
	days := today.DaysUntil(end)

	cat := coverage.CategoryPreExpiry
	switch {
	case days <= criticalAfter:
		cat = coverage.CategoryCritical
	case days < 0:
		cat = coverage.CategoryPostExpiry
	}
	return Notice{
		Category:          cat,
		StudentID:         st.ID,
		StudentName:       st.FullName(),
		Email:             strings.TrimSpace(st.Email),
		CourseName:        e.Course.Name,
		MonthlyPrice:      e.Course.MonthlyPrice,
		EndDate:           end,
		Days:              days,
		EnrollmentPending: st.Coverage.EnrollmentPending(e.Course.Pricing()),
	}
}

// criticalAfter is the day count from which TestNotice picks the critical
// template.
const criticalAfter = -7

// SendTest delivers TestNotice to one student right away. It ignores the
// daily classification and is never recorded as a run.
func (p *Policy) SendTest(ctx context.Context, e membership.Enrollment, today coverage.Date) (Notice, error) {
	n := TestNotice(e, today)
	if err := p.deliver(ctx, n); err != nil {
		p.log.Warn("test reminder not delivered", zap.String("student_id", n.StudentID), zap.Error(err))
		return n, err
	}
	p.log.Info("test reminder sent",
		zap.String("student_id", n.StudentID),
		zap.String("category", string(n.Category)),
		zap.Int("days", n.Days),
	)
	return n, nil
}

// RunOnce evaluates every active enrollment for today and sends what is due.
// The returned error is only set when the batch could not run at all or the
// context ended; per-student failures live in the Summary.
func (p *Policy) RunOnce(ctx context.Context, today coverage.Date) (Summary, error) {
	sum := Summary{Date: today.String(), ByCategory: make(map[coverage.Category]int)}

	enrollments, err := p.dir.ActiveEnrollments(ctx)
	if err != nil {
		return sum, fmt.Errorf("load enrollments: %w", err)
	}

	for _, e := range enrollments {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Evaluated++

		n, due := Evaluate(e, today)
		if !due {
			sum.Skipped++
			continue
		}

		log := p.log.With(
			zap.String("student_id", n.StudentID),
			zap.String("category", string(n.Category)),
			zap.Int("days", n.Days),
		)

		if err := p.deliver(ctx, n); err != nil {
			sum.Failed++
			sum.Failures = append(sum.Failures, Failure{StudentID: n.StudentID, Category: n.Category, Error: err.Error()})
			log.Warn("reminder not delivered", zap.Error(err))
			continue
		}
		sum.Sent++
		sum.ByCategory[n.Category]++
		log.Info("reminder sent")
	}

	p.log.Info("reminder run finished",
		zap.String("date", sum.Date),
		zap.Int("evaluated", sum.Evaluated),
		zap.Int("sent", sum.Sent),
		zap.Int("failed", sum.Failed),
		zap.Int("skipped", sum.Skipped),
	)
	return sum, nil
}

func (p *Policy) deliver(ctx context.Context, n Notice) (err error) {
	if n.Email == "" {
		return ErrNoEmail
	}
	// A panicking sender is one failed student, not a dead batch.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panic: %v", r)
		}
	}()
	return p.sender.Send(ctx, n)
}

package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/tuition-engine/coverage"
	"github.com/warp/tuition-engine/membership"
	"go.uber.org/zap"
)

// =============================================================================
// SMTP MAILER
// =============================================================================

// SMTPConfig holds the outgoing mail settings.
type SMTPConfig struct {
	Host         string
	Port         int
	Username     string
	Password     string
	From         string
	BusinessName string
}

// Configured reports whether enough is set to attempt delivery.
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.Port > 0 && c.From != ""
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer renders reminder and receipt emails and sends them over SMTP.
type Mailer struct {
	cfg  SMTPConfig
	log  *zap.Logger
	send sendFunc
	loc  *time.Location
}

func NewMailer(cfg SMTPConfig, loc *time.Location, log *zap.Logger) *Mailer {
	if log == nil {
		log = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Mailer{cfg: cfg, log: log.Named("mailer"), send: smtp.SendMail, loc: loc}
}

// Send implements Sender for reminders.
func (m *Mailer) Send(ctx context.Context, n Notice) error {
	tmpl, subject, err := reminderTemplate(n.Category)
	if err != nil {
		return err
	}
	data := reminderData{
		Business:     m.cfg.BusinessName,
		Name:         n.StudentName,
		Course:       n.CourseName,
		MonthlyPrice: coverage.FormatMoney(n.MonthlyPrice),
		EndDate:      n.EndDate.String(),
		Days:         n.Days,
		DaysOverdue:  n.DaysOverdue(),
	}
	if n.EnrollmentPending.IsPositive() {
		data.EnrollmentPending = coverage.FormatMoney(n.EnrollmentPending)
	}
	return m.deliver(ctx, n.Email, fmt.Sprintf(subject, m.cfg.BusinessName), tmpl, data)
}

// Receipt is the payment confirmation sent after a payment is recorded.
type Receipt struct {
	Email             string
	StudentName       string
	CourseName        string
	Amount            decimal.Decimal
	Concept           coverage.Concept
	Method            string
	PaidAt            time.Time
	PeriodsCompleted  int
	Carry             decimal.Decimal
	EndDate           *coverage.Date
	EnrollmentPending decimal.Decimal
}

// SendReceipt emails a payment confirmation.
func (m *Mailer) SendReceipt(ctx context.Context, r Receipt) error {
	if strings.TrimSpace(r.Email) == "" {
		return ErrNoEmail
	}
	data := receiptData{
		Business:         m.cfg.BusinessName,
		Name:             r.StudentName,
		Course:           r.CourseName,
		Amount:           coverage.FormatMoney(r.Amount),
		Concept:          conceptLabel(r.Concept),
		Method:           r.Method,
		PaidAt:           r.PaidAt.In(m.loc).Format("2006-01-02 15:04"),
		PeriodsCompleted: r.PeriodsCompleted,
	}
	if r.Carry.IsPositive() {
		data.Carry = coverage.FormatMoney(r.Carry)
	}
	if r.EndDate != nil {
		data.EndDate = r.EndDate.String()
	}
	if r.EnrollmentPending.IsPositive() {
		data.EnrollmentPending = coverage.FormatMoney(r.EnrollmentPending)
	}
	subject := fmt.Sprintf("%s - payment received", m.cfg.BusinessName)
	return m.deliver(ctx, r.Email, subject, receiptTmpl, data)
}

// SendTest emails a short message confirming the SMTP settings work.
func (m *Mailer) SendTest(ctx context.Context, to string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return ErrNoEmail
	}
	data := testData{
		Business: m.cfg.BusinessName,
		Host:     m.cfg.Host,
		Port:     m.cfg.Port,
		From:     m.cfg.From,
		SentAt:   time.Now().In(m.loc).Format("2006-01-02 15:04"),
	}
	subject := fmt.Sprintf("%s - test email", m.cfg.BusinessName)
	return m.deliver(ctx, to, subject, testTmpl, data)
}

// ReceiptHook adapts SendReceipt to membership.OnPaymentRecorded. Students
// without an email are skipped silently.
func (m *Mailer) ReceiptHook() membership.PaymentHook {
	return func(ctx context.Context, st membership.Student, c membership.Course, p membership.Payment, after coverage.State) error {
		if strings.TrimSpace(st.Email) == "" {
			return nil
		}
		r := Receipt{
			Email:             st.Email,
			StudentName:       st.FullName(),
			CourseName:        c.Name,
			Amount:            p.Amount,
			Concept:           p.Concept,
			Method:            p.Method,
			PaidAt:            p.PaidAt,
			PeriodsCompleted:  after.PeriodsCompleted(),
			Carry:             after.Carry(),
			EnrollmentPending: after.EnrollmentPending(c.Pricing()),
		}
		if after.HasCoverage() {
			r.EndDate = after.EndDatePtr()
		}
		return m.SendReceipt(ctx, r)
	}
}

func (m *Mailer) deliver(ctx context.Context, to, subject string, tmpl *template.Template, data any) error {
	if !m.cfg.Configured() {
		return fmt.Errorf("smtp not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}
	msg := buildMessage(m.cfg.From, to, subject, body.Bytes())

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	if err := m.send(addr, auth, m.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	m.log.Debug("email sent", zap.String("to", to), zap.String("template", tmpl.Name()))
	return nil
}

func buildMessage(from, to, subject string, html []byte) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.Write(html)
	b.WriteString("\r\n")
	return b.Bytes()
}

func conceptLabel(c coverage.Concept) string {
	switch c {
	case coverage.ConceptEnrollment:
		return "Enrollment"
	case coverage.ConceptPeriod:
		return "Monthly period"
	default:
		return "General payment"
	}
}

// =============================================================================
// LOG SENDER - Used when email is disabled
// =============================================================================

// LogSender writes notices to the log instead of sending them.
type LogSender struct {
	log *zap.Logger
}

func NewLogSender(log *zap.Logger) *LogSender {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSender{log: log.Named("reminders")}
}

func (s *LogSender) Send(_ context.Context, n Notice) error {
	s.log.Info("reminder (email disabled)",
		zap.String("category", string(n.Category)),
		zap.String("student_id", n.StudentID),
		zap.String("email", n.Email),
		zap.String("end_date", n.EndDate.String()),
		zap.Int("days", n.Days),
	)
	return nil
}

// =============================================================================
// TEMPLATES
// =============================================================================

type reminderData struct {
	Business          string
	Name              string
	Course            string
	MonthlyPrice      string
	EndDate           string
	Days              int
	DaysOverdue       int
	EnrollmentPending string
}

type receiptData struct {
	Business          string
	Name              string
	Course            string
	Amount            string
	Concept           string
	Method            string
	PaidAt            string
	PeriodsCompleted  int
	Carry             string
	EndDate           string
	EnrollmentPending string
}

type testData struct {
	Business string
	Host     string
	Port     int
	From     string
	SentAt   string
}

func reminderTemplate(c coverage.Category) (*template.Template, string, error) {
	switch c {
	case coverage.CategoryPreExpiry:
		return preExpiryTmpl, "%s - your membership expires soon", nil
	case coverage.CategoryPostExpiry:
		return postExpiryTmpl, "%s - your membership has expired", nil
	case coverage.CategoryCritical:
		return criticalTmpl, "%s - payment overdue", nil
	default:
		return nil, "", fmt.Errorf("no template for category %q", c)
	}
}

const layoutHTML = `{{define "footer"}}<p style="color:#888;font-size:12px">{{.Business}}</p>{{end}}`

var (
	preExpiryTmpl = template.Must(template.New("pre_expiry").Parse(layoutHTML + `
<h2>Hi {{.Name}},</h2>
<p>Your <strong>{{.Course}}</strong> membership expires in {{.Days}} days, on <strong>{{.EndDate}}</strong>.</p>
<p>Renew with one monthly payment of <strong>{{.MonthlyPrice}}</strong> to keep attending without interruption.</p>
{{if .EnrollmentPending}}<p>Enrollment balance still pending: {{.EnrollmentPending}}.</p>{{end}}
{{template "footer" .}}`))

	postExpiryTmpl = template.Must(template.New("post_expiry").Parse(layoutHTML + `
<h2>Hi {{.Name}},</h2>
<p>Your <strong>{{.Course}}</strong> membership expired on <strong>{{.EndDate}}</strong>.</p>
<p>The monthly fee is <strong>{{.MonthlyPrice}}</strong>. Please renew to continue your classes.</p>
{{template "footer" .}}`))

	criticalTmpl = template.Must(template.New("critical").Parse(layoutHTML + `
<h2>Hi {{.Name}},</h2>
<p>Your <strong>{{.Course}}</strong> membership has been expired for <strong>{{.DaysOverdue}} days</strong> (since {{.EndDate}}).</p>
<p>Please contact us or make a payment of <strong>{{.MonthlyPrice}}</strong> to reactivate it.</p>
{{template "footer" .}}`))

	testTmpl = template.Must(template.New("test").Parse(layoutHTML + `
<h2>Email settings are working</h2>
<p>This message was sent through {{.Host}}:{{.Port}} as {{.From}} on {{.SentAt}}.</p>
{{template "footer" .}}`))

	receiptTmpl = template.Must(template.New("receipt").Parse(layoutHTML + `
<h2>Thank you, {{.Name}}</h2>
<p>We received your payment of <strong>{{.Amount}}</strong> ({{.Concept}}{{if .Method}}, {{.Method}}{{end}}) on {{.PaidAt}}.</p>
<ul>
<li>Course: {{.Course}}</li>
<li>Periods paid: {{.PeriodsCompleted}}</li>
{{if .EndDate}}<li>Covered until: {{.EndDate}}</li>{{end}}
{{if .Carry}}<li>Credit toward next period: {{.Carry}}</li>{{end}}
{{if .EnrollmentPending}}<li>Enrollment balance pending: {{.EnrollmentPending}}</li>{{end}}
</ul>
{{template "footer" .}}`))
)

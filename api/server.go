/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind a proxy
  3. Logger:     Structured request log (zap)
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /api/courses/*     Course management
  /api/students/*    Students, their payments, previews and summaries
  /api/payments/*    Recent payments, reverting a payment
  /api/reminders/*   Reminder scheduler
  /api/stats         Dashboard counters
  /api/reports/*     Report data (payments over a range)
  /api/settings/*    SMTP test message
  /api/demo/load     Demo data (dev only)
  /healthz           Liveness

SECURITY NOTE:
  No authentication middleware. All endpoints are public; put the service
  behind an authenticating proxy.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// RouterOptions tunes NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
	// EnableDemo mounts POST /api/demo/load.
	EnableDemo bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		// Course routes
		r.Route("/courses", func(r chi.Router) {
			r.Get("/", h.ListCourses)
			r.Post("/", h.CreateCourse)
			r.Get("/{id}", h.GetCourse)
			r.Put("/{id}", h.UpdateCourse)
			r.Delete("/{id}", h.DeleteCourse)
		})

		// Student routes
		r.Route("/students", func(r chi.Router) {
			r.Get("/", h.ListStudents)
			r.Post("/", h.CreateStudent)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetStudent)
				r.Put("/", h.UpdateStudent)
				r.Delete("/", h.DeleteStudent)
				r.Get("/summary", h.GetStudentSummary)
				r.Post("/recompute", h.RecomputeStudent)
				r.Post("/reminders/test", h.SendTestReminder)

				r.Get("/payments", h.ListStudentPayments)
				r.Post("/payments", h.RecordPayment)
				r.Post("/payments/preview", h.PreviewPayment)
				r.Get("/payments/suggestions", h.PaymentSuggestions)
			})
		})

		// Payment routes
		r.Route("/payments", func(r chi.Router) {
			r.Get("/", h.RecentPayments)
			r.Delete("/{id}", h.DeletePayment)
		})

		// Reminder routes
		r.Route("/reminders", func(r chi.Router) {
			r.Get("/status", h.ReminderStatus)
			r.Post("/run", h.RunReminders)
			r.Get("/runs", h.ListReminderRuns)
		})

		r.Get("/stats", h.GetStats)
		r.Get("/reports/payments", h.PaymentReport)
		r.Post("/settings/test-email", h.SendTestEmail)

		if opts.EnableDemo {
			r.Post("/demo/load", h.LoadDemo)
		}
	})

	return r
}

// requestLogger logs one line per request with zap.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	log = log.Named("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				fields := []zap.Field{
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				}
				switch {
				case ww.Status() >= 500:
					log.Error("request", fields...)
				case ww.Status() >= 400:
					log.Warn("request", fields...)
				default:
					log.Debug("request", fields...)
				}
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

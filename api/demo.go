/*
demo.go - Demo data loader for development and demonstrations

PURPOSE:
  Populates the database with courses, students and payments whose
  coverage lands in every interesting state relative to today, so the
  dashboard and a manual reminder run have something to show.

STUDENTS (relative to today):
  current:    paid enrollment + 1 period, ends in 20 days
  expiring:   ends in 3 days      (pre-expiry reminder)
  expired:    ended yesterday     (post-expiry reminder)
  overdue:    ended 14 days ago   (critical reminder)
  newcomer:   starts next week, enrollment half paid
  no-fee:     course without enrollment fee, 2 periods paid in one go

USAGE VIA API:
  POST /api/demo/load             refuses with 409 when data exists
  POST /api/demo/load?reset=true  wipes everything first

NOTE:
  Records go through membership.Service, so every student's coverage is the
  result of a real replay. Only use in development/demo environments.
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/warp/tuition-engine/coverage"
	"github.com/warp/tuition-engine/membership"
)

type demoPayment struct {
	amount  string
	concept coverage.Concept
	day     int // offset from the student's start date
}

type demoStudent struct {
	first, last, email string
	course             int // index into demoCourses
	startOffset        int // days from today
	payments           []demoPayment
}

var demoCourses = []membership.CourseInput{
	{Name: "Guitar", Description: "Acoustic guitar, twice a week", MonthlyPrice: coverage.MustMoney("50"), EnrollmentFee: coverage.MustMoney("30")},
	{Name: "Piano", Description: "Individual lessons", MonthlyPrice: coverage.MustMoney("65"), EnrollmentFee: coverage.MustMoney("0")},
}

var demoStudents = []demoStudent{
	{"Lucia", "Mendez", "lucia.mendez@example.com", 0, -10, []demoPayment{{"80", coverage.ConceptAuto, 0}}},
	{"Mateo", "Salazar", "mateo.salazar@example.com", 0, -27, []demoPayment{{"80", coverage.ConceptAuto, 0}}},
	{"Valentina", "Rios", "valentina.rios@example.com", 0, -31, []demoPayment{{"80", coverage.ConceptAuto, 1}}},
	{"Diego", "Paredes", "diego.paredes@example.com", 0, -74, []demoPayment{
		{"30", coverage.ConceptEnrollment, 0},
		{"50", coverage.ConceptPeriod, 2},
		{"50", coverage.ConceptPeriod, 33},
	}},
	{"Camila", "Ortiz", "camila.ortiz@example.com", 0, 7, []demoPayment{{"15", coverage.ConceptEnrollment, -7}}},
	{"Sofia", "Vega", "", 1, -40, []demoPayment{{"130", coverage.ConceptPeriod, 0}}},
}

// LoadDemo seeds the demo data set.
func (h *Handler) LoadDemo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reset, _ := strconv.ParseBool(r.URL.Query().Get("reset"))

	if reset {
		if h.Store == nil {
			writeError(w, http.StatusNotImplemented, "Reset is not available for this store", nil)
			return
		}
		if err := h.Store.Reset(ctx); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
			return
		}
	} else {
		empty, err := h.isEmpty(ctx)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if !empty {
			writeError(w, http.StatusConflict, "Database already has data; use reset=true to replace it", nil)
			return
		}
	}

	res, err := h.loadDemo(ctx, h.Service.Today())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load demo data", err)
		return
	}
	h.log.Info("demo data loaded",
		zap.Int("courses", res.Courses),
		zap.Int("students", res.Students),
		zap.Int("payments", res.Payments),
	)
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) isEmpty(ctx context.Context) (bool, error) {
	courses, err := h.Service.ListCourses(ctx)
	if err != nil {
		return false, err
	}
	students, err := h.Service.ListStudents(ctx, membership.StudentFilter{})
	if err != nil {
		return false, err
	}
	return len(courses) == 0 && len(students) == 0, nil
}

func (h *Handler) loadDemo(ctx context.Context, today coverage.Date) (DemoLoadResponse, error) {
	var res DemoLoadResponse
	loc := h.Service.Location()

	courseIDs := make([]string, 0, len(demoCourses))
	for _, in := range demoCourses {
		c, err := h.Service.CreateCourse(ctx, in)
		if err != nil {
			return res, fmt.Errorf("course %s: %w", in.Name, err)
		}
		courseIDs = append(courseIDs, c.ID)
		res.Courses++
	}

	for _, ds := range demoStudents {
		start := today.AddDays(ds.startOffset)
		st, err := h.Service.CreateStudent(ctx, membership.StudentInput{
			FirstName:    ds.first,
			LastName:     ds.last,
			Email:        ds.email,
			CourseID:     courseIDs[ds.course],
			ClassesStart: &start,
		})
		if err != nil {
			return res, fmt.Errorf("student %s: %w", ds.first, err)
		}
		res.Students++

		for _, dp := range ds.payments {
			day := start.AddDays(dp.day)
			_, _, err := h.Service.RecordPayment(ctx, st.ID, membership.PaymentInput{
				Amount:  coverage.MustMoney(dp.amount),
				Concept: dp.concept,
				PaidAt:  time.Date(day.Year(), day.Month(), day.Day(), 10, 0, 0, 0, loc),
				Method:  "cash",
			})
			if err != nil {
				return res, fmt.Errorf("payment for %s: %w", ds.first, err)
			}
			res.Payments++
		}
	}
	return res, nil
}

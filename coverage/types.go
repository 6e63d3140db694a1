/*
Package coverage computes what a student's payments actually pay for.

PURPOSE:
  A course charges a one-time enrollment fee and a recurring monthly price.
  Students pay in arbitrary amounts, sometimes tagged for a specific concept.
  This package replays those payments and derives four values:

    enrollment paid    - how much of the enrollment fee is covered
    periods completed  - whole 30-day billing periods fully paid
    carry              - leftover credit toward the next period
    coverage end date  - classes start + periods x 30 days

KEY CONCEPTS IN THIS FILE (types.go):
  - Pricing: the course's monthly price and enrollment fee
  - Concept: what a payment is for (auto, enrollment, period)
  - Entry: one payment as seen by the replay
  - Round2: money rounding used after every accumulation

DESIGN PRINCIPLES:
  1. Pure: nothing in this package does I/O or keeps state between calls
  2. Total: degenerate inputs produce a zero-coverage State, never an error
  3. Precision: decimal.Decimal everywhere money is involved
  4. Replay: derived values come only from replaying the full payment set

SEE ALSO:
  - reconcile.go: the replay engine
  - preview.go: single-step simulation used before recording a payment
  - state.go: the encapsulated derived fields
*/
package coverage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY
// =============================================================================

// Round2 rounds a currency amount to cents.
func Round2(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

// FormatMoney renders an amount as "$12.50".
func FormatMoney(d decimal.Decimal) string { return "$" + d.StringFixed(2) }

// MustMoney parses a literal amount. Invalid input yields zero.
func MustMoney(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// PRICING
// =============================================================================

// Pricing is the read-only billing plan of a course.
type Pricing struct {
	MonthlyPrice  decimal.Decimal
	EnrollmentFee decimal.Decimal
}

// Valid reports whether the replay can run against this pricing.
func (p Pricing) Valid() bool { return p.MonthlyPrice.IsPositive() }

// enrollmentFee never goes below zero, whatever was stored.
func (p Pricing) enrollmentFee() decimal.Decimal {
	if p.EnrollmentFee.IsNegative() {
		return decimal.Zero
	}
	return Round2(p.EnrollmentFee)
}

// =============================================================================
// CONCEPT - What a payment is for
// =============================================================================

// Concept tags a payment. The set is closed: every switch over Concept must
// handle all three values.
type Concept string

const (
	ConceptAuto       Concept = "auto"       // enrollment shortfall first, rest to periods
	ConceptEnrollment Concept = "enrollment" // enrollment only, excess is dropped
	ConceptPeriod     Concept = "period"     // periods only
)

// ErrUnknownConcept is returned by ParseConcept for tags outside the closed set.
var ErrUnknownConcept = errors.New("unknown payment concept")

// ParseConcept accepts the canonical tags plus the legacy Spanish ones stored
// by earlier versions of the product.
func ParseConcept(s string) (Concept, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto", "general":
		return ConceptAuto, nil
	case "enrollment", "inscripcion":
		return ConceptEnrollment, nil
	case "period", "mensualidad":
		return ConceptPeriod, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownConcept, s)
	}
}

// Valid reports whether c is one of the three known concepts.
func (c Concept) Valid() bool {
	switch c {
	case ConceptAuto, ConceptEnrollment, ConceptPeriod:
		return true
	}
	return false
}

func (c Concept) String() string { return string(c) }

// =============================================================================
// ENTRY - A payment as the replay sees it
// =============================================================================

// Entry is one payment fed to Reconcile. A zero PaidAt means the payment has
// no timestamp; it sorts after every dated payment. Seq is the insertion
// order and breaks ties.
type Entry struct {
	Amount  decimal.Decimal
	PaidAt  time.Time
	Concept Concept
	Seq     int64
}

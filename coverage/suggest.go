package coverage

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Priority orders quick-pay suggestions in the UI.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Suggestion is a ready-made payment the UI can offer as a shortcut.
type Suggestion struct {
	Title       string
	Description string
	Amount      decimal.Decimal
	Concept     Concept
	Priority    Priority
}

// Suggest lists the usual payments for a student in the given state.
func Suggest(current State, p Pricing) []Suggestion {
	if !p.Valid() {
		return nil
	}

	price := Round2(p.MonthlyPrice)
	pending := current.EnrollmentPending(p)
	var out []Suggestion

	if pending.IsPositive() {
		out = append(out, Suggestion{
			Title:       "Complete enrollment",
			Description: "Pay the rest of the enrollment fee",
			Amount:      pending,
			Concept:     ConceptEnrollment,
			Priority:    PriorityHigh,
		})
	}

	if carry := current.Carry(); carry.IsPositive() {
		out = append(out, Suggestion{
			Title:       "Complete current period",
			Description: fmt.Sprintf("Finish the period in progress (%s already credited)", FormatMoney(carry)),
			Amount:      Round2(price.Sub(carry)),
			Concept:     ConceptPeriod,
			Priority:    PriorityHigh,
		})
	}

	out = append(out, Suggestion{
		Title:       "1 period",
		Description: "Pay one 30-day period",
		Amount:      price,
		Concept:     ConceptPeriod,
		Priority:    PriorityMedium,
	})

	if pending.IsPositive() {
		out = append(out, Suggestion{
			Title:       "Enrollment + 1 period",
			Description: "Complete enrollment and pay one period",
			Amount:      Round2(pending.Add(price)),
			Concept:     ConceptAuto,
			Priority:    PriorityHigh,
		})
	}

	three := Round2(price.Mul(decimal.NewFromInt(3)))
	out = append(out, Suggestion{
		Title:       "3 periods",
		Description: fmt.Sprintf("Pay three periods (%s)", FormatMoney(three)),
		Amount:      three,
		Concept:     ConceptPeriod,
		Priority:    PriorityLow,
	})

	return out
}

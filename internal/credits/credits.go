// Package credits converts between the metering gateway's dollar budgets and
// the product-facing credit unit. Every workflow that reads or writes money
// goes through this package so the ratio cannot drift between paths.
package credits

import (
	"errors"
	"math"
)

const (
	// ConversionRatio is the number of credits per dollar of metered budget.
	ConversionRatio = 15

	// DefaultCredits is the allowance granted to a newly issued Pro key.
	DefaultCredits int64 = 300

	// DefaultBudgetDurationDays is the reset cadence of a newly issued key.
	DefaultBudgetDurationDays = 30

	// DefaultBudgetTier classifies newly issued keys in the metering gateway.
	DefaultBudgetTier = "Pro"
)

var ErrInvalidAmount = errors.New("invalid_amount")

// ToCredits returns round(dollars * ConversionRatio).
func ToCredits(dollars float64) (int64, error) {
	if math.IsNaN(dollars) || math.IsInf(dollars, 0) || dollars < 0 {
		return 0, ErrInvalidAmount
	}
	return int64(math.Round(dollars * ConversionRatio)), nil
}

// ToDollarBudget returns credits / ConversionRatio.
func ToDollarBudget(credits int64) (float64, error) {
	if credits < 0 {
		return 0, ErrInvalidAmount
	}
	return float64(credits) / ConversionRatio, nil
}

// DefaultBudget is the dollar budget matching DefaultCredits.
func DefaultBudget() float64 {
	return float64(DefaultCredits) / ConversionRatio
}

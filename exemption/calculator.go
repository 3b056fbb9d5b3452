/*
Package exemption computes the capped tax-exempt travel discount.

PURPOSE:
  Pure aggregation over an employee's exempt travel days. The statutory
  annual ceiling applies to the product of the daily allowance rate and the
  exempt-day count; results are rounded half-up to 2 decimal places.

INVARIANT:
  Discount(rate, n) == min(rate*n, AnnualCap), stable under reordering of
  the trips that contributed the days (the input is just a count).
*/
package exemption

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/travel-engine/travel"
)

// AnnualCap is the statutory annual ceiling for the exemption discount.
var AnnualCap = decimal.RequireFromString("60100.00")

var daysPerYear = decimal.NewFromInt(365)

// DailyRate derives the daily exempt-travel allowance from the annual gross
// salary: salary / 365, rounded half-up to 2 decimals.
func DailyRate(salary decimal.Decimal) decimal.Decimal {
	return salary.Div(daysPerYear).Round(2)
}

// Discount returns min(rate * exemptDays, AnnualCap) rounded half-up to 2
// decimals. Negative day counts clamp to zero.
func Discount(rate decimal.Decimal, exemptDays int) decimal.Decimal {
	if exemptDays < 0 {
		exemptDays = 0
	}
	total := rate.Mul(decimal.NewFromInt(int64(exemptDays)))
	if total.GreaterThan(AnnualCap) {
		total = AnnualCap
	}
	return total.Round(2)
}

// =============================================================================
// CALCULATOR - store-backed aggregation
// =============================================================================

// Calculator resolves an employee's exempt-day count from the store and
// applies the capped formula.
type Calculator struct {
	Store travel.Store
}

// DiscountForEmployee computes the discount for reviewed exempt days inside
// [from, to]. Employees without a salary have no allowance rate and get a
// zero discount.
func (c *Calculator) DiscountForEmployee(ctx context.Context, id travel.EmployeeID, from, to time.Time) (decimal.Decimal, error) {
	emp, err := c.Store.GetEmployee(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	if emp == nil {
		return decimal.Zero, fmt.Errorf("employee %s: %w", id, travel.ErrNotFound)
	}
	if emp.Salary == nil {
		return decimal.Zero, nil
	}

	days, err := c.Store.CountExemptDays(ctx, id, from, to)
	if err != nil {
		return decimal.Zero, err
	}

	return Discount(DailyRate(*emp.Salary), days), nil
}

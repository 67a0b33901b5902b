// Package amortization computes repayment schedules for the two loan modes
// the fund supports: a classic EMI over a fixed tenure, and a fixed monthly
// payment where the tenure is derived from how long the balance takes to
// reach zero.
package amortization

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/mcclellann/fundbook/pkg/models"
)

var (
	ErrInvalidPrincipal    = errors.New("principal must be greater than zero")
	ErrInvalidRate         = errors.New("interest rate must not be negative")
	ErrInvalidTenure       = errors.New("tenure must be greater than zero")
	ErrInvalidFixedPayment = errors.New("fixed monthly payment must be greater than zero")
	ErrNonConvergent       = errors.New("fixed payment never clears the balance")
	ErrTermsOutOfRange     = errors.New("loan terms are too large to amortize")
)

// maxFixedPaymentMonths bounds the balance-decay iteration. Hitting the cap
// means the payment cannot outrun interest accrual, and the computation
// fails rather than returning a truncated schedule.
const maxFixedPaymentMonths = 1000

// balancePrecision keeps the running balance from accumulating digits across
// iterations. Nine places is far below monetary significance.
const balancePrecision = 9

// monthlyRateDivisor turns an annual percentage rate into a monthly
// fractional rate: r = annualPercent / 12 / 100.
var monthlyRateDivisor = decimal.NewFromInt(1200)

// Terms are the inputs to a computation. TenureMonths is read only in EMI
// mode; FixedMonthlyPayment only in fixed-payment mode.
type Terms struct {
	Principal           decimal.Decimal
	AnnualRatePercent   decimal.Decimal
	Mode                models.RepaymentMode
	TenureMonths        int
	FixedMonthlyPayment decimal.Decimal
}

// Result holds the derived financial fields. TenureMonths echoes the input
// in EMI mode and is an output in fixed-payment mode.
type Result struct {
	MonthlyEMI     decimal.Decimal
	TotalInterest  decimal.Decimal
	TotalRepayment decimal.Decimal
	TenureMonths   int
}

// Compute derives the repayment figures for the given terms. It is a pure
// function: identical inputs always produce identical outputs, and no state
// is touched on failure.
func Compute(t Terms) (Result, error) {
	if t.Principal.LessThanOrEqual(decimal.Zero) {
		return Result{}, ErrInvalidPrincipal
	}
	if t.AnnualRatePercent.IsNegative() {
		return Result{}, ErrInvalidRate
	}

	switch t.Mode {
	case models.RepaymentModeEMI:
		return computeEMI(t)
	case models.RepaymentModeFixed:
		return computeFixed(t)
	default:
		return Result{}, fmt.Errorf("unknown repayment mode %q", t.Mode)
	}
}

// computeEMI applies the standard amortization closed form
// EMI = P * r * (1+r)^n / ((1+r)^n - 1). The power term is evaluated in
// float64 and the result moved back into decimal for the monetary identities.
func computeEMI(t Terms) (Result, error) {
	if t.TenureMonths <= 0 {
		return Result{}, ErrInvalidTenure
	}

	n := decimal.NewFromInt(int64(t.TenureMonths))
	var emi decimal.Decimal
	if t.AnnualRatePercent.IsZero() {
		// Zero-interest loan: even split of the principal.
		emi = t.Principal.Div(n).Round(2)
	} else {
		r := t.AnnualRatePercent.InexactFloat64() / 12 / 100
		factor := math.Pow(1+r, float64(t.TenureMonths))
		payment := t.Principal.InexactFloat64() * r * factor / (factor - 1)
		// The power term overflows float64 for very long tenures (or
		// absurd principals/rates), which would turn the payment into
		// Inf or NaN. Reject rather than panic in decimal conversion.
		if math.IsNaN(payment) || math.IsInf(payment, 0) {
			return Result{}, ErrTermsOutOfRange
		}
		emi = decimal.NewFromFloat(payment).Round(2)
	}

	total := emi.Mul(n)
	return Result{
		MonthlyEMI:     emi,
		TotalRepayment: total,
		TotalInterest:  total.Sub(t.Principal),
		TenureMonths:   t.TenureMonths,
	}, nil
}

// computeFixed decays the balance month by month, accruing one month of
// interest and subtracting the fixed payment, until the balance is cleared.
// The month count becomes the loan's tenure.
func computeFixed(t Terms) (Result, error) {
	if t.FixedMonthlyPayment.LessThanOrEqual(decimal.Zero) {
		return Result{}, ErrInvalidFixedPayment
	}

	monthlyRate := t.AnnualRatePercent.Div(monthlyRateDivisor)
	balance := t.Principal
	months := 0
	for balance.GreaterThan(decimal.Zero) {
		balance = balance.Add(balance.Mul(monthlyRate)).Sub(t.FixedMonthlyPayment).Round(balancePrecision)
		months++
		if months > maxFixedPaymentMonths {
			return Result{}, ErrNonConvergent
		}
	}

	total := t.FixedMonthlyPayment.Mul(decimal.NewFromInt(int64(months)))
	return Result{
		MonthlyEMI:     t.FixedMonthlyPayment,
		TotalRepayment: total,
		TotalInterest:  total.Sub(t.Principal),
		TenureMonths:   months,
	}, nil
}

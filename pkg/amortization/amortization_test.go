package amortization

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcclellann/fundbook/pkg/models"
)

func emiTerms(principal, rate float64, tenure int) Terms {
	return Terms{
		Principal:         decimal.NewFromFloat(principal),
		AnnualRatePercent: decimal.NewFromFloat(rate),
		Mode:              models.RepaymentModeEMI,
		TenureMonths:      tenure,
	}
}

func fixedTerms(principal, rate, payment float64) Terms {
	return Terms{
		Principal:           decimal.NewFromFloat(principal),
		AnnualRatePercent:   decimal.NewFromFloat(rate),
		Mode:                models.RepaymentModeFixed,
		FixedMonthlyPayment: decimal.NewFromFloat(payment),
	}
}

func TestComputeEMI_StandardScenario(t *testing.T) {
	// 12000 at 10% over 12 months, verified against amortization tables.
	res, err := Compute(emiTerms(12000, 10, 12))
	require.NoError(t, err)

	assert.Equal(t, "1054.99", res.MonthlyEMI.StringFixed(2))
	assert.Equal(t, "12659.88", res.TotalRepayment.StringFixed(2))
	assert.Equal(t, "659.88", res.TotalInterest.StringFixed(2))
	assert.Equal(t, 12, res.TenureMonths)
}

func TestComputeEMI_Identities(t *testing.T) {
	cases := []struct {
		principal float64
		rate      float64
		tenure    int
	}{
		{5000, 12, 6},
		{100000, 8.5, 60},
		{750, 24, 3},
		{12000, 10, 12},
	}

	for _, tc := range cases {
		res, err := Compute(emiTerms(tc.principal, tc.rate, tc.tenure))
		require.NoError(t, err)

		n := decimal.NewFromInt(int64(tc.tenure))
		assert.True(t, res.MonthlyEMI.Mul(n).Equal(res.TotalRepayment),
			"EMI * n must equal total repayment for %+v", tc)
		assert.True(t, res.TotalRepayment.Sub(decimal.NewFromFloat(tc.principal)).Equal(res.TotalInterest),
			"total repayment - principal must equal total interest for %+v", tc)
		assert.True(t, res.TotalRepayment.GreaterThanOrEqual(decimal.NewFromFloat(tc.principal)),
			"total repayment must cover principal for %+v", tc)
	}
}

func TestComputeEMI_ZeroRate(t *testing.T) {
	res, err := Compute(emiTerms(1200, 0, 12))
	require.NoError(t, err)

	assert.Equal(t, "100.00", res.MonthlyEMI.StringFixed(2))
	assert.Equal(t, "1200.00", res.TotalRepayment.StringFixed(2))
	assert.True(t, res.TotalInterest.IsZero())
}

func TestComputeFixed_Converges(t *testing.T) {
	// 10000 at 12% with a 1000/month payment clears in 11 months.
	res, err := Compute(fixedTerms(10000, 12, 1000))
	require.NoError(t, err)

	assert.Equal(t, 11, res.TenureMonths)
	assert.Less(t, res.TenureMonths, 1000)
	assert.Equal(t, "11000.00", res.TotalRepayment.StringFixed(2))
	assert.Equal(t, "1000.00", res.TotalInterest.StringFixed(2))
	assert.True(t, res.MonthlyEMI.Equal(decimal.NewFromInt(1000)))
}

func TestComputeFixed_ZeroRate(t *testing.T) {
	res, err := Compute(fixedTerms(1000, 0, 300))
	require.NoError(t, err)

	// 300 + 300 + 300 + 100: four months to clear.
	assert.Equal(t, 4, res.TenureMonths)
	assert.Equal(t, "1200.00", res.TotalRepayment.StringFixed(2))
}

func TestComputeFixed_NonConvergent(t *testing.T) {
	// Monthly interest on 10000 at 24% is 200; a 50 payment never gains ground.
	_, err := Compute(fixedTerms(10000, 24, 50))
	require.ErrorIs(t, err, ErrNonConvergent)
}

func TestComputeEMI_RejectsOverflowingTenure(t *testing.T) {
	// (1+r)^n overflows float64 well before n reaches 100000; the
	// computation must fail cleanly instead of panicking on a NaN payment.
	_, err := Compute(emiTerms(12000, 10, 100000))
	require.ErrorIs(t, err, ErrTermsOutOfRange)
}

func TestCompute_Validation(t *testing.T) {
	cases := []struct {
		name  string
		terms Terms
		want  error
	}{
		{"zero principal", emiTerms(0, 10, 12), ErrInvalidPrincipal},
		{"negative principal", emiTerms(-500, 10, 12), ErrInvalidPrincipal},
		{"negative rate", emiTerms(1000, -1, 12), ErrInvalidRate},
		{"zero tenure", emiTerms(1000, 10, 0), ErrInvalidTenure},
		{"negative tenure", emiTerms(1000, 10, -3), ErrInvalidTenure},
		{"zero fixed payment", fixedTerms(1000, 10, 0), ErrInvalidFixedPayment},
		{"negative fixed payment", fixedTerms(1000, 10, -50), ErrInvalidFixedPayment},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compute(tc.terms)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCompute_UnknownMode(t *testing.T) {
	terms := emiTerms(1000, 10, 12)
	terms.Mode = "Balloon"
	_, err := Compute(terms)
	require.Error(t, err)
}

func TestCompute_Idempotent(t *testing.T) {
	terms := emiTerms(12000, 10, 12)
	first, err := Compute(terms)
	require.NoError(t, err)
	second, err := Compute(terms)
	require.NoError(t, err)

	assert.True(t, first.MonthlyEMI.Equal(second.MonthlyEMI))
	assert.True(t, first.TotalRepayment.Equal(second.TotalRepayment))
	assert.True(t, first.TotalInterest.Equal(second.TotalInterest))
	assert.Equal(t, first.TenureMonths, second.TenureMonths)

	fixed := fixedTerms(10000, 12, 1000)
	f1, err := Compute(fixed)
	require.NoError(t, err)
	f2, err := Compute(fixed)
	require.NoError(t, err)
	assert.Equal(t, f1.TenureMonths, f2.TenureMonths)
	assert.True(t, f1.TotalRepayment.Equal(f2.TotalRepayment))
}

// Package ledger holds the business logic for the fund: loan lifecycle,
// installment recording, members and monthly contributions.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mcclellann/fundbook/pkg/amortization"
	"github.com/mcclellann/fundbook/pkg/metrics"
	"github.com/mcclellann/fundbook/pkg/models"
	"github.com/mcclellann/fundbook/pkg/store"
)

var (
	ErrInvalidPaymentAmount = errors.New("installment amount must be greater than zero")
	ErrInvalidMonth         = errors.New("month must be between 1 and 12")
	ErrInvalidContribution  = errors.New("contribution amounts must not be negative")
	ErrMemberNameRequired   = errors.New("member name is required")
)

// Ledger coordinates all mutations of loans, members and contributions.
// Loan mutations are serialized per loan id: at most one recompute is in
// flight for any loan, so amountPaid always reflects every installment
// recorded so far.
type Ledger struct {
	storage       store.Storage
	log           *zap.Logger
	targetPerHead decimal.Decimal

	mu        sync.Mutex
	loanLocks map[uuid.UUID]*sync.Mutex
}

// NewLedger creates a Ledger over the given Storage. targetPerHead is the
// expected monthly contribution per active member, used by MonthlySummary.
func NewLedger(s store.Storage, log *zap.Logger, targetPerHead decimal.Decimal) *Ledger {
	return &Ledger{
		storage:       s,
		log:           log,
		targetPerHead: targetPerHead,
		loanLocks:     make(map[uuid.UUID]*sync.Mutex),
	}
}

// lockFor returns the mutex guarding mutations for one loan id.
func (l *Ledger) lockFor(id uuid.UUID) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.loanLocks[id]
	if !ok {
		m = &sync.Mutex{}
		l.loanLocks[id] = m
	}
	return m
}

// LoanTerms are the user-supplied financial inputs for a loan.
type LoanTerms struct {
	MemberID            uuid.UUID
	LoanAmount          decimal.Decimal
	TenureMonths        int
	InterestRate        decimal.Decimal
	RepaymentMode       models.RepaymentMode
	FixedMonthlyPayment decimal.Decimal
}

func (t LoanTerms) calculatorTerms() amortization.Terms {
	return amortization.Terms{
		Principal:           t.LoanAmount,
		AnnualRatePercent:   t.InterestRate,
		Mode:                t.RepaymentMode,
		TenureMonths:        t.TenureMonths,
		FixedMonthlyPayment: t.FixedMonthlyPayment,
	}
}

// CreateLoan validates and computes the loan's financial fields, then
// persists it. The member's name is snapshotted onto the loan. Nothing is
// persisted when validation or computation fails.
func (l *Ledger) CreateLoan(terms LoanTerms) (*models.Loan, error) {
	member, err := l.storage.GetMember(terms.MemberID)
	if err != nil {
		return nil, err
	}

	res, err := amortization.Compute(terms.calculatorTerms())
	if err != nil {
		metrics.AmortizationFailures.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	now := time.Now().UTC()
	loan := &models.Loan{
		ID:                  uuid.New(),
		MemberID:            member.ID,
		MemberName:          member.MemberName,
		LoanAmount:          terms.LoanAmount,
		TenureMonths:        res.TenureMonths,
		InterestRate:        terms.InterestRate,
		RepaymentMode:       terms.RepaymentMode,
		FixedMonthlyPayment: terms.FixedMonthlyPayment,
		MonthlyEMI:          res.MonthlyEMI,
		TotalInterest:       res.TotalInterest,
		TotalRepayment:      res.TotalRepayment,
		AmountPaid:          decimal.Zero,
		Installments:        []models.Installment{},
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	applyDerived(loan)

	if err := l.storage.CreateLoan(loan); err != nil {
		return nil, fmt.Errorf("failed to store loan: %w", err)
	}

	metrics.LoansCreated.Inc()
	l.log.Info("loan created",
		zap.String("loan_id", loan.ID.String()),
		zap.String("member", loan.MemberName),
		zap.String("mode", string(loan.RepaymentMode)),
		zap.String("total_repayment", loan.TotalRepayment.StringFixed(2)))
	return loan, nil
}

// UpdateLoanTerms recomputes a loan's financial fields from new terms while
// preserving its recorded installments. Status is re-derived against the new
// totalRepayment; a manual status that contradicts the balance is overridden.
func (l *Ledger) UpdateLoanTerms(id uuid.UUID, terms LoanTerms) (*models.Loan, error) {
	lock := l.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	loan, err := l.storage.GetLoan(id)
	if err != nil {
		return nil, err
	}

	res, err := amortization.Compute(terms.calculatorTerms())
	if err != nil {
		metrics.AmortizationFailures.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	loan.LoanAmount = terms.LoanAmount
	loan.InterestRate = terms.InterestRate
	loan.RepaymentMode = terms.RepaymentMode
	loan.FixedMonthlyPayment = terms.FixedMonthlyPayment
	loan.TenureMonths = res.TenureMonths
	loan.MonthlyEMI = res.MonthlyEMI
	loan.TotalInterest = res.TotalInterest
	loan.TotalRepayment = res.TotalRepayment
	loan.AmountPaid = sumInstallments(loan.Installments)
	loan.UpdatedAt = time.Now().UTC()
	applyDerived(loan)

	if err := l.storage.UpdateLoan(loan); err != nil {
		return nil, fmt.Errorf("failed to update loan: %w", err)
	}
	return loan, nil
}

// RecordInstallment appends a payment to a loan and recomputes amountPaid,
// remainingDue and status. The installment and the updated totals are
// written in a single storage transaction. A zero date defaults to now.
func (l *Ledger) RecordInstallment(loanID uuid.UUID, amount decimal.Decimal, date time.Time) (*models.Loan, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidPaymentAmount
	}

	lock := l.lockFor(loanID)
	lock.Lock()
	defer lock.Unlock()

	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return nil, err
	}

	if date.IsZero() {
		date = time.Now().UTC()
	}
	inst := models.Installment{
		ID:     uuid.New(),
		LoanID: loan.ID,
		Amount: amount,
		Date:   date,
	}

	wasActive := loan.Status != models.LoanStatusClosed
	loan.Installments = append(loan.Installments, inst)
	loan.AmountPaid = sumInstallments(loan.Installments)
	loan.UpdatedAt = time.Now().UTC()
	applyDerived(loan)

	if err := l.storage.AppendInstallment(loan, &inst); err != nil {
		return nil, fmt.Errorf("failed to record installment: %w", err)
	}

	metrics.InstallmentsRecorded.Inc()
	if wasActive && loan.Status == models.LoanStatusClosed {
		metrics.LoansClosed.Inc()
		l.log.Info("loan closed",
			zap.String("loan_id", loan.ID.String()),
			zap.String("remaining_due", loan.RemainingDue.StringFixed(2)))
	}
	l.log.Info("installment recorded",
		zap.String("loan_id", loan.ID.String()),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("amount_paid", loan.AmountPaid.StringFixed(2)))
	return loan, nil
}

// GetLoan retrieves a loan by its ID.
func (l *Ledger) GetLoan(id uuid.UUID) (*models.Loan, error) {
	return l.storage.GetLoan(id)
}

// GetAllLoans retrieves all loans.
func (l *Ledger) GetAllLoans() ([]*models.Loan, error) {
	return l.storage.GetAllLoans()
}

// DeleteLoan deletes a loan and its installments. The loan's mutex is
// dropped from the lock map so deleted ids do not accumulate entries.
func (l *Ledger) DeleteLoan(id uuid.UUID) error {
	lock := l.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	if err := l.storage.DeleteLoan(id); err != nil {
		return err
	}
	l.mu.Lock()
	delete(l.loanLocks, id)
	l.mu.Unlock()
	return nil
}

// applyDerived recomputes remainingDue and status from totalRepayment and
// amountPaid. remainingDue is left un-clamped: negative means overpaid.
func applyDerived(loan *models.Loan) {
	loan.RemainingDue = loan.TotalRepayment.Sub(loan.AmountPaid)
	if loan.RemainingDue.LessThanOrEqual(decimal.Zero) {
		loan.Status = models.LoanStatusClosed
	} else {
		loan.Status = models.LoanStatusActive
	}
}

func sumInstallments(installments []models.Installment) decimal.Decimal {
	total := decimal.Zero
	for _, inst := range installments {
		total = total.Add(inst.Amount)
	}
	return total
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, amortization.ErrInvalidPrincipal):
		return "invalid_principal"
	case errors.Is(err, amortization.ErrInvalidRate):
		return "invalid_rate"
	case errors.Is(err, amortization.ErrInvalidTenure):
		return "invalid_tenure"
	case errors.Is(err, amortization.ErrInvalidFixedPayment):
		return "invalid_fixed_payment"
	case errors.Is(err, amortization.ErrNonConvergent):
		return "non_convergent"
	case errors.Is(err, amortization.ErrTermsOutOfRange):
		return "terms_out_of_range"
	default:
		return "invalid_terms"
	}
}

// CreateMember adds a member to the registry.
func (l *Ledger) CreateMember(name, email, phone string, active bool) (*models.Member, error) {
	if name == "" {
		return nil, ErrMemberNameRequired
	}
	m := &models.Member{
		ID:         uuid.New(),
		MemberName: name,
		Email:      email,
		Phone:      phone,
		Active:     active,
		CreatedAt:  time.Now().UTC(),
	}
	if err := l.storage.CreateMember(m); err != nil {
		return nil, fmt.Errorf("failed to store member: %w", err)
	}
	return m, nil
}

// UpdateMember updates a member's details.
func (l *Ledger) UpdateMember(m *models.Member) error {
	if m.MemberName == "" {
		return ErrMemberNameRequired
	}
	return l.storage.UpdateMember(m)
}

// DeleteMember removes a member from the registry.
func (l *Ledger) DeleteMember(id uuid.UUID) error {
	return l.storage.DeleteMember(id)
}

// GetAllMembers retrieves all members.
func (l *Ledger) GetAllMembers() ([]*models.Member, error) {
	return l.storage.GetAllMembers()
}

// ContributionInput are the user-supplied fields for a monthly contribution.
type ContributionInput struct {
	MemberID   uuid.UUID
	Month      int
	Year       int
	Target     decimal.Decimal
	AmountPaid decimal.Decimal
	Extra      decimal.Decimal
	Method     string
	Status     string
}

func (in ContributionInput) validate() error {
	if in.Month < 1 || in.Month > 12 {
		return ErrInvalidMonth
	}
	if in.Target.IsNegative() || in.AmountPaid.IsNegative() || in.Extra.IsNegative() {
		return ErrInvalidContribution
	}
	return nil
}

// CreateContribution records a member's contribution for a month.
func (l *Ledger) CreateContribution(in ContributionInput) (*models.Contribution, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	member, err := l.storage.GetMember(in.MemberID)
	if err != nil {
		return nil, err
	}

	c := &models.Contribution{
		ID:         uuid.New(),
		MemberID:   member.ID,
		MemberName: member.MemberName,
		Month:      in.Month,
		Year:       in.Year,
		Target:     in.Target,
		AmountPaid: in.AmountPaid,
		Extra:      in.Extra,
		Method:     in.Method,
		Status:     in.Status,
		CreatedAt:  time.Now().UTC(),
	}
	if err := l.storage.CreateContribution(c); err != nil {
		return nil, fmt.Errorf("failed to store contribution: %w", err)
	}
	metrics.ContributionsRecorded.Inc()
	return c, nil
}

// UpdateContribution updates an existing contribution record.
func (l *Ledger) UpdateContribution(id uuid.UUID, in ContributionInput) (*models.Contribution, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	c, err := l.storage.GetContribution(id)
	if err != nil {
		return nil, err
	}
	member, err := l.storage.GetMember(in.MemberID)
	if err != nil {
		return nil, err
	}

	c.MemberID = member.ID
	c.MemberName = member.MemberName
	c.Month = in.Month
	c.Year = in.Year
	c.Target = in.Target
	c.AmountPaid = in.AmountPaid
	c.Extra = in.Extra
	c.Method = in.Method
	c.Status = in.Status
	if err := l.storage.UpdateContribution(c); err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteContribution removes a contribution record.
func (l *Ledger) DeleteContribution(id uuid.UUID) error {
	return l.storage.DeleteContribution(id)
}

// GetContributions lists contributions, optionally filtered by month/year.
func (l *Ledger) GetContributions(month, year int) ([]*models.Contribution, error) {
	if month != 0 && (month < 1 || month > 12) {
		return nil, ErrInvalidMonth
	}
	return l.storage.GetContributions(month, year)
}

// MonthlySummary aggregates fund health for one month: the collection target
// across active members, what was actually collected, and loan totals.
func (l *Ledger) MonthlySummary(month, year int) (*models.MonthlySummary, error) {
	if month < 1 || month > 12 {
		return nil, ErrInvalidMonth
	}

	contributions, err := l.storage.GetContributions(month, year)
	if err != nil {
		return nil, err
	}
	activeMembers, err := l.storage.CountActiveMembers()
	if err != nil {
		return nil, err
	}
	loans, err := l.storage.GetAllLoans()
	if err != nil {
		return nil, err
	}

	totalCollected := decimal.Zero
	for _, c := range contributions {
		totalCollected = totalCollected.Add(c.AmountPaid)
	}

	monthlyTarget := l.targetPerHead.Mul(decimal.NewFromInt(int64(activeMembers)))
	extra := totalCollected.Sub(monthlyTarget)
	if extra.IsNegative() {
		extra = decimal.Zero
	}

	summary := &models.MonthlySummary{
		Month:              month,
		Year:               year,
		TargetPerHead:      l.targetPerHead,
		ActiveMembers:      activeMembers,
		MonthlyTarget:      monthlyTarget,
		TotalCollected:     totalCollected,
		ExtraContributions: extra,
		TotalLoaned:        decimal.Zero,
		TotalOutstanding:   decimal.Zero,
	}
	for _, loan := range loans {
		summary.TotalLoaned = summary.TotalLoaned.Add(loan.LoanAmount)
		if loan.Status == models.LoanStatusClosed {
			summary.ClosedLoans++
		} else {
			summary.ActiveLoans++
			summary.TotalOutstanding = summary.TotalOutstanding.Add(loan.RemainingDue)
		}
	}
	return summary, nil
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RepaymentMode string

const (
	RepaymentModeEMI   RepaymentMode = "Calculated EMI"
	RepaymentModeFixed RepaymentMode = "Fixed Payment"
)

type LoanStatus string

const (
	LoanStatusActive LoanStatus = "Active"
	LoanStatusClosed LoanStatus = "Closed"
)

// Loan is one loan origination for a member. The financial fields
// (MonthlyEMI, TotalInterest, TotalRepayment and, in fixed-payment mode,
// TenureMonths) are derived from the terms and recomputed on every edit;
// AmountPaid, RemainingDue and Status are recomputed on every installment.
type Loan struct {
	ID                  uuid.UUID       `json:"id"`
	MemberID            uuid.UUID       `json:"memberId"`
	MemberName          string          `json:"memberName"` // snapshot at creation, not re-synced
	LoanAmount          decimal.Decimal `json:"loanAmount"`
	TenureMonths        int             `json:"tenure"`
	InterestRate        decimal.Decimal `json:"interestRate"` // annual, percent
	RepaymentMode       RepaymentMode   `json:"repaymentMode"`
	FixedMonthlyPayment decimal.Decimal `json:"fixedMonthlyPayment"`
	MonthlyEMI          decimal.Decimal `json:"monthlyEMI"`
	TotalInterest       decimal.Decimal `json:"totalInterest"`
	TotalRepayment      decimal.Decimal `json:"totalRepayment"`
	AmountPaid          decimal.Decimal `json:"amountPaid"`
	// RemainingDue is never clamped: a negative value means the loan was
	// overpaid and a refund is owed. Display-side clamping is up to clients.
	RemainingDue decimal.Decimal `json:"remainingDue"`
	Status       LoanStatus      `json:"status"`
	Installments []Installment   `json:"installments"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Installment is a single recorded payment against a loan. Append-only:
// installments are never edited or deleted individually.
type Installment struct {
	ID     uuid.UUID       `json:"id"`
	LoanID uuid.UUID       `json:"loanId"`
	Amount decimal.Decimal `json:"amount"`
	Date   time.Time       `json:"date"`
}

type Member struct {
	ID         uuid.UUID `json:"id"`
	MemberName string    `json:"memberName"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Contribution is one member's payment toward the collective fund for a
// given month.
type Contribution struct {
	ID         uuid.UUID       `json:"id"`
	MemberID   uuid.UUID       `json:"memberId"`
	MemberName string          `json:"memberName"`
	Month      int             `json:"month"` // 1..12
	Year       int             `json:"year"`
	Target     decimal.Decimal `json:"target"`
	AmountPaid decimal.Decimal `json:"amountPaid"`
	Extra      decimal.Decimal `json:"extra"`
	Method     string          `json:"method"` // e.g. "Cash", "UPI"
	Status     string          `json:"status"` // e.g. "Paid", "Pending"
	CreatedAt  time.Time       `json:"createdAt"`
}

// MonthlySummary aggregates fund health for one month.
type MonthlySummary struct {
	Month              int             `json:"month"`
	Year               int             `json:"year"`
	TargetPerHead      decimal.Decimal `json:"targetPerHead"`
	ActiveMembers      int             `json:"activeMembers"`
	MonthlyTarget      decimal.Decimal `json:"monthlyTarget"`
	TotalCollected     decimal.Decimal `json:"totalCollected"`
	ExtraContributions decimal.Decimal `json:"extraContributions"`
	TotalLoaned        decimal.Decimal `json:"totalLoaned"`
	TotalOutstanding   decimal.Decimal `json:"totalOutstanding"`
	ActiveLoans        int             `json:"activeLoans"`
	ClosedLoans        int             `json:"closedLoans"`
}

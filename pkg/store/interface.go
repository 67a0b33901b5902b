package store

import (
	"errors"

	"github.com/google/uuid"

	"github.com/mcclellann/fundbook/pkg/models"
)

var (
	ErrLoanNotFound         = errors.New("loan not found")
	ErrMemberNotFound       = errors.New("member not found")
	ErrContributionNotFound = errors.New("contribution not found")
)

// Storage defines the persistence operations for loans, installments,
// members and contributions. Loan reads return the loan with its
// installments populated in date order.
type Storage interface {
	CreateLoan(loan *models.Loan) error
	GetLoan(id uuid.UUID) (*models.Loan, error)
	UpdateLoan(loan *models.Loan) error
	DeleteLoan(id uuid.UUID) error
	GetAllLoans() ([]*models.Loan, error)

	// AppendInstallment writes the installment and the loan's recomputed
	// derived fields (AmountPaid, RemainingDue, Status, UpdatedAt) as a
	// single transaction, so a crash can never record a payment the loan
	// totals don't reflect.
	AppendInstallment(loan *models.Loan, inst *models.Installment) error

	CreateMember(m *models.Member) error
	GetMember(id uuid.UUID) (*models.Member, error)
	UpdateMember(m *models.Member) error
	DeleteMember(id uuid.UUID) error
	GetAllMembers() ([]*models.Member, error)
	CountActiveMembers() (int, error)

	CreateContribution(c *models.Contribution) error
	GetContribution(id uuid.UUID) (*models.Contribution, error)
	UpdateContribution(c *models.Contribution) error
	DeleteContribution(id uuid.UUID) error
	// GetContributions filters by month and year; zero means no filter on
	// that field.
	GetContributions(month, year int) ([]*models.Contribution, error)

	Close() error
}

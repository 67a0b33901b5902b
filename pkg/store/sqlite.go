package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mcclellann/fundbook/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database and bootstraps the schema.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	// Manually enable foreign keys and WAL mode
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	return s, nil
}

// initSchema creates the tables if they don't already exist. Decimal fields
// are stored as TEXT so no precision is lost.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		member_name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS contributions (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		member_name TEXT NOT NULL,
		month INTEGER NOT NULL,
		year INTEGER NOT NULL,
		target TEXT NOT NULL DEFAULT '0',
		amount_paid TEXT NOT NULL DEFAULT '0',
		extra TEXT NOT NULL DEFAULT '0',
		method TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		FOREIGN KEY(member_id) REFERENCES members(id)
	);
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		member_name TEXT NOT NULL,
		loan_amount TEXT NOT NULL,
		tenure_months INTEGER NOT NULL,
		interest_rate TEXT NOT NULL,
		repayment_mode TEXT NOT NULL,
		fixed_monthly_payment TEXT NOT NULL DEFAULT '0',
		monthly_emi TEXT NOT NULL DEFAULT '0',
		total_interest TEXT NOT NULL DEFAULT '0',
		total_repayment TEXT NOT NULL DEFAULT '0',
		amount_paid TEXT NOT NULL DEFAULT '0',
		remaining_due TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY(member_id) REFERENCES members(id)
	);
	CREATE TABLE IF NOT EXISTS installments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		date DATETIME NOT NULL,
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

const loanColumns = `id, member_id, member_name, loan_amount, tenure_months, interest_rate, repayment_mode, fixed_monthly_payment, monthly_emi, total_interest, total_repayment, amount_paid, remaining_due, status, created_at, updated_at`

// CreateLoan inserts a new loan into the database.
func (s *SQLiteStore) CreateLoan(loan *models.Loan) error {
	_, err := s.db.Exec(
		`INSERT INTO loans (`+loanColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID.String(), loan.MemberID.String(), loan.MemberName, loan.LoanAmount, loan.TenureMonths,
		loan.InterestRate, string(loan.RepaymentMode), loan.FixedMonthlyPayment, loan.MonthlyEMI,
		loan.TotalInterest, loan.TotalRepayment, loan.AmountPaid, loan.RemainingDue,
		string(loan.Status), loan.CreatedAt, loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

// GetLoan retrieves a loan and its installments by loan ID.
func (s *SQLiteStore) GetLoan(id uuid.UUID) (*models.Loan, error) {
	row := s.db.QueryRow(`SELECT `+loanColumns+` FROM loans WHERE id = ?`, id.String())
	loan, err := scanLoan(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrLoanNotFound
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}

	installments, err := s.getInstallments(loan.ID)
	if err != nil {
		return nil, err
	}
	loan.Installments = installments
	return loan, nil
}

// UpdateLoan updates an existing loan in the database.
func (s *SQLiteStore) UpdateLoan(loan *models.Loan) error {
	result, err := s.db.Exec(
		`UPDATE loans SET member_id = ?, member_name = ?, loan_amount = ?, tenure_months = ?, interest_rate = ?, repayment_mode = ?, fixed_monthly_payment = ?, monthly_emi = ?, total_interest = ?, total_repayment = ?, amount_paid = ?, remaining_due = ?, status = ?, updated_at = ? WHERE id = ?`,
		loan.MemberID.String(), loan.MemberName, loan.LoanAmount, loan.TenureMonths, loan.InterestRate,
		string(loan.RepaymentMode), loan.FixedMonthlyPayment, loan.MonthlyEMI, loan.TotalInterest,
		loan.TotalRepayment, loan.AmountPaid, loan.RemainingDue, string(loan.Status), loan.UpdatedAt,
		loan.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	return checkAffected(result, ErrLoanNotFound)
}

// DeleteLoan removes a loan and its installments within a transaction.
func (s *SQLiteStore) DeleteLoan(id uuid.UUID) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM installments WHERE loan_id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete installments: %w", err)
	}

	result, err := tx.Exec(`DELETE FROM loans WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete loan: %w", err)
	}
	if err := checkAffected(result, ErrLoanNotFound); err != nil {
		return err
	}

	return tx.Commit()
}

// GetAllLoans retrieves all loans with their installments.
func (s *SQLiteStore) GetAllLoans() ([]*models.Loan, error) {
	rows, err := s.db.Query(`SELECT ` + loanColumns + ` FROM loans ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all loans: %w", err)
	}
	defer rows.Close()

	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}

	for _, loan := range loans {
		installments, err := s.getInstallments(loan.ID)
		if err != nil {
			return nil, err
		}
		loan.Installments = installments
	}
	return loans, nil
}

// AppendInstallment records an installment and the loan's recomputed derived
// fields in one transaction.
func (s *SQLiteStore) AppendInstallment(loan *models.Loan, inst *models.Installment) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`UPDATE loans SET amount_paid = ?, remaining_due = ?, status = ?, updated_at = ? WHERE id = ?`,
		loan.AmountPaid, loan.RemainingDue, string(loan.Status), loan.UpdatedAt, loan.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update loan totals: %w", err)
	}
	if err := checkAffected(result, ErrLoanNotFound); err != nil {
		return err
	}

	if _, err := tx.Exec(
		`INSERT INTO installments (id, loan_id, amount, date) VALUES (?, ?, ?, ?)`,
		inst.ID.String(), inst.LoanID.String(), inst.Amount, inst.Date,
	); err != nil {
		return fmt.Errorf("failed to create installment: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) getInstallments(loanID uuid.UUID) ([]models.Installment, error) {
	rows, err := s.db.Query(`SELECT id, loan_id, amount, date FROM installments WHERE loan_id = ? ORDER BY date ASC`, loanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get installments for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	installments := []models.Installment{}
	for rows.Next() {
		var inst models.Installment
		var instIDStr, loanIDStr string
		var date time.Time
		if err := rows.Scan(&instIDStr, &loanIDStr, &inst.Amount, &date); err != nil {
			return nil, fmt.Errorf("failed to scan installment row: %w", err)
		}
		inst.ID = uuid.MustParse(instIDStr)
		inst.LoanID = uuid.MustParse(loanIDStr)
		inst.Date = date
		installments = append(installments, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during installment rows iteration: %w", err)
	}
	return installments, nil
}

// CreateMember inserts a new member into the database.
func (s *SQLiteStore) CreateMember(m *models.Member) error {
	_, err := s.db.Exec(
		`INSERT INTO members (id, member_name, email, phone, active, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID.String(), m.MemberName, m.Email, m.Phone, m.Active, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create member: %w", err)
	}
	return nil
}

// GetMember retrieves a member by ID.
func (s *SQLiteStore) GetMember(id uuid.UUID) (*models.Member, error) {
	var m models.Member
	var idStr string
	row := s.db.QueryRow(`SELECT id, member_name, email, phone, active, created_at FROM members WHERE id = ?`, id.String())
	if err := row.Scan(&idStr, &m.MemberName, &m.Email, &m.Phone, &m.Active, &m.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	m.ID = uuid.MustParse(idStr)
	return &m, nil
}

// UpdateMember updates an existing member.
func (s *SQLiteStore) UpdateMember(m *models.Member) error {
	result, err := s.db.Exec(
		`UPDATE members SET member_name = ?, email = ?, phone = ?, active = ? WHERE id = ?`,
		m.MemberName, m.Email, m.Phone, m.Active, m.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update member: %w", err)
	}
	return checkAffected(result, ErrMemberNotFound)
}

// DeleteMember removes a member. Fails if the member still has loans or
// contributions, via the foreign key constraints.
func (s *SQLiteStore) DeleteMember(id uuid.UUID) error {
	result, err := s.db.Exec(`DELETE FROM members WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete member: %w", err)
	}
	return checkAffected(result, ErrMemberNotFound)
}

// GetAllMembers retrieves all members.
func (s *SQLiteStore) GetAllMembers() ([]*models.Member, error) {
	rows, err := s.db.Query(`SELECT id, member_name, email, phone, active, created_at FROM members ORDER BY member_name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all members: %w", err)
	}
	defer rows.Close()

	var members []*models.Member
	for rows.Next() {
		var m models.Member
		var idStr string
		if err := rows.Scan(&idStr, &m.MemberName, &m.Email, &m.Phone, &m.Active, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member row: %w", err)
		}
		m.ID = uuid.MustParse(idStr)
		members = append(members, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during member rows iteration: %w", err)
	}
	return members, nil
}

// CountActiveMembers returns the number of active members.
func (s *SQLiteStore) CountActiveMembers() (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM members WHERE active = 1`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active members: %w", err)
	}
	return count, nil
}

// CreateContribution inserts a new contribution record.
func (s *SQLiteStore) CreateContribution(c *models.Contribution) error {
	_, err := s.db.Exec(
		`INSERT INTO contributions (id, member_id, member_name, month, year, target, amount_paid, extra, method, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.MemberID.String(), c.MemberName, c.Month, c.Year, c.Target, c.AmountPaid, c.Extra, c.Method, c.Status, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create contribution: %w", err)
	}
	return nil
}

// GetContribution retrieves a contribution by ID.
func (s *SQLiteStore) GetContribution(id uuid.UUID) (*models.Contribution, error) {
	row := s.db.QueryRow(`SELECT id, member_id, member_name, month, year, target, amount_paid, extra, method, status, created_at FROM contributions WHERE id = ?`, id.String())
	c, err := scanContribution(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrContributionNotFound
		}
		return nil, fmt.Errorf("failed to get contribution: %w", err)
	}
	return c, nil
}

// UpdateContribution updates an existing contribution.
func (s *SQLiteStore) UpdateContribution(c *models.Contribution) error {
	result, err := s.db.Exec(
		`UPDATE contributions SET member_id = ?, member_name = ?, month = ?, year = ?, target = ?, amount_paid = ?, extra = ?, method = ?, status = ? WHERE id = ?`,
		c.MemberID.String(), c.MemberName, c.Month, c.Year, c.Target, c.AmountPaid, c.Extra, c.Method, c.Status, c.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update contribution: %w", err)
	}
	return checkAffected(result, ErrContributionNotFound)
}

// DeleteContribution removes a contribution.
func (s *SQLiteStore) DeleteContribution(id uuid.UUID) error {
	result, err := s.db.Exec(`DELETE FROM contributions WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete contribution: %w", err)
	}
	return checkAffected(result, ErrContributionNotFound)
}

// GetContributions retrieves contributions, optionally filtered by month
// and/or year (zero means no filter).
func (s *SQLiteStore) GetContributions(month, year int) ([]*models.Contribution, error) {
	query := `SELECT id, member_id, member_name, month, year, target, amount_paid, extra, method, status, created_at FROM contributions WHERE 1=1`
	args := []interface{}{}
	if month != 0 {
		query += ` AND month = ?`
		args = append(args, month)
	}
	if year != 0 {
		query += ` AND year = ?`
		args = append(args, year)
	}
	query += ` ORDER BY year ASC, month ASC, member_name ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get contributions: %w", err)
	}
	defer rows.Close()

	var contributions []*models.Contribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contribution row: %w", err)
		}
		contributions = append(contributions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during contribution rows iteration: %w", err)
	}
	return contributions, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLoan(row rowScanner) (*models.Loan, error) {
	var loan models.Loan
	var loanIDStr, memberIDStr, mode, status string
	var created, updated time.Time
	err := row.Scan(
		&loanIDStr, &memberIDStr, &loan.MemberName, &loan.LoanAmount, &loan.TenureMonths,
		&loan.InterestRate, &mode, &loan.FixedMonthlyPayment, &loan.MonthlyEMI,
		&loan.TotalInterest, &loan.TotalRepayment, &loan.AmountPaid, &loan.RemainingDue,
		&status, &created, &updated,
	)
	if err != nil {
		return nil, err
	}
	loan.ID = uuid.MustParse(loanIDStr)
	loan.MemberID = uuid.MustParse(memberIDStr)
	loan.RepaymentMode = models.RepaymentMode(mode)
	loan.Status = models.LoanStatus(status)
	loan.CreatedAt = created
	loan.UpdatedAt = updated
	return &loan, nil
}

func scanContribution(row rowScanner) (*models.Contribution, error) {
	var c models.Contribution
	var idStr, memberIDStr string
	err := row.Scan(&idStr, &memberIDStr, &c.MemberName, &c.Month, &c.Year, &c.Target, &c.AmountPaid, &c.Extra, &c.Method, &c.Status, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.ID = uuid.MustParse(idStr)
	c.MemberID = uuid.MustParse(memberIDStr)
	return &c, nil
}

func checkAffected(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}

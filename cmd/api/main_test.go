package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mcclellann/fundbook/pkg/models"
	"github.com/mcclellann/fundbook/pkg/store"
)

func setupTestServer(t *testing.T, dbFile string) *Server {
	t.Helper()
	os.Remove(dbFile)
	t.Cleanup(func() { os.Remove(dbFile) })

	s, err := store.NewSQLiteStore(dbFile)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return NewServer(s, zap.NewNop(), decimal.NewFromInt(500))
}

func doJSON(t *testing.T, router http.Handler, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Buffer
	if payload != nil {
		b, _ := json.Marshal(payload)
		body = bytes.NewBuffer(b)
	} else {
		body = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, body)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeData(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("Failed to decode envelope: %v. Body: %s", err, rr.Body.String())
	}
	if err := json.Unmarshal(envelope.Data, v); err != nil {
		t.Fatalf("Failed to decode data: %v. Body: %s", err, rr.Body.String())
	}
}

func createTestMember(t *testing.T, router http.Handler, name string) models.Member {
	t.Helper()
	rr := doJSON(t, router, "POST", "/api/members", map[string]interface{}{
		"memberName": name,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	var member models.Member
	decodeData(t, rr, &member)
	return member
}

func TestAPI_LoanLifecycle(t *testing.T) {
	server := setupTestServer(t, "test_api_lifecycle.db")
	router := server.routes()

	member := createTestMember(t, router, "Asha")

	// Create a zero-interest loan with a 5000 total repayment.
	rr := doJSON(t, router, "POST", "/api/loan/create", map[string]interface{}{
		"memberId":      member.ID,
		"loanAmount":    5000,
		"tenure":        10,
		"interestRate":  0,
		"repaymentMode": "Calculated EMI",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	var loan models.Loan
	decodeData(t, rr, &loan)
	if loan.Status != models.LoanStatusActive {
		t.Errorf("Expected status Active, got %s", loan.Status)
	}
	if got := loan.TotalRepayment.StringFixed(2); got != "5000.00" {
		t.Errorf("Expected total repayment 5000.00, got %s", got)
	}

	// Two installments that exactly cover the repayment close the loan.
	for _, amount := range []int{2000, 3000} {
		rr = doJSON(t, router, "POST", "/api/loan/installment/"+loan.ID.String(), map[string]interface{}{
			"amount": amount,
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("Expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
		}
	}
	var paid models.Loan
	decodeData(t, rr, &paid)
	if got := paid.AmountPaid.StringFixed(2); got != "5000.00" {
		t.Errorf("Expected amount paid 5000.00, got %s", got)
	}
	if !paid.RemainingDue.IsZero() {
		t.Errorf("Expected remaining due 0, got %s", paid.RemainingDue)
	}
	if paid.Status != models.LoanStatusClosed {
		t.Errorf("Expected status Closed, got %s", paid.Status)
	}

	// Fetch reflects the installments.
	rr = doJSON(t, router, "GET", "/api/loan/"+loan.ID.String(), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	var fetched models.Loan
	decodeData(t, rr, &fetched)
	if len(fetched.Installments) != 2 {
		t.Errorf("Expected 2 installments, got %d", len(fetched.Installments))
	}
}

func TestAPI_CreateLoan_EMIFigures(t *testing.T) {
	server := setupTestServer(t, "test_api_emi.db")
	router := server.routes()
	member := createTestMember(t, router, "Ravi")

	rr := doJSON(t, router, "POST", "/api/loan/create", map[string]interface{}{
		"memberId":      member.ID,
		"loanAmount":    12000,
		"tenure":        12,
		"interestRate":  10,
		"repaymentMode": "Calculated EMI",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	var loan models.Loan
	decodeData(t, rr, &loan)
	if got := loan.MonthlyEMI.StringFixed(2); got != "1054.99" {
		t.Errorf("Expected EMI 1054.99, got %s", got)
	}
	if got := loan.TotalInterest.StringFixed(2); got != "659.88" {
		t.Errorf("Expected total interest 659.88, got %s", got)
	}
}

func TestAPI_RecordInstallment_InvalidAmount(t *testing.T) {
	server := setupTestServer(t, "test_api_invalid_amount.db")
	router := server.routes()
	member := createTestMember(t, router, "Asha")

	rr := doJSON(t, router, "POST", "/api/loan/create", map[string]interface{}{
		"memberId":      member.ID,
		"loanAmount":    5000,
		"tenure":        10,
		"interestRate":  0,
		"repaymentMode": "Calculated EMI",
	})
	var loan models.Loan
	decodeData(t, rr, &loan)

	rr = doJSON(t, router, "POST", "/api/loan/installment/"+loan.ID.String(), map[string]interface{}{
		"amount": -100,
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d. Body: %s", rr.Code, rr.Body.String())
	}
}

func TestAPI_CreateLoan_NonConvergentFixedPayment(t *testing.T) {
	server := setupTestServer(t, "test_api_nonconvergent.db")
	router := server.routes()
	member := createTestMember(t, router, "Asha")

	rr := doJSON(t, router, "POST", "/api/loan/create", map[string]interface{}{
		"memberId":            member.ID,
		"loanAmount":          10000,
		"interestRate":        24,
		"repaymentMode":       "Fixed Payment",
		"fixedMonthlyPayment": 50,
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	// Nothing was persisted for the rejected loan.
	rr = doJSON(t, router, "GET", "/api/loan", nil)
	var loans []models.Loan
	decodeData(t, rr, &loans)
	if len(loans) != 0 {
		t.Errorf("Expected no loans persisted, got %d", len(loans))
	}
}

func TestAPI_Summary(t *testing.T) {
	server := setupTestServer(t, "test_api_summary.db")
	router := server.routes()
	member := createTestMember(t, router, "Asha")

	rr := doJSON(t, router, "POST", "/api/contributions", map[string]interface{}{
		"memberId":   member.ID,
		"month":      6,
		"year":       2026,
		"target":     500,
		"amountPaid": 700,
		"status":     "Paid",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, router, "GET", "/api/summary?month=6&year=2026", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	var summary models.MonthlySummary
	decodeData(t, rr, &summary)
	if summary.ActiveMembers != 1 {
		t.Errorf("Expected 1 active member, got %d", summary.ActiveMembers)
	}
	if got := summary.MonthlyTarget.StringFixed(2); got != "500.00" {
		t.Errorf("Expected monthly target 500.00, got %s", got)
	}
	if got := summary.TotalCollected.StringFixed(2); got != "700.00" {
		t.Errorf("Expected total collected 700.00, got %s", got)
	}
	if got := summary.ExtraContributions.StringFixed(2); got != "200.00" {
		t.Errorf("Expected extra contributions 200.00, got %s", got)
	}
}

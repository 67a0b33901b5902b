package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mcclellann/fundbook/pkg/amortization"
	"github.com/mcclellann/fundbook/pkg/config"
	"github.com/mcclellann/fundbook/pkg/ledger"
	"github.com/mcclellann/fundbook/pkg/logger"
	"github.com/mcclellann/fundbook/pkg/models"
	"github.com/mcclellann/fundbook/pkg/store"
)

// Server holds the ledger instance and wires it to the HTTP routes.
type Server struct {
	ledger  *ledger.Ledger
	storage store.Storage
	log     *zap.Logger
}

func NewServer(s store.Storage, log *zap.Logger, targetPerHead decimal.Decimal) *Server {
	return &Server{
		ledger:  ledger.NewLedger(s, log, targetPerHead),
		storage: s,
		log:     log,
	}
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/healthz", s.healthHandler).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/members", s.listMembersHandler).Methods("GET")
	api.HandleFunc("/members", s.createMemberHandler).Methods("POST")
	api.HandleFunc("/members/{id}", s.updateMemberHandler).Methods("PUT")
	api.HandleFunc("/members/{id}", s.deleteMemberHandler).Methods("DELETE")

	api.HandleFunc("/contributions", s.listContributionsHandler).Methods("GET")
	api.HandleFunc("/contributions", s.createContributionHandler).Methods("POST")
	api.HandleFunc("/contributions/{id}", s.updateContributionHandler).Methods("PUT")
	api.HandleFunc("/contributions/{id}", s.deleteContributionHandler).Methods("DELETE")
	api.HandleFunc("/summary", s.summaryHandler).Methods("GET")

	api.HandleFunc("/loan", s.listLoansHandler).Methods("GET")
	api.HandleFunc("/loan/create", s.createLoanHandler).Methods("POST")
	api.HandleFunc("/loan/installment/{id}", s.recordInstallmentHandler).Methods("POST")
	api.HandleFunc("/loan/{id}", s.getLoanHandler).Methods("GET")
	api.HandleFunc("/loan/{id}", s.updateLoanHandler).Methods("PUT")
	api.HandleFunc("/loan/{id}", s.deleteLoanHandler).Methods("DELETE")

	return router
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{"data": v})
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": msg})
}

// respondError maps domain errors onto HTTP statuses: validation failures
// are 400s, missing records 404s, everything else a logged 500.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrLoanNotFound),
		errors.Is(err, store.ErrMemberNotFound),
		errors.Is(err, store.ErrContributionNotFound):
		writeMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, amortization.ErrInvalidPrincipal),
		errors.Is(err, amortization.ErrInvalidRate),
		errors.Is(err, amortization.ErrInvalidTenure),
		errors.Is(err, amortization.ErrInvalidFixedPayment),
		errors.Is(err, amortization.ErrNonConvergent),
		errors.Is(err, amortization.ErrTermsOutOfRange),
		errors.Is(err, ledger.ErrInvalidPaymentAmount),
		errors.Is(err, ledger.ErrInvalidMonth),
		errors.Is(err, ledger.ErrInvalidContribution),
		errors.Is(err, ledger.ErrMemberNameRequired):
		writeMessage(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error("request failed", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}

func pathID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(mux.Vars(r)["id"])
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type memberRequest struct {
	MemberName string `json:"memberName"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Active     *bool  `json:"active"`
}

func (s *Server) listMembersHandler(w http.ResponseWriter, r *http.Request) {
	members, err := s.ledger.GetAllMembers()
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (s *Server) createMemberHandler(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	member, err := s.ledger.CreateMember(req.MemberName, req.Email, req.Phone, active)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

func (s *Server) updateMemberHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid member ID")
		return
	}
	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	member, err := s.storage.GetMember(id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	member.MemberName = req.MemberName
	member.Email = req.Email
	member.Phone = req.Phone
	if req.Active != nil {
		member.Active = *req.Active
	}
	if err := s.ledger.UpdateMember(member); err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (s *Server) deleteMemberHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid member ID")
		return
	}
	if err := s.ledger.DeleteMember(id); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type contributionRequest struct {
	MemberID   uuid.UUID       `json:"memberId"`
	Month      int             `json:"month"`
	Year       int             `json:"year"`
	Target     decimal.Decimal `json:"target"`
	AmountPaid decimal.Decimal `json:"amountPaid"`
	Extra      decimal.Decimal `json:"extra"`
	Method     string          `json:"method"`
	Status     string          `json:"status"`
}

func (req contributionRequest) input() ledger.ContributionInput {
	return ledger.ContributionInput{
		MemberID:   req.MemberID,
		Month:      req.Month,
		Year:       req.Year,
		Target:     req.Target,
		AmountPaid: req.AmountPaid,
		Extra:      req.Extra,
		Method:     req.Method,
		Status:     req.Status,
	}
}

func (s *Server) listContributionsHandler(w http.ResponseWriter, r *http.Request) {
	month, year, err := monthYearQuery(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	contributions, err := s.ledger.GetContributions(month, year)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contributions)
}

func (s *Server) createContributionHandler(w http.ResponseWriter, r *http.Request) {
	var req contributionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := s.ledger.CreateContribution(req.input())
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) updateContributionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid contribution ID")
		return
	}
	var req contributionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := s.ledger.UpdateContribution(id, req.input())
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) deleteContributionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid contribution ID")
		return
	}
	if err := s.ledger.DeleteContribution(id); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) summaryHandler(w http.ResponseWriter, r *http.Request) {
	month, year, err := monthYearQuery(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if month == 0 || year == 0 {
		now := time.Now().UTC()
		if month == 0 {
			month = int(now.Month())
		}
		if year == 0 {
			year = now.Year()
		}
	}
	summary, err := s.ledger.MonthlySummary(month, year)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func monthYearQuery(r *http.Request) (int, int, error) {
	var month, year int
	var err error
	if v := r.URL.Query().Get("month"); v != "" {
		if month, err = strconv.Atoi(v); err != nil {
			return 0, 0, errors.New("month must be a number")
		}
	}
	if v := r.URL.Query().Get("year"); v != "" {
		if year, err = strconv.Atoi(v); err != nil {
			return 0, 0, errors.New("year must be a number")
		}
	}
	return month, year, nil
}

type loanRequest struct {
	MemberID            uuid.UUID            `json:"memberId"`
	LoanAmount          decimal.Decimal      `json:"loanAmount"`
	TenureMonths        int                  `json:"tenure"`
	InterestRate        decimal.Decimal      `json:"interestRate"`
	RepaymentMode       models.RepaymentMode `json:"repaymentMode"`
	FixedMonthlyPayment decimal.Decimal      `json:"fixedMonthlyPayment"`
}

func (req loanRequest) terms() ledger.LoanTerms {
	return ledger.LoanTerms{
		MemberID:            req.MemberID,
		LoanAmount:          req.LoanAmount,
		TenureMonths:        req.TenureMonths,
		InterestRate:        req.InterestRate,
		RepaymentMode:       req.RepaymentMode,
		FixedMonthlyPayment: req.FixedMonthlyPayment,
	}
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	loans, err := s.ledger.GetAllLoans()
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req loanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	loan, err := s.ledger.CreateLoan(req.terms())
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid loan ID")
		return
	}
	loan, err := s.ledger.GetLoan(id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) updateLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid loan ID")
		return
	}
	var req loanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	loan, err := s.ledger.UpdateLoanTerms(id, req.terms())
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) deleteLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid loan ID")
		return
	}
	if err := s.ledger.DeleteLoan(id); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type installmentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Date   time.Time       `json:"date"`
}

func (s *Server) recordInstallmentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid loan ID")
		return
	}
	var req installmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	loan, err := s.ledger.RecordInstallment(id, req.Amount, req.Date)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	defer log.Sync()

	sqliteStore, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		log.Fatal("failed to initialize store", zap.Error(err))
	}
	defer sqliteStore.Close()
	log.Info("database ready", zap.String("path", cfg.DatabasePath))

	server := NewServer(sqliteStore, log, decimal.NewFromFloat(cfg.ContributionTarget))

	httpServer := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: server.routes(),
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("server starting", zap.String("port", cfg.ServerPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-sigCh
	log.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LoansCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fundbook_loans_created_total",
			Help: "Total number of loans created",
		},
	)

	LoansClosed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fundbook_loans_closed_total",
			Help: "Total number of loans that reached Closed status",
		},
	)

	InstallmentsRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fundbook_installments_recorded_total",
			Help: "Total number of loan installments recorded",
		},
	)

	AmortizationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fundbook_amortization_failures_total",
			Help: "Total number of rejected amortization computations",
		},
		[]string{"reason"},
	)

	ContributionsRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fundbook_contributions_recorded_total",
			Help: "Total number of fund contributions recorded",
		},
	)
)

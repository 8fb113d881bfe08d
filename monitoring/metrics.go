// Package monitoring exposes the process-wide Prometheus collectors shared
// across the settlement subsystems.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Submissions counts signed transactions handed to the ledger,
	// labelled by settlement outcome.
	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_submissions_total",
		Help: "Signed transactions submitted to the ledger, by outcome.",
	}, []string{"result"})

	// IssuerDirectPayments counts payouts sent directly from the issuing
	// account rather than the treasury. These skip the balance check, so
	// a rising counter is worth a look.
	IssuerDirectPayments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_issuer_direct_payments_total",
		Help: "Payouts issued directly from the issuing account.",
	})

	// TrustLinesEstablished counts trust lines created or extended by the
	// trust manager.
	TrustLinesEstablished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_trust_lines_established_total",
		Help: "Trust lines established or extended on the ledger.",
	})

	// LedgerReconnects counts re-dials of the ledger node connection
	// after an established connection was lost.
	LedgerReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_ledger_reconnects_total",
		Help: "Reconnections to the ledger node after a lost connection.",
	})

	// PreflightRejections counts payout intents rejected before any
	// transaction was built, labelled by rejection reason.
	PreflightRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_preflight_rejections_total",
		Help: "Payout intents rejected during preflight, by reason.",
	}, []string{"reason"})
)

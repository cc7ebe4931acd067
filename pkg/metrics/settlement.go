package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outcome labels shared by the settlement counters.
const (
	OutcomeApproved     = "approved"
	OutcomeRejected     = "rejected"
	OutcomeNoop         = "noop"
	OutcomeFailed       = "failed"
	OutcomeRevealed     = "revealed"
	OutcomeAlreadyPaid  = "already_revealed"
	OutcomeInsufficient = "insufficient_points"
)

// SettlementMetrics tracks fulfillment, disclosure and points ledger activity.
type SettlementMetrics struct {
	approvals   *prometheus.CounterVec
	reveals     *prometheus.CounterVec
	mutations   *prometheus.CounterVec
	txRetries   *prometheus.CounterVec
	ledgerDrift prometheus.Counter
}

// NewSettlementMetrics registers the settlement metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	approvals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_approvals_total",
		Help: "Purchase request review decisions by outcome.",
	}, []string{"outcome"})
	reveals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "disclosure_reveals_total",
		Help: "Buyer disclosure attempts by outcome.",
	}, []string{"outcome"})
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "points_mutations_total",
		Help: "Points ledger entries written by transaction type.",
	}, []string{"type"})
	txRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "db_tx_retries_total",
		Help: "Database transactions replayed after a transient conflict.",
	}, []string{"operation"})
	ledgerDrift := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "points_ledger_drift_total",
		Help: "Points accounts whose balance disagrees with their transaction log.",
	})
	reg.MustRegister(approvals, reveals, mutations, txRetries, ledgerDrift)
	return &SettlementMetrics{
		approvals:   approvals,
		reveals:     reveals,
		mutations:   mutations,
		txRetries:   txRetries,
		ledgerDrift: ledgerDrift,
	}
}

// IncApproval counts a review decision outcome.
func (m *SettlementMetrics) IncApproval(outcome string) {
	if m == nil || m.approvals == nil {
		return
	}
	m.approvals.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncReveal counts a disclosure attempt outcome.
func (m *SettlementMetrics) IncReveal(outcome string) {
	if m == nil || m.reveals == nil {
		return
	}
	m.reveals.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncPointsMutation counts a ledger entry of the given transaction type.
func (m *SettlementMetrics) IncPointsMutation(txType string) {
	if m == nil || m.mutations == nil {
		return
	}
	m.mutations.WithLabelValues(normalizeLabel(txType)).Inc()
}

// IncTxRetry counts a replayed transaction for the named operation.
func (m *SettlementMetrics) IncTxRetry(operation string) {
	if m == nil || m.txRetries == nil {
		return
	}
	m.txRetries.WithLabelValues(normalizeLabel(operation)).Inc()
}

// AddLedgerDrift counts accounts found out of balance.
func (m *SettlementMetrics) AddLedgerDrift(n int) {
	if m == nil || m.ledgerDrift == nil || n <= 0 {
		return
	}
	m.ledgerDrift.Add(float64(n))
}

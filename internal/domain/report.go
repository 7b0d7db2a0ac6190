/**
 * @description
 * Reconciliation report and statistics models. A reconciliation run audits
 * stored transfers for anomalies without mutating confirmed financial state:
 * duplicate groups are relabeled, stale pending transfers are reported for
 * operator follow-up, and a global statistics snapshot is captured for
 * observability.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// StalePendingFinding reports a transfer stuck in pending past the
// configured age threshold. It is advisory only; the transfer keeps its
// status until an operator or a provider-API check resolves it.
type StalePendingFinding struct {
	TransferID           uuid.UUID `json:"transfer_id"`
	Provider             string    `json:"provider"`
	AccountNumber        string    `json:"account_number"`
	TransactionReference string    `json:"transaction_reference"`
	AmountMinor          int64     `json:"amount_minor"`
	Currency             string    `json:"currency"`
	PendingSince         time.Time `json:"pending_since"`
	Age                  string    `json:"age"`
}

// ProviderReconciliation aggregates the outcome of one provider's pass.
type ProviderReconciliation struct {
	Provider         string                `json:"provider"`
	AccountsChecked  int                   `json:"accounts_checked"`
	DuplicateGroups  int                   `json:"duplicate_groups"`
	DuplicatesMarked int                   `json:"duplicates_marked"`
	StalePending     []StalePendingFinding `json:"stale_pending"`
	Error            string                `json:"error,omitempty"`
}

// TransferStatistics is the running global snapshot captured at the end of
// each reconciliation run.
type TransferStatistics struct {
	ActiveAccounts       int64            `json:"active_accounts"`
	TotalTransfers       int64            `json:"total_transfers"`
	ConfirmedTransfers   int64            `json:"confirmed_transfers"`
	PendingTransfers     int64            `json:"pending_transfers"`
	DuplicateTransfers   int64            `json:"duplicate_transfers"`
	ConfirmedAmountMinor int64            `json:"confirmed_amount_minor"`
	AccountsByProvider   map[string]int64 `json:"accounts_by_provider"`
}

// ReconciliationReport is the structured result of one full run. A failure
// in one provider never suppresses the results of the others.
type ReconciliationReport struct {
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt time.Time                `json:"finished_at"`
	Providers  []ProviderReconciliation `json:"providers"`
	Errors     []string                 `json:"errors"`
	Statistics *TransferStatistics      `json:"statistics,omitempty"`
}

// TotalDuplicatesMarked sums relabeled rows across providers.
func (r *ReconciliationReport) TotalDuplicatesMarked() int {
	total := 0
	for _, p := range r.Providers {
		total += p.DuplicatesMarked
	}
	return total
}

// TotalStalePending sums stale-pending findings across providers.
func (r *ReconciliationReport) TotalStalePending() int {
	total := 0
	for _, p := range r.Providers {
		total += len(p.StalePending)
	}
	return total
}

/**
 * @description
 * Reconciliation engine. Runs on a schedule over all enabled providers,
 * auditing stored transfers for anomalies the ingestion path cannot see:
 * duplicate business references that slipped past the fingerprint (data
 * migrations, fingerprint formula changes across versions) and transfers
 * stuck in pending past the configured age threshold.
 *
 * The engine owns exactly one status transition, confirmed -> duplicate.
 * Stale pending transfers are reported for operator follow-up, never
 * auto-resolved: auto-confirming would risk crediting an unverified
 * transfer.
 */
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ken-de-nigerian/payzephyr-virtual-account-manager/internal/domain"
	"github.com/ken-de-nigerian/payzephyr-virtual-account-manager/internal/providers"
	"github.com/ken-de-nigerian/payzephyr-virtual-account-manager/internal/store"
)

// Reconciler audits stored transfers across all enabled providers.
type Reconciler struct {
	repo           store.Repository
	registry       *providers.Registry
	staleThreshold time.Duration
	logger         *slog.Logger
}

// NewReconciler creates the reconciliation engine.
func NewReconciler(repo store.Repository, registry *providers.Registry, staleThreshold time.Duration, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		repo:           repo,
		registry:       registry,
		staleThreshold: staleThreshold,
		logger:         logger,
	}
}

// ReconcileAll runs one reconciliation pass. A failure in one provider is
// captured into the report and does not abort the remaining providers.
func (r *Reconciler) ReconcileAll(ctx context.Context) *domain.ReconciliationReport {
	report := &domain.ReconciliationReport{StartedAt: time.Now().UTC()}

	for _, providerName := range r.registry.Names() {
		result, err := r.reconcileProvider(ctx, providerName)
		if err != nil {
			result.Error = err.Error()
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", providerName, err))
			r.logger.Error("provider reconciliation failed", "provider", providerName, "error", err)
		}
		report.Providers = append(report.Providers, result)
	}

	stats, err := r.repo.TransferStatistics(ctx)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("statistics: %v", err))
		r.logger.Error("failed to capture transfer statistics", "error", err)
	} else {
		report.Statistics = stats
	}

	report.FinishedAt = time.Now().UTC()
	return report
}

// reconcileProvider runs duplicate and stale-pending detection for a single
// provider. The returned result is partial when err is non-nil.
func (r *Reconciler) reconcileProvider(ctx context.Context, providerName string) (domain.ProviderReconciliation, error) {
	result := domain.ProviderReconciliation{Provider: providerName}

	accounts, err := r.repo.CountActiveAccounts(ctx, providerName)
	if err != nil {
		return result, fmt.Errorf("count active accounts: %w", err)
	}
	result.AccountsChecked = int(accounts)

	groups, err := r.repo.ListDuplicateReferenceGroups(ctx, providerName)
	if err != nil {
		return result, fmt.Errorf("list duplicate groups: %w", err)
	}
	result.DuplicateGroups = len(groups)

	for _, group := range groups {
		marked, err := r.resolveDuplicateGroup(ctx, providerName, group)
		if err != nil {
			return result, fmt.Errorf("resolve duplicate group (account=%s reference=%s): %w", group.AccountNumber, group.TransactionReference, err)
		}
		result.DuplicatesMarked += int(marked)
	}

	cutoff := time.Now().UTC().Add(-r.staleThreshold)
	stale, err := r.repo.ListStalePendingTransfers(ctx, providerName, cutoff)
	if err != nil {
		return result, fmt.Errorf("list stale pending transfers: %w", err)
	}
	now := time.Now().UTC()
	for _, transfer := range stale {
		result.StalePending = append(result.StalePending, domain.StalePendingFinding{
			TransferID:           transfer.ID,
			Provider:             transfer.Provider,
			AccountNumber:        transfer.AccountNumber,
			TransactionReference: transfer.TransactionReference,
			AmountMinor:          transfer.AmountMinor,
			Currency:             transfer.Currency,
			PendingSince:         transfer.CreatedAt,
			Age:                  now.Sub(transfer.CreatedAt).Round(time.Minute).String(),
		})
	}

	return result, nil
}

// resolveDuplicateGroup keeps the earliest confirmed record in an anomalous
// group and relabels the rest as duplicates.
func (r *Reconciler) resolveDuplicateGroup(ctx context.Context, providerName string, group store.DuplicateGroup) (int64, error) {
	transfers, err := r.repo.ListTransfersByReference(ctx, providerName, group.AccountNumber, group.TransactionReference)
	if err != nil {
		return 0, err
	}
	if len(transfers) <= 1 {
		return 0, nil
	}

	keeper := pickKeeper(transfers)
	var toMark []uuid.UUID
	for _, transfer := range transfers {
		if transfer.ID == keeper {
			continue
		}
		toMark = append(toMark, transfer.ID)
	}

	marked, err := r.repo.MarkTransfersDuplicate(ctx, toMark)
	if err != nil {
		return 0, err
	}
	if marked > 0 {
		r.logger.Warn("relabeled anomalous duplicate transfers",
			"provider", providerName,
			"account_number", group.AccountNumber,
			"transaction_reference", group.TransactionReference,
			"kept", keeper,
			"marked", marked)
	}
	return marked, nil
}

// pickKeeper selects the record that survives relabeling: the earliest
// confirmed transfer, falling back to the earliest overall when none is
// confirmed. The input is ordered oldest first.
func pickKeeper(transfers []domain.Transfer) uuid.UUID {
	for _, transfer := range transfers {
		if transfer.Status == domain.TransferStatusConfirmed {
			return transfer.ID
		}
	}
	return transfers[0].ID
}

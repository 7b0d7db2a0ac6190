/**
 * @description
 * This file defines the Repository interface, which abstracts all database
 * operations for the service. Defining an interface decouples the pipeline
 * and reconciliation logic from the concrete PostgreSQL implementation,
 * which is essential for testing.
 */
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ken-de-nigerian/payzephyr-virtual-account-manager/internal/domain"
)

// DuplicateGroup identifies a set of stored transfers sharing the same
// business reference on the same account. More than one member in a group is
// anomalous: the idempotency constraint should make it structurally
// impossible, so its existence implies a migration artifact or a fingerprint
// formula change across versions.
type DuplicateGroup struct {
	AccountNumber        string
	TransactionReference string
	Count                int
}

// Repository defines all persistence operations used by the pipeline and
// the reconciliation engine.
type Repository interface {
	// Webhook audit log.
	CreateWebhookEvent(ctx context.Context, event *domain.WebhookEvent) error
	FlagWebhookEventError(ctx context.Context, id uuid.UUID, message string) error
	MarkWebhookEventProcessed(ctx context.Context, id uuid.UUID, errorMessage *string, transactionReference *string) error

	// Transfers. The insert is atomic: the unique constraint on the
	// idempotency key is the single source of truth for duplicates.
	InsertTransferIdempotent(ctx context.Context, transfer *domain.Transfer) (inserted bool, err error)

	// Reconciliation reads and the single permitted status transition.
	ListDuplicateReferenceGroups(ctx context.Context, provider string) ([]DuplicateGroup, error)
	ListTransfersByReference(ctx context.Context, provider, accountNumber, transactionReference string) ([]domain.Transfer, error)
	MarkTransfersDuplicate(ctx context.Context, ids []uuid.UUID) (int64, error)
	ListStalePendingTransfers(ctx context.Context, provider string, olderThan time.Time) ([]domain.Transfer, error)

	// Statistics.
	CountActiveAccounts(ctx context.Context, provider string) (int64, error)
	AccountCountsByProvider(ctx context.Context) (map[string]int64, error)
	TransferStatistics(ctx context.Context) (*domain.TransferStatistics, error)
}

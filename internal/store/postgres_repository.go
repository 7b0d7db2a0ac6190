/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains all the necessary SQL queries to interact with the
 * database tables for transfers, virtual accounts, and the webhook audit
 * log.
 *
 * @dependencies
 * - context, time, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ken-de-nigerian/payzephyr-virtual-account-manager/internal/domain"
)

var ErrWebhookEventNotFound = errors.New("webhook event not found")

// PostgresRepository is a concrete implementation of the Repository
// interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateWebhookEvent inserts the audit record persisted synchronously on
// receipt, before the verification outcome is known.
func (r *PostgresRepository) CreateWebhookEvent(ctx context.Context, event *domain.WebhookEvent) error {
	query := `
		INSERT INTO webhook_events (id, provider, event_type, raw_payload, transaction_reference, processed)
		VALUES ($1, $2, $3, $4, $5, false)
		RETURNING created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		event.ID,
		event.Provider,
		event.EventType,
		event.RawPayload,
		event.TransactionReference,
	).Scan(&event.CreatedAt, &event.UpdatedAt)
}

// FlagWebhookEventError records an error on an unprocessed audit record
// without marking it processed. Used for signature rejections, which leave
// the record unprocessed-but-flagged.
func (r *PostgresRepository) FlagWebhookEventError(ctx context.Context, id uuid.UUID, message string) error {
	query := `
		UPDATE webhook_events
		SET error_message = $2, updated_at = NOW()
		WHERE id = $1 AND processed = false
	`
	result, err := r.db.Exec(ctx, query, id, message)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrWebhookEventNotFound
	}
	return nil
}

// MarkWebhookEventProcessed flips the audit record to its terminal state
// exactly once. The processed=false predicate makes the update safe under
// retries: a second attempt is a no-op, never a rewrite.
func (r *PostgresRepository) MarkWebhookEventProcessed(ctx context.Context, id uuid.UUID, errorMessage *string, transactionReference *string) error {
	query := `
		UPDATE webhook_events
		SET processed = true,
		    error_message = $2,
		    transaction_reference = COALESCE($3, transaction_reference),
		    updated_at = NOW()
		WHERE id = $1 AND processed = false
	`
	_, err := r.db.Exec(ctx, query, id, errorMessage, transactionReference)
	return err
}

// InsertTransferIdempotent attempts the atomic conditional insert keyed by
// the idempotency fingerprint. The unique constraint on idempotency_key is
// the only duplicate check: a single round trip, race-safe across workers
// and process restarts. Returns false when the key already exists.
func (r *PostgresRepository) InsertTransferIdempotent(ctx context.Context, transfer *domain.Transfer) (bool, error) {
	metadata, err := json.Marshal(transfer.Metadata)
	if err != nil {
		return false, err
	}

	query := `
		INSERT INTO transfers (
			id,
			provider,
			transaction_reference,
			provider_reference,
			account_number,
			amount_minor,
			currency,
			sender_name,
			sender_account_number,
			sender_bank_name,
			narration,
			session_id,
			idempotency_key,
			status,
			settled_at,
			metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (idempotency_key) DO NOTHING
	`
	result, err := r.db.Exec(ctx, query,
		transfer.ID,
		transfer.Provider,
		transfer.TransactionReference,
		transfer.ProviderReference,
		transfer.AccountNumber,
		transfer.AmountMinor,
		transfer.Currency,
		transfer.SenderName,
		transfer.SenderAccountNumber,
		transfer.SenderBankName,
		transfer.Narration,
		transfer.SessionID,
		transfer.IdempotencyKey,
		transfer.Status,
		transfer.SettledAt,
		metadata,
	)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// ListDuplicateReferenceGroups finds (account, reference) pairs with more
// than one stored transfer for a provider.
func (r *PostgresRepository) ListDuplicateReferenceGroups(ctx context.Context, provider string) ([]DuplicateGroup, error) {
	query := `
		SELECT account_number, transaction_reference, COUNT(*)
		FROM transfers
		WHERE provider = $1
		GROUP BY account_number, transaction_reference
		HAVING COUNT(*) > 1
	`
	rows, err := r.db.Query(ctx, query, provider)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []DuplicateGroup
	for rows.Next() {
		var group DuplicateGroup
		if err := rows.Scan(&group.AccountNumber, &group.TransactionReference, &group.Count); err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

// ListTransfersByReference returns all stored transfers for one business
// reference on one account, oldest first.
func (r *PostgresRepository) ListTransfersByReference(ctx context.Context, provider, accountNumber, transactionReference string) ([]domain.Transfer, error) {
	query := transferSelectColumns + `
		FROM transfers
		WHERE provider = $1 AND account_number = $2 AND transaction_reference = $3
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, provider, accountNumber, transactionReference)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransfers(rows)
}

// MarkTransfersDuplicate relabels the given transfers as duplicates. The
// predicate excludes rows already relabeled so repeated reconciliation runs
// are idempotent.
func (r *PostgresRepository) MarkTransfersDuplicate(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := `
		UPDATE transfers
		SET status = $2, updated_at = NOW()
		WHERE id = ANY($1) AND status <> $2
	`
	result, err := r.db.Exec(ctx, query, ids, domain.TransferStatusDuplicate)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// ListStalePendingTransfers returns pending transfers older than the cutoff.
// They are reported, never auto-resolved.
func (r *PostgresRepository) ListStalePendingTransfers(ctx context.Context, provider string, olderThan time.Time) ([]domain.Transfer, error) {
	query := transferSelectColumns + `
		FROM transfers
		WHERE provider = $1 AND status = $2 AND created_at < $3
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, provider, domain.TransferStatusPending, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransfers(rows)
}

// CountActiveAccounts counts active virtual accounts for one provider.
func (r *PostgresRepository) CountActiveAccounts(ctx context.Context, provider string) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM virtual_accounts WHERE provider = $1 AND status = 'active'`
	if err := r.db.QueryRow(ctx, query, provider).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// AccountCountsByProvider returns active account counts keyed by provider.
func (r *PostgresRepository) AccountCountsByProvider(ctx context.Context) (map[string]int64, error) {
	query := `
		SELECT provider, COUNT(*)
		FROM virtual_accounts
		WHERE status = 'active'
		GROUP BY provider
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var provider string
		var count int64
		if err := rows.Scan(&provider, &count); err != nil {
			return nil, err
		}
		counts[provider] = count
	}
	return counts, rows.Err()
}

// TransferStatistics captures the global snapshot in a single query.
func (r *PostgresRepository) TransferStatistics(ctx context.Context) (*domain.TransferStatistics, error) {
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'confirmed') AS confirmed,
			COUNT(*) FILTER (WHERE status = 'pending') AS pending,
			COUNT(*) FILTER (WHERE status = 'duplicate') AS duplicate,
			COALESCE(SUM(amount_minor) FILTER (WHERE status = 'confirmed'), 0) AS confirmed_amount
		FROM transfers
	`
	stats := &domain.TransferStatistics{}
	err := r.db.QueryRow(ctx, query).Scan(
		&stats.TotalTransfers,
		&stats.ConfirmedTransfers,
		&stats.PendingTransfers,
		&stats.DuplicateTransfers,
		&stats.ConfirmedAmountMinor,
	)
	if err != nil {
		return nil, err
	}

	counts, err := r.AccountCountsByProvider(ctx)
	if err != nil {
		return nil, err
	}
	stats.AccountsByProvider = counts
	for _, count := range counts {
		stats.ActiveAccounts += count
	}
	return stats, nil
}

const transferSelectColumns = `
		SELECT id, provider, transaction_reference, provider_reference, account_number,
		       amount_minor, currency, sender_name, sender_account_number, sender_bank_name,
		       narration, session_id, idempotency_key, status, settled_at, metadata,
		       created_at, updated_at`

func scanTransfers(rows pgx.Rows) ([]domain.Transfer, error) {
	var transfers []domain.Transfer
	for rows.Next() {
		var t domain.Transfer
		var metadata []byte
		err := rows.Scan(
			&t.ID,
			&t.Provider,
			&t.TransactionReference,
			&t.ProviderReference,
			&t.AccountNumber,
			&t.AmountMinor,
			&t.Currency,
			&t.SenderName,
			&t.SenderAccountNumber,
			&t.SenderBankName,
			&t.Narration,
			&t.SessionID,
			&t.IdempotencyKey,
			&t.Status,
			&t.SettledAt,
			&metadata,
			&t.CreatedAt,
			&t.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &t.Metadata)
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

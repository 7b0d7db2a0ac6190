/**
 * @description
 * Confirmation pipeline. This is the core of the service: it receives a raw
 * provider webhook, records it in the audit log, gates it on the provider's
 * signature scheme, and hands processing to an asynchronous work unit so the
 * HTTP caller never blocks on database work. The work unit normalizes the
 * payload, derives the idempotency fingerprint, performs the atomic
 * conditional insert, and publishes a deposit-confirmed event on first
 * insert.
 *
 * Key invariants:
 * - The audit record is written before anything else, so a crash mid-flight
 *   never loses the raw payload.
 * - The store's unique constraint is the only duplicate check; a rejected
 *   insert is a successful duplicate absorption, not an error.
 * - Parse and signature failures are terminal; only unexpected errors reach
 *   the work unit's retry policy.
 * - A work unit that inserted a transfer still owes its deposit-confirmed
 *   event until publication succeeds. Retry attempts resume at the first
 *   incomplete step; they never re-run the insert and mistake their own
 *   stored row for a cross-delivery duplicate.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ken-de-nigerian/payzephyr-virtual-account-manager/internal/domain"
	"github.com/ken-de-nigerian/payzephyr-virtual-account-manager/internal/providers"
	"github.com/ken-de-nigerian/payzephyr-virtual-account-manager/internal/store"
)

// IngestOutcome is the synchronous result handed back to the HTTP layer.
type IngestOutcome int

const (
	// OutcomeAccepted means the webhook was audited, verified, and scheduled
	// for asynchronous processing.
	OutcomeAccepted IngestOutcome = iota
	// OutcomeUnknownProvider means the provider identifier is not enabled.
	OutcomeUnknownProvider
	// OutcomeSignatureRejected means signature verification failed.
	OutcomeSignatureRejected
)

// EventPublisher publishes internal events to the message broker.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// TaskQueue schedules a webhook work unit for asynchronous execution. The
// queue runtime itself is a collaborator; the pipeline only depends on this
// contract.
type TaskQueue interface {
	Enqueue(task Task) error
}

// Service orchestrates webhook ingestion.
type Service struct {
	repo       store.Repository
	registry   *providers.Registry
	queue      TaskQueue
	publisher  EventPublisher
	exchange   string
	routingKey string
	logger     *slog.Logger
}

// NewService creates the confirmation pipeline.
func NewService(repo store.Repository, registry *providers.Registry, queue TaskQueue, publisher EventPublisher, exchange, routingKey string, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		registry:   registry,
		queue:      queue,
		publisher:  publisher,
		exchange:   exchange,
		routingKey: routingKey,
		logger:     logger,
	}
}

// Ingest performs the synchronous half of webhook processing: audit-log the
// raw payload, verify the signature, and schedule the work unit. It returns
// as soon as the work unit is accepted by the queue.
func (s *Service) Ingest(ctx context.Context, providerID string, header http.Header, body []byte) (IngestOutcome, error) {
	driver, ok := s.registry.Get(providerID)
	if !ok {
		return OutcomeUnknownProvider, nil
	}

	audit := domain.NewWebhookEvent(providerID, driver.EventType(body), body)
	if err := s.repo.CreateWebhookEvent(ctx, audit); err != nil {
		return 0, fmt.Errorf("persist webhook audit record: %w", err)
	}

	if err := driver.VerifySignature(header, body); err != nil {
		if errors.Is(err, providers.ErrSignatureInvalid) {
			if flagErr := s.repo.FlagWebhookEventError(ctx, audit.ID, "invalid webhook signature"); flagErr != nil {
				s.logger.Error("failed to flag audit record after signature rejection", "webhook_event_id", audit.ID, "error", flagErr)
			}
			s.logger.Warn("webhook signature rejected", "provider", providerID, "webhook_event_id", audit.ID)
			return OutcomeSignatureRejected, nil
		}
		return 0, fmt.Errorf("verify webhook signature: %w", err)
	}

	auditID := audit.ID
	state := &workState{}
	task := Task{
		Run: func(taskCtx context.Context) error {
			return s.process(taskCtx, driver, auditID, body, state)
		},
		OnExhausted: func(cause error) {
			s.recordExhaustedFailure(auditID, cause)
		},
	}
	if err := s.queue.Enqueue(task); err != nil {
		return 0, fmt.Errorf("schedule webhook work unit: %w", err)
	}

	return OutcomeAccepted, nil
}

// workState carries a work unit's progress across retry attempts. Each
// completed step is skipped on re-run, so a transient failure late in the
// unit (marking the audit record, publishing the event) retries only the
// failed step. In particular, owesEvent survives a failed publish: the next
// attempt publishes the event for the already-stored row instead of
// re-inserting, reading back inserted=false, and dropping the event as a
// false duplicate.
type workState struct {
	transfer  *domain.Transfer
	inserted  bool
	marked    bool
	owesEvent bool
}

// process is the asynchronous work unit for one webhook delivery. A returned
// error is transient and subject to the queue's retry policy; terminal
// outcomes (parse failure, duplicate absorption, confirmation) return nil.
func (s *Service) process(ctx context.Context, driver providers.Driver, auditID uuid.UUID, body []byte, state *workState) error {
	if !state.inserted {
		notification, err := driver.Normalize(body)
		if err != nil {
			var parseErr *providers.ParseError
			if errors.As(err, &parseErr) {
				message := parseErr.Error()
				if markErr := s.repo.MarkWebhookEventProcessed(ctx, auditID, &message, nil); markErr != nil {
					return fmt.Errorf("mark audit record after parse failure: %w", markErr)
				}
				s.logger.Warn("webhook payload rejected", "provider", driver.Name(), "webhook_event_id", auditID, "field", parseErr.Field)
				return nil
			}
			return fmt.Errorf("normalize webhook payload: %w", err)
		}

		transfer := domain.NewTransferFromNotification(*notification)
		inserted, err := s.repo.InsertTransferIdempotent(ctx, transfer)
		if err != nil {
			return fmt.Errorf("insert transfer: %w", err)
		}
		state.transfer = transfer
		state.inserted = true
		state.owesEvent = inserted
	}

	transfer := state.transfer
	reference := transfer.TransactionReference
	if !state.marked {
		if markErr := s.repo.MarkWebhookEventProcessed(ctx, auditID, nil, &reference); markErr != nil {
			return fmt.Errorf("mark audit record processed: %w", markErr)
		}
		state.marked = true
	}

	if !state.owesEvent {
		// The fingerprint already existed before this unit's own insert: a
		// duplicate delivery absorbed by the unique constraint. No event,
		// no error.
		s.logger.Info("duplicate webhook absorbed",
			"provider", transfer.Provider,
			"transaction_reference", reference,
			"idempotency_key", transfer.IdempotencyKey,
			"webhook_event_id", auditID)
		return nil
	}

	event := domain.NewDepositConfirmedEvent(transfer, time.Now().UTC())
	if err := s.publisher.Publish(ctx, s.exchange, s.routingKey, event); err != nil {
		// The transfer is durably recorded and owesEvent stays set, so the
		// retry policy re-attempts only the publication.
		return fmt.Errorf("publish deposit-confirmed event: %w", err)
	}
	state.owesEvent = false

	s.logger.Info("deposit confirmed",
		"provider", transfer.Provider,
		"transaction_reference", reference,
		"amount_minor", transfer.AmountMinor,
		"currency", transfer.Currency,
		"transfer_id", transfer.ID)
	return nil
}

// recordExhaustedFailure pins the final error onto the audit record once the
// retry policy gives up. The conditional update cannot clobber a record that
// already reached a terminal state.
func (s *Service) recordExhaustedFailure(auditID uuid.UUID, cause error) {
	message := fmt.Sprintf("processing failed after retries: %v", cause)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.repo.MarkWebhookEventProcessed(ctx, auditID, &message, nil); err != nil {
		s.logger.Error("failed to record exhausted webhook failure", "webhook_event_id", auditID, "error", err)
		return
	}
	s.logger.Error("webhook processing failed after retries", "webhook_event_id", auditID, "error", cause)
}

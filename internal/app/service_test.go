package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ken-de-nigerian/payzephyr-virtual-account-manager/internal/config"
	"github.com/ken-de-nigerian/payzephyr-virtual-account-manager/internal/domain"
	"github.com/ken-de-nigerian/payzephyr-virtual-account-manager/internal/providers"
	"github.com/ken-de-nigerian/payzephyr-virtual-account-manager/internal/store"
)

const testSettledPayload = `{
	"event": "payment.settled",
	"data": {
		"id": "txn_abc123",
		"type": "IncomingPayment",
		"attributes": {
			"reference": "ref_001",
			"accountNumber": "1234567890",
			"amount": 500000,
			"currency": "NGN"
		}
	}
}`

type processedMark struct {
	errorMessage         *string
	transactionReference *string
}

// stubRepository records persistence calls in memory.
type stubRepository struct {
	webhookEvents []*domain.WebhookEvent
	flagged       map[uuid.UUID]string
	processed     map[uuid.UUID]processedMark
	inserted      []*domain.Transfer
	insertedKeys  map[string]bool
	insertReturns bool
	insertErr     error

	duplicateGroups map[string][]store.DuplicateGroup
	groupErr        map[string]error
	transfers       []domain.Transfer
	markedDuplicate []uuid.UUID
	stale           map[string][]domain.Transfer
	accounts        map[string]int64
	stats           *domain.TransferStatistics
}

func newStubRepository() *stubRepository {
	return &stubRepository{
		flagged:         make(map[uuid.UUID]string),
		processed:       make(map[uuid.UUID]processedMark),
		insertedKeys:    make(map[string]bool),
		insertReturns:   true,
		duplicateGroups: make(map[string][]store.DuplicateGroup),
		groupErr:        make(map[string]error),
		stale:           make(map[string][]domain.Transfer),
		accounts:        make(map[string]int64),
		stats:           &domain.TransferStatistics{},
	}
}

func (r *stubRepository) CreateWebhookEvent(ctx context.Context, event *domain.WebhookEvent) error {
	r.webhookEvents = append(r.webhookEvents, event)
	return nil
}

func (r *stubRepository) FlagWebhookEventError(ctx context.Context, id uuid.UUID, message string) error {
	r.flagged[id] = message
	return nil
}

func (r *stubRepository) MarkWebhookEventProcessed(ctx context.Context, id uuid.UUID, errorMessage *string, transactionReference *string) error {
	if _, done := r.processed[id]; done {
		return nil
	}
	r.processed[id] = processedMark{errorMessage: errorMessage, transactionReference: transactionReference}
	return nil
}

// InsertTransferIdempotent mimics the unique constraint: the first insert of
// a fingerprint succeeds, every later one is absorbed.
func (r *stubRepository) InsertTransferIdempotent(ctx context.Context, transfer *domain.Transfer) (bool, error) {
	if r.insertErr != nil {
		return false, r.insertErr
	}
	if !r.insertReturns || r.insertedKeys[transfer.IdempotencyKey] {
		return false, nil
	}
	r.insertedKeys[transfer.IdempotencyKey] = true
	r.inserted = append(r.inserted, transfer)
	return true, nil
}

func (r *stubRepository) ListDuplicateReferenceGroups(ctx context.Context, provider string) ([]store.DuplicateGroup, error) {
	if err := r.groupErr[provider]; err != nil {
		return nil, err
	}
	return r.duplicateGroups[provider], nil
}

func (r *stubRepository) ListTransfersByReference(ctx context.Context, provider, accountNumber, transactionReference string) ([]domain.Transfer, error) {
	var out []domain.Transfer
	for _, transfer := range r.transfers {
		if transfer.Provider == provider && transfer.AccountNumber == accountNumber && transfer.TransactionReference == transactionReference {
			out = append(out, transfer)
		}
	}
	return out, nil
}

func (r *stubRepository) MarkTransfersDuplicate(ctx context.Context, ids []uuid.UUID) (int64, error) {
	r.markedDuplicate = append(r.markedDuplicate, ids...)
	return int64(len(ids)), nil
}

func (r *stubRepository) ListStalePendingTransfers(ctx context.Context, provider string, olderThan time.Time) ([]domain.Transfer, error) {
	return r.stale[provider], nil
}

func (r *stubRepository) CountActiveAccounts(ctx context.Context, provider string) (int64, error) {
	return r.accounts[provider], nil
}

func (r *stubRepository) AccountCountsByProvider(ctx context.Context) (map[string]int64, error) {
	return r.accounts, nil
}

func (r *stubRepository) TransferStatistics(ctx context.Context) (*domain.TransferStatistics, error) {
	return r.stats, nil
}

// syncQueue runs each task inline so tests observe the asynchronous work
// unit's effects synchronously.
type syncQueue struct {
	enqueueErr error
}

func (q *syncQueue) Enqueue(task Task) error {
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	if err := task.Run(context.Background()); err != nil && task.OnExhausted != nil {
		task.OnExhausted(err)
	}
	return nil
}

type publishedMessage struct {
	exchange   string
	routingKey string
	body       interface{}
}

type stubPublisher struct {
	published  []publishedMessage
	publishErr error
}

func (p *stubPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	if p.publishErr != nil {
		return p.publishErr
	}
	p.published = append(p.published, publishedMessage{exchange: exchange, routingKey: routingKey, body: body})
	return nil
}

// flakyPublisher fails a configured number of publish calls before healing.
type flakyPublisher struct {
	stubPublisher
	failuresLeft int
	attempts     int
}

func (p *flakyPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.attempts++
	if p.failuresLeft > 0 {
		p.failuresLeft--
		return errors.New("broker unavailable")
	}
	return p.stubPublisher.Publish(ctx, exchange, routingKey, body)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRegistry(t *testing.T, anchorSecret string) *providers.Registry {
	t.Helper()
	registry, err := providers.NewRegistry(map[string]config.ProviderConfig{
		providers.ProviderAnchor: {Enabled: true, WebhookSecret: anchorSecret},
	})
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}
	return registry
}

func TestIngestUnknownProvider(t *testing.T) {
	repo := newStubRepository()
	service := NewService(repo, testRegistry(t, ""), &syncQueue{}, &stubPublisher{}, "deposit_events", "deposit.confirmed", testLogger())

	outcome, err := service.Ingest(context.Background(), "unknown", http.Header{}, []byte(testSettledPayload))
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if outcome != OutcomeUnknownProvider {
		t.Fatalf("expected OutcomeUnknownProvider, got %v", outcome)
	}
	if len(repo.webhookEvents) != 0 {
		t.Fatal("expected no audit record for an unknown provider")
	}
}

func TestIngestSignatureRejected(t *testing.T) {
	repo := newStubRepository()
	publisher := &stubPublisher{}
	service := NewService(repo, testRegistry(t, "whsec_test"), &syncQueue{}, publisher, "deposit_events", "deposit.confirmed", testLogger())

	header := http.Header{}
	header.Set("x-anchor-signature", "bm90LXRoZS1yaWdodC1zaWduYXR1cmU=")
	outcome, err := service.Ingest(context.Background(), providers.ProviderAnchor, header, []byte(testSettledPayload))
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if outcome != OutcomeSignatureRejected {
		t.Fatalf("expected OutcomeSignatureRejected, got %v", outcome)
	}

	if len(repo.webhookEvents) != 1 {
		t.Fatalf("expected the rejected payload to be audited, got %d records", len(repo.webhookEvents))
	}
	auditID := repo.webhookEvents[0].ID
	if repo.flagged[auditID] == "" {
		t.Fatal("expected the audit record to carry the rejection message")
	}
	if _, done := repo.processed[auditID]; done {
		t.Fatal("expected a rejected audit record to stay unprocessed")
	}
	if len(repo.inserted) != 0 {
		t.Fatal("expected no transfer insert after signature rejection")
	}
	if len(publisher.published) != 0 {
		t.Fatal("expected no event publication after signature rejection")
	}
}

func TestIngestParseFailureIsTerminal(t *testing.T) {
	repo := newStubRepository()
	publisher := &stubPublisher{}
	service := NewService(repo, testRegistry(t, ""), &syncQueue{}, publisher, "deposit_events", "deposit.confirmed", testLogger())

	payload := []byte(`{"event": "payment.settled", "data": {"attributes": {"accountNumber": "1234567890", "amount": 100}}}`)
	outcome, err := service.Ingest(context.Background(), providers.ProviderAnchor, http.Header{}, payload)
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if outcome != OutcomeAccepted {
		t.Fatalf("expected OutcomeAccepted, got %v", outcome)
	}

	auditID := repo.webhookEvents[0].ID
	mark, done := repo.processed[auditID]
	if !done {
		t.Fatal("expected the audit record to reach a terminal state")
	}
	if mark.errorMessage == nil {
		t.Fatal("expected the parse failure message on the audit record")
	}
	if len(repo.inserted) != 0 {
		t.Fatal("expected no transfer insert for a malformed payload")
	}
	if len(publisher.published) != 0 {
		t.Fatal("expected no event publication for a malformed payload")
	}
}

func TestIngestConfirmsDepositAndPublishes(t *testing.T) {
	repo := newStubRepository()
	publisher := &stubPublisher{}
	service := NewService(repo, testRegistry(t, ""), &syncQueue{}, publisher, "deposit_events", "deposit.confirmed", testLogger())

	outcome, err := service.Ingest(context.Background(), providers.ProviderAnchor, http.Header{}, []byte(testSettledPayload))
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if outcome != OutcomeAccepted {
		t.Fatalf("expected OutcomeAccepted, got %v", outcome)
	}

	if len(repo.inserted) != 1 {
		t.Fatalf("expected one transfer insert, got %d", len(repo.inserted))
	}
	transfer := repo.inserted[0]
	if transfer.Status != domain.TransferStatusConfirmed {
		t.Fatalf("expected confirmed transfer, got %q", transfer.Status)
	}

	auditID := repo.webhookEvents[0].ID
	mark, done := repo.processed[auditID]
	if !done {
		t.Fatal("expected the audit record marked processed")
	}
	if mark.transactionReference == nil || *mark.transactionReference != "ref_001" {
		t.Fatal("expected the audit record linked to the transaction reference")
	}

	if len(publisher.published) != 1 {
		t.Fatalf("expected exactly one published event, got %d", len(publisher.published))
	}
	message := publisher.published[0]
	if message.exchange != "deposit_events" || message.routingKey != "deposit.confirmed" {
		t.Fatalf("expected deposit_events/deposit.confirmed, got %s/%s", message.exchange, message.routingKey)
	}
	event, ok := message.body.(domain.DepositConfirmedEvent)
	if !ok {
		t.Fatalf("expected DepositConfirmedEvent body, got %T", message.body)
	}
	if event.TransferID != transfer.ID.String() {
		t.Fatal("expected the event to snapshot the stored transfer")
	}
	if event.Amount != "5000.00" {
		t.Fatalf("expected fixed-point amount 5000.00, got %q", event.Amount)
	}
}

func TestIngestDuplicateAbsorbedWithoutEvent(t *testing.T) {
	repo := newStubRepository()
	repo.insertReturns = false
	publisher := &stubPublisher{}
	service := NewService(repo, testRegistry(t, ""), &syncQueue{}, publisher, "deposit_events", "deposit.confirmed", testLogger())

	outcome, err := service.Ingest(context.Background(), providers.ProviderAnchor, http.Header{}, []byte(testSettledPayload))
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if outcome != OutcomeAccepted {
		t.Fatalf("expected OutcomeAccepted for a duplicate delivery, got %v", outcome)
	}

	auditID := repo.webhookEvents[0].ID
	mark, done := repo.processed[auditID]
	if !done {
		t.Fatal("expected the duplicate's audit record marked processed")
	}
	if mark.errorMessage != nil {
		t.Fatal("expected no error message on a duplicate absorption")
	}
	if len(publisher.published) != 0 {
		t.Fatal("expected no event publication for a duplicate delivery")
	}
}

func TestIngestSurfacesQueueFailure(t *testing.T) {
	repo := newStubRepository()
	service := NewService(repo, testRegistry(t, ""), &syncQueue{enqueueErr: ErrQueueFull}, &stubPublisher{}, "deposit_events", "deposit.confirmed", testLogger())

	_, err := service.Ingest(context.Background(), providers.ProviderAnchor, http.Header{}, []byte(testSettledPayload))
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestIngestPublishesAfterTransientBrokerFailure(t *testing.T) {
	repo := newStubRepository()
	publisher := &flakyPublisher{failuresLeft: 1}
	dispatcher := NewDispatcher(1, 4, 3, 0, testLogger())
	service := NewService(repo, testRegistry(t, ""), dispatcher, publisher, "deposit_events", "deposit.confirmed", testLogger())

	outcome, err := service.Ingest(context.Background(), providers.ProviderAnchor, http.Header{}, []byte(testSettledPayload))
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if outcome != OutcomeAccepted {
		t.Fatalf("expected OutcomeAccepted, got %v", outcome)
	}
	if err := dispatcher.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}

	// The transfer is stored once and the retry attempt must deliver the
	// owed event rather than mistake the stored row for a duplicate.
	if len(repo.inserted) != 1 {
		t.Fatalf("expected one stored transfer, got %d", len(repo.inserted))
	}
	if publisher.attempts != 2 {
		t.Fatalf("expected a retried publish (2 attempts), got %d", publisher.attempts)
	}
	if len(publisher.published) != 1 {
		t.Fatalf("expected exactly one deposit-confirmed event, got %d", len(publisher.published))
	}

	auditID := repo.webhookEvents[0].ID
	mark, done := repo.processed[auditID]
	if !done {
		t.Fatal("expected the audit record marked processed")
	}
	if mark.errorMessage != nil {
		t.Fatalf("expected no failure recorded after the publish healed, got %q", *mark.errorMessage)
	}
}

func TestIngestRecordsExhaustedFailureOnAudit(t *testing.T) {
	repo := newStubRepository()
	repo.insertErr = errors.New("connection reset")
	service := NewService(repo, testRegistry(t, ""), &syncQueue{}, &stubPublisher{}, "deposit_events", "deposit.confirmed", testLogger())

	outcome, err := service.Ingest(context.Background(), providers.ProviderAnchor, http.Header{}, []byte(testSettledPayload))
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if outcome != OutcomeAccepted {
		t.Fatalf("expected OutcomeAccepted, got %v", outcome)
	}

	// The inline queue exhausts immediately, so the failure lands on the
	// audit record via OnExhausted.
	auditID := repo.webhookEvents[0].ID
	mark, done := repo.processed[auditID]
	if !done {
		t.Fatal("expected the exhausted failure recorded on the audit record")
	}
	if mark.errorMessage == nil {
		t.Fatal("expected the exhausted failure message on the audit record")
	}
}

/**
 * @description
 * Internal events published to RabbitMQ when a deposit is confirmed. The
 * event is an immutable snapshot of the stored transfer: consumers never
 * hold a reference to a live persistence-layer record, so later mutations
 * (e.g. a reconciliation relabel) cannot leak into already-dispatched
 * events.
 */
package domain

import "time"

// DepositConfirmedEvent is emitted exactly once per stored transfer, on the
// first successful insert. Delivery is at-least-once; consumers must be
// idempotent per TransferID.
type DepositConfirmedEvent struct {
	EventID              string     `json:"event_id"`
	TransferID           string     `json:"transfer_id"`
	Provider             string     `json:"provider"`
	TransactionReference string     `json:"transaction_reference"`
	ProviderReference    string     `json:"provider_reference,omitempty"`
	AccountNumber        string     `json:"account_number"`
	Amount               string     `json:"amount"`
	AmountMinor          int64      `json:"amount_minor"`
	Currency             string     `json:"currency"`
	SenderName           string     `json:"sender_name,omitempty"`
	Narration            string     `json:"narration,omitempty"`
	SessionID            string     `json:"session_id,omitempty"`
	IdempotencyKey       string     `json:"idempotency_key"`
	Status               string     `json:"status"`
	SettledAt            *time.Time `json:"settled_at,omitempty"`
	OccurredAt           time.Time  `json:"occurred_at"`
}

// NewDepositConfirmedEvent snapshots a stored transfer into the event shape.
func NewDepositConfirmedEvent(t *Transfer, occurredAt time.Time) DepositConfirmedEvent {
	event := DepositConfirmedEvent{
		EventID:              "dep_" + t.ID.String(),
		TransferID:           t.ID.String(),
		Provider:             t.Provider,
		TransactionReference: t.TransactionReference,
		ProviderReference:    t.ProviderReference,
		AccountNumber:        t.AccountNumber,
		Amount:               FormatAmountMinor(t.AmountMinor),
		AmountMinor:          t.AmountMinor,
		Currency:             t.Currency,
		SenderName:           t.SenderName,
		IdempotencyKey:       t.IdempotencyKey,
		Status:               t.Status,
		SettledAt:            t.SettledAt,
		OccurredAt:           occurredAt,
	}
	if t.Narration != nil {
		event.Narration = *t.Narration
	}
	if t.SessionID != nil {
		event.SessionID = *t.SessionID
	}
	return event
}

/**
 * @description
 * Webhook audit-log model. Every inbound payload is recorded verbatim before
 * any processing outcome is known, and the record is mutated exactly once to
 * processed=true when the pipeline reaches a terminal state. Audit records
 * are never deleted; they form the compliance trail.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEvent is one entry in the append-only webhook audit log.
type WebhookEvent struct {
	ID                   uuid.UUID
	Provider             string
	EventType            string
	RawPayload           []byte
	TransactionReference *string
	Processed            bool
	ErrorMessage         *string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// NewWebhookEvent creates the audit record persisted on receipt, before
// signature verification runs.
func NewWebhookEvent(provider, eventType string, rawPayload []byte) *WebhookEvent {
	return &WebhookEvent{
		ID:         uuid.New(),
		Provider:   provider,
		EventType:  eventType,
		RawPayload: rawPayload,
	}
}

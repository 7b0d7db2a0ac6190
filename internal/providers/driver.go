/**
 * @description
 * Provider driver contract. Each virtual-account provider implements its own
 * webhook signature scheme and payload envelope; the pipeline only ever sees
 * this uniform interface.
 *
 * @notes
 * - VerifySignature must compare signatures in constant time.
 * - Normalize must preserve unknown payload fields in the notification
 *   metadata so the audit trail stays lossless.
 */
package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ken-de-nigerian/payzephyr-virtual-account-manager/internal/domain"
)

// ErrSignatureInvalid is returned when a configured secret does not match
// the inbound signature, or the expected signature header is absent.
var ErrSignatureInvalid = errors.New("webhook signature invalid")

// ParseError reports a malformed or incomplete webhook payload. It names
// the field that failed validation; parse failures are deterministic for a
// given payload and are never retried.
type ParseError struct {
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("payload malformed: field %q %s", e.Field, e.Reason)
}

// Driver is the provider-pluggable contract for webhook intake.
type Driver interface {
	// Name returns the provider identifier used in webhook URLs and config.
	Name() string

	// VerifySignature checks that the inbound request is authentic. With no
	// secret configured it passes in insecure mode (logged at warning level
	// by the implementation); with a secret configured, a missing or
	// mismatched signature returns ErrSignatureInvalid.
	VerifySignature(header http.Header, body []byte) error

	// EventType extracts the provider's declared event type from a raw
	// payload for audit logging. Best effort; returns "" when absent.
	EventType(body []byte) string

	// Normalize maps the provider payload into the canonical notification.
	// Returns *ParseError for non-deposit event kinds and required-field
	// violations.
	Normalize(body []byte) (*domain.TransferNotification, error)

	// Currencies lists the currencies this provider settles in.
	Currencies() []string

	// Ping reports provider API liveness for the health endpoint. Drivers
	// without a configured API base URL report alive without a network call.
	Ping(ctx context.Context) bool
}

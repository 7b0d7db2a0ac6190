/**
 * @description
 * Core domain models for virtual-account deposit processing. A provider
 * webhook is normalized into a TransferNotification, which is persisted as a
 * Transfer row keyed by a deterministic idempotency fingerprint.
 *
 * @notes
 * - Amounts are stored as int64 minor units (e.g. kobo) and rendered to two
 *   decimal places wherever the fixed-point contract is visible.
 * - The idempotency key collapses duplicate deliveries of the same business
 *   event to a single stored row; the database unique constraint on it is
 *   the source of truth for "have I seen this before".
 */
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Transfer lifecycle statuses.
const (
	TransferStatusPending   = "pending"
	TransferStatusConfirmed = "confirmed"
	TransferStatusDuplicate = "duplicate"
	TransferStatusFailed    = "failed"
)

// TransferNotification is the provider-agnostic, normalized form of a
// deposit webhook. It is immutable once produced by a provider driver.
type TransferNotification struct {
	Provider             string
	TransactionReference string
	ProviderReference    string
	AccountNumber        string
	AmountMinor          int64
	Currency             string
	SenderName           string
	SenderAccountNumber  string
	SenderBankName       string
	Narration            string
	SessionID            string
	SettledAt            *time.Time
	Metadata             map[string]interface{}
}

// Transfer is the persisted record of a normalized notification.
type Transfer struct {
	ID                   uuid.UUID
	Provider             string
	TransactionReference string
	ProviderReference    string
	AccountNumber        string
	AmountMinor          int64
	Currency             string
	SenderName           string
	SenderAccountNumber  *string
	SenderBankName       *string
	Narration            *string
	SessionID            *string
	IdempotencyKey       string
	Status               string
	SettledAt            *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
	Metadata             map[string]interface{}
}

// FormatAmountMinor renders a minor-unit amount with two decimal places,
// e.g. 500000 -> "5000.00". This is the canonical fixed-point rendering used
// by the idempotency fingerprint.
func FormatAmountMinor(amountMinor int64) string {
	sign := ""
	if amountMinor < 0 {
		sign = "-"
		amountMinor = -amountMinor
	}
	return fmt.Sprintf("%s%d.%02d", sign, amountMinor/100, amountMinor%100)
}

// DeriveIdempotencyKey computes the deterministic fingerprint of a deposit
// notification: SHA-256 over the transaction reference, destination account,
// amount formatted to two decimals, and upper-cased currency. Two
// notifications with identical business content always produce the same key.
func DeriveIdempotencyKey(transactionReference, accountNumber string, amountMinor int64, currency string) string {
	payload := strings.Join([]string{
		strings.TrimSpace(transactionReference),
		strings.TrimSpace(accountNumber),
		FormatAmountMinor(amountMinor),
		strings.ToUpper(strings.TrimSpace(currency)),
	}, "|")
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// NewTransferFromNotification builds the row to persist from a normalized
// notification. Transfers are only ever persisted once they are known-good,
// so the initial status is confirmed.
func NewTransferFromNotification(n TransferNotification) *Transfer {
	t := &Transfer{
		ID:                   uuid.New(),
		Provider:             n.Provider,
		TransactionReference: n.TransactionReference,
		ProviderReference:    n.ProviderReference,
		AccountNumber:        n.AccountNumber,
		AmountMinor:          n.AmountMinor,
		Currency:             strings.ToUpper(n.Currency),
		SenderName:           n.SenderName,
		IdempotencyKey:       DeriveIdempotencyKey(n.TransactionReference, n.AccountNumber, n.AmountMinor, n.Currency),
		Status:               TransferStatusConfirmed,
		SettledAt:            n.SettledAt,
		Metadata:             n.Metadata,
	}
	if n.SenderAccountNumber != "" {
		t.SenderAccountNumber = &n.SenderAccountNumber
	}
	if n.SenderBankName != "" {
		t.SenderBankName = &n.SenderBankName
	}
	if n.Narration != "" {
		t.Narration = &n.Narration
	}
	if n.SessionID != "" {
		t.SessionID = &n.SessionID
	}
	return t
}

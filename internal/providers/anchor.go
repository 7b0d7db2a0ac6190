/**
 * @description
 * Anchor driver. Anchor delivers JSON:API-style webhook envelopes and signs
 * the raw body with HMAC-SHA256, base64-encoded, in the x-anchor-signature
 * header. Only settled inbound payments are normalized; every other event
 * kind is rejected as malformed for this pipeline.
 */
package providers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/ken-de-nigerian/payzephyr-virtual-account-manager/internal/config"
	"github.com/ken-de-nigerian/payzephyr-virtual-account-manager/internal/domain"
)

// ProviderAnchor is the registry identifier for the Anchor driver.
const ProviderAnchor = "anchor"

const anchorSignatureHeader = "x-anchor-signature"

// anchorEventSettled is the only event kind that represents a completed
// inbound transfer to a virtual account.
const anchorEventSettled = "payment.settled"

// AnchorDriver implements the Driver contract for Anchor.
type AnchorDriver struct {
	secret     string
	apiBaseURL string
	currencies []string
	httpClient *http.Client
}

// NewAnchorDriver constructs the Anchor driver from provider configuration.
func NewAnchorDriver(cfg config.ProviderConfig) Driver {
	return &AnchorDriver{
		secret:     cfg.WebhookSecret,
		apiBaseURL: cfg.APIBaseURL,
		currencies: cfg.Currencies,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *AnchorDriver) Name() string { return ProviderAnchor }

func (d *AnchorDriver) Currencies() []string { return d.currencies }

// VerifySignature validates the HMAC signature of the webhook. The provided
// signature may be base64 or hex encoded; comparison is constant-time.
func (d *AnchorDriver) VerifySignature(header http.Header, body []byte) error {
	if d.secret == "" {
		log.Printf("level=warn component=provider provider=%s msg=\"no webhook secret configured; skipping signature validation\"", ProviderAnchor)
		return nil
	}

	provided := strings.TrimSpace(header.Get(anchorSignatureHeader))
	if provided == "" {
		return ErrSignatureInvalid
	}

	mac := hmac.New(sha256.New, []byte(d.secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	if decoded, err := base64.StdEncoding.DecodeString(provided); err == nil {
		if hmac.Equal(decoded, expected) {
			return nil
		}
	}
	if decoded, err := hex.DecodeString(provided); err == nil {
		if hmac.Equal(decoded, expected) {
			return nil
		}
	}
	return ErrSignatureInvalid
}

// anchorEnvelope is the top-level structure of an Anchor webhook payload.
type anchorEnvelope struct {
	Event string         `json:"event"`
	Data  anchorResource `json:"data"`
}

type anchorResource struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Attributes map[string]interface{} `json:"attributes"`
}

func (d *AnchorDriver) EventType(body []byte) string {
	var envelope anchorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	return envelope.Event
}

// Normalize maps a settled-payment envelope into the canonical notification.
func (d *AnchorDriver) Normalize(body []byte) (*domain.TransferNotification, error) {
	var envelope anchorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &ParseError{Field: "payload", Reason: "is not valid JSON"}
	}
	if envelope.Event != anchorEventSettled {
		return nil, &ParseError{Field: "event", Reason: "is not a settled-payment event"}
	}
	attrs := envelope.Data.Attributes
	if attrs == nil {
		return nil, &ParseError{Field: "data.attributes", Reason: "is missing"}
	}

	reference := stringAttr(attrs, "reference")
	if reference == "" {
		return nil, &ParseError{Field: "reference", Reason: "is required"}
	}
	accountNumber := stringAttr(attrs, "accountNumber")
	if accountNumber == "" {
		return nil, &ParseError{Field: "accountNumber", Reason: "is required"}
	}
	amountMinor, ok := amountMinorAttr(attrs, "amount")
	if !ok || amountMinor <= 0 {
		return nil, &ParseError{Field: "amount", Reason: "must be strictly positive"}
	}

	currency := strings.ToUpper(stringAttr(attrs, "currency"))
	if currency == "" {
		currency = "NGN"
	}

	metadata := SanitizeMetadata(attrs)
	// Top-level envelope fields outside event/data are kept under a reserved
	// key so the notification stays lossless beyond the attributes block.
	if extra := envelopeExtras(body, "event", "data"); len(extra) > 0 {
		metadata["envelope"] = extra
	}

	notification := &domain.TransferNotification{
		Provider:             ProviderAnchor,
		TransactionReference: reference,
		ProviderReference:    envelope.Data.ID,
		AccountNumber:        accountNumber,
		AmountMinor:          amountMinor,
		Currency:             currency,
		Narration:            stringAttr(attrs, "narration"),
		SessionID:            stringAttr(attrs, "sessionId"),
		Metadata:             metadata,
	}

	if counterparty, ok := attrs["counterparty"].(map[string]interface{}); ok {
		notification.SenderName = stringAttr(counterparty, "accountName")
		notification.SenderAccountNumber = stringAttr(counterparty, "accountNumber")
		notification.SenderBankName = stringAttr(counterparty, "bankName")
	}
	if settledAt := stringAttr(attrs, "settledAt"); settledAt != "" {
		if ts, err := time.Parse(time.RFC3339, settledAt); err == nil {
			notification.SettledAt = &ts
		}
	}

	return notification, nil
}

// Ping probes the Anchor API base URL. Without a configured base URL the
// driver reports alive without a network call.
func (d *AnchorDriver) Ping(ctx context.Context) bool {
	return pingBaseURL(ctx, d.httpClient, d.apiBaseURL)
}

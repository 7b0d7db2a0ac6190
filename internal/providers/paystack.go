/**
 * @description
 * Paystack driver. Paystack signs the raw body with HMAC-SHA512, hex
 * encoded, in the x-paystack-signature header. Deposits to dedicated
 * virtual accounts arrive as charge.success events whose authorization
 * block carries the receiving account and sender details.
 */
package providers

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ken-de-nigerian/payzephyr-virtual-account-manager/internal/config"
	"github.com/ken-de-nigerian/payzephyr-virtual-account-manager/internal/domain"
)

// ProviderPaystack is the registry identifier for the Paystack driver.
const ProviderPaystack = "paystack"

const paystackSignatureHeader = "x-paystack-signature"

const paystackEventChargeSuccess = "charge.success"

// PaystackDriver implements the Driver contract for Paystack.
type PaystackDriver struct {
	secret     string
	apiBaseURL string
	currencies []string
	httpClient *http.Client
}

// NewPaystackDriver constructs the Paystack driver from provider configuration.
func NewPaystackDriver(cfg config.ProviderConfig) Driver {
	return &PaystackDriver{
		secret:     cfg.WebhookSecret,
		apiBaseURL: cfg.APIBaseURL,
		currencies: cfg.Currencies,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *PaystackDriver) Name() string { return ProviderPaystack }

func (d *PaystackDriver) Currencies() []string { return d.currencies }

// VerifySignature validates the hex-encoded HMAC-SHA512 signature header in
// constant time.
func (d *PaystackDriver) VerifySignature(header http.Header, body []byte) error {
	if d.secret == "" {
		log.Printf("level=warn component=provider provider=%s msg=\"no webhook secret configured; skipping signature validation\"", ProviderPaystack)
		return nil
	}

	provided := strings.TrimSpace(header.Get(paystackSignatureHeader))
	if provided == "" {
		return ErrSignatureInvalid
	}
	decoded, err := hex.DecodeString(provided)
	if err != nil {
		return ErrSignatureInvalid
	}

	mac := hmac.New(sha512.New, []byte(d.secret))
	mac.Write(body)
	if !hmac.Equal(decoded, mac.Sum(nil)) {
		return ErrSignatureInvalid
	}
	return nil
}

// paystackEnvelope is the top-level structure of a Paystack webhook payload.
type paystackEnvelope struct {
	Event string `json:"event"`
	Data  struct {
		ID            int64      `json:"id"`
		Reference     string     `json:"reference"`
		Amount        int64      `json:"amount"`
		Currency      string     `json:"currency"`
		PaidAt        *time.Time `json:"paid_at"`
		Channel       string     `json:"channel"`
		SessionID     string     `json:"session_id"`
		Narration     string     `json:"narration"`
		Authorization struct {
			ReceiverBankAccountNumber string `json:"receiver_bank_account_number"`
			SenderName                string `json:"sender_name"`
			SenderBank                string `json:"sender_bank"`
			SenderBankAccountNumber   string `json:"sender_bank_account_number"`
		} `json:"authorization"`
	} `json:"data"`
}

func (d *PaystackDriver) EventType(body []byte) string {
	var envelope paystackEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	return envelope.Event
}

// Normalize maps a charge.success envelope into the canonical notification.
func (d *PaystackDriver) Normalize(body []byte) (*domain.TransferNotification, error) {
	var envelope paystackEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &ParseError{Field: "payload", Reason: "is not valid JSON"}
	}
	if envelope.Event != paystackEventChargeSuccess {
		return nil, &ParseError{Field: "event", Reason: "is not a completed-charge event"}
	}

	data := envelope.Data
	if strings.TrimSpace(data.Reference) == "" {
		return nil, &ParseError{Field: "reference", Reason: "is required"}
	}
	accountNumber := strings.TrimSpace(data.Authorization.ReceiverBankAccountNumber)
	if accountNumber == "" {
		return nil, &ParseError{Field: "authorization.receiver_bank_account_number", Reason: "is required"}
	}
	if data.Amount <= 0 {
		return nil, &ParseError{Field: "amount", Reason: "must be strictly positive"}
	}

	currency := strings.ToUpper(strings.TrimSpace(data.Currency))
	if currency == "" {
		currency = "NGN"
	}

	// Re-decode the data block as a raw map so unknown fields survive into
	// the metadata bag.
	var raw struct {
		Data map[string]interface{} `json:"data"`
	}
	metadata := map[string]interface{}{}
	if err := json.Unmarshal(body, &raw); err == nil && raw.Data != nil {
		metadata = SanitizeMetadata(raw.Data)
	}
	if extra := envelopeExtras(body, "event", "data"); len(extra) > 0 {
		metadata["envelope"] = extra
	}

	notification := &domain.TransferNotification{
		Provider:             ProviderPaystack,
		TransactionReference: strings.TrimSpace(data.Reference),
		ProviderReference:    strconv.FormatInt(data.ID, 10),
		AccountNumber:        accountNumber,
		AmountMinor:          data.Amount,
		Currency:             currency,
		SenderName:           strings.TrimSpace(data.Authorization.SenderName),
		SenderAccountNumber:  strings.TrimSpace(data.Authorization.SenderBankAccountNumber),
		SenderBankName:       strings.TrimSpace(data.Authorization.SenderBank),
		Narration:            strings.TrimSpace(data.Narration),
		SessionID:            strings.TrimSpace(data.SessionID),
		SettledAt:            data.PaidAt,
		Metadata:             metadata,
	}
	return notification, nil
}

// Ping probes the Paystack API base URL.
func (d *PaystackDriver) Ping(ctx context.Context) bool {
	return pingBaseURL(ctx, d.httpClient, d.apiBaseURL)
}

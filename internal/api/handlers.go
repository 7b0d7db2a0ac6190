/**
 * @description
 * This file contains the HTTP handlers for the webhook and health endpoints.
 * The webhook handler is deliberately thin: it reads the raw body, hands it
 * to the confirmation pipeline, and maps the synchronous outcome to a status
 * code. Internal error detail never leaks into a response body.
 *
 * Key features:
 * - 202 with a generic body once the work unit is scheduled; the caller
 *   never blocks on database processing.
 * - 403 for signature failures and unknown providers.
 * - 500 with a generic body for unexpected ingress errors.
 */
package api

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ken-de-nigerian/payzephyr-virtual-account-manager/internal/app"
)

// maxWebhookBodyBytes bounds inbound payload size before any processing.
const maxWebhookBodyBytes = 1 << 20

// Ingestor is the confirmation-pipeline contract the webhook handler
// depends on.
type Ingestor interface {
	Ingest(ctx context.Context, providerID string, header http.Header, body []byte) (app.IngestOutcome, error)
}

// WebhookHandler processes incoming provider webhooks.
type WebhookHandler struct {
	service Ingestor
}

// NewWebhookHandler creates a new handler for the webhook endpoint.
func NewWebhookHandler(service Ingestor) *WebhookHandler {
	return &WebhookHandler{service: service}
}

// HandleWebhook implements POST /virtual-accounts/webhook/{provider}.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "provider")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		log.Printf("level=warn component=api msg=\"failed to read webhook body\" provider=%s err=%v", providerID, err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "invalid request body"})
		return
	}

	outcome, err := h.service.Ingest(r.Context(), providerID, r.Header, body)
	if err != nil {
		log.Printf("level=error component=api msg=\"webhook ingestion failed\" provider=%s err=%v", providerID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "internal error"})
		return
	}

	switch outcome {
	case app.OutcomeAccepted:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "received"})
	case app.OutcomeUnknownProvider:
		writeJSON(w, http.StatusForbidden, map[string]string{"status": "unknown provider"})
	case app.OutcomeSignatureRejected:
		writeJSON(w, http.StatusForbidden, map[string]string{"status": "invalid signature"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "internal error"})
	}
}

// HealthSource serves the cached per-provider liveness snapshot.
type HealthSource interface {
	Snapshot() []app.ProviderHealth
}

// HealthHandler serves GET /virtual-accounts/health.
type HealthHandler struct {
	source HealthSource
}

// NewHealthHandler creates a new handler for the health endpoint.
func NewHealthHandler(source HealthSource) *HealthHandler {
	return &HealthHandler{source: source}
}

// HandleHealth returns cached liveness and supported currencies per enabled
// provider.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"providers": h.source.Snapshot(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("level=warn component=api msg=\"failed to encode response body\" err=%v", err)
	}
}

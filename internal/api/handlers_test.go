package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ken-de-nigerian/payzephyr-virtual-account-manager/internal/app"
)

type stubIngestor struct {
	outcome      app.IngestOutcome
	err          error
	gotProvider  string
	gotBody      []byte
	gotSignature string
}

func (s *stubIngestor) Ingest(ctx context.Context, providerID string, header http.Header, body []byte) (app.IngestOutcome, error) {
	s.gotProvider = providerID
	s.gotBody = body
	s.gotSignature = header.Get("x-anchor-signature")
	return s.outcome, s.err
}

type stubHealthSource struct {
	statuses []app.ProviderHealth
}

func (s *stubHealthSource) Snapshot() []app.ProviderHealth {
	return s.statuses
}

type stubLimiter struct {
	count      int
	retryAfter int
	err        error
}

func (s *stubLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	return s.count, s.retryAfter, s.err
}

func newTestRouter(ingestor *stubIngestor, limiter RateLimiter, limitPerMinute int) http.Handler {
	return NewRouter(
		NewWebhookHandler(ingestor),
		NewHealthHandler(&stubHealthSource{statuses: []app.ProviderHealth{{Provider: "anchor", Alive: true, Currencies: []string{"NGN"}}}}),
		limiter,
		limitPerMinute,
	)
}

func postWebhook(t *testing.T, router http.Handler, provider, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/virtual-accounts/webhook/"+provider, strings.NewReader(body))
	req.Header.Set("x-anchor-signature", "sig")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestHandleWebhookAccepted(t *testing.T) {
	ingestor := &stubIngestor{outcome: app.OutcomeAccepted}
	router := newTestRouter(ingestor, nil, 0)

	recorder := postWebhook(t, router, "anchor", `{"event":"payment.settled"}`)

	if recorder.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", recorder.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body["status"] != "received" {
		t.Fatalf("expected generic received body, got %v", body)
	}
	if ingestor.gotProvider != "anchor" {
		t.Fatalf("expected provider anchor forwarded, got %q", ingestor.gotProvider)
	}
	if ingestor.gotSignature != "sig" {
		t.Fatal("expected request headers forwarded to the pipeline")
	}
	if string(ingestor.gotBody) != `{"event":"payment.settled"}` {
		t.Fatal("expected raw body forwarded unmodified")
	}
}

func TestHandleWebhookStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		outcome    app.IngestOutcome
		err        error
		wantCode   int
		wantStatus string
	}{
		{name: "unknown provider", outcome: app.OutcomeUnknownProvider, wantCode: http.StatusForbidden, wantStatus: "unknown provider"},
		{name: "invalid signature", outcome: app.OutcomeSignatureRejected, wantCode: http.StatusForbidden, wantStatus: "invalid signature"},
		{name: "internal failure", err: errors.New("db down"), wantCode: http.StatusInternalServerError, wantStatus: "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&stubIngestor{outcome: tt.outcome, err: tt.err}, nil, 0)
			recorder := postWebhook(t, router, "anchor", `{}`)

			if recorder.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, recorder.Code)
			}
			var body map[string]string
			if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to decode response body: %v", err)
			}
			if body["status"] != tt.wantStatus {
				t.Fatalf("expected status %q, got %q", tt.wantStatus, body["status"])
			}
			if strings.Contains(recorder.Body.String(), "db down") {
				t.Fatal("expected internal error detail to stay out of the response body")
			}
		})
	}
}

func TestHandleWebhookRateLimited(t *testing.T) {
	limiter := &stubLimiter{count: 121, retryAfter: 42}
	router := newTestRouter(&stubIngestor{outcome: app.OutcomeAccepted}, limiter, 120)

	recorder := postWebhook(t, router, "anchor", `{}`)

	if recorder.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", recorder.Code)
	}
	if got := recorder.Header().Get("Retry-After"); got != "42" {
		t.Fatalf("expected Retry-After 42, got %q", got)
	}
}

func TestHandleWebhookRateLimiterFailsOpen(t *testing.T) {
	limiter := &stubLimiter{err: errors.New("redis unavailable")}
	router := newTestRouter(&stubIngestor{outcome: app.OutcomeAccepted}, limiter, 120)

	recorder := postWebhook(t, router, "anchor", `{}`)

	if recorder.Code != http.StatusAccepted {
		t.Fatalf("expected a degraded limiter to fail open with 202, got %d", recorder.Code)
	}
}

func TestHandleWebhookUnderLimit(t *testing.T) {
	limiter := &stubLimiter{count: 5, retryAfter: 1}
	router := newTestRouter(&stubIngestor{outcome: app.OutcomeAccepted}, limiter, 120)

	recorder := postWebhook(t, router, "anchor", `{}`)

	if recorder.Code != http.StatusAccepted {
		t.Fatalf("expected 202 under the limit, got %d", recorder.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	router := newTestRouter(&stubIngestor{}, nil, 0)

	req := httptest.NewRequest(http.MethodGet, "/virtual-accounts/health", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}

	var body struct {
		Status    string               `json:"status"`
		Providers []app.ProviderHealth `json:"providers"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body.Status != "ok" {
		t.Fatalf("expected ok status, got %q", body.Status)
	}
	if len(body.Providers) != 1 || body.Providers[0].Provider != "anchor" || !body.Providers[0].Alive {
		t.Fatalf("expected the cached anchor snapshot, got %v", body.Providers)
	}
}

package providers

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"
)

func stringAttr(attrs map[string]interface{}, key string) string {
	if attrs == nil {
		return ""
	}
	if v, ok := attrs[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// amountMinorAttr reads a minor-unit amount that providers may deliver as a
// JSON number or a numeric string.
func amountMinorAttr(attrs map[string]interface{}, key string) (int64, bool) {
	if attrs == nil {
		return 0, false
	}
	switch v := attrs[key].(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int64(v), true
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// envelopeExtras returns sanitized top-level payload fields outside the
// known envelope keys, so provider additions beyond the data block still
// survive into notification metadata.
func envelopeExtras(body []byte, knownKeys ...string) map[string]interface{} {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil
	}
	for _, key := range knownKeys {
		delete(raw, key)
	}
	if len(raw) == 0 {
		return nil
	}
	return SanitizeMetadata(raw)
}

// pingBaseURL reports liveness of a provider API. An empty base URL means
// the provider has no probe target and is considered alive.
func pingBaseURL(ctx context.Context, client *http.Client, baseURL string) bool {
	if strings.TrimSpace(baseURL) == "" {
		return true
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

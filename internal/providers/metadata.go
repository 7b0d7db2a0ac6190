/**
 * @description
 * Metadata sanitation for the free-form key/value bag carried on normalized
 * notifications. Provider payloads are preserved verbatim where possible,
 * but depth, string length, and array size are capped so a hostile payload
 * cannot amplify audit-log growth.
 */
package providers

const (
	metadataMaxDepth     = 10
	metadataMaxStringLen = 10000
	metadataMaxArraySize = 100
)

// SanitizeMetadata bounds a decoded JSON value for storage as notification
// metadata. Strings are truncated, arrays are capped, and nesting beyond the
// depth limit is dropped.
func SanitizeMetadata(value map[string]interface{}) map[string]interface{} {
	sanitized, _ := sanitizeValue(value, 0).(map[string]interface{})
	return sanitized
}

func sanitizeValue(value interface{}, depth int) interface{} {
	if depth >= metadataMaxDepth {
		return nil
	}
	switch v := value.(type) {
	case string:
		if len(v) > metadataMaxStringLen {
			return v[:metadataMaxStringLen]
		}
		return v
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, item := range v {
			if len(key) > metadataMaxStringLen {
				key = key[:metadataMaxStringLen]
			}
			if cleaned := sanitizeValue(item, depth+1); cleaned != nil {
				out[key] = cleaned
			}
		}
		return out
	case []interface{}:
		limit := len(v)
		if limit > metadataMaxArraySize {
			limit = metadataMaxArraySize
		}
		out := make([]interface{}, 0, limit)
		for _, item := range v[:limit] {
			if cleaned := sanitizeValue(item, depth+1); cleaned != nil {
				out = append(out, cleaned)
			}
		}
		return out
	default:
		// Numbers and booleans pass through unchanged. JSON nulls decode to
		// nil and are dropped along with over-deep values.
		return v
	}
}

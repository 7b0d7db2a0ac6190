package providers

import (
	"strings"
	"testing"
)

func TestSanitizeMetadataTruncatesLongStrings(t *testing.T) {
	long := strings.Repeat("a", metadataMaxStringLen+50)
	out := SanitizeMetadata(map[string]interface{}{"note": long})

	got, ok := out["note"].(string)
	if !ok {
		t.Fatal("expected string value to survive sanitation")
	}
	if len(got) != metadataMaxStringLen {
		t.Fatalf("expected string truncated to %d chars, got %d", metadataMaxStringLen, len(got))
	}
}

func TestSanitizeMetadataCapsArrays(t *testing.T) {
	items := make([]interface{}, metadataMaxArraySize+25)
	for i := range items {
		items[i] = float64(i)
	}
	out := SanitizeMetadata(map[string]interface{}{"items": items})

	got, ok := out["items"].([]interface{})
	if !ok {
		t.Fatal("expected array value to survive sanitation")
	}
	if len(got) != metadataMaxArraySize {
		t.Fatalf("expected array capped at %d items, got %d", metadataMaxArraySize, len(got))
	}
}

func TestSanitizeMetadataDropsOverDeepNesting(t *testing.T) {
	value := map[string]interface{}{"leaf": "kept"}
	for i := 0; i < metadataMaxDepth+2; i++ {
		value = map[string]interface{}{"nested": value}
	}

	out := SanitizeMetadata(value)

	depth := 0
	current := out
	for {
		next, ok := current["nested"].(map[string]interface{})
		if !ok {
			break
		}
		depth++
		current = next
	}
	if depth >= metadataMaxDepth {
		t.Fatalf("expected nesting cut below depth %d, got %d surviving levels", metadataMaxDepth, depth)
	}
}

func TestSanitizeMetadataDropsNulls(t *testing.T) {
	out := SanitizeMetadata(map[string]interface{}{
		"kept":    "value",
		"number":  float64(42),
		"boolean": true,
		"dropped": nil,
	})

	if _, ok := out["dropped"]; ok {
		t.Fatal("expected null value to be dropped")
	}
	if out["kept"] != "value" || out["number"] != float64(42) || out["boolean"] != true {
		t.Fatalf("expected scalar values to pass through unchanged, got %v", out)
	}
}

package checkin

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"checkin/internal/docstore"
)

// asString renders the string and number forms clients send for ids and
// event references. Other values render as "".
func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == math.Trunc(t) && !math.IsInf(t, 0) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	}
	return ""
}

// AsString is exported for handlers decoding loosely typed bodies.
func AsString(v any) string { return asString(v) }

// ParseEventNumber reports whether ref is a human-facing event number.
// Anything that parses as a finite number qualifies.
func ParseEventNumber(ref string) (float64, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(ref, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func formatNumber(n float64) string {
	return asString(n)
}

func boolField(doc docstore.Document, key string) bool {
	b, _ := doc[key].(bool)
	return b
}

func mapField(doc docstore.Document, key string) map[string]any {
	switch m := doc[key].(type) {
	case map[string]any:
		return m
	case docstore.Document:
		return m
	}
	return map[string]any{}
}

package checkin

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"checkin/internal/docstore"
)

// Millis is a timestamp in epoch milliseconds.
type Millis int64

// Now returns the current time in epoch milliseconds.
func Now() Millis {
	return Millis(time.Now().UnixMilli())
}

// ToMillis converts a stored or submitted timestamp to epoch milliseconds.
// Numbers and numeric strings are taken as milliseconds; store-native objects
// carry seconds and nanoseconds ({"seconds", "nanoseconds"} or the
// underscore-prefixed form). Anything else converts to 0.
func ToMillis(v any) Millis {
	switch t := v.(type) {
	case nil:
		return 0
	case float64:
		return fromFloat(t)
	case float32:
		return fromFloat(float64(t))
	case int:
		return Millis(t)
	case int64:
		return Millis(t)
	case Millis:
		return t
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0
		}
		return fromFloat(f)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return fromFloat(f)
	case time.Time:
		return Millis(t.UnixMilli())
	case docstore.Document:
		return ToMillis(map[string]any(t))
	case map[string]any:
		secs, ok := numberField(t, "seconds", "_seconds")
		if !ok {
			return 0
		}
		nanos, _ := numberField(t, "nanoseconds", "_nanoseconds")
		return Millis(int64(secs)*1000 + int64(nanos)/1e6)
	}
	return 0
}

func fromFloat(f float64) Millis {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return Millis(f)
}

func numberField(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch n := m[k].(type) {
		case float64:
			return n, true
		case int:
			return float64(n), true
		case int64:
			return float64(n), true
		case json.Number:
			f, err := n.Float64()
			if err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

package channel

import (
	"fmt"
	"strings"
)

// ReadString returns the first non-empty value among keys, stringified.
func ReadString(raw map[string]any, keys ...string) string {
	if raw == nil {
		return ""
	}
	for _, key := range keys {
		value, ok := raw[key]
		if !ok || value == nil {
			continue
		}
		var s string
		switch v := value.(type) {
		case string:
			s = v
		case fmt.Stringer:
			s = v.String()
		default:
			s = fmt.Sprint(v)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// ReadBool returns the first boolean-like value among keys.
func ReadBool(raw map[string]any, keys ...string) (bool, bool) {
	if raw == nil {
		return false, false
	}
	for _, key := range keys {
		switch v := raw[key].(type) {
		case bool:
			return v, true
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true", "1", "yes", "on":
				return true, true
			case "false", "0", "no", "off":
				return false, true
			}
		}
	}
	return false, false
}

package policy

import (
	"encoding/json"
	"strconv"
)

// Field names read from RFC 7662 introspection payloads.
const (
	clientIDField = "client_id"
	scopeField    = "scope"
)

// parsePayload parses an introspection payload. Any valid JSON document is
// accepted; field lookups on non-object documents simply find nothing.
func parsePayload(payload []byte) (interface{}, error) {
	var doc interface{}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// payloadField reads a top-level field from a parsed payload.
func payloadField(doc interface{}, key string) (interface{}, bool) {
	obj, ok := doc.(map[string]interface{})
	if !ok {
		return nil, false
	}
	v, ok := obj[key]
	return v, ok
}

// textValue renders a payload value as text: strings as-is, numbers and
// booleans printed, null and containers as empty.
func textValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

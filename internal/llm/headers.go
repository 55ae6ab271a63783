package llm

import (
	"encoding/json"
	"strconv"
)

// Headers is a header mapping that arrives on the wire either as a JSON
// object or as pre-serialized text (which is how model configs persist it).
// Unparseable text is treated as empty.
type Headers struct {
	m map[string]string
}

func HeadersFromMap(m map[string]string) Headers {
	return Headers{m: m}
}

func HeadersFromString(s string) Headers {
	var h Headers
	h.decodeText(s)
	return h
}

func (h *Headers) UnmarshalJSON(b []byte) error {
	h.m = nil
	var asText string
	if err := json.Unmarshal(b, &asText); err == nil {
		h.decodeText(asText)
		return nil
	}
	var asMap map[string]any
	if err := json.Unmarshal(b, &asMap); err == nil {
		h.fromAnyMap(asMap)
	}
	// Anything else (null, array, number) reads as empty.
	return nil
}

func (h *Headers) decodeText(s string) {
	if s == "" {
		return
	}
	var asMap map[string]any
	if err := json.Unmarshal([]byte(s), &asMap); err != nil {
		return
	}
	h.fromAnyMap(asMap)
}

func (h *Headers) fromAnyMap(m map[string]any) {
	for k, v := range m {
		s, ok := coerceHeaderValue(v)
		if !ok {
			continue
		}
		if h.m == nil {
			h.m = make(map[string]string, len(m))
		}
		h.m[k] = s
	}
}

// coerceHeaderValue stringifies scalar values; nulls and composites are
// dropped.
func coerceHeaderValue(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

// MergeHeaders builds the outbound header set: stored custom headers first,
// then Authorization from the API key (last-write-wins over a custom
// Authorization), then Content-Type/Accept defaults for anything unset.
func MergeHeaders(h Headers, apiKey string) map[string]string {
	out := make(map[string]string, len(h.m)+3)
	for k, v := range h.m {
		out[k] = v
	}
	if apiKey != "" {
		out["Authorization"] = "Bearer " + apiKey
	}
	if _, ok := out["Content-Type"]; !ok {
		out["Content-Type"] = "application/json"
	}
	if _, ok := out["Accept"]; !ok {
		out["Accept"] = "text/event-stream"
	}
	return out
}

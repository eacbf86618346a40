package serving

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// DefaultThreshold applies when the request omits threshold.
const DefaultThreshold = 0.5

var jsonNull = []byte("null")

func absent(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, jsonNull)
}

// parsePoints accepts a single [x,y] pair or a list of pairs and returns the
// row-major [N,2] buffer. Anything else is rejected as a whole.
func parsePoints(raw json.RawMessage) ([]float32, int, error) {
	if absent(raw) {
		return nil, 0, &ValidationError{Reason: ReasonMissingField, Index: -1}
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, 0, &ValidationError{Reason: ReasonInvalidPoint, Index: 0}
	}
	// An empty list normalises to [[]], which is not a pair.
	if len(items) == 0 {
		return nil, 0, &ValidationError{Reason: ReasonInvalidPoint, Index: 0}
	}
	batch := items
	if t := bytes.TrimSpace(items[0]); len(t) == 0 || t[0] != '[' {
		batch = []json.RawMessage{raw}
	}
	out := make([]float32, 0, 2*len(batch))
	for i, item := range batch {
		x, y, ok := parsePair(item)
		if !ok {
			return nil, 0, &ValidationError{Reason: ReasonInvalidPoint, Index: i}
		}
		out = append(out, x, y)
	}
	return out, len(batch), nil
}

func parsePair(raw json.RawMessage) (float32, float32, bool) {
	var pair []json.RawMessage
	if err := json.Unmarshal(raw, &pair); err != nil || len(pair) != 2 {
		return 0, 0, false
	}
	x, ok := parseNumber(pair[0])
	if !ok {
		return 0, 0, false
	}
	y, ok := parseNumber(pair[1])
	if !ok {
		return 0, 0, false
	}
	if math.IsInf(float64(float32(x)), 0) || math.IsInf(float64(float32(y)), 0) {
		return 0, 0, false
	}
	return float32(x), float32(y), true
}

// parseNumber accepts a JSON number literal only; strings, booleans and null
// are rejected.
func parseNumber(raw json.RawMessage) (float64, bool) {
	t := bytes.TrimSpace(raw)
	if len(t) == 0 || (t[0] != '-' && (t[0] < '0' || t[0] > '9')) {
		return 0, false
	}
	v, err := strconv.ParseFloat(string(t), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// parseThreshold returns DefaultThreshold for an absent or null value. Any
// finite number is accepted without bounds checks.
func parseThreshold(raw json.RawMessage) (float64, error) {
	if absent(raw) {
		return DefaultThreshold, nil
	}
	v, ok := parseNumber(raw)
	if !ok {
		return 0, &ValidationError{Reason: ReasonInvalidThreshold, Index: -1}
	}
	return v, nil
}

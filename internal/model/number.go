package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Number is a tolerant numeric field for model-emitted JSON. Vision models
// return amounts as numbers, numeric strings ("$1,234.56"), null, or garbage;
// Number decodes all of them without failing the document. Invalid means the
// value was absent or unusable.
type Number struct {
	Float64 float64
	Valid   bool
}

// Num returns a valid Number holding v.
func Num(v float64) Number {
	return Number{Float64: v, Valid: true}
}

// UnmarshalJSON accepts JSON numbers, numeric strings (currency symbols and
// thousands separators stripped), and null. Anything else decodes as invalid
// rather than erroring: one bad field must not sink the whole result.
func (n *Number) UnmarshalJSON(data []byte) error {
	*n = Number{}

	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err == nil {
		*n = Num(v)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}

	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		*n = Num(v)
	}
	return nil
}

// MarshalJSON emits the value, or null when invalid.
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Float64)
}

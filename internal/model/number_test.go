package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumberUnmarshal(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Number
	}{
		{"plain number", `12.5`, Num(12.5)},
		{"integer", `100`, Num(100)},
		{"negative", `-3.25`, Num(-3.25)},
		{"null", `null`, Number{}},
		{"numeric string", `"42.10"`, Num(42.10)},
		{"currency string", `"$1,234.56"`, Num(1234.56)},
		{"padded string", `"  99.00 "`, Num(99)},
		{"garbage string", `"N/A"`, Number{}},
		{"empty string", `""`, Number{}},
		{"boolean", `true`, Number{}},
		{"object", `{"v":1}`, Number{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n Number
			require.NoError(t, json.Unmarshal([]byte(tt.input), &n))
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestNumberMarshal(t *testing.T) {
	data, err := json.Marshal(Num(7.5))
	require.NoError(t, err)
	assert.Equal(t, `7.5`, string(data))

	data, err = json.Marshal(Number{})
	require.NoError(t, err)
	assert.Equal(t, `null`, string(data))
}

func TestNumberInLineItem(t *testing.T) {
	raw := `{"description":"Widget","quantity":2,"unit_price":"$5.00","amount":"ten"}`

	var item LineItem
	require.NoError(t, json.Unmarshal([]byte(raw), &item))

	assert.Equal(t, Num(2), item.Quantity)
	assert.Equal(t, Num(5), item.UnitPrice)
	assert.False(t, item.Amount.Valid)
}

func TestAllLineItems(t *testing.T) {
	t.Run("per-page layout wins", func(t *testing.T) {
		r := ExtractionResult{
			Pages: []Page{
				{PageNumber: 1, LineItems: []LineItem{{Description: "a"}, {Description: "b"}}},
				{PageNumber: 2, LineItems: []LineItem{{Description: "c"}}},
			},
			LineItems: []LineItem{{Description: "ignored"}},
		}

		items := r.AllLineItems()
		require.Len(t, items, 3)
		assert.Equal(t, "a", items[0].Description)
		assert.Equal(t, "c", items[2].Description)
	})

	t.Run("flat fallback", func(t *testing.T) {
		r := ExtractionResult{LineItems: []LineItem{{Description: "x"}}}
		require.Len(t, r.AllLineItems(), 1)
	})

	t.Run("empty", func(t *testing.T) {
		var r ExtractionResult
		assert.Empty(t, r.AllLineItems())
	})
}

func TestTokenUsageSerializesFirst(t *testing.T) {
	r := ExtractionResult{
		TokenUsage: &TokenUsage{PromptTokens: 10, OutputTokens: 5, TotalTokens: 15},
	}

	data, err := json.Marshal(&r)
	require.NoError(t, err)
	assert.True(t, len(data) > 1 && string(data[:15]) == `{"token_usage":`,
		"token_usage must be the first field, got: %s", data)
}

package orders

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeProducts(t *testing.T) {
	tests := []struct {
		name   string
		field  string
		ok     bool
		expect []Product
	}{
		{
			name:   "absent",
			field:  ``,
			ok:     true,
			expect: []Product{},
		},
		{
			name:   "empty string",
			field:  `""`,
			ok:     true,
			expect: []Product{},
		},
		{
			name:  "encoded string",
			field: `"[{\"name\":\"Shirt\",\"quantity\":2,\"price\":50}]"`,
			ok:    true,
			expect: []Product{
				{Name: "Shirt", Quantity: "2", Price: "50"},
			},
		},
		{
			name:  "bare array",
			field: `[{"name":"Hat","price":"12.50","selectedColor":"red"}]`,
			ok:    true,
			expect: []Product{
				{Name: "Hat", Quantity: "1", Price: "12.50", Color: "red"},
			},
		},
		{
			name:  "number literals normalised",
			field: `[{"name":"Belt","quantity":2.0,"price":12.50}]`,
			ok:    true,
			expect: []Product{
				{Name: "Belt", Quantity: "2", Price: "12.5"},
			},
		},
		{
			name:  "string values kept verbatim",
			field: `"[{\"name\":\"Bag\",\"quantity\":\"0\",\"price\":\"\"},{\"name\":\"Pin\",\"quantity\":\"two\",\"price\":\"abc\"}]"`,
			ok:    true,
			expect: []Product{
				{Name: "Bag", Quantity: "0", Price: ""},
				{Name: "Pin", Quantity: "two", Price: "abc"},
			},
		},
		{
			name:  "falsy quantity and zero price",
			field: `[{"name":"Cup","quantity":"","price":0},{"name":"Mug","quantity":false,"price":false}]`,
			ok:    true,
			expect: []Product{
				{Name: "Cup", Quantity: "1", Price: "0"},
				{Name: "Mug", Quantity: "1", Price: "false"},
			},
		},
		{
			name:   "broken json",
			field:  `"[{"`,
			ok:     false,
			expect: []Product{},
		},
		{
			name:   "object instead of array",
			field:  `"{\"name\":\"x\"}"`,
			ok:     false,
			expect: []Product{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := DecodeProducts(json.RawMessage(tc.field))
			require.Equal(t, tc.ok, ok)
			require.Len(t, got, len(tc.expect))
			for i := range tc.expect {
				requireProduct(t, tc.expect[i], got[i])
			}
		})
	}
}

func TestDecodeProduct_Defaults(t *testing.T) {
	p := decodeProduct(json.RawMessage(`{}`))
	requireProduct(t, Product{Name: PlaceholderName, Quantity: "1", Price: "0"}, p)

	p = decodeProduct(json.RawMessage(`{"name":"","quantity":0,"price":null}`))
	requireProduct(t, Product{Name: PlaceholderName, Quantity: "1", Price: "0"}, p)

	p = decodeProduct(json.RawMessage(`"just a string"`))
	requireProduct(t, Product{Name: PlaceholderName, Quantity: "1", Price: "0"}, p)
}

func TestDecodeProduct_LabelPreferredOverValue(t *testing.T) {
	p := decodeProduct(json.RawMessage(`{
		"selectedColor":"#f00","selectedColorLabel":"Red",
		"selectedSize":"l","selectedSizeLabel":""
	}`))

	require.Equal(t, "Red", p.Color)
	require.Equal(t, "l", p.Size)
}

func TestLooseText(t *testing.T) {
	require.Equal(t, "abc", looseText(json.RawMessage(`"abc"`)))
	require.Equal(t, "42", looseText(json.RawMessage(`42`)))
	require.Equal(t, "1.5", looseText(json.RawMessage(`1.50`)))
	require.Equal(t, "", looseText(json.RawMessage(`0`)))
	require.Equal(t, "", looseText(json.RawMessage(`null`)))
	require.Equal(t, "", looseText(json.RawMessage(`false`)))
	require.Equal(t, "true", looseText(json.RawMessage(`true`)))
	require.Equal(t, "", looseText(json.RawMessage(`{"a":1}`)))
}

package orders

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	PlaceholderName = "---"
	DefaultQuantity = "1"
	DefaultPrice    = "0"
)

// Product is one line of an order as the dashboard should display it.
// Every field holds display text with defaults already applied; Color and
// Size are empty when not selected. Values sent as JSON strings are kept
// verbatim, numbers are written in their shortest decimal form.
type Product struct {
	Name     string `json:"name"`
	Quantity string `json:"quantity"`
	Price    string `json:"price"`
	Color    string `json:"color,omitempty"`
	Size     string `json:"size,omitempty"`
}

type rawProduct struct {
	Name       json.RawMessage `json:"name"`
	Quantity   json.RawMessage `json:"quantity"`
	Price      json.RawMessage `json:"price"`
	Color      json.RawMessage `json:"selectedColor"`
	ColorLabel json.RawMessage `json:"selectedColorLabel"`
	Size       json.RawMessage `json:"selectedSize"`
	SizeLabel  json.RawMessage `json:"selectedSizeLabel"`
}

// DecodeProducts decodes a product list field. The field is usually a JSON
// string holding an encoded array, but a bare array is accepted too.
// ok is false when the field could not be decoded or is not an array; the
// returned list is empty in that case.
func DecodeProducts(field json.RawMessage) (list []Product, ok bool) {
	field = bytes.TrimSpace(field)
	if len(field) == 0 || isNull(field) {
		return []Product{}, true
	}

	if field[0] == '"' {
		var s string
		if err := json.Unmarshal(field, &s); err != nil {
			return []Product{}, false
		}
		if strings.TrimSpace(s) == "" {
			return []Product{}, true
		}
		field = json.RawMessage(s)
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(field, &elems); err != nil {
		return []Product{}, false
	}

	list = make([]Product, 0, len(elems))
	for _, e := range elems {
		list = append(list, decodeProduct(e))
	}
	return list, true
}

func decodeProduct(raw json.RawMessage) Product {
	var rp rawProduct
	// anything that is not an object renders with defaults
	_ = json.Unmarshal(raw, &rp)

	p := Product{
		Name:     looseText(rp.Name),
		Quantity: looseText(rp.Quantity),
		Price:    priceText(rp.Price),
		Color:    firstText(rp.ColorLabel, rp.Color),
		Size:     firstText(rp.SizeLabel, rp.Size),
	}
	if p.Name == "" {
		p.Name = PlaceholderName
	}
	if p.Quantity == "" {
		p.Quantity = DefaultQuantity
	}
	return p
}

func firstText(candidates ...json.RawMessage) string {
	for _, c := range candidates {
		if s := looseText(c); s != "" {
			return s
		}
	}
	return ""
}

// looseText returns the display text of a scalar: strings verbatim, numbers
// and true as their literal. Everything else is empty.
func looseText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	case 't':
		if string(raw) == "true" {
			return "true"
		}
		return ""
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		d, err := decimal.NewFromString(string(raw))
		if err != nil {
			return ""
		}
		if d.IsZero() {
			return ""
		}
		return d.String()
	default:
		return ""
	}
}

// priceText keeps any present price, falsy ones included. Only an absent or
// null price, or one that has no scalar text, becomes the default.
func priceText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || isNull(raw) {
		return DefaultPrice
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return DefaultPrice
		}
		return s
	case 't', 'f':
		return string(raw)
	case '{', '[':
		return DefaultPrice
	default:
		d, err := decimal.NewFromString(string(raw))
		if err != nil {
			return DefaultPrice
		}
		return d.String()
	}
}

func isNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}

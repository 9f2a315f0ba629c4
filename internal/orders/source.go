package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// RawRecord is one element of the order array before its product list is decoded.
type RawRecord struct {
	Row      json.RawMessage `json:"row"`
	Products json.RawMessage `json:"Products"`
}

// Source yields the current order records. Records that are not objects are
// dropped by the source and reported through malformed.
type Source interface {
	Fetch(ctx context.Context) (records []RawRecord, malformed int, err error)
}

var (
	ErrNotArray          = errors.New("orders: response is not an array")
	ErrSourceUnavailable = errors.New("orders: source unavailable")
	ErrSourceBadStatus   = errors.New("orders: source bad status")
)

const maxResponseBody = 32 << 20

type HTTPSource struct {
	URL    string
	Client *http.Client
}

// NewHTTPSource uses a client without its own timeout; a fetch is bounded
// only by the caller's context and the transport defaults.
func NewHTTPSource(url string) *HTTPSource {
	return &HTTPSource{
		URL:    url,
		Client: &http.Client{},
	}
}

func (s *HTTPSource) Fetch(ctx context.Context) ([]RawRecord, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, 0, fmt.Errorf("%w: status=%d", ErrSourceBadStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	return DecodeRecords(body)
}

// DecodeRecords splits a JSON array of order objects. A body that is valid
// JSON but not an array yields ErrNotArray.
func DecodeRecords(body []byte) ([]RawRecord, int, error) {
	body = bytes.TrimSpace(body)

	var elems []json.RawMessage
	if err := json.Unmarshal(body, &elems); err != nil {
		if json.Valid(body) {
			return nil, 0, ErrNotArray
		}
		return nil, 0, fmt.Errorf("decode orders: %w", err)
	}
	if elems == nil {
		// top-level null
		return nil, 0, ErrNotArray
	}

	records := make([]RawRecord, 0, len(elems))
	malformed := 0
	for _, e := range elems {
		e = bytes.TrimSpace(e)
		if len(e) == 0 || e[0] != '{' {
			malformed++
			continue
		}
		var r RawRecord
		if err := json.Unmarshal(e, &r); err != nil {
			malformed++
			continue
		}
		records = append(records, r)
	}
	return records, malformed, nil
}

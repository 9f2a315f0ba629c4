package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Outcome string

const (
	// RefreshReplaced means the cache now holds the decoded records.
	RefreshReplaced Outcome = "replaced"
	// RefreshNotArray means the source answered with something other than
	// an array; that is read as "no orders" and the cache is emptied. It is
	// not an error.
	RefreshNotArray Outcome = "not_array"
	// RefreshFailed means transport or top-level decode failed; the cache
	// keeps its previous contents.
	RefreshFailed Outcome = "failed"
)

type Result struct {
	Outcome Outcome
	// Rows is the number of rows in the cache after the refresh.
	Rows int
	// Malformed counts records dropped entirely (not an object, no row).
	Malformed int
	// BadProducts counts rows whose product list failed to decode and
	// were stored as empty.
	BadProducts int
	Generation  uint64
	Err         error
}

// Fetcher is the only writer of its Cache.
type Fetcher struct {
	Source Source
	Cache  *Cache
	Log    *zap.Logger
}

func NewFetcher(src Source, cache *Cache, log *zap.Logger) *Fetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{Source: src, Cache: cache, Log: log}
}

// Refresh pulls the records once and replaces the cache. It never fails from
// the caller's point of view; the result says what happened.
func (f *Fetcher) Refresh(ctx context.Context) Result {
	records, malformed, err := f.Source.Fetch(ctx)
	if errors.Is(err, ErrNotArray) {
		snap := f.Cache.Replace(nil)
		f.Log.Info("orders response is not an array, no orders")
		return Result{Outcome: RefreshNotArray, Generation: snap.Generation}
	}
	if err != nil {
		f.Log.Warn("orders refresh failed, keeping previous cache", zap.Error(err))
		snap := f.Cache.Snapshot()
		return Result{Outcome: RefreshFailed, Rows: snap.Len(), Generation: snap.Generation, Err: err}
	}

	rows := make(map[string][]Product, len(records))
	bad := 0
	for _, rec := range records {
		key, ok := rowKey(rec.Row)
		if !ok {
			malformed++
			continue
		}
		list, ok := DecodeProducts(rec.Products)
		if !ok {
			bad++
			f.Log.Debug("products field did not decode", zap.String("row", key))
		}
		rows[key] = list
	}

	snap := f.Cache.Replace(rows)
	f.Log.Debug("orders refreshed",
		zap.Int("rows", len(rows)),
		zap.Int("malformed", malformed),
		zap.Int("bad_products", bad),
		zap.Uint64("generation", snap.Generation),
		zap.String("snapshot_id", snap.ID),
	)

	return Result{
		Outcome:     RefreshReplaced,
		Rows:        len(rows),
		Malformed:   malformed,
		BadProducts: bad,
		Generation:  snap.Generation,
	}
}

// rowKey coerces a scalar row value to the string the dashboard puts in
// data-row.
func rowKey(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || isNull(raw) {
		return "", false
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	case '{', '[':
		return "", false
	case 't', 'f':
		return string(raw), true
	default:
		d, err := decimal.NewFromString(string(raw))
		if err != nil {
			return "", false
		}
		return d.String(), true
	}
}

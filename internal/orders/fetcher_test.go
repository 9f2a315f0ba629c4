package orders_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"OrderLens/internal/orders"
)

func newOrdersTS(t *testing.T, body *atomic.Value, status *atomic.Int32) *httptest.Server {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		code := int(status.Load())
		if code == 0 {
			code = http.StatusOK
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body.Load().(string)))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newFetcher(t *testing.T, url string) (*orders.Fetcher, *orders.Cache) {
	t.Helper()

	cache := orders.NewCache()
	return orders.NewFetcher(orders.NewHTTPSource(url), cache, zap.NewNop()), cache
}

func TestRefresh_DecodesRecords(t *testing.T) {
	var body atomic.Value
	var status atomic.Int32
	body.Store(`[
		{"row":7,"Products":"[{\"name\":\"Shirt\",\"quantity\":2,\"price\":50,\"selectedColorLabel\":\"Red\",\"selectedSizeLabel\":\"L\"}]"},
		{"row":"8","Products":"[{\"name\":\"Cap\"},{\"name\":\"Socks\",\"quantity\":3}]"}
	]`)
	ts := newOrdersTS(t, &body, &status)

	f, cache := newFetcher(t, ts.URL)
	res := f.Refresh(context.Background())

	require.Equal(t, orders.RefreshReplaced, res.Outcome)
	require.Equal(t, 2, res.Rows)
	require.NoError(t, res.Err)

	shirt, ok := cache.Products("7")
	require.True(t, ok)
	require.Len(t, shirt, 1)
	require.Equal(t, "Shirt", shirt[0].Name)
	require.Equal(t, "2", shirt[0].Quantity)
	require.Equal(t, "50", shirt[0].Price)
	require.Equal(t, "Red", shirt[0].Color)
	require.Equal(t, "L", shirt[0].Size)

	eight, ok := cache.Products("8")
	require.True(t, ok)
	require.Equal(t, []string{"Cap", "Socks"}, []string{eight[0].Name, eight[1].Name})
	require.Equal(t, "1", eight[0].Quantity)
	require.Equal(t, "3", eight[1].Quantity)
}

func TestRefresh_MalformedRecordIsIsolated(t *testing.T) {
	var body atomic.Value
	var status atomic.Int32
	body.Store(`[
		{"row":1,"Products":"[{\"name\":\"A\"}]"},
		{"row":2,"Products":"[{\"name\":"},
		{"row":3,"Products":"{\"name\":\"not a list\"}"},
		{"row":4,"Products":"[{\"name\":\"D\"}]"}
	]`)
	ts := newOrdersTS(t, &body, &status)

	f, cache := newFetcher(t, ts.URL)
	res := f.Refresh(context.Background())

	require.Equal(t, orders.RefreshReplaced, res.Outcome)
	require.Equal(t, 4, res.Rows)
	require.Equal(t, 2, res.BadProducts)

	for _, row := range []string{"2", "3"} {
		p, ok := cache.Products(row)
		require.True(t, ok, "row %s must be present", row)
		require.Empty(t, p)
	}
	for _, row := range []string{"1", "4"} {
		p, ok := cache.Products(row)
		require.True(t, ok)
		require.Len(t, p, 1)
	}
}

func TestRefresh_FailureKeepsPreviousCache(t *testing.T) {
	var body atomic.Value
	var status atomic.Int32
	body.Store(`[{"row":1,"Products":"[{\"name\":\"A\"}]"}]`)
	ts := newOrdersTS(t, &body, &status)

	f, cache := newFetcher(t, ts.URL)
	require.Equal(t, orders.RefreshReplaced, f.Refresh(context.Background()).Outcome)
	before := cache.Snapshot()

	cases := []struct {
		name   string
		body   string
		status int32
	}{
		{name: "invalid json", body: `[{"row":`},
		{name: "server error", body: `[]`, status: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body.Store(tc.body)
			status.Store(tc.status)

			res := f.Refresh(context.Background())
			require.Equal(t, orders.RefreshFailed, res.Outcome)
			require.Error(t, res.Err)
			require.Same(t, before, cache.Snapshot())

			p, ok := cache.Products("1")
			require.True(t, ok)
			require.Equal(t, "A", p[0].Name)
		})
	}
}

func TestRefresh_TransportFailure(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	f, cache := newFetcher(t, url)
	cache.Replace(map[string][]orders.Product{"9": {{Name: "kept"}}})

	res := f.Refresh(context.Background())
	require.Equal(t, orders.RefreshFailed, res.Outcome)
	require.True(t, errors.Is(res.Err, orders.ErrSourceUnavailable))

	p, ok := cache.Products("9")
	require.True(t, ok)
	require.Equal(t, "kept", p[0].Name)
}

func TestRefresh_NotArrayEmptiesCache(t *testing.T) {
	var body atomic.Value
	var status atomic.Int32
	body.Store(`[{"row":1,"Products":"[]"}]`)
	ts := newOrdersTS(t, &body, &status)

	f, cache := newFetcher(t, ts.URL)
	f.Refresh(context.Background())
	require.Equal(t, 1, cache.Snapshot().Len())

	body.Store(`{"error":"quota"}`)
	res := f.Refresh(context.Background())

	require.Equal(t, orders.RefreshNotArray, res.Outcome)
	require.NoError(t, res.Err)
	require.Equal(t, 0, res.Rows)
	require.Equal(t, 0, cache.Snapshot().Len())
}

func TestRefresh_SkipsRowlessAndNonObjectRecords(t *testing.T) {
	var body atomic.Value
	var status atomic.Int32
	body.Store(`[5, "x", {"Products":"[]"}, {"row":null}, {"row":1.0}]`)
	ts := newOrdersTS(t, &body, &status)

	f, cache := newFetcher(t, ts.URL)
	res := f.Refresh(context.Background())

	require.Equal(t, orders.RefreshReplaced, res.Outcome)
	require.Equal(t, 4, res.Malformed)
	require.Equal(t, []string{"1"}, cache.Snapshot().Rows())
}

func TestRefresh_LaterDuplicateWins(t *testing.T) {
	var body atomic.Value
	var status atomic.Int32
	body.Store(`[{"row":3,"Products":"[{\"name\":\"old\"}]"},{"row":"3","Products":"[{\"name\":\"new\"}]"}]`)
	ts := newOrdersTS(t, &body, &status)

	f, cache := newFetcher(t, ts.URL)
	f.Refresh(context.Background())

	p, ok := cache.Products("3")
	require.True(t, ok)
	require.Equal(t, "new", p[0].Name)
}

func TestHTTPSource_NoClientTimeout(t *testing.T) {
	src := orders.NewHTTPSource("http://orders.local")
	require.Zero(t, src.Client.Timeout)
}

func TestHTTPSource_BoundedByContext(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(ts.Close)
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err := orders.NewHTTPSource(ts.URL).Fetch(ctx)
	require.ErrorIs(t, err, orders.ErrSourceUnavailable)
}

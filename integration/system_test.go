//go:build integration
// +build integration

package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

var baseURL = getenv("E2E_BASE_URL", "http://localhost:8080")

type status struct {
	State     string `json:"state"`
	Abandoned bool   `json:"abandoned"`
	CacheRows int    `json:"cache_rows"`
}

func TestSystem_E2E_EnhancedDashboard(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	waitReady(t, ctx, baseURL+"/readyz")

	body, ctype := get(t, baseURL+getenv("E2E_PAGE_PATH", "/"), "", 200)
	if !strings.HasPrefix(ctype, "text/html") {
		t.Fatalf("content-type=%q", ctype)
	}
	if want := os.Getenv("E2E_EXPECT_LINE"); want != "" && !strings.Contains(body, want) {
		t.Fatalf("page does not contain %q", want)
	}

	token := os.Getenv("E2E_ADMIN_TOKEN")
	if token == "" {
		t.Log("E2E_ADMIN_TOKEN not set, skipping admin checks")
		return
	}

	st := waitAttached(t, ctx, token)
	if st.CacheRows == 0 {
		t.Logf("cache is empty; the orders source returned no rows")
	}

	if os.Getenv("E2E_RESTART_DASHBOARD") == "1" {
		restartContainer(t, ctx, getenv("E2E_DASHBOARD_SERVICE", "dashboard"))
		waitReady(t, ctx, baseURL+"/readyz")
		get(t, baseURL+getenv("E2E_PAGE_PATH", "/"), "", 200)
		waitAttached(t, ctx, token)
	}
}

func waitAttached(t *testing.T, ctx context.Context, token string) status {
	t.Helper()

	var st status
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) && ctx.Err() == nil {
		raw, _ := get(t, baseURL+"/enhancer/status", token, 200)
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			t.Fatalf("decode status: %v body=%s", err, raw)
		}
		if st.State == "attached" {
			return st
		}
		if st.Abandoned {
			t.Fatalf("enhancer gave up attaching")
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("enhancer not attached: %+v", st)
	return st
}

func waitReady(t *testing.T, ctx context.Context, url string) {
	t.Helper()
	client := &http.Client{Timeout: 2 * time.Second}

	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		resp, err := client.Do(req)
		if err == nil && resp != nil && resp.StatusCode == 200 {
			_ = resp.Body.Close()
			return
		}
		if resp != nil {
			_ = resp.Body.Close()
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("service not ready: %s", url)
}

func get(t *testing.T, url, token string, want int) (string, string) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		t.Fatalf("GET %s: status=%d want=%d", url, resp.StatusCode, want)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(raw), resp.Header.Get("Content-Type")
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

package enhancer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// PageSource provides the dashboard page the watcher attaches to.
type PageSource interface {
	Load(ctx context.Context) ([]byte, error)
}

var (
	ErrPageUnavailable = errors.New("dashboard page unavailable")
	ErrPageBadStatus   = errors.New("dashboard page bad status")
)

const maxPageBytes = 16 << 20

type HTTPPageSource struct {
	URL    string
	Client *http.Client
}

func NewHTTPPageSource(url string) *HTTPPageSource {
	return &HTTPPageSource{
		URL:    url,
		Client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (s *HTTPPageSource) Load(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status=%d", ErrPageBadStatus, resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
}

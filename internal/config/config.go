package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type http struct {
	Port           string
	DashboardURL   string
	PagePath       string
	FragmentPrefix string
	ReadyPath      string
}

type source struct {
	OrdersURL string
	DSN       string
	Table     string
}

type dom struct {
	RootID       string
	CardSelector string
	ListSelector string
	RowAttr      string
}

type timing struct {
	AttachRetryInterval time.Duration
	MaxAttachAttempts   int
	RefreshInterval     time.Duration
	PublishTimeout      time.Duration
}

type admin struct {
	JWTSecret    string
	MetricsToken string
	RateLimit    int
}

type Config struct {
	LogLevel string
	MemoSize int

	HTTP   http
	Source source
	DOM    dom
	Timing timing
	Admin  admin
}

var (
	ErrNoOrderSource = errors.New("config: ORDERS_URL or ORDERS_DSN is required")
	ErrShortSecret   = errors.New("config: ADMIN_JWT_SECRET must be at least 32 chars")
)

// Load reads .env files when present and then the environment. Values
// already set in the environment win over .env.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	return FromEnv()
}

func FromEnv() (*Config, error) {
	var cfg Config

	cfg.LogLevel = def(os.Getenv("LOG_LEVEL"), "info")
	cfg.MemoSize = atoi(os.Getenv("RENDER_MEMO_SIZE"), 4096)

	cfg.HTTP.Port = def(os.Getenv("PORT"), "8080")
	cfg.HTTP.DashboardURL = strings.TrimRight(def(os.Getenv("DASHBOARD_URL"), "http://dashboard:3000"), "/")
	cfg.HTTP.PagePath = def(os.Getenv("PAGE_PATH"), "/")
	cfg.HTTP.FragmentPrefix = os.Getenv("FRAGMENT_PREFIX")
	cfg.HTTP.ReadyPath = def(os.Getenv("READY_PATH"), cfg.HTTP.PagePath)

	cfg.Source.OrdersURL = os.Getenv("ORDERS_URL")
	cfg.Source.DSN = os.Getenv("ORDERS_DSN")
	cfg.Source.Table = def(os.Getenv("ORDERS_TABLE"), "dashboard_orders")

	cfg.DOM.RootID = def(os.Getenv("ROOT_ID"), "order-list")
	cfg.DOM.CardSelector = def(os.Getenv("CARD_SELECTOR"), ".order-card")
	cfg.DOM.ListSelector = def(os.Getenv("LIST_SELECTOR"), ".order-details ul")
	cfg.DOM.RowAttr = def(os.Getenv("ROW_ATTR"), "data-row")

	cfg.Timing.AttachRetryInterval = duration(os.Getenv("ATTACH_RETRY_INTERVAL"), 250*time.Millisecond)
	cfg.Timing.MaxAttachAttempts = atoi(os.Getenv("MAX_ATTACH_ATTEMPTS"), 40)
	cfg.Timing.RefreshInterval = duration(os.Getenv("REFRESH_INTERVAL"), 10*time.Second)
	cfg.Timing.PublishTimeout = duration(os.Getenv("PUBLISH_TIMEOUT"), 2*time.Second)

	cfg.Admin.JWTSecret = os.Getenv("ADMIN_JWT_SECRET")
	cfg.Admin.MetricsToken = os.Getenv("METRICS_TOKEN")
	cfg.Admin.RateLimit = atoi(os.Getenv("ADMIN_RATE_LIMIT"), 30)

	if cfg.Source.OrdersURL == "" && cfg.Source.DSN == "" {
		return nil, ErrNoOrderSource
	}
	if cfg.Admin.JWTSecret != "" && len(cfg.Admin.JWTSecret) < 32 {
		return nil, ErrShortSecret
	}
	return &cfg, nil
}

func def(v, d string) string {
	if v == "" {
		return d
	}
	return v
}

func atoi(s string, d int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return d
	}
	return n
}

func duration(s string, d time.Duration) time.Duration {
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || v <= 0 {
		return d
	}
	return v
}

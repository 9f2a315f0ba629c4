package enhancer

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"OrderLens/internal/dom"
	"OrderLens/internal/orders"
	"OrderLens/internal/render"
	"OrderLens/internal/watch"
)

type State int

const (
	StateAttaching State = iota
	StateAttached
)

func (s State) String() string {
	if s == StateAttached {
		return "attached"
	}
	return "attaching"
}

const (
	DefaultAttachRetryInterval = 250 * time.Millisecond
	DefaultMaxAttachAttempts   = 40
	DefaultRefreshInterval     = 10 * time.Second
)

type Config struct {
	AttachRetryInterval time.Duration
	MaxAttachAttempts   int
	RefreshInterval     time.Duration
}

func (c Config) withDefaults() Config {
	if c.AttachRetryInterval <= 0 {
		c.AttachRetryInterval = DefaultAttachRetryInterval
	}
	if c.MaxAttachAttempts <= 0 {
		c.MaxAttachAttempts = DefaultMaxAttachAttempts
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = DefaultRefreshInterval
	}
	return c
}

type Deps struct {
	Fetcher *orders.Fetcher
	Watcher *watch.Watcher
	// Pages is optional. Without it the page only arrives through Publish.
	Pages   PageSource
	Log     *zap.Logger
	Metrics *Metrics
}

type Status struct {
	State         string         `json:"state"`
	Abandoned     bool           `json:"abandoned"`
	AttachRetries int            `json:"attach_retries"`
	PageLoaded    bool           `json:"page_loaded"`
	LastRefresh   time.Time      `json:"last_refresh,omitempty"`
	LastOutcome   orders.Outcome `json:"last_outcome,omitempty"`
	LastError     string         `json:"last_error,omitempty"`
	CacheRows     int            `json:"cache_rows"`
	CacheGen      uint64         `json:"cache_generation"`
	CacheSnapshot string         `json:"cache_snapshot,omitempty"`
	CacheLoadedAt time.Time      `json:"cache_loaded_at,omitempty"`
}

// Runner owns the live dashboard page. Every document read or write and
// every enhancement runs on the goroutine executing Run; fetches run on
// their own goroutines and hand results back.
type Runner struct {
	cfg     Config
	log     *zap.Logger
	fetcher *orders.Fetcher
	watcher *watch.Watcher
	pages   PageSource
	metrics *Metrics

	ops       chan func()
	refreshed chan orders.Result

	// loop-owned
	doc         *dom.Document
	attachT     *time.Ticker
	abandoned   bool
	pageLoading bool

	mu     sync.Mutex
	status Status
}

func New(cfg Config, deps Deps) *Runner {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := &Runner{
		cfg:       cfg.withDefaults(),
		log:       log,
		fetcher:   deps.Fetcher,
		watcher:   deps.Watcher,
		pages:     deps.Pages,
		metrics:   deps.Metrics,
		ops:       make(chan func()),
		refreshed: make(chan orders.Result),
		doc:       dom.New(),
		status:    Status{State: StateAttaching.String()},
	}

	prev := r.watcher.OnEnhance
	r.watcher.OnEnhance = func(o render.Outcome) {
		r.metrics.enhance(o)
		if prev != nil {
			prev(o)
		}
	}
	return r
}

// Run refreshes the cache once, attaches the watcher and then services
// timers and requests until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	r.recordRefresh(r.fetcher.Refresh(ctx))

	if !r.tryAttach() {
		r.attachT = time.NewTicker(r.cfg.AttachRetryInterval)
		r.loadPage(ctx)
	}
	defer r.stopAttachRetries()
	defer r.watcher.Stop()

	refreshT := time.NewTicker(r.cfg.RefreshInterval)
	defer refreshT.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.attachC():
			r.retryAttach(ctx)
		case <-refreshT.C:
			go r.refresh(ctx)
		case res := <-r.refreshed:
			r.recordRefresh(res)
			n := r.watcher.EnhanceAll(r.doc)
			r.log.Debug("cards re-enhanced", zap.Int("cards", n))
		case op := <-r.ops:
			op()
		}
	}
}

func (r *Runner) attachC() <-chan time.Time {
	if r.attachT == nil {
		return nil
	}
	return r.attachT.C
}

func (r *Runner) stopAttachRetries() {
	if r.attachT != nil {
		r.attachT.Stop()
		r.attachT = nil
	}
}

func (r *Runner) retryAttach(ctx context.Context) {
	retries := r.update(func(s *Status) { s.AttachRetries++ }).AttachRetries
	r.metrics.attachRetry()

	if r.tryAttach() {
		return
	}
	if retries >= r.cfg.MaxAttachAttempts {
		r.stopAttachRetries()
		r.abandoned = true
		st := r.update(func(s *Status) { s.Abandoned = true })
		r.metrics.state(false, true)
		r.log.Warn("order list never appeared, giving up", zap.Int("retries", st.AttachRetries))
		return
	}
	if !r.snapshotStatus().PageLoaded {
		r.loadPage(ctx)
	}
}

// resumeAttach gives a freshly served page a new bounded round of attach
// attempts after an earlier round was abandoned.
func (r *Runner) resumeAttach() {
	r.abandoned = false
	r.update(func(s *Status) {
		s.Abandoned = false
		s.AttachRetries = 0
	})
	r.metrics.state(false, false)
	if r.attachT == nil {
		r.attachT = time.NewTicker(r.cfg.AttachRetryInterval)
	}
	r.log.Info("new dashboard page, resuming attach")
}

// tryAttach starts the watcher on the live page unless it already runs or
// retries ran out.
func (r *Runner) tryAttach() bool {
	if r.watcher.Attached(r.doc) {
		return true
	}
	if r.abandoned {
		return false
	}
	if !r.watcher.Start(r.doc) {
		return false
	}

	r.stopAttachRetries()
	r.update(func(s *Status) { s.State = StateAttached.String() })
	r.metrics.state(true, false)
	r.log.Info("watcher attached")
	return true
}

// loadPage fetches the dashboard page in the background and installs it on
// the loop.
func (r *Runner) loadPage(ctx context.Context) {
	if r.pages == nil || r.pageLoading {
		return
	}
	r.pageLoading = true

	go func() {
		body, err := r.pages.Load(ctx)
		op := func() {
			r.pageLoading = false
			if err != nil {
				r.log.Debug("dashboard page load failed", zap.Error(err))
				return
			}
			if err := r.installPage(body); err != nil {
				r.log.Warn("dashboard page parse failed", zap.Error(err))
				return
			}
			r.tryAttach()
		}
		select {
		case r.ops <- op:
		case <-ctx.Done():
		}
	}()
}

func (r *Runner) installPage(body []byte) error {
	if err := r.doc.Load(bytes.NewReader(body)); err != nil {
		return err
	}
	r.update(func(s *Status) { s.PageLoaded = true })
	return nil
}

func (r *Runner) refresh(ctx context.Context) {
	res := r.fetcher.Refresh(ctx)
	select {
	case r.refreshed <- res:
	case <-ctx.Done():
	}
}

func (r *Runner) recordRefresh(res orders.Result) {
	r.metrics.refresh(res)
	r.update(func(s *Status) {
		s.LastRefresh = time.Now().UTC()
		s.LastOutcome = res.Outcome
		s.LastError = ""
		if res.Err != nil {
			s.LastError = res.Err.Error()
		}
	})
}

// Refresh runs the fetcher now and re-enhances the live page afterwards.
func (r *Runner) Refresh(ctx context.Context) (orders.Result, error) {
	res := r.fetcher.Refresh(ctx)
	_, err := r.do(ctx, func() ([]byte, error) {
		r.recordRefresh(res)
		r.watcher.EnhanceAll(r.doc)
		return nil, nil
	})
	return res, err
}

// Publish installs a freshly served dashboard page as the live page and
// returns it enhanced. Until the watcher is attached the page comes back
// unchanged. A published page starts a new round of attach attempts when
// the previous round was abandoned.
func (r *Runner) Publish(ctx context.Context, page []byte) ([]byte, error) {
	out, err := r.do(ctx, func() ([]byte, error) {
		if err := r.installPage(page); err != nil {
			return nil, err
		}
		if r.abandoned {
			r.resumeAttach()
		}
		if !r.tryAttach() {
			return page, nil
		}
		var buf bytes.Buffer
		if err := r.doc.Render(&buf); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	})
	r.metrics.publish("page", publishOutcome(page, out, err))
	return out, err
}

// PublishFragment swaps the content of the live order list for an HTML
// partial. The watcher sees the partial's top level nodes as inserted.
func (r *Runner) PublishFragment(ctx context.Context, fragment []byte) ([]byte, error) {
	out, err := r.do(ctx, func() ([]byte, error) {
		if !r.watcher.Attached(r.doc) {
			return fragment, nil
		}
		root := r.watcher.Root(r.doc)
		if root == nil {
			return fragment, nil
		}
		nodes, err := dom.ParseFragment(bytes.NewReader(fragment))
		if err != nil {
			return nil, err
		}
		for c := root.FirstChild; c != nil; {
			next := c.NextSibling
			r.doc.RemoveChild(root, c)
			c = next
		}
		r.doc.AppendChildren(root, nodes)
		return dom.RenderNodes(nodes)
	})
	r.metrics.publish("fragment", publishOutcome(fragment, out, err))
	return out, err
}

// Snapshot renders the live page.
func (r *Runner) Snapshot(ctx context.Context) ([]byte, error) {
	return r.do(ctx, func() ([]byte, error) {
		var buf bytes.Buffer
		if err := r.doc.Render(&buf); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	})
}

func (r *Runner) Status() Status {
	st := r.snapshotStatus()
	snap := r.fetcher.Cache.Snapshot()
	st.CacheRows = snap.Len()
	st.CacheGen = snap.Generation
	st.CacheSnapshot = snap.ID
	st.CacheLoadedAt = snap.LoadedAt
	return st
}

func (r *Runner) snapshotStatus() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Runner) update(fn func(*Status)) Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.status)
	return r.status
}

type opResult struct {
	b   []byte
	err error
}

// do runs fn on the loop goroutine.
func (r *Runner) do(ctx context.Context, fn func() ([]byte, error)) ([]byte, error) {
	ch := make(chan opResult, 1)
	op := func() {
		b, err := fn()
		ch <- opResult{b: b, err: err}
	}

	select {
	case r.ops <- op:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-ch:
		return res.b, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func publishOutcome(in, out []byte, err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case err != nil:
		return "error"
	case bytes.Equal(in, out):
		return "passthrough"
	default:
		return "enhanced"
	}
}

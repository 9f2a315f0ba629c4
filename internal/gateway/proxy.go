package gateway

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"OrderLens/pkg/kit"
)

const maxRewriteBytes = 16 << 20

// Publisher turns dashboard HTML into enhanced HTML.
type Publisher interface {
	Publish(ctx context.Context, page []byte) ([]byte, error)
	PublishFragment(ctx context.Context, fragment []byte) ([]byte, error)
}

type rewriteKind int

const (
	rewriteNone rewriteKind = iota
	rewritePage
	rewriteFragment
)

type rewriteKindKey struct{}

type ProxyConfig struct {
	Target         string
	PagePath       string
	FragmentPrefix string
	PublishTimeout time.Duration
}

type dashboardProxy struct {
	cfg ProxyConfig
	pub Publisher
	log *zap.Logger
}

// NewReverseProxy forwards everything to the dashboard and routes the order
// page and its partials through pub on the way back. PagePath and
// FragmentPrefix are matched against the client path, so a Target with a
// base path works.
func NewReverseProxy(cfg ProxyConfig, pub Publisher, log *zap.Logger) (*httputil.ReverseProxy, error) {
	u, err := url.Parse(cfg.Target)
	if err != nil {
		return nil, err
	}
	if cfg.PagePath == "" {
		cfg.PagePath = "/"
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Second
	}

	p := &dashboardProxy{cfg: cfg, pub: pub, log: log}

	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			// classify on the client path; SetURL prepends any base path of the target
			kind := p.kindFor(pr.In)
			pr.SetURL(u)
			pr.SetXForwarded()
			if kind != rewriteNone {
				// the body has to come back uncompressed to be rewritten
				pr.Out.Header.Del("Accept-Encoding")
				pr.Out = pr.Out.WithContext(context.WithValue(pr.Out.Context(), rewriteKindKey{}, kind))
			}
		},
	}
	rp.ModifyResponse = p.modifyResponse
	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Warn("dashboard upstream error", zap.Error(err), zap.String("path", r.URL.Path))
		kit.WriteError(w, r, http.StatusBadGateway, "dashboard unavailable", nil)
	}
	return rp, nil
}

func (p *dashboardProxy) kindFor(r *http.Request) rewriteKind {
	if r.Method != http.MethodGet {
		return rewriteNone
	}
	switch {
	case r.URL.Path == p.cfg.PagePath:
		return rewritePage
	case p.cfg.FragmentPrefix != "" && strings.HasPrefix(r.URL.Path, p.cfg.FragmentPrefix):
		return rewriteFragment
	default:
		return rewriteNone
	}
}

func (p *dashboardProxy) modifyResponse(resp *http.Response) error {
	kind, _ := resp.Request.Context().Value(rewriteKindKey{}).(rewriteKind)
	if kind == rewriteNone || resp.StatusCode != http.StatusOK || !isHTML(resp.Header) {
		return nil
	}
	if enc := resp.Header.Get("Content-Encoding"); enc != "" && enc != "identity" {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRewriteBytes+1))
	_ = resp.Body.Close()
	if err != nil {
		return err
	}
	if len(body) > maxRewriteBytes {
		p.log.Warn("dashboard page too large to enhance", zap.String("path", resp.Request.URL.Path))
		setBody(resp, body)
		return nil
	}

	ctx, cancel := context.WithTimeout(resp.Request.Context(), p.cfg.PublishTimeout)
	defer cancel()

	var out []byte
	if kind == rewritePage {
		out, err = p.pub.Publish(ctx, body)
	} else {
		out, err = p.pub.PublishFragment(ctx, body)
	}
	if err != nil {
		p.log.Warn("enhancement skipped", zap.Error(err), zap.String("path", resp.Request.URL.Path))
		out = body
	}

	setBody(resp, out)
	if !bytes.Equal(out, body) {
		resp.Header.Del("ETag")
		resp.Header.Del("Last-Modified")
	}
	return nil
}

func setBody(resp *http.Response, b []byte) {
	resp.Body = io.NopCloser(bytes.NewReader(b))
	resp.ContentLength = int64(len(b))
	resp.Header.Set("Content-Length", strconv.Itoa(len(b)))
}

func isHTML(h http.Header) bool {
	mt, _, err := mime.ParseMediaType(h.Get("Content-Type"))
	return err == nil && mt == "text/html"
}

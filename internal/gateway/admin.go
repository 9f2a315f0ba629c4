package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"OrderLens/internal/auth"
	"OrderLens/internal/enhancer"
	"OrderLens/internal/orders"
	"OrderLens/internal/render"
	"OrderLens/pkg/kit"
)

const adminOpTimeout = 20 * time.Second

type ctxKey string

const operatorKey ctxKey = "operator"

type Operator struct {
	Subject string
	Role    string
}

func OperatorFromContext(ctx context.Context) (Operator, bool) {
	op, ok := ctx.Value(operatorKey).(Operator)
	return op, ok
}

// AdminJWT lets through requests carrying a valid token with the admin role.
func AdminJWT(jwt *auth.TokenMaker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, ok := kit.BearerToken(r)
			if !ok {
				kit.WriteError(w, r, http.StatusUnauthorized, "missing token", nil)
				return
			}

			claims, err := jwt.Parse(tok)
			if err != nil {
				kit.WriteError(w, r, http.StatusUnauthorized, "invalid token", nil)
				return
			}
			if claims.Role != auth.RoleAdmin {
				kit.WriteError(w, r, http.StatusForbidden, "admin role required", nil)
				return
			}

			ctx := context.WithValue(r.Context(), operatorKey, Operator{Subject: claims.Subject, Role: claims.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type admin struct {
	runner   *enhancer.Runner
	renderer *render.Renderer
	log      *zap.Logger
}

type orderResponse struct {
	Row      string           `json:"row"`
	Products []orders.Product `json:"products"`
	Lines    []string         `json:"lines"`
}

type refreshResponse struct {
	Outcome     orders.Outcome `json:"outcome"`
	Rows        int            `json:"rows"`
	Malformed   int            `json:"malformed"`
	BadProducts int            `json:"bad_products"`
	Generation  uint64         `json:"generation"`
	Error       string         `json:"error,omitempty"`
}

func (a *admin) routes(r chi.Router) {
	r.Get("/status", a.status)
	r.Get("/orders", a.rows)
	r.Get("/orders/{row}", a.order)
	r.Post("/refresh", a.refresh)
	r.Get("/page", a.page)
}

func (a *admin) status(w http.ResponseWriter, _ *http.Request) {
	kit.WriteJSON(w, http.StatusOK, a.runner.Status())
}

type rowsResponse struct {
	Snapshot   string   `json:"snapshot"`
	Generation uint64   `json:"generation"`
	Rows       []string `json:"rows"`
}

func (a *admin) rows(w http.ResponseWriter, _ *http.Request) {
	snap := a.renderer.Snapshot()
	rows := snap.Rows()
	if rows == nil {
		rows = []string{}
	}
	kit.WriteJSON(w, http.StatusOK, rowsResponse{Snapshot: snap.ID, Generation: snap.Generation, Rows: rows})
}

func (a *admin) order(w http.ResponseWriter, r *http.Request) {
	row := chi.URLParam(r, "row")

	products, ok := a.renderer.Products(row)
	if !ok {
		kit.WriteError(w, r, http.StatusNotFound, "unknown row", map[string]string{"row": row})
		return
	}

	lines, _ := a.renderer.Lines(row)
	if lines == nil {
		lines = []string{}
	}
	kit.WriteJSON(w, http.StatusOK, orderResponse{Row: row, Products: products, Lines: lines})
}

func (a *admin) refresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), adminOpTimeout)
	defer cancel()

	res, err := a.runner.Refresh(ctx)
	if err != nil {
		kit.WriteError(w, r, http.StatusServiceUnavailable, "enhancer busy", nil)
		return
	}

	op, _ := OperatorFromContext(r.Context())
	a.log.Info("manual refresh",
		zap.String("operator", op.Subject),
		zap.String("outcome", string(res.Outcome)),
		zap.Int("rows", res.Rows),
	)

	out := refreshResponse{
		Outcome:     res.Outcome,
		Rows:        res.Rows,
		Malformed:   res.Malformed,
		BadProducts: res.BadProducts,
		Generation:  res.Generation,
	}
	status := http.StatusOK
	if res.Err != nil {
		out.Error = res.Err.Error()
		status = http.StatusBadGateway
	}
	kit.WriteJSON(w, status, out)
}

func (a *admin) page(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), adminOpTimeout)
	defer cancel()

	b, err := a.runner.Snapshot(ctx)
	if err != nil {
		kit.WriteError(w, r, http.StatusServiceUnavailable, "enhancer busy", nil)
		return
	}
	kit.WriteHTML(w, http.StatusOK, b)
}

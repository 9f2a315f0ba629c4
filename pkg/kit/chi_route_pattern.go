package kit

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ChiRoutePattern labels a request by its matched route. Proxied traffic
// lands on the catch-all pattern, so raw paths never become label values.
func ChiRoutePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if rp := rc.RoutePattern(); rp != "" {
			return rp
		}
	}
	return "unmatched"
}

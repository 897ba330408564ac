package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RoutePattern returns the chi route pattern matched by r, or the raw path
// when r was not routed by chi. Only meaningful after the handler ran.
func RoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	if r.URL.Path == "" {
		return "/"
	}
	return r.URL.Path
}

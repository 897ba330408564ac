package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/vango-dev/domcore/pkg/metrics"
)

// Metrics creates middleware that records request counts and latency into
// mtr. A nil mtr makes it a pass-through.
func Metrics(mtr *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if mtr == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// The chi wrapper keeps http.Hijacker, which the websocket
			// upgrade needs.
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			mtr.ObserveHTTP(RoutePattern(r), r.Method, status(ww), time.Since(start))
		})
	}
}

// status returns the written status. Hijacked connections and handlers
// that wrote nothing count as 200.
func status(ww chimw.WrapResponseWriter) int {
	if s := ww.Status(); s != 0 {
		return s
	}
	return http.StatusOK
}

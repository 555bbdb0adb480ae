package metrics

import (
	"net/http"
	"time"
)

// otherPath labels requests outside the served routes, so scanners of a
// public status port cannot grow the label set.
const otherPath = "other"

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMiddleware returns middleware that records HTTP metrics. Requests
// are labelled by path when it is one of routes and as "other" otherwise;
// with no routes every path is recorded as is.
func HTTPMiddleware(reg *Registry, routes ...string) func(http.Handler) http.Handler {
	known := make(map[string]bool, len(routes))
	for _, r := range routes {
		known[r] = true
	}
	label := func(path string) string {
		if len(known) == 0 || known[path] {
			return path
		}
		return otherPath
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reg.InFlightInc()
			defer reg.InFlightDec()

			start := time.Now()

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			reg.RecordRequest(r.Method, label(r.URL.Path), rw.statusCode, time.Since(start).Seconds())
		})
	}
}

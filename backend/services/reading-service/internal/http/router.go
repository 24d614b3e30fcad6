package httpserver

import "net/http"

// Routes aggregates handlers for HTTP server.
type Routes struct {
	Ingest  http.HandlerFunc
	Latest  http.HandlerFunc
	Live    http.HandlerFunc
	Health  http.HandlerFunc
	Metrics http.Handler
}

// NewRouter wires all HTTP routes.
func NewRouter(routes Routes) http.Handler {
	mux := http.NewServeMux()
	if routes.Ingest != nil {
		mux.Handle("/data", method(http.MethodPost, routes.Ingest))
	}
	if routes.Latest != nil {
		mux.Handle("/api/latest", method(http.MethodGet, routes.Latest))
	}
	if routes.Live != nil {
		mux.Handle("/ws/latest", method(http.MethodGet, routes.Live))
	}
	if routes.Health != nil {
		mux.Handle("/health", method(http.MethodGet, routes.Health))
	}
	if routes.Metrics != nil {
		mux.Handle("/metrics", method(http.MethodGet, routes.Metrics.ServeHTTP))
	}
	return mux
}

func method(expected string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != expected {
			w.Header().Set("Allow", expected)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler(w, r)
	}
}

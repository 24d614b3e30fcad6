package handlers

import (
	"net/http"
)

// ConnectionChecker reports database connectivity.
type ConnectionChecker interface {
	Connected() bool
}

// NewHealthHandler returns GET /health handler. The service stays healthy without a database
// because readings are still accepted into the live cache.
func NewHealthHandler(db ConnectionChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		database := "down"
		if db != nil && db.Connected() {
			database = "up"
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": database})
	}
}

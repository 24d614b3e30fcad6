package handlers

import (
	"net/http"

	"sensorhub/backend/services/reading-service/internal/models"
)

// SnapshotReader exposes the latest outcome.
type SnapshotReader interface {
	Latest() models.Snapshot
}

// NewLatestHandler handles GET /api/latest.
func NewLatestHandler(reader SnapshotReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, reader.Latest().View())
	}
}

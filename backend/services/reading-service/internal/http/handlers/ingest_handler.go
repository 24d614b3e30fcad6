package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"sensorhub/backend/services/reading-service/internal/service"
)

// APIKeyHeader carries the device shared secret.
const APIKeyHeader = "X-API-Key"

// Submitter runs one submission through the ingestion pipeline.
type Submitter interface {
	Authorize(credential string) error
	Submit(ctx context.Context, payload []byte, credential string) (service.Result, error)
}

// NewIngestHandler handles POST /data.
func NewIngestHandler(submitter Submitter, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		credential := r.Header.Get(APIKeyHeader)
		if err := submitter.Authorize(credential); err != nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "request body too large or unreadable")
			return
		}

		res, err := submitter.Submit(r.Context(), body, credential)
		if err != nil {
			var vErr *service.ValidationError
			switch {
			case errors.Is(err, service.ErrUnauthorized):
				writeError(w, http.StatusUnauthorized, "Unauthorized")
			case errors.As(err, &vErr):
				writeError(w, http.StatusBadRequest, vErr.Message)
			default:
				logger.Error("unexpected ingestion failure", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "internal error")
			}
			return
		}

		if res.State == service.StatePersistFailed {
			logger.Warn("reading acknowledged without durable storage", zap.Error(res.PersistErr))
		}
		writeSuccess(w, "Data received")
	}
}

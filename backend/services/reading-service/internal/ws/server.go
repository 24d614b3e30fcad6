package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"sensorhub/backend/services/reading-service/internal/models"
)

// SnapshotSource provides the state sent to a viewer right after it connects.
type SnapshotSource interface {
	Latest() models.Snapshot
}

// Server upgrades viewer requests to websockets.
type Server struct {
	hub          *Hub
	source       SnapshotSource
	logger       *zap.Logger
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
}

// NewServer builds ws server.
func NewServer(hub *Hub, source SnapshotSource, writeTimeout time.Duration, logger *zap.Logger) *Server {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &Server{
		hub:          hub,
		source:       source,
		logger:       logger,
		writeTimeout: writeTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWS is HTTP handler for GET /ws/latest.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	connection := NewConnection(uuid.NewString(), conn, s.writeTimeout, s.logger, func(id string) {
		s.hub.Remove(id)
		cancel()
		s.logger.Info("viewer disconnected", zap.String("viewer_id", id))
	})
	s.hub.Add(connection)

	if initial, err := json.Marshal(s.source.Latest().View()); err == nil {
		connection.Send(initial)
	}

	go connection.Start(ctx)
	s.logger.Info("viewer connected", zap.String("viewer_id", connection.ID()))
}

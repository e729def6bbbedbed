// Package websocket upgrades HTTP requests and hands the connections to the
// hub. Room membership is negotiated over the socket itself (joinRoom event),
// so the upgrade carries no room or user context.
package websocket

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Sanket2004/text-sharing-app/internal/hub"
	"github.com/Sanket2004/text-sharing-app/internal/service"
)

// Handler upgrades connections and spawns a client per socket.
type Handler struct {
	upgrader websocket.Upgrader
	hub      *hub.Hub
	presence *service.PresenceService
	pipeline *service.MessageService
}

// NewHandler creates a websocket Handler.
func NewHandler(h *hub.Hub, presence *service.PresenceService, pipeline *service.MessageService) *Handler {
	if h == nil {
		panic("Hub cannot be nil for websocket Handler")
	}
	if presence == nil {
		panic("PresenceService cannot be nil for websocket Handler")
	}
	if pipeline == nil {
		panic("MessageService cannot be nil for websocket Handler")
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			allowed := os.Getenv("CORS_ALLOWED_ORIGIN")
			if allowed == "" {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || origin == allowed
		},
	}

	return &Handler{
		upgrader: upgrader,
		hub:      h,
		presence: presence,
		pipeline: pipeline,
	}
}

// HandleConnection upgrades the request and starts the client pumps.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		logrus.WithError(err).Warn("Failed to upgrade connection")
		return
	}

	client := hub.NewClient(h.hub, conn, h.presence, h.pipeline)
	logrus.WithFields(logrus.Fields{
		"conn_id":   client.ID(),
		"remote_ip": c.ClientIP(),
	}).Info("Connection upgraded to WebSocket")
	client.Run()
}

package adsb

import (
	"time"

	"github.com/yegors/adsb-tracker/internal/websocket"
	"github.com/yegors/adsb-tracker/pkg/logger"
)

// WebSocketHandler answers client messages and greets new clients
type WebSocketHandler struct {
	service *Service
	logger  *logger.Logger
	now     func() time.Time
}

// NewWebSocketHandler creates a new WebSocket message handler
func NewWebSocketHandler(service *Service, logger *logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		service: service,
		logger:  logger.Named("adsb-ws-handler"),
		now:     time.Now,
	}
}

// HandleConnect sends the current stats to a newly connected client
func (h *WebSocketHandler) HandleConnect(client *websocket.Client) {
	h.send(client, &websocket.Message{
		Type: websocket.MessageTypeInitialData,
		Data: map[string]any{
			"stats":     h.service.Stats(),
			"connected": true,
		},
	})
}

// HandleMessage handles incoming WebSocket messages
func (h *WebSocketHandler) HandleMessage(client *websocket.Client, messageType string, data map[string]any) error {
	switch messageType {
	case websocket.MessageTypePing:
		h.send(client, &websocket.Message{
			Type: websocket.MessageTypePong,
			Data: map[string]any{
				"timestamp": float64(h.now().UnixNano()) / 1e9,
			},
		})
	default:
		h.logger.Debug("Unhandled message type", logger.String("type", messageType))
	}
	return nil
}

func (h *WebSocketHandler) send(client *websocket.Client, message *websocket.Message) {
	if !client.SendMessage(message) {
		h.logger.Debug("Dropped message for slow or closed client",
			logger.String("client_id", client.ID()),
			logger.String("type", message.Type))
	}
}

package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/yegors/adsb-tracker/internal/metrics"
	"github.com/yegors/adsb-tracker/pkg/logger"
)

// Message types exchanged with clients
const (
	MessageTypeInitialData = "initial_data" // Server sends current stats on connect
	MessageTypeUpdate      = "update"       // Server sends one processed cycle
	MessageTypePing        = "ping"         // Client heartbeat
	MessageTypePong        = "pong"         // Server heartbeat reply
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// Message represents a WebSocket message
type Message struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// MessageHandler defines the interface for handling incoming WebSocket messages
type MessageHandler interface {
	HandleMessage(client *Client, messageType string, data map[string]any) error
}

// ConnectHandler is notified when a client has been registered
type ConnectHandler interface {
	HandleConnect(client *Client)
}

// Client is one connected browser
type Client struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte // Encoded frames
	server    *Server
	mu        sync.Mutex
	closed    bool
	closeChan chan struct{}
}

// Server is the hub fanning cycle updates out to every client
type Server struct {
	clients        map[*Client]struct{}
	register       chan *Client
	unregister     chan *Client
	broadcast      chan *Message
	done           chan struct{}
	upgrader       websocket.Upgrader
	logger         *logger.Logger
	mu             sync.RWMutex
	messageHandler MessageHandler
	connectHandler ConnectHandler
}

// NewServer creates a new WebSocket server
func NewServer(log *logger.Logger) *Server {
	return &Server{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 16),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Map page may be served from another origin
			},
		},
		logger: log.Named("web-socket"),
	}
}

// SetMessageHandler sets the message handler for incoming WebSocket messages
func (s *Server) SetMessageHandler(handler MessageHandler) {
	s.messageHandler = handler
}

// SetConnectHandler sets the handler called for each new client
func (s *Server) SetConnectHandler(handler ConnectHandler) {
	s.connectHandler = handler
}

// Run starts the hub and blocks until ctx is cancelled
func (s *Server) Run(ctx context.Context) {
	s.logger.Info("Starting WebSocket server")
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			s.logger.Info("WebSocket server stopped")
			return

		case client := <-s.register:
			s.mu.Lock()
			s.clients[client] = struct{}{}
			count := len(s.clients)
			s.mu.Unlock()
			metrics.WebSocketConnections.Set(float64(count))
			s.logger.Info("Client connected",
				logger.String("client_id", client.id),
				logger.Int("client_count", count))

			if s.connectHandler != nil {
				s.connectHandler.HandleConnect(client)
			}

		case client := <-s.unregister:
			s.drop(client)
			s.logger.Info("Client disconnected",
				logger.String("client_id", client.id),
				logger.Int("client_count", s.ClientCount()))

		case message := <-s.broadcast:
			s.fanOut(message)
		}
	}
}

// fanOut encodes message once and queues it on every client. Clients whose
// buffer is full are disconnected.
func (s *Server) fanOut(message *Message) {
	frame, err := json.Marshal(message)
	if err != nil {
		s.logger.Error("Failed to encode broadcast", logger.String("message_type", message.Type), logger.Error(err))
		return
	}

	var slow []*Client
	s.mu.RLock()
	for client := range s.clients {
		if !client.enqueue(frame) {
			slow = append(slow, client)
		}
	}
	s.mu.RUnlock()
	metrics.WebSocketMessagesOut.WithLabelValues(message.Type).Inc()

	for _, client := range slow {
		s.logger.Warn("Dropping slow client", logger.String("client_id", client.id))
		s.drop(client)
	}
}

// drop removes a client from the hub and closes its send queue
func (s *Server) drop(client *Client) {
	s.mu.Lock()
	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
		client.closeSend()
	}
	count := len(s.clients)
	s.mu.Unlock()
	metrics.WebSocketConnections.Set(float64(count))
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for client := range s.clients {
		delete(s.clients, client)
		client.closeSend()
	}
	metrics.WebSocketConnections.Set(0)
}

// HandleConnection upgrades the request and registers the client
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection",
			logger.Error(err),
			logger.String("remote_addr", r.RemoteAddr))
		return
	}

	client := &Client{
		id:        uuid.NewString(),
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		server:    s,
		closeChan: make(chan struct{}),
	}

	select {
	case s.register <- client:
	case <-s.done:
		conn.Close()
		return
	}

	go client.readPump()
	go client.writePump()
}

// Broadcast queues a message for all connected clients. The message is
// dropped if the hub is not keeping up or has stopped.
func (s *Server) Broadcast(message *Message) {
	select {
	case s.broadcast <- message:
	case <-s.done:
	default:
		s.logger.Warn("Broadcast queue full, dropping message", logger.String("message_type", message.Type))
	}
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.server.unregister <- c:
		case <-c.server.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	log := c.server.logger.With(logger.String("client_id", c.id))
	for {
		var message Message
		if err := c.conn.ReadJSON(&message); err != nil {
			var (
				syntaxErr *json.SyntaxError
				typeErr   *json.UnmarshalTypeError
			)
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				log.Warn("Ignoring malformed message", logger.Error(err))
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Error("WebSocket read error", logger.Error(err))
			}
			return
		}

		if c.server.messageHandler == nil {
			continue
		}
		if err := c.server.messageHandler.HandleMessage(c, message.Type, message.Data); err != nil {
			log.Error("Failed to handle WebSocket message",
				logger.String("type", message.Type),
				logger.Error(err))
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.closeChan:
			return
		}
	}
}

// ID returns the client's connection identifier
func (c *Client) ID() string {
	return c.id
}

// Close closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.closeChan:
		return
	default:
	}

	close(c.closeChan)
	c.conn.Close()
}

// SendMessage queues a message for this client only. It returns false when
// the client is gone or its buffer is full.
func (c *Client) SendMessage(message *Message) bool {
	frame, err := json.Marshal(message)
	if err != nil {
		c.server.logger.Error("Failed to encode message", logger.String("message_type", message.Type), logger.Error(err))
		return false
	}
	return c.enqueue(frame)
}

func (c *Client) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

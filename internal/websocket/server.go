package websocket

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/tutor360/tutorvoice/pkg/logger"
)

// Message types for conversation streaming
const (
	MessageTypeSessionStarted = "session_started"
	MessageTypeSessionEnded   = "session_ended"
	MessageTypeTurn           = "turn"           // A finalized transcript turn
	MessageTypeCorrection     = "correction"     // Grammar feedback for a user turn
	MessageTypeSubscribe      = "subscribe"      // Client selects a session to observe
	MessageTypeSessionError   = "session_error"  // Session ended with an error
)

// Message represents a WebSocket message
type Message struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Client represents one connected transcript observer
type Client struct {
	conn      *websocket.Conn
	send      chan *Message
	server    *Server
	mu        sync.Mutex
	closed    bool
	closeChan chan struct{}
	sessionID string // session filter; empty observes all sessions
}

// Server fans conversation events out to connected observers
type Server struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	upgrader   websocket.Upgrader
	logger     *logger.Logger
	mu         sync.RWMutex
}

// NewServer creates a new WebSocket server
func NewServer(log *logger.Logger) *Server {
	return &Server{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
		logger: log.Named("web-socket"),
	}
}

// Run starts the WebSocket server loop
func (s *Server) Run() {
	s.logger.Info("Starting WebSocket server")

	for {
		select {
		case client := <-s.register:
			s.mu.Lock()
			s.clients[client] = true
			clientCount := len(s.clients)
			s.mu.Unlock()
			s.logger.Debug("Client registered", logger.Int("client_count", clientCount))

		case client := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				client.mu.Lock()
				client.closed = true
				client.mu.Unlock()
				close(client.send)
			}
			clientCount := len(s.clients)
			s.mu.Unlock()
			s.logger.Debug("Client unregistered", logger.Int("client_count", clientCount))

		case message := <-s.broadcast:
			s.mu.RLock()
			var stale []*Client
			for client := range s.clients {
				if !client.wantsMessage(message) {
					continue
				}
				select {
				case client.send <- message:
				default:
					// Channel is full, mark for removal
					stale = append(stale, client)
				}
			}
			s.mu.RUnlock()

			if len(stale) > 0 {
				s.mu.Lock()
				for _, client := range stale {
					if _, ok := s.clients[client]; ok {
						delete(s.clients, client)
						client.mu.Lock()
						if !client.closed {
							client.closed = true
							close(client.send)
						}
						client.mu.Unlock()
					}
				}
				s.mu.Unlock()
			}
		}
	}
}

// HandleConnection upgrades an HTTP request into an observer connection
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection",
			Error(err),
			String("remote_addr", r.RemoteAddr))
		return
	}

	s.logger.Debug("Upgraded connection to WebSocket",
		String("remote_addr", r.RemoteAddr))

	client := &Client{
		conn:      conn,
		send:      make(chan *Message, 256),
		server:    s,
		closeChan: make(chan struct{}),
		sessionID: r.URL.Query().Get("session_id"),
	}

	s.register <- client

	go client.readPump()
	go client.writePump()
}

// Broadcast sends a message to all observers of its session
func (s *Server) Broadcast(message *Message) {
	s.broadcast <- message
}

// BroadcastTurnEvent is a convenience wrapper for session-scoped events.
func (s *Server) BroadcastTurnEvent(msgType, sessionID string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["session_id"] = sessionID
	s.Broadcast(&Message{Type: msgType, Data: data})
}

// wantsMessage reports whether the message passes the client's session
// filter. Clients without a filter observe everything.
func (c *Client) wantsMessage(message *Message) bool {
	c.mu.Lock()
	filter := c.sessionID
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return false
	}
	if filter == "" {
		return true
	}
	sessionID, _ := message.Data["session_id"].(string)
	return sessionID == "" || sessionID == filter
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.server.unregister <- c
		c.conn.Close()
	}()

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.server.logger.Error("WebSocket read error", Error(err))
			}
			break
		}

		var message Message
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			c.server.logger.Error("Failed to parse WebSocket message", Error(err))
			continue
		}

		if message.Type == MessageTypeSubscribe {
			sessionID, _ := message.Data["session_id"].(string)
			c.mu.Lock()
			c.sessionID = sessionID
			c.mu.Unlock()
			c.server.logger.Debug("Client subscription updated",
				String("session_id", sessionID))
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	defer func() {
		c.mu.Lock()
		if !c.closed {
			c.closed = true
		}
		c.mu.Unlock()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(message)
			if err != nil {
				c.server.logger.Error("Failed to marshal message", Error(err))
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-c.closeChan:
			return
		}
	}
}

// Close closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	close(c.closeChan)
	c.conn.Close()
}

// SendMessage sends a message to this specific client
func (c *Client) SendMessage(message *Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- message:
		return true
	default:
		// Channel is full, drop message
		return false
	}
}

// Import logger functions
var (
	String = logger.String
	Error  = logger.Error
)

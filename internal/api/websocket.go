package api

import (
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/solar-gateway/internal/infrastructure/config"
	"github.com/nerrad567/solar-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/solar-gateway/internal/telemetry"
)

// WebSocket message types.
const (
	WSTypePing  = "ping"
	WSTypePong  = "pong"
	WSTypeError = "error"

	// wsReplyBufferSize bounds replies (pongs, errors) waiting to be written.
	wsReplyBufferSize = 8
)

// WSMessage is a control message sent to or from a WebSocket client.
// Snapshots are written as bare snapshot objects, not wrapped.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Message   string `json:"message,omitempty"`
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// wsClient is one live connection. It owns a hub subscription; the hub
// closes the subscription channel if the client falls behind.
type wsClient struct {
	conn    *websocket.Conn
	sub     *telemetry.Subscriber
	hub     *telemetry.Hub
	replies chan []byte
	logger  *logging.Logger
}

// handleWebSocket upgrades the connection and streams snapshots. The
// current snapshot is sent immediately, then one per aggregator publish.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		conn:    conn,
		sub:     s.hub.Subscribe(),
		hub:     s.hub,
		replies: make(chan []byte, wsReplyBufferSize),
		logger:  s.logger,
	}
	s.logger.Debug("websocket client connected", "subscriber_id", client.sub.ID(), "remote", r.RemoteAddr)

	go client.writePump(s.wsCfg, s.cache.Get())
	go client.readPump(s.wsCfg)
}

// readPump reads client messages until the connection fails, then
// releases the subscription.
func (c *wsClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unsubscribe(c.sub)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			} else {
				c.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Any client message resets the read deadline.
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

// writePump is the only writer on the connection.
func (c *wsClient) writePump(cfg config.WebSocketConfig, initial telemetry.Snapshot) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	writeWait := time.Duration(cfg.PongTimeout) * time.Second

	if !c.writeSnapshot(initial, writeWait) {
		return
	}

	for {
		select {
		case snap, ok := <-c.sub.C():
			if !ok {
				reason := "server shutting down"
				code := websocket.CloseGoingAway
				if c.sub.Dropped() {
					reason = "client too slow"
					code = websocket.CloseTryAgainLater
				}
				//nolint:errcheck // Best-effort close message
				c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
				return
			}
			if !c.writeSnapshot(snap, writeWait) {
				return
			}
		case reply := <-c.replies:
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, reply); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) writeSnapshot(snap telemetry.Snapshot, writeWait time.Duration) bool {
	data, err := json.Marshal(snap)
	if err != nil {
		c.logger.Error("failed to marshal snapshot", "error", err)
		return false
	}
	//nolint:errcheck // Best-effort deadline; write error caught below
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data) == nil
}

// handleMessage processes an incoming WebSocket message.
func (c *wsClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply(WSMessage{Type: WSTypeError, Message: "invalid JSON message"})
		return
	}

	switch msg.Type {
	case WSTypePing:
		c.reply(WSMessage{Type: WSTypePong, ID: msg.ID})
	default:
		c.reply(WSMessage{Type: WSTypeError, ID: msg.ID, Message: "unknown message type: " + msg.Type})
	}
}

// reply queues a control message. It never blocks; replies beyond the
// buffer are dropped.
func (c *wsClient) reply(msg WSMessage) {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.replies <- data:
	default:
	}
}

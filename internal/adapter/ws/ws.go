// Package ws implements the send(channel_id, message) and
// fetch_history(channel_id, limit) half of the Adapter Control Interface
// over gorilla/websocket, grounded on the teacher's
// ui/transports/websocket/websocket.go: an Upgrader, a
// per-client send channel drained by a writePump, a readPump decoding
// JSON frames, ping/pong keep-alive. The teacher multiplexes transports
// behind a ui.ChatAgent; this adapter instead feeds decoded inbound
// frames straight to the gate via an injected callback, since CIRIS has
// no chat-session abstraction of its own.
package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	historyCap = 200
)

// InboundMessage is one decoded frame from a connected client.
type InboundMessage struct {
	ChannelID string
	SubjectID string
	Payload   string
	ArrivedAt time.Time
}

// frame is the wire shape exchanged with clients in both directions.
type frame struct {
	ChannelID string `json:"channel_id"`
	SubjectID string `json:"subject_id,omitempty"`
	Message   string `json:"message"`
}

// Adapter is a channel-multiplexed WebSocket transport: every connected
// client subscribes to exactly one channel_id (the path segment it
// connects under), and Send broadcasts to every client on that channel.
type Adapter struct {
	upgrader websocket.Upgrader
	logger   logging.Logger

	// OnInbound, when set, is called for every decoded client frame —
	// the wiring point into internal/gate.Accept.
	OnInbound func(InboundMessage)

	mu       sync.RWMutex
	clients  map[string]map[*client]bool // channel_id -> client set
	history  map[string][]string         // channel_id -> recent outbound messages, newest last
}

// New constructs an Adapter. allowedOrigins mirrors the teacher's CORS
// check; an empty list allows any origin (matching the teacher's
// config.CORS.Enabled == false fallback).
func New(logger logging.Logger, allowedOrigins []string) *Adapter {
	if logger == nil {
		logger = logging.NoOp()
	}
	a := &Adapter{
		logger:  logger.WithComponent("adapter/ws"),
		clients: make(map[string]map[*client]bool),
		history: make(map[string][]string),
	}
	a.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}
	return a
}

// client is one connected WebSocket session.
type client struct {
	conn      *websocket.Conn
	send      chan frame
	channelID string
}

// Handler upgrades the request and registers the connection under
// channelID, matching the teacher's one-handler-per-connection shape.
func (a *Adapter) Handler(channelID string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := a.upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, "websocket upgrade failed: "+err.Error(), http.StatusBadRequest)
			return
		}
		c := &client{conn: conn, send: make(chan frame, 64), channelID: channelID}

		a.mu.Lock()
		if a.clients[channelID] == nil {
			a.clients[channelID] = make(map[*client]bool)
		}
		a.clients[channelID][c] = true
		a.mu.Unlock()

		go a.writePump(c)
		go a.readPump(c)
	})
}

func (a *Adapter) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case f, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(f); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (a *Adapter) readPump(c *client) {
	defer func() {
		a.mu.Lock()
		delete(a.clients[c.channelID], c)
		a.mu.Unlock()
		close(c.send)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			return
		}
		if a.OnInbound != nil {
			a.OnInbound(InboundMessage{
				ChannelID: c.channelID,
				SubjectID: f.SubjectID,
				Payload:   f.Message,
				ArrivedAt: time.Now(),
			})
		}
	}
}

// Send implements bus.CommunicationBackend: it broadcasts message to
// every client currently connected on channelID and appends it to that
// channel's bounded history.
func (a *Adapter) Send(ctx context.Context, channelID, message string) error {
	a.mu.Lock()
	hist := append(a.history[channelID], message)
	if len(hist) > historyCap {
		hist = hist[len(hist)-historyCap:]
	}
	a.history[channelID] = hist
	clients := make([]*client, 0, len(a.clients[channelID]))
	for c := range a.clients[channelID] {
		clients = append(clients, c)
	}
	a.mu.Unlock()

	f := frame{ChannelID: channelID, Message: message}
	for _, c := range clients {
		select {
		case c.send <- f:
		default:
			a.logger.WarnContext(ctx, "dropping message to slow client", logging.Fields{"channel_id": channelID})
		}
	}
	return nil
}

// FetchHistory implements the ACI's fetch_history(channel_id, limit): the
// most recent messages sent on channelID, oldest first, bounded by
// limit.
func (a *Adapter) FetchHistory(ctx context.Context, channelID string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, cerr.New("ws.FetchHistory", cerr.KindValidation, "limit must be positive")
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	hist := a.history[channelID]
	if len(hist) > limit {
		hist = hist[len(hist)-limit:]
	}
	out := make([]string, len(hist))
	copy(out, hist)
	return out, nil
}

package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/afrix/afxledger/internal/domain"
	"github.com/afrix/afxledger/internal/service"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ──────────────────────────────────────────────────────────────────────────────
// Tunables
// ──────────────────────────────────────────────────────────────────────────────

const (
	writeWait   = 10 * time.Second
	pongTimeout = 60 * time.Second
	pingEvery   = pongTimeout * 9 / 10
	readLimit   = 1 << 10 // clients send nothing but control frames
	outboxSize  = 128     // per-client queue; frames beyond it are skipped
)

// TokenVerifier resolves a bearer token to its claims.
type TokenVerifier interface {
	ParseAccessToken(token string) (*service.AppClaims, error)
}

// ──────────────────────────────────────────────────────────────────────────────
// Client
// ──────────────────────────────────────────────────────────────────────────────

// Client represents one connected WebSocket endpoint.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID uuid.UUID // uuid.Nil = anonymous
}

// outbound is one queued message; a non-nil target restricts delivery to
// that user's connections.
type outbound struct {
	data   []byte
	target uuid.UUID
}

// ──────────────────────────────────────────────────────────────────────────────
// Hub
// ──────────────────────────────────────────────────────────────────────────────

// Hub maintains the set of active clients and routes messages to them.
// Run must be started before ServeWs is used.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool

	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	verifier TokenVerifier
	log      *zap.Logger
	upgrader websocket.Upgrader
}

// NewHub creates a Hub. verifier may be nil; every connection is then
// anonymous and receives only public events.
func NewHub(verifier TokenVerifier, allowedOrigins []string, log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, 512),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		verifier:   verifier,
		log:        log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowedOrigins) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				for _, o := range allowedOrigins {
					if o == "*" || o == origin {
						return true
					}
				}
				return false
			},
		},
	}
}

// Run processes registrations and deliveries until ctx is cancelled, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if msg.target != uuid.Nil && c.userID != msg.target {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					// Slow client; the write pump notices the stall on its own.
				}
			}
			h.mu.RUnlock()
		}
	}
}

// ConnectedCount returns the current number of connected clients.
func (h *Hub) ConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ──────────────────────────────────────────────────────────────────────────────
// ServeWs
// ──────────────────────────────────────────────────────────────────────────────

// ServeWs upgrades the request. A ?token= query parameter, when present, must
// be a valid access token; the connection then also receives the caller's
// private events.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	var userID uuid.UUID
	if token := r.URL.Query().Get("token"); token != "" && h.verifier != nil {
		claims, err := h.verifier.ParseAccessToken(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		userID, _ = claims.UserID()
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	c := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, outboxSize),
		userID: userID,
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// ──────────────────────────────────────────────────────────────────────────────
// Client pumps
// ──────────────────────────────────────────────────────────────────────────────

func (c *Client) writePump() {
	ticker := time.NewTicker(pingEvery)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only services pongs; the protocol is server-push.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("ws unexpected close", zap.Stringer("user_id", c.userID), zap.Error(err))
			}
			return
		}
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Delivery
// ──────────────────────────────────────────────────────────────────────────────

// Publish implements events.Publisher. Claim and commission events reach only
// their owner; offer and trade events reach everyone.
func (h *Hub) Publish(_ context.Context, ev domain.Event) error {
	var target uuid.UUID
	if private(ev) {
		if ev.UserID == uuid.Nil {
			return nil
		}
		target = ev.UserID
	}
	h.enqueue(EventMessage{Type: MsgTypeEvent, Event: ev}, target)
	return nil
}

// BroadcastPrice pushes a reference price update to every client.
func (h *Hub) BroadcastPrice(q service.PriceQuote) {
	h.enqueue(PriceMessage{
		Type:      MsgTypePrice,
		Price:     q.Price,
		Source:    q.Source,
		Timestamp: q.FetchedAt,
	}, uuid.Nil)
}

func (h *Hub) enqueue(v any, target uuid.UUID) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error("ws marshal failed", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- outbound{data: data, target: target}:
	default:
		h.log.Warn("ws broadcast channel full, message dropped")
	}
}

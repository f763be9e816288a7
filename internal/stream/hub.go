// ABOUTME: WebSocket feed of daily reports.
// ABOUTME: Pushes scheduled snapshots to connected clients and answers on-demand report requests.

package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/fieldops/internal/report"
	"github.com/2389/fieldops/internal/tzclock"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

// Message types.
const (
	TypeHello     = "hello"
	TypeReport    = "report"
	TypeGetReport = "get_report"
	TypePing      = "ping"
	TypePong      = "pong"
	TypeResult    = "result"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     localOrigin,
}

// localOrigin accepts clients without an Origin header and browsers on a
// loopback host.
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// Resolver is what the feed needs to answer report requests.
type Resolver interface {
	GetEventsForDay(ctx context.Context, date string) (*report.Snapshot, error)
	GetEventsForDayWithMode(ctx context.Context, date string, mode report.Mode) (*report.Snapshot, error)
	Location() *time.Location
}

// Message is a frame in either direction. Clients send get_report and ping;
// the server sends hello, report, result and pong.
type Message struct {
	ID      int              `json:"id,omitempty"`
	Type    string           `json:"type"`
	Date    string           `json:"date,omitempty"`
	Mode    string           `json:"mode,omitempty"`
	Success bool             `json:"success,omitempty"`
	Report  *report.Document `json:"report,omitempty"`
	Error   *Error           `json:"error,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Hub struct {
	resolver Resolver

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn      *websocket.Conn
	send      chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeConn sync.Once
}

func NewHub(resolver Resolver) *Hub {
	return &Hub{resolver: resolver, clients: make(map[*client]struct{})}
}

// ServeHTTP upgrades the request and greets the client with today's local
// date.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &client{conn: conn, send: make(chan []byte, sendBuffer), ctx: ctx, cancel: cancel}

	c.sendMessage(Message{
		Type: TypeHello,
		Date: tzclock.LocalDateOf(time.Now(), h.resolver.Location()).String(),
	})

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go c.writePump()
	go h.readPump(c)
}

// Publish pushes a snapshot to every connected client.
func (h *Hub) Publish(snap *report.Snapshot) {
	doc := snap.Document()
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.sendMessage(Message{Type: TypeReport, Date: doc.Date, Mode: string(doc.Mode), Report: &doc})
	}
}

// Clients is the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.cancel()
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.cancel()
		close(c.send)
		c.closeConn.Do(func() { c.conn.Close() })
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendMessage(Message{Type: TypeResult, Error: &Error{Code: "invalid_format", Message: "Failed to parse message"}})
			continue
		}
		h.handle(c, msg)
	}
}

func (h *Hub) handle(c *client, msg Message) {
	switch msg.Type {
	case TypeGetReport:
		h.handleGetReport(c, msg)
	case TypePing:
		c.sendMessage(Message{ID: msg.ID, Type: TypePong})
	default:
		c.sendMessage(Message{ID: msg.ID, Type: TypeResult, Error: &Error{
			Code:    "unknown_command",
			Message: "Unknown command: " + msg.Type,
		}})
	}
}

func (h *Hub) handleGetReport(c *client, msg Message) {
	date := msg.Date
	if date == "" {
		date = tzclock.LocalDateOf(time.Now(), h.resolver.Location()).String()
	}

	ctx, cancel := context.WithTimeout(c.ctx, writeWait)
	defer cancel()

	var snap *report.Snapshot
	var err error
	if msg.Mode != "" {
		mode, perr := report.ParseMode(msg.Mode)
		if perr != nil {
			c.sendMessage(Message{ID: msg.ID, Type: TypeResult, Error: &Error{Code: "invalid_report_mode", Message: perr.Error()}})
			return
		}
		snap, err = h.resolver.GetEventsForDayWithMode(ctx, date, mode)
	} else {
		snap, err = h.resolver.GetEventsForDay(ctx, date)
	}
	if err != nil {
		code := "internal_error"
		if errors.Is(err, report.ErrInvalidReportDate) {
			code = "invalid_report_date"
		}
		c.sendMessage(Message{ID: msg.ID, Type: TypeResult, Error: &Error{Code: code, Message: err.Error()}})
		return
	}

	doc := snap.Document()
	c.sendMessage(Message{ID: msg.ID, Type: TypeResult, Success: true, Date: doc.Date, Mode: string(doc.Mode), Report: &doc})
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConn.Do(func() { c.conn.Close() })
	}()

	for {
		select {
		case data, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("Failed to write message: %v", err)
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		}
	}
}

func (c *client) sendMessage(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal WebSocket message: %v", err)
		return
	}

	select {
	case c.send <- data:
	case <-c.ctx.Done():
	default:
		log.Printf("Client send buffer full, dropping %s message", msg.Type)
	}
}

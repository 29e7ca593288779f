package transport

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"cardtable/server/game"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 120 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type conn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
}

// Hub tracks live websocket connections and implements table.Broadcaster.
type Hub struct {
	log *zap.Logger

	mu    sync.RWMutex
	conns map[string]*conn
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{log: log, conns: make(map[string]*conn)}
}

func (h *Hub) register(ws *websocket.Conn) *conn {
	c := &conn{id: uuid.NewString(), ws: ws, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
	return c
}

func (h *Hub) unregister(c *conn) {
	h.mu.Lock()
	if _, ok := h.conns[c.id]; ok {
		delete(h.conns, c.id)
		close(c.send)
	}
	h.mu.Unlock()
}

// Deliver queues ev for connID without blocking. A connection whose buffer
// is full misses the message; the next snapshot brings it back in sync.
func (h *Hub) Deliver(connID string, ev game.Event) {
	b, err := game.MarshalEvent(ev)
	if err != nil {
		h.log.Error("marshal event", zap.String("kind", string(ev.Kind)), zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[connID]
	if !ok {
		return
	}
	select {
	case c.send <- b:
	default:
		h.log.Warn("send buffer full, dropping event", zap.String("conn", connID), zap.String("kind", string(ev.Kind)))
	}
}

// Connections reports how many sockets are open.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) writePump(c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// decode reads one client frame, e.g. {"type":"MakeMove","action":"raise","amount":20}.
func decode(data []byte) (game.Command, error) {
	var cmd game.Command
	err := json.Unmarshal(data, &cmd)
	return cmd, err
}

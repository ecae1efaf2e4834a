package witness

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub tails a Log and broadcasts every appended Record to subscribed
// websocket observers — the batch log is in scope (spec §6.1); this is a
// read-only tailer for the proof generator and other downstream
// consumers, not the RPC gateway itself (out of scope per spec §1).
type Hub struct {
	log *zap.Logger

	mu      sync.RWMutex
	clients map[*streamClient]bool
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{log: log, clients: make(map[*streamClient]bool)}
}

// Broadcast pushes one record to every connected client; call this after
// every Log.Append so tailers stay in lockstep with the batch log.
func (h *Hub) Broadcast(r *Record) {
	b, err := r.MarshalJSON()
	if err != nil {
		h.log.Error("marshal witness record", zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.log.Warn("dropping slow witness stream client", zap.String("id", c.id))
		}
	}
}

func (h *Hub) register(c *streamClient) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
}

func (h *Hub) unregister(c *streamClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
	id   string
}

// ServeHTTP upgrades a connection and streams every subsequent witness
// record to it until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("witness stream upgrade", zap.Error(err))
		return
	}
	c := &streamClient{conn: conn, send: make(chan []byte, 256), id: r.RemoteAddr}
	h.register(c)
	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) writePump(c *streamClient) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(c *streamClient) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

package fleet

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const writeWait = 5 * time.Second

// Hub streams fleet events to websocket subscribers.
type Hub struct {
	mu         sync.RWMutex
	conns      map[*websocket.Conn]struct{}
	sendMu     sync.Mutex // gorilla conns allow one concurrent writer
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	upgrader   websocket.Upgrader
	log        logrus.FieldLogger
}

func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		conns:      make(map[*websocket.Conn]struct{}),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log.WithField("component", "hub"),
	}
}

// Run serves register/unregister requests until ctx is cancelled, then closes
// every subscriber.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.conns {
				conn.Close()
			}
			h.conns = make(map[*websocket.Conn]struct{})
			h.mu.Unlock()
			return
		case conn := <-h.register:
			h.mu.Lock()
			h.conns[conn] = struct{}{}
			n := len(h.conns)
			h.mu.Unlock()
			h.log.WithField("subscribers", n).Debug("ws subscriber added")
		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.conns[conn]; ok {
				delete(h.conns, conn)
				conn.Close()
			}
			h.mu.Unlock()
		}
	}
}

// ServeFleet upgrades the request and subscribes it to fleet events.
func (h *Hub) ServeFleet(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}

	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				h.drop(conn)
				return
			}
		}
	}()
}

// Publish writes evt to every subscriber; failed subscribers are dropped.
func (h *Hub) Publish(evt Event) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	h.sendMu.Lock()
	defer h.sendMu.Unlock()
	for _, conn := range conns {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(evt); err != nil {
			h.drop(conn)
		}
	}
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) drop(conn *websocket.Conn) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

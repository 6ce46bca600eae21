package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const MessageReload = "reload"

const writeTimeout = 5 * time.Second

type Message struct {
	Type    string `json:"type"`
	BuildID string `json:"buildId,omitempty"`
}

// Hub keeps track of livereload websocket clients.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			// the dev server is reached from whatever host serves the pages
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
		conns:  make(map[*websocket.Conn]struct{}),
	}
}

func (me *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := me.upgrader.Upgrade(w, r, nil)
	if err != nil {
		me.logger.Debug("upgrade failed", "error", err)
		return
	}

	me.mu.Lock()
	me.conns[conn] = struct{}{}
	me.mu.Unlock()

	me.logger.Debug("client connected", "remote", r.RemoteAddr)
	defer me.remove(conn)

	// drain until the client goes away
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (me *Hub) remove(conn *websocket.Conn) {
	me.mu.Lock()
	defer me.mu.Unlock()

	if _, ok := me.conns[conn]; !ok {
		return
	}

	delete(me.conns, conn)
	conn.Close()
}

// Len returns the number of connected clients.
func (me *Hub) Len() int {
	me.mu.Lock()
	defer me.mu.Unlock()

	return len(me.conns)
}

func (me *Hub) Broadcast(msg Message) {
	me.mu.Lock()
	defer me.mu.Unlock()

	for conn := range me.conns {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			me.logger.Debug("dropping client", "error", err)
			delete(me.conns, conn)
			conn.Close()
		}
	}
}

// Close disconnects every client.
func (me *Hub) Close() {
	me.mu.Lock()
	defer me.mu.Unlock()

	for conn := range me.conns {
		conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
		conn.Close()
		delete(me.conns, conn)
	}
}

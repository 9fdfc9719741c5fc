package push

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"shipboard/pkg/logger"
)

const (
	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

var (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// readLimit bounds inbound frames; clients only send control traffic.
	readLimit int64 = 512
)

// Configure overrides the socket tunables from config. Zero values keep the
// defaults. Call before serving connections.
func Configure(writeTimeoutMs, readLimitBytes int) {
	if writeTimeoutMs > 0 {
		writeTimeout = time.Duration(writeTimeoutMs) * time.Millisecond
	}
	if readLimitBytes > 0 {
		readLimit = int64(readLimitBytes)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Allow all origins - callers should apply CORS at the reverse-proxy level.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsTransport adapts a gorilla websocket connection to the registry's
// Transport. A mutex serializes writes; gorilla connections allow only one
// concurrent writer.
type wsTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (t *wsTransport) WriteText(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) writePing() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return t.conn.WriteMessage(websocket.PingMessage, nil)
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	t.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
	t.mu.Unlock()
	return t.conn.Close()
}

// ServeNotification upgrades the request to a websocket, registers it as a
// notification channel for the account and blocks until the connection
// closes. The registry entry is removed on any exit path.
func ServeNotification(reg *Registry, accountID string, f Format, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}
	t := &wsTransport{conn: conn}
	id := reg.OpenNotification(accountID, t, f)
	serve(reg, id, t)
}

// ServeConversation upgrades the request to a websocket, registers it as a
// conversation channel and blocks until the connection closes.
func ServeConversation(reg *Registry, accountID, conversationID string, f Format, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	t := &wsTransport{conn: conn}
	id := reg.OpenConversation(accountID, conversationID, t, f)
	serve(reg, id, t)
}

// serve runs the read loop (detecting disconnects and answering pings) and
// a ping ticker, then unregisters the connection. Delivery happens through
// the registry's fanout, not here.
func serve(reg *Registry, id uint64, t *wsTransport) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := t.writePing(); err != nil {
					return
				}
			}
		}
	}()

	t.conn.SetReadLimit(readLimit)
	t.conn.SetReadDeadline(time.Now().Add(pongWait))
	t.conn.SetPongHandler(func(string) error {
		t.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := t.conn.ReadMessage(); err != nil {
			break
		}
	}
	close(done)
	logger.Debug("push_connection_closed", "conn", id)
	reg.Close(id)
}

package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/weldcoach/internal/monitoring"
	"github.com/banshee-data/weldcoach/internal/trainer"
)

const (
	liveSendBuffer = 64
	liveWriteWait  = 10 * time.Second
	livePongWait   = 60 * time.Second
	livePingPeriod = livePongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// LiveFeed fans runner updates out to websocket clients. Slow clients
// miss frames rather than stall the tick loop.
type LiveFeed struct {
	mu      sync.Mutex
	clients map[*liveClient]struct{}
	last    *trainer.Frame
	closed  bool
}

type liveClient struct {
	conn *websocket.Conn
	send chan trainer.Frame
}

func NewLiveFeed() *LiveFeed {
	return &LiveFeed{clients: make(map[*liveClient]struct{})}
}

// Publish sends u to every connected client. It never blocks.
func (f *LiveFeed) Publish(u trainer.Update) {
	msg := u.Frame()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = &msg
	for c := range f.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
}

// Clients returns the number of connected clients.
func (f *LiveFeed) Clients() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// Close disconnects every client and refuses new ones.
func (f *LiveFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for c := range f.clients {
		close(c.send)
		delete(f.clients, c)
	}
}

func (f *LiveFeed) add(c *liveClient) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.clients[c] = struct{}{}
	if f.last != nil {
		c.send <- *f.last
	}
	return true
}

func (f *LiveFeed) remove(c *liveClient) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.clients[c]; ok {
		close(c.send)
		delete(f.clients, c)
	}
}

// ServeHTTP upgrades the request and streams updates until either side
// closes. A new client first receives the most recent update.
func (f *LiveFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("live: websocket upgrade failed: %v", err)
		return
	}
	c := &liveClient{conn: conn, send: make(chan trainer.Frame, liveSendBuffer)}
	if !f.add(c) {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "session over"))
		conn.Close()
		return
	}
	monitoring.Logf("live: client %s connected", r.RemoteAddr)

	go c.writePump()
	c.readPump()
	f.remove(c)
	monitoring.Logf("live: client %s disconnected", r.RemoteAddr)
}

// readPump discards client messages and returns when the connection
// fails or the client goes silent past the pong deadline.
func (c *liveClient) readPump() {
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(livePongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(livePongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				monitoring.Logf("live: websocket error: %v", err)
			}
			return
		}
	}
}

func (c *liveClient) writePump() {
	ticker := time.NewTicker(livePingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

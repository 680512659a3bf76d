package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AaronLay10/SceneReel/internal/events"
)

const (
	// Number of recent events replayed on connection
	recentEventsCount = 50

	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second
)

// The shell connects from a local webview whose origin varies by platform.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// eventFilter keeps events whose name starts with one of the prefixes
// given in ?prefix=a.,b. An empty filter keeps everything.
type eventFilter []string

func parseEventFilter(r *http.Request) eventFilter {
	var f eventFilter
	for _, p := range strings.Split(r.URL.Query().Get("prefix"), ",") {
		if p = strings.TrimSpace(p); p != "" {
			f = append(f, p)
		}
	}
	return f
}

func (f eventFilter) match(name string) bool {
	if len(f) == 0 {
		return true
	}
	for _, p := range f {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func writeEvent(conn *websocket.Conn, e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return nil
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// wsEventsHandler streams session events: the recent backlog first,
// then live events until the peer goes away.
func wsEventsHandler(w http.ResponseWriter, r *http.Request) {
	filter := parseEventFilter(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[api] ws upgrade failed: %v", err)
		return
	}

	sub := events.Subscribe()
	closeAll := func() {
		events.Unsubscribe(sub)
		conn.Close()
	}

	for _, e := range events.RecentEvents(recentEventsCount) {
		if !filter.match(e.Name) {
			continue
		}
		if err := writeEvent(conn, e); err != nil {
			log.Printf("[api] ws write recent event failed: %v", err)
			closeAll()
			return
		}
	}

	done := make(chan struct{})

	// Reader: handles pongs and detects close.
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			closeAll()
			return

		case e, ok := <-sub:
			if !ok {
				conn.Close()
				return
			}
			if !filter.match(e.Name) {
				continue
			}
			if err := writeEvent(conn, e); err != nil {
				log.Printf("[api] ws write event failed: %v", err)
				closeAll()
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				closeAll()
				return
			}
		}
	}
}

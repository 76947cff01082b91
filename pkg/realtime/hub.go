// Package realtime streams order change events to websocket subscribers.
package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"bombily/pkg/logger"
	"bombily/pkg/metrics"
	"bombily/pkg/models"
)

const (
	sendBuffer = 64
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Filter selects the events a subscriber gets. Empty fields match anything;
// set fields must all match. Unassigned narrows to pending orders nobody has
// taken yet.
type Filter struct {
	CityID     string
	UserID     string
	DriverID   string
	Unassigned bool
}

func (f Filter) Match(ev models.OrderEvent) bool {
	return f.matchAny(ev.New) || f.matchAny(ev.Old)
}

func (f Filter) matchAny(o *models.Order) bool {
	if o == nil {
		return false
	}
	if f.CityID != "" && !o.InCity(f.CityID) {
		return false
	}
	if f.UserID != "" && o.UserID != f.UserID {
		return false
	}
	if f.DriverID != "" && !o.HasDriver(f.DriverID) {
		return false
	}
	if f.Unassigned && (o.Status != models.StatusPending || o.DriverID != nil) {
		return false
	}
	return true
}

// Scope is what one subscriber may see: an event is delivered when any of
// its filters matches. An empty scope sees nothing.
type Scope []Filter

func (s Scope) Match(ev models.OrderEvent) bool {
	for _, f := range s {
		if f.Match(ev) {
			return true
		}
	}
	return false
}

type subscriber struct {
	scope Scope
	send  chan []byte
}

// Hub fans events out to subscribers. A subscriber whose buffer is full is
// dropped rather than allowed to slow the others down.
type Hub struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
	log  logger.ILogger
}

func NewHub(log logger.ILogger) *Hub {
	return &Hub{subs: make(map[*subscriber]struct{}), log: log}
}

func (h *Hub) Publish(ev models.OrderEvent) {
	var payload []byte

	h.mu.RLock()
	var slow []*subscriber
	for s := range h.subs {
		if !s.scope.Match(ev) {
			continue
		}
		if payload == nil {
			var err error
			if payload, err = json.Marshal(ev); err != nil {
				h.mu.RUnlock()
				h.log.Error("failed to encode order event", logger.Error(err))
				return
			}
		}
		select {
		case s.send <- payload:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		h.log.Warning("dropping slow realtime subscriber")
		h.remove(s)
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) add(scope Scope) *subscriber {
	s := &subscriber{scope: scope, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	metrics.RealtimeSubscribers.Inc()
	return s
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; !ok {
		return
	}
	delete(h.subs, s)
	close(s.send)
	metrics.RealtimeSubscribers.Dec()
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		delete(h.subs, s)
		close(s.send)
		metrics.RealtimeSubscribers.Dec()
	}
}

// ServeWS upgrades the request and streams events in scope until the client
// goes away. Incoming messages are ignored. Callers authorize the scope.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, scope Scope) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warning("websocket upgrade failed", logger.Error(err))
		return
	}

	s := h.add(scope)
	go h.writePump(conn, s)
	h.readPump(conn, s)
}

func (h *Hub) readPump(conn *websocket.Conn, s *subscriber) {
	defer func() {
		h.remove(s)
		conn.Close()
	}()

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, s *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

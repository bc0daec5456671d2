package handler

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/bookstore/internal/model"
)

// EventsPath streams catalog changes over a websocket.
const EventsPath = BooksPath + "/events"

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 16
)

type subscriber struct {
	conn *websocket.Conn
	send chan model.CatalogEvent
	done chan struct{}
	once sync.Once
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

// EventHub fans catalog events out to websocket subscribers. It implements
// catalog.Publisher. A subscriber whose buffer is full is disconnected.
type EventHub struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	closed      bool
	pumps       sync.WaitGroup
}

// NewEventHub creates an EventHub accepting browsers from allowedOrigins.
// "*" accepts any origin; requests without an Origin header are always accepted.
func NewEventHub(logger *zap.Logger, allowedOrigins []string) *EventHub {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[strings.TrimRight(o, "/")] = true
	}

	return &EventHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origins["*"] || origins[origin]
			},
		},
		logger:      logger,
		subscribers: make(map[*subscriber]struct{}),
	}
}

// RegisterRoutes registers the events route. It must be registered before
// the /{isbn} routes.
func (h *EventHub) RegisterRoutes(router *mux.Router) {
	router.HandleFunc(EventsPath, h.Subscribe).Methods(http.MethodGet)
}

// Subscribe upgrades the request and streams events until either side closes.
func (h *EventHub) Subscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	sub := &subscriber{
		conn: conn,
		send: make(chan model.CatalogEvent, sendBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.subscribers[sub] = struct{}{}
	h.pumps.Add(1)
	h.mu.Unlock()

	h.logger.Info("event subscriber connected", zap.String("remote_addr", conn.RemoteAddr().String()))

	go h.writePump(sub)
	go h.readPump(sub)
}

// Publish queues ev for every subscriber without blocking.
func (h *EventHub) Publish(ev model.CatalogEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subscribers {
		select {
		case sub.send <- ev:
		default:
			h.logger.Warn("dropping slow event subscriber")
			h.removeLocked(sub)
		}
	}
}

// SubscriberCount returns the number of connected subscribers.
func (h *EventHub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// CloseAllConnections disconnects every subscriber and refuses new ones.
// It returns once every connection is closed.
func (h *EventHub) CloseAllConnections() {
	h.mu.Lock()
	h.closed = true
	for sub := range h.subscribers {
		h.removeLocked(sub)
	}
	h.mu.Unlock()

	h.pumps.Wait()
	h.logger.Info("all event subscribers disconnected")
}

func (h *EventHub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

func (h *EventHub) removeLocked(sub *subscriber) {
	if _, ok := h.subscribers[sub]; !ok {
		return
	}
	delete(h.subscribers, sub)
	sub.stop()
}

// readPump only watches for the peer going away; subscribers send nothing useful.
func (h *EventHub) readPump(sub *subscriber) {
	defer h.remove(sub)

	sub.conn.SetReadLimit(maxMessageSize)
	if err := sub.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("event subscriber read error", zap.Error(err))
			}
			return
		}
	}
}

// writePump owns all writes to the connection and closes it on exit.
func (h *EventHub) writePump(sub *subscriber) {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		h.remove(sub)
		_ = sub.conn.Close()
		h.pumps.Done()
		h.logger.Info("event subscriber disconnected", zap.String("remote_addr", sub.conn.RemoteAddr().String()))
	}()

	for {
		select {
		case <-sub.done:
			h.writeClose(sub.conn)
			return
		case ev := <-sub.send:
			if err := sub.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := sub.conn.WriteJSON(ev); err != nil {
				h.logger.Debug("failed to send event", zap.Error(err))
				return
			}
		case <-ping.C:
			if err := sub.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *EventHub) writeClose(conn *websocket.Conn) {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	if err := conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
		h.logger.Debug("failed to send close message", zap.Error(err))
	}
}

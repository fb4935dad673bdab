package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/nexus-edge/anolis/internal/kernel"
	"github.com/nexus-edge/anolis/internal/kernel/domain"
	"github.com/nexus-edge/anolis/internal/kernel/emitter"
)

const wsEventQueueSize = 256

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsHandler upgrades connections and streams every kernel event to the
// client over a dedicated emitter.Subscription per connection.
type wsHandler struct {
	k   *kernel.Kernel
	log zerolog.Logger
}

func newWebSocketHandler(k *kernel.Kernel, log zerolog.Logger) *wsHandler {
	return &wsHandler{k: k, log: log.With().Str("component", "ws_handler").Logger()}
}

// HandleWebSocket upgrades and streams events matching an optional query
// filter (provider_id, device_id, signal_id) until the client disconnects.
func (h *wsHandler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	filter := emitter.Filter{
		ProviderID: c.Query("provider_id"),
		DeviceID:   c.Query("device_id"),
		SignalID:   c.Query("signal_id"),
	}
	sub, err := h.k.Emitter.Subscribe(filter, wsEventQueueSize, "ws-"+c.GetString("request_id"))
	if err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
		conn.Close()
		return
	}

	session := &wsSession{conn: conn, sub: sub, log: h.log}
	go session.readPump()
	session.writePump()
}

// wsSession owns one client connection's read and write goroutines. The
// write pump owns the socket write side exclusively; readPump only drains
// incoming frames to detect disconnects and keep pings alive.
type wsSession struct {
	conn *websocket.Conn
	sub  *emitter.Subscription
	log  zerolog.Logger

	closeOnce sync.Once
}

func (s *wsSession) close() {
	s.closeOnce.Do(func() {
		s.sub.Unsubscribe()
		s.conn.Close()
	})
}

func (s *wsSession) readPump() {
	defer s.close()
	s.conn.SetReadLimit(512)
	s.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *wsSession) writePump() {
	defer s.close()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		ev, ok := s.sub.Pop(1 * time.Second)
		if ok {
			if err := s.writeEvent(ev); err != nil {
				return
			}
			continue
		}
		select {
		case <-ticker.C:
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		default:
		}
	}
}

func (s *wsSession) writeEvent(ev domain.Event) error {
	data, err := json.Marshal(wsEnvelope{Type: "event", Event: ev})
	if err != nil {
		return nil
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

type wsEnvelope struct {
	Type  string       `json:"type"`
	Event domain.Event `json:"event"`
}

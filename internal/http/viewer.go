package httpapi

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"google.golang.org/protobuf/encoding/protojson"

	"squadfire/battlecore/internal/events"
	"squadfire/battlecore/internal/logging"
)

const (
	viewerBuffer = 256
	writeWait    = 10 * time.Second
	maxAckBytes  = 512
)

// ackMessage is the only message viewers send back.
type ackMessage struct {
	Ack uint64 `json:"ack"`
}

// ViewerHandler upgrades to a websocket and streams notice frames as protojson text.
// A viewer that passes ?subscriber=<id> resumes from its last acknowledged sequence.
func (h *HandlerSet) ViewerHandler() http.HandlerFunc {
	upgrader := websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return func(w http.ResponseWriter, r *http.Request) {
		if h.stream == nil {
			http.Error(w, "feed unavailable", http.StatusServiceUnavailable)
			return
		}
		if !h.limiter.Allow("ws:" + remoteHost(r)) {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		subscriber := strings.TrimSpace(r.URL.Query().Get("subscriber"))
		if subscriber == "" {
			subscriber = "viewer-" + uuid.NewString()
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn("websocket upgrade failed", logging.String("remote_addr", r.RemoteAddr), logging.Error(err))
			return
		}
		sub, err := h.stream.Subscribe(r.Context(), subscriber, viewerBuffer)
		if err != nil {
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()))
			conn.Close()
			return
		}
		log := h.logger.With(logging.String("subscriber", subscriber), logging.String("remote_addr", r.RemoteAddr))
		log.Info("viewer attached")
		done := make(chan struct{})
		go h.readAcks(conn, sub, log, done)
		h.writeFrames(conn, sub, done)
		log.Info("viewer detached")
	}
}

// readAcks applies acknowledgements until the connection fails.
func (h *HandlerSet) readAcks(conn *websocket.Conn, sub *events.Subscription, log *logging.Logger, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(maxAckBytes)
	_ = conn.SetReadDeadline(time.Now().Add(2 * h.ping))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * h.ping))
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg ackMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Ack == 0 {
			log.Debug("ignoring viewer message")
			continue
		}
		if err := sub.Ack(msg.Ack); err != nil {
			log.Debug("viewer ack rejected", logging.Int64("sequence", int64(msg.Ack)), logging.Error(err))
		}
	}
}

// writeFrames owns every write on the connection.
func (h *HandlerSet) writeFrames(conn *websocket.Conn, sub *events.Subscription, done <-chan struct{}) {
	ticker := time.NewTicker(h.ping)
	defer func() {
		ticker.Stop()
		sub.Close()
		conn.Close()
	}()
	for {
		select {
		case <-done:
			return
		case env, ok := <-sub.Events():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "replaced"), time.Now().Add(writeWait))
				return
			}
			data, err := protojson.Marshal(events.FrameFromEnvelope(env))
			if err != nil {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (h *HandlerSet) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || h.origins == nil {
		return true
	}
	if _, ok := h.origins[strings.ToLower(origin)]; ok {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	_, ok := h.origins[strings.ToLower(parsed.Host)]
	return ok
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

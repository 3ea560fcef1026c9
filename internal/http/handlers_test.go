package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"squadfire/battlecore/internal/events"
	"squadfire/battlecore/internal/logging"
)

type stubFlusher struct {
	location string
	err      error
	calls    int
}

func (s *stubFlusher) FlushReplay(ctx context.Context) (string, error) {
	s.calls++
	return s.location, s.err
}

func TestLivenessHandlerReturnsJSON(t *testing.T) {
	fixed := time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger(), TimeSource: func() time.Time { return fixed }})
	rr := httptest.NewRecorder()

	handlers.LivenessHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/livez", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var payload struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Status != "alive" || payload.Timestamp != fixed.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestReadinessWaitsForBattle(t *testing.T) {
	started := false
	status := func() (Status, bool) { return Status{Mission: "m-1", Turn: 1}, started }
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger(), Status: status, Stream: events.NewStream(events.Config{})})

	rr := httptest.NewRecorder()
	handlers.ReadinessHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before start, got %d", rr.Code)
	}

	started = true
	rr = httptest.NewRecorder()
	handlers.ReadinessHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 once started, got %d", rr.Code)
	}
}

func TestStatusHandlerServesLatestStatus(t *testing.T) {
	status := func() (Status, bool) {
		return Status{Mission: "m-1", Turn: 4, Side: "hostile", Finished: true, Reason: "elimination"}, true
	}
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger(), Status: status})

	rr := httptest.NewRecorder()
	handlers.StatusHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var got Status
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Turn != 4 || got.Side != "hostile" || !got.Finished || got.Reason != "elimination" {
		t.Fatalf("unexpected status %+v", got)
	}

	rr = httptest.NewRecorder()
	handlers.StatusHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/status", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestReplayFlushRequiresToken(t *testing.T) {
	flusher := &stubFlusher{location: "replays/m-1"}
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger(), Replay: flusher, AdminToken: "secret"})

	rr := httptest.NewRecorder()
	handlers.ReplayFlushHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/replay/flush", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/replay/flush", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rr = httptest.NewRecorder()
	handlers.ReplayFlushHandler().ServeHTTP(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rr.Code)
	}
	if flusher.calls != 1 || !strings.Contains(rr.Body.String(), "replays/m-1") {
		t.Fatalf("expected one flush reporting its location, calls=%d body=%s", flusher.calls, rr.Body.String())
	}
}

func TestReplayFlushReportsFailure(t *testing.T) {
	handlers := NewHandlerSet(Options{
		Logger:     logging.NewTestLogger(),
		Replay:     &stubFlusher{err: errors.New("disk full")},
		AdminToken: "secret",
	})
	req := httptest.NewRequest(http.MethodPost, "/replay/flush?token=secret", nil)
	rr := httptest.NewRecorder()
	handlers.ReplayFlushHandler().ServeHTTP(rr, req)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestViewerStreamsFramesAndAppliesAcks(t *testing.T) {
	stream := events.NewStream(events.Config{})
	payload, _ := structpb.NewStruct(map[string]any{"actor": 3})
	stream.Publish(&events.Envelope{Kind: "shot", Mission: "m-1", Turn: 1, Payload: payload})

	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger(), Stream: stream, AllowedOrigins: []string{"https://viewer.example"}})
	mux := http.NewServeMux()
	handlers.Register(mux)
	server := httptest.NewServer(mux)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?subscriber=alpha"
	header := http.Header{"Origin": []string{"https://viewer.example"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	//1.- The retained notice arrives as a protojson frame.
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var frame structpb.Struct
	if err := protojson.Unmarshal(data, &frame); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	env, err := events.EnvelopeFromFrame(&frame)
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	if env.Sequence != 1 || env.Kind != "shot" || env.Payload.AsMap()["actor"] != float64(3) {
		t.Fatalf("unexpected envelope %+v", env)
	}

	//2.- Acknowledge, then publish live and expect sequence 2.
	if err := conn.WriteJSON(map[string]uint64{"ack": 1}); err != nil {
		t.Fatalf("ack: %v", err)
	}
	stream.Publish(&events.Envelope{Kind: "hit", Mission: "m-1", Turn: 1})
	_, data, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read live: %v", err)
	}
	if err := protojson.Unmarshal(data, &frame); err != nil {
		t.Fatalf("decode live frame: %v", err)
	}
	if frame.GetFields()["kind"].GetStringValue() != "hit" {
		t.Fatalf("expected hit frame, got %v", frame.AsMap())
	}
}

func TestViewerRejectsForeignOrigin(t *testing.T) {
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger(), Stream: events.NewStream(events.Config{}), AllowedOrigins: []string{"viewer.example"}})
	server := httptest.NewServer(handlers.ViewerHandler())
	defer server.Close()

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), header)
	if err == nil {
		t.Fatal("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", resp)
	}
}

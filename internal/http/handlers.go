package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"squadfire/battlecore/internal/events"
	"squadfire/battlecore/internal/logging"
)

// Status is the battle summary served to viewers.
type Status struct {
	Mission  string `json:"mission"`
	Turn     int    `json:"turn"`
	Side     string `json:"side"`
	Finished bool   `json:"finished"`
	Reason   string `json:"reason,omitempty"`
	State    any    `json:"state,omitempty"`
}

// StatusFunc returns the latest published battle status. ok is false before the battle starts.
type StatusFunc func() (status Status, ok bool)

// ReplayFlusher forces the replay recorder to persist buffered turns.
type ReplayFlusher interface {
	FlushReplay(ctx context.Context) (string, error)
}

// ReplayFlusherFunc adapts a function into a ReplayFlusher.
type ReplayFlusherFunc func(ctx context.Context) (string, error)

// FlushReplay implements ReplayFlusher.
func (f ReplayFlusherFunc) FlushReplay(ctx context.Context) (string, error) { return f(ctx) }

// Options configures the HandlerSet.
type Options struct {
	Logger         *logging.Logger
	Stream         *events.Stream
	Status         StatusFunc
	Replay         ReplayFlusher
	AdminToken     string
	AllowedOrigins []string
	PingInterval   time.Duration
	Limiter        *KeyedLimiter
	TimeSource     func() time.Time
}

// HandlerSet bundles the viewer endpoints.
type HandlerSet struct {
	logger     *logging.Logger
	stream     *events.Stream
	status     StatusFunc
	replay     ReplayFlusher
	adminToken string
	origins    map[string]struct{}
	ping       time.Duration
	limiter    *KeyedLimiter
	now        func() time.Time
}

// NewHandlerSet constructs a HandlerSet using the provided options.
func NewHandlerSet(opts Options) *HandlerSet {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	now := opts.TimeSource
	if now == nil {
		now = time.Now
	}
	ping := opts.PingInterval
	if ping <= 0 {
		ping = 30 * time.Second
	}
	var origins map[string]struct{}
	if len(opts.AllowedOrigins) > 0 {
		origins = make(map[string]struct{}, len(opts.AllowedOrigins))
		for _, origin := range opts.AllowedOrigins {
			origins[strings.ToLower(strings.TrimSpace(origin))] = struct{}{}
		}
	}
	return &HandlerSet{
		logger:     logger,
		stream:     opts.Stream,
		status:     opts.Status,
		replay:     opts.Replay,
		adminToken: strings.TrimSpace(opts.AdminToken),
		origins:    origins,
		ping:       ping,
		limiter:    opts.Limiter,
		now:        now,
	}
}

// Register attaches all handlers to the provided mux.
func (h *HandlerSet) Register(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/livez", h.LivenessHandler())
	mux.HandleFunc("/readyz", h.ReadinessHandler())
	mux.HandleFunc("/status", h.StatusHandler())
	mux.HandleFunc("/ws", h.ViewerHandler())
	mux.HandleFunc("/replay/flush", h.ReplayFlushHandler())
}

// LivenessHandler reports that the HTTP server is reachable.
func (h *HandlerSet) LivenessHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Status:    "alive",
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// ReadinessHandler reports whether a battle has started publishing.
func (h *HandlerSet) ReadinessHandler() http.HandlerFunc {
	type response struct {
		Status   string `json:"status"`
		Sequence uint64 `json:"sequence"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if h.status == nil {
			writeJSON(w, http.StatusServiceUnavailable, response{Status: "no battle"})
			return
		}
		if _, ok := h.status(); !ok {
			writeJSON(w, http.StatusServiceUnavailable, response{Status: "starting"})
			return
		}
		writeJSON(w, http.StatusOK, response{Status: "ok", Sequence: h.stream.Latest()})
	}
}

// StatusHandler serves the latest battle status.
func (h *HandlerSet) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if h.status == nil {
			http.Error(w, "no battle", http.StatusServiceUnavailable)
			return
		}
		status, ok := h.status()
		if !ok {
			http.Error(w, "battle not started", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

// ReplayFlushHandler authorises and triggers a replay flush.
func (h *HandlerSet) ReplayFlushHandler() http.HandlerFunc {
	type response struct {
		Status   string `json:"status"`
		Location string `json:"location,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := h.logger.With(
			logging.String("handler", "replay_flush"),
			logging.String("remote_addr", r.RemoteAddr),
		)
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if h.adminToken == "" {
			reqLogger.Warn("replay flush denied: admin auth disabled")
			http.Error(w, "admin authentication not configured", http.StatusForbidden)
			return
		}
		if !h.authorise(r) {
			reqLogger.Warn("replay flush denied: unauthorized request")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !h.limiter.Allow("replay:" + remoteHost(r)) {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		if h.replay == nil {
			http.Error(w, "replay recording is disabled", http.StatusServiceUnavailable)
			return
		}
		location, err := h.replay.FlushReplay(r.Context())
		if err != nil {
			reqLogger.Error("replay flush failed", logging.Error(err))
			http.Error(w, "failed to flush replay", http.StatusInternalServerError)
			return
		}
		reqLogger.Info("replay flushed", logging.String("location", location))
		writeJSON(w, http.StatusAccepted, response{Status: "accepted", Location: location})
	}
}

func (h *HandlerSet) authorise(r *http.Request) bool {
	return tokenMatches(requestToken(r), h.adminToken)
}

func requestToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	if header != "" {
		return header
	}
	if token := strings.TrimSpace(r.Header.Get("X-Battle-Token")); token != "" {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func tokenMatches(candidate, expected string) bool {
	if candidate == "" || expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(expected)) == 1
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// Package httpapi provides the llmrelay HTTP API.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/jxucoder/llmrelay/internal/config"
	"github.com/jxucoder/llmrelay/internal/logging"
	"github.com/jxucoder/llmrelay/internal/metrics"
	"github.com/jxucoder/llmrelay/internal/relay"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	maxBodyBytes     = 4 << 20
)

// Options configures the HTTP surface.
type Options struct {
	// Version is reported by the welcome route.
	Version string
	// MaxPromptChars limits the prompt, the system text and each chat message.
	MaxPromptChars int
	// RateLimit is the inbound requests per second for completion routes.
	// 0 disables limiting.
	RateLimit float64
	RateBurst int
}

// Route is one entry of the routing table.
type Route struct {
	Method  string
	Pattern string
	Name    string
	// Limited routes pass through the inbound rate limiter.
	Limited bool
	Handler http.HandlerFunc
}

// Handler serves the relay API.
type Handler struct {
	relay   *relay.Service
	opts    Options
	metrics *metrics.Metrics
	log     logrus.FieldLogger
	limiter *rate.Limiter
}

// New creates a Handler. A nil metrics or logger gets a private default.
func New(svc *relay.Service, opts Options, m *metrics.Metrics, log logrus.FieldLogger) *Handler {
	if m == nil {
		m = metrics.New()
	}
	if log == nil {
		log = logging.Discard()
	}
	if opts.MaxPromptChars <= 0 {
		opts.MaxPromptChars = config.DefaultMaxPromptChars
	}
	h := &Handler{
		relay:   svc,
		opts:    opts,
		metrics: m,
		log:     log,
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return h
}

// Routes returns every route the router serves.
func (h *Handler) Routes() []Route {
	return []Route{
		{Method: http.MethodGet, Pattern: "/", Name: "welcome", Handler: h.handleWelcome},
		{Method: http.MethodGet, Pattern: "/health", Name: "health", Handler: h.handleHealth},
		{Method: http.MethodGet, Pattern: "/metrics", Name: "metrics", Handler: h.metrics.Handler().ServeHTTP},
		{Method: http.MethodGet, Pattern: "/api/config", Name: "config", Handler: h.handleConfig},
		{Method: http.MethodPost, Pattern: "/api/completions", Name: "create_completion", Limited: true, Handler: h.handleCompletion},
		{Method: http.MethodPost, Pattern: "/api/chat", Name: "create_chat", Limited: true, Handler: h.handleChat},
		{Method: http.MethodGet, Pattern: "/api/completions", Name: "list_completions", Handler: h.handleListCompletions},
		{Method: http.MethodGet, Pattern: "/api/completions/{id}", Name: "get_completion", Handler: h.handleGetCompletion},
	}
}

// Router returns the chi router for the API.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.accessLog)
	r.Use(middleware.Recoverer)

	for _, rt := range h.Routes() {
		var handler http.Handler = rt.Handler
		if rt.Limited && h.limiter != nil {
			handler = h.rateLimit(handler)
		}
		r.Method(rt.Method, rt.Pattern, handler)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, TypeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, TypeValidation, "method not allowed")
	})

	return r
}

// --- Middleware ---

// accessLog writes one log line per request and records HTTP metrics.
func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := middleware.GetReqID(r.Context())
		if reqID != "" {
			w.Header().Set(middleware.RequestIDHeader, reqID)
		}

		h.metrics.InFlight.Inc()
		defer h.metrics.InFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		h.metrics.ObserveRequest(route, r.Method, status, elapsed)

		entry := h.log.WithFields(logrus.Fields{
			"request_id":  reqID,
			"method":      r.Method,
			"path":        r.URL.Path,
			"route":       route,
			"status":      status,
			"bytes":       ww.BytesWritten(),
			"duration_ms": elapsed.Milliseconds(),
			"remote":      r.RemoteAddr,
		})
		switch {
		case route == "/health" || route == "/metrics":
			entry.Debug("request")
		case status >= 500:
			entry.Warn("request")
		default:
			entry.Info("request")
		}
	})
}

// rateLimit rejects requests once the token bucket is empty.
func (h *Handler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.limiter.Allow() {
			h.metrics.RateLimited.Inc()
			w.Header().Set("Retry-After", "1")
			writeError(w, r, http.StatusTooManyRequests, TypeThrottled, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- Informational handlers ---

func (h *Handler) handleWelcome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Welcome to llmrelay. POST a prompt to /api/completions.",
		"service": "llmrelay",
		"version": h.opts.Version,
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok"))
}

type configResponse struct {
	Provider       string  `json:"provider"`
	Model          string  `json:"model"`
	Temperature    float64 `json:"temperature"`
	MaxTokens      int     `json:"max_tokens"`
	MaxPromptChars int     `json:"max_prompt_chars"`
	Timeout        string  `json:"timeout"`
	RateLimit      float64 `json:"rate_limit"`
	Audit          bool    `json:"audit"`
}

func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	opts := h.relay.Options()
	writeJSON(w, http.StatusOK, configResponse{
		Provider:       h.relay.Provider(),
		Model:          opts.Model,
		Temperature:    opts.Temperature,
		MaxTokens:      opts.MaxTokens,
		MaxPromptChars: h.opts.MaxPromptChars,
		Timeout:        opts.Timeout.String(),
		RateLimit:      h.opts.RateLimit,
		Audit:          h.relay.Audit() != nil,
	})
}

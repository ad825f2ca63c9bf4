// Package server is the algoviz HTTP API: accounts, the activity log and
// dashboard stats, the algorithm catalog, server-side runs with replayable
// event streams and a websocket live session.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	algoviz "github.com/petal-labs/algoviz"
	"github.com/petal-labs/algoviz/activity"
	"github.com/petal-labs/algoviz/bus"
	"github.com/petal-labs/algoviz/config"
	"github.com/petal-labs/algoviz/runtime"
	"github.com/petal-labs/algoviz/sse"
)

// ServerConfig configures a Server instance. Every store is optional; the
// routes that need a missing one answer 501.
type ServerConfig struct {
	AuthStore     AuthStore
	ActivityStore ActivityStore
	EventStore    bus.EventStore

	// Bus carries live run events to stream subscribers. Nil means an
	// in-process MemBus.
	Bus bus.EventBus

	RuntimeEvents runtime.EventHandler
	EmitDecorator runtime.EventEmitterDecorator

	// Defaults sizes boards and sets delays for runs that do not say.
	// The zero value means config.Default().
	Defaults *config.File

	CORSOrigin string
	MaxBody    int64

	// AuthRate and AuthBurst limit login and registration attempts per
	// client address. Zero means 5 per second with a burst of 10; rate.Inf
	// disables the limit.
	AuthRate  rate.Limit
	AuthBurst int

	// TracerProvider is used for request spans. Nil means the global one.
	TracerProvider trace.TracerProvider

	Logger *slog.Logger
}

// Server is the algoviz HTTP API server.
type Server struct {
	authStore     AuthStore
	activityStore ActivityStore
	activityLog   activity.Logger
	bus           bus.EventBus
	eventStore    bus.EventStore
	events        *sse.Handler
	upgrader      websocket.Upgrader
	runtimeEvents runtime.EventHandler
	emitDecorator runtime.EventEmitterDecorator
	defaults      config.File
	corsOrigin    string
	maxBody       int64
	authLimiter   *clientLimiter
	tracer        trace.TracerProvider
	logger        *slog.Logger

	// runCtx outlives requests; Shutdown cancels it.
	runCtx     context.Context
	cancelRuns context.CancelFunc
	runWG      sync.WaitGroup

	activeRunsMu sync.RWMutex
	activeRuns   map[string]*algoviz.Controller
}

// NewServer creates a new Server with the given configuration.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	corsOrigin := cfg.CORSOrigin
	if corsOrigin == "" {
		corsOrigin = "*"
	}
	maxBody := cfg.MaxBody
	if maxBody <= 0 {
		maxBody = 1 << 20 // 1 MB default
	}
	defaults := config.Default()
	if cfg.Defaults != nil {
		defaults = *cfg.Defaults
	}
	limit, burst := cfg.AuthRate, cfg.AuthBurst
	if limit == 0 {
		limit = 5
	}
	if burst <= 0 {
		burst = 10
	}

	activityLog := activity.Discard
	if cfg.ActivityStore != nil {
		activityLog = activity.NewStoreLogger(cfg.ActivityStore, logger)
	}

	eb := cfg.Bus
	if eb == nil {
		eb = bus.NewMemBus(bus.MemBusConfig{})
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		authStore:     cfg.AuthStore,
		activityStore: cfg.ActivityStore,
		activityLog:   activityLog,
		bus:           eb,
		eventStore:    cfg.EventStore,
		runtimeEvents: cfg.RuntimeEvents,
		emitDecorator: cfg.EmitDecorator,
		defaults:      defaults,
		corsOrigin:    corsOrigin,
		maxBody:       maxBody,
		authLimiter:   newClientLimiter(limit, burst),
		tracer:        cfg.TracerProvider,
		logger:        logger,
		runCtx:        runCtx,
		cancelRuns:    cancel,
		activeRuns:    make(map[string]*algoviz.Controller),
	}
	if cfg.EventStore != nil {
		s.events = sse.NewHandler(cfg.EventStore, eb)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 64 * 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler returns an http.Handler with all routes and middleware wired.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	var handler http.Handler = mux
	handler = s.corsMiddleware(handler)
	handler = s.maxBodyMiddleware(handler)

	var opts []otelhttp.Option
	if s.tracer != nil {
		opts = append(opts, otelhttp.WithTracerProvider(s.tracer))
	}
	opts = append(opts, otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
		return r.Method + " " + r.URL.Path
	}))
	return otelhttp.NewHandler(handler, "algoviz", opts...)
}

// RegisterRoutes mounts the API routes onto an existing mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/algorithms", s.handleAlgorithms)

	// Auth routes
	mux.HandleFunc("POST /api/auth/register", s.rateLimited(s.handleRegister))
	mux.HandleFunc("POST /api/auth/login", s.rateLimited(s.handleLogin))
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	mux.HandleFunc("GET /api/auth/me", s.handleMe)

	// Activity routes
	mux.HandleFunc("POST /api/activity", s.handleLogActivity)
	mux.HandleFunc("GET /api/stats/{user_id}", s.handleStats)

	// Run routes
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("POST /api/runs", s.handleStartRun)
	mux.HandleFunc("GET /api/runs/{run_id}", s.handleGetRun)
	mux.HandleFunc("DELETE /api/runs/{run_id}", s.handleCancelRun)
	mux.HandleFunc("GET /api/runs/{run_id}/events", s.handleRunEvents)

	mux.HandleFunc("GET /api/live", s.handleLive)

	// Paths used by the first web client.
	mux.HandleFunc("POST /register", s.rateLimited(s.handleRegister))
	mux.HandleFunc("POST /login", s.rateLimited(s.handleLogin))
	mux.HandleFunc("POST /log-activity", s.handleLogActivity)
	mux.HandleFunc("GET /stats/{user_id}", s.handleStats)
}

// Shutdown cancels every server-side run and waits for them to finish or
// for ctx to end.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancelRuns()
	done := make(chan struct{})
	go func() {
		s.runWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// --- Middleware ---

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) maxBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
		next.ServeHTTP(w, r)
	})
}

// checkOrigin applies the CORS origin to websocket upgrades.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return s.corsOrigin == "*" || origin == "" || origin == s.corsOrigin
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// apiError is the standard error envelope.
type apiError struct {
	Error apiErrorBody `json:"error"`
}

type apiErrorBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message string, details ...string) {
	body := apiError{
		Error: apiErrorBody{
			Code:    code,
			Message: message,
		},
	}
	if len(details) > 0 {
		body.Error.Details = details
	}
	writeJSON(w, status, body)
}

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"egg-arena/internal/config"
	"egg-arena/internal/game"
	"egg-arena/internal/logging"
	"egg-arena/internal/metrics"
)

// EngineInterface is what the HTTP layer needs from the engine.
// Tests substitute a fake; production passes *game.Engine.
type EngineInterface interface {
	Session
	GetSnapshot() *game.Snapshot
	Stats() game.Stats
}

// RouterConfig holds the router's dependencies.
type RouterConfig struct {
	// Engine is required.
	Engine EngineInterface

	// Hub serves /ws. When nil the WebSocket routes are not mounted.
	Hub *Hub

	// RateLimiter is an optional pre-configured limiter. If nil, one is
	// created from RateLimitConfig and owned by the caller via the returned
	// router's lifetime (its cleanup goroutine runs until process exit).
	RateLimiter *IPRateLimiter

	// RateLimitConfig is used only when RateLimiter is nil.
	RateLimitConfig *config.RateLimitConfig

	// CORSOrigins defaults to DefaultCORSOrigins.
	CORSOrigins []string

	// StaticDir serves client assets at / when set.
	StaticDir string

	Logger *zap.Logger
}

type routerHandlers struct {
	engine  EngineInterface
	hub     *Hub
	limiter *IPRateLimiter
}

// NewRouter builds the HTTP router. It opens no listeners.
func NewRouter(cfg RouterConfig) *chi.Mux {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(logging.RequestLogger(log.Named("http")))
	r.Use(middleware.Recoverer)

	// Rate limit before CORS to reject early.
	limiter := cfg.RateLimiter
	if limiter == nil {
		rlCfg := config.DefaultRateLimit()
		if cfg.RateLimitConfig != nil {
			rlCfg = *cfg.RateLimitConfig
		}
		limiter = NewIPRateLimiter(rlCfg)
	}
	r.Use(limiter.Middleware)

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = DefaultCORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	h := &routerHandlers{
		engine:  cfg.Engine,
		hub:     cfg.Hub,
		limiter: limiter,
	}

	r.Get("/healthz", handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(requestMetrics)
		r.Get("/state", h.handleGetState)
		r.Get("/leaderboard", h.handleGetLeaderboard)
		r.Get("/players/{id}", h.handleGetPlayer)
		r.Get("/stats", h.handleGetStats)
	})

	if cfg.Hub != nil {
		ws := func(w http.ResponseWriter, req *http.Request) {
			cfg.Hub.ServeWS(w, req, cfg.Engine)
		}
		r.Get("/ws", ws)
		r.Get("/socket.io/", func(w http.ResponseWriter, req *http.Request) {
			// Only the WebSocket transport is supported; no polling fallback.
			if !websocket.IsWebSocketUpgrade(req) {
				writeError(w, "use websocket", http.StatusNotFound)
				return
			}
			ws(w, req)
		})
	}

	if cfg.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	return r
}

// requestMetrics records latency per route pattern, keeping label
// cardinality bounded.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		metrics.RecordRequest(r.Method, route, time.Since(start))
	})
}

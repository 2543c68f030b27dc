// Package api is the HTTP boundary: event ingestion, agent dispatch, the
// build-completion hook, and read endpoints for dashboards.
package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/lai-labs/spyglass/internal/agent"
	"github.com/lai-labs/spyglass/internal/config"
	"github.com/lai-labs/spyglass/internal/learning"
	"github.com/lai-labs/spyglass/internal/storage"
)

const requestIDHeader = "X-Request-ID"

// Server wires the HTTP routes to storage and the agent roster
type Server struct {
	store       storage.Storage
	dispatcher  *agent.Dispatcher
	accumulator *learning.Accumulator
	certifier   *learning.Certifier
	cfg         config.APIConfig

	engine *gin.Engine

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewServer builds the router. gin runs in release mode; the access log is
// the api_logs table, not gin's console writer.
func NewServer(store storage.Storage, dispatcher *agent.Dispatcher, accumulator *learning.Accumulator, certifier *learning.Certifier, cfg config.APIConfig) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		store:       store,
		dispatcher:  dispatcher,
		accumulator: accumulator,
		certifier:   certifier,
		cfg:         cfg,
		limiters:    make(map[string]*rate.Limiter),
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestID(), s.accessLog())

	api := engine.Group("/api")
	{
		api.POST("/events", s.rateLimit(), s.handleIngestEvents)
		api.POST("/agents", s.handleDispatchAgent)
		api.POST("/builds/complete", s.handleBuildComplete)

		api.GET("/health", s.handleHealth)
		api.GET("/frictions", s.handleListFrictions)
		api.GET("/traces", s.handleListTraces)
		api.GET("/proposals", s.handleListProposals)
		api.GET("/costs", s.handleListCosts)
		api.GET("/knowledge", s.handleSearchKnowledge)
		api.GET("/certificates/:build_id", s.handleGetCertificate)
	}

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.engine = engine
	return s
}

// Handler returns the router for http.Server or tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

// requestID assigns every request an ID, honoring one supplied by the
// caller
func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// accessLog records each request as an APILogEntry. The metrics endpoint is
// scraped constantly and would drown the sample the health rover reads.
func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.FullPath() == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		entry := newAPILogEntry(c, time.Since(start))
		if err := s.store.StoreAPILog(c.Request.Context(), entry); err != nil {
			slog.Error("failed to record api log", "path", entry.Path, "error", err)
		}
		slog.Info("request",
			"method", entry.Method,
			"path", entry.Path,
			"status", entry.StatusCode,
			"duration_ms", entry.DurationMs,
			"request_id", entry.RequestID,
		)
	}
}

// rateLimit enforces a per-tenant token bucket on event ingestion
func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := c.GetHeader("X-Tenant-ID")
		if tenant == "" {
			tenant = "anonymous"
		}
		if !s.limiterFor(tenant).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

func (s *Server) limiterFor(tenant string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[tenant]
	if !ok {
		perSecond := rate.Limit(float64(s.cfg.RatePerMinute) / 60)
		l = rate.NewLimiter(perSecond, s.cfg.RatePerMinute)
		s.limiters[tenant] = l
	}
	return l
}

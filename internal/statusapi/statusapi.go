// Package statusapi exposes the operator-facing status and health
// surface: a REST snapshot of active signals and ledger state, a manual
// signal-generation trigger, plus a live WebSocket status stream. It
// reports no scheduler health, disabled-symbol list, or rejection counts.
package statusapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"genx-signal-engine/internal/ledger"
	"genx-signal-engine/internal/signal"
)

// SignalSource reports the currently active signals for the snapshot
// endpoint.
type SignalSource interface {
	ActiveSignals() []*signal.Signal
}

// TickForcer lets an operator force an out-of-band signal generation
// pass for specific symbols, mirroring trading_engine.py's
// force_signal_generation (original_source). Satisfied by
// *scheduler.Scheduler.
type TickForcer interface {
	Tick(ctx context.Context, symbols ...string) map[string]error
}

// Config tunes the server.
type Config struct {
	Addr              string
	JWTSecret         string
	AuthDisabled      bool // for local/dev deployments without a login flow
	AdminUsername     string
	AdminPasswordHash string // bcrypt hash, see HashAdminPassword
}

// Server wraps a gin engine serving the status API and a websocket hub
// for live updates.
type Server struct {
	cfg     Config
	router  *gin.Engine
	httpSrv *http.Server
	log     zerolog.Logger

	signals SignalSource
	ledger  *ledger.Ledger
	hub     *wsHub
	forcer  TickForcer
}

// New builds the status API server. forcer may be nil, in which case
// /api/signals/generate responds 501.
func New(cfg Config, signals SignalSource, led *ledger.Ledger, forcer TickForcer, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	s := &Server{
		cfg:     cfg,
		router:  router,
		log:     log,
		signals: signals,
		ledger:  led,
		forcer:  forcer,
		hub:     newWSHub(),
	}
	go s.hub.run()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.GET("/healthz", s.handleHealth)
	s.router.POST("/api/login", s.handleLogin)

	authorized := s.router.Group("/api")
	authorized.Use(s.authMiddleware())
	authorized.GET("/status", s.handleStatus)
	authorized.GET("/signals", s.handleSignals)
	authorized.GET("/account", s.handleAccount)
	authorized.GET("/ws/status", s.handleWebSocket)
	authorized.POST("/signals/generate", s.handleForceGenerate)
}

// handleForceGenerate triggers an immediate out-of-band tick for the
// requested symbols (or every currently active symbol, if none are
// given), bypassing the scheduler's normal interval.
func (s *Server) handleForceGenerate(c *gin.Context) {
	if s.forcer == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "manual generation is not wired for this deployment"})
		return
	}
	var req struct {
		Symbols []string `json:"symbols"`
	}
	_ = c.ShouldBindJSON(&req)
	if len(req.Symbols) == 0 {
		for _, sig := range s.signals.ActiveSignals() {
			req.Symbols = append(req.Symbols, sig.Symbol)
		}
	}
	if len(req.Symbols) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no symbols given and none active"})
		return
	}

	results := s.forcer.Tick(c.Request.Context(), req.Symbols...)
	failed := make(map[string]string, len(results))
	for sym, err := range results {
		if err != nil {
			failed[sym] = err.Error()
		}
	}
	c.JSON(http.StatusOK, gin.H{"requested": req.Symbols, "errors": failed})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"active_signals": len(s.signals.ActiveSignals()),
		"account":        s.ledger.Summary(),
		"time":           time.Now().UTC(),
	})
}

func (s *Server) handleSignals(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"signals": s.signals.ActiveSignals()})
}

func (s *Server) handleAccount(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"summary":       s.ledger.Summary(),
		"open_positions": s.ledger.Positions(),
	})
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.AuthDisabled {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenString := header[len(prefix):]

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(s.cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}

// Broadcast pushes a status update to every connected websocket client.
func (s *Server) Broadcast(event string, payload any) {
	s.hub.broadcastJSON(event, payload)
}

// Handler returns the underlying gin engine, for use with a custom
// http.Server or in tests via httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts serving on cfg.Addr until the process exits or
// an unrecoverable error occurs.
func (s *Server) ListenAndServe() error {
	s.httpSrv = &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.router,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

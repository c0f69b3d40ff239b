// Package server exposes the bond desk over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/bondd/internal/domain"
	"github.com/alanyoungcy/bondd/internal/server/handler"
	"github.com/alanyoungcy/bondd/internal/server/middleware"
	"github.com/alanyoungcy/bondd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int    // requests per RateWindow per client; 0 disables
	RateWindow  time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Nil handlers leave their routes unregistered.
type Handlers struct {
	Health    *handler.HealthHandler
	Bonds     *handler.BondHandler
	Accounts  *handler.AccountHandler
	Issuances *handler.IssuanceHandler
	Prices    *handler.PriceHandler
	Audit     *handler.AuditHandler
	Archives  *handler.ArchiveHandler
}

// Server is the headless HTTP + WebSocket API server of the bond desk.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (request id, CORS, logging, rate limit, auth) and
// attaches the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	if handlers.Health != nil {
		mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	}

	if b := handlers.Bonds; b != nil {
		mux.HandleFunc("GET /api/bonds", b.ListBonds)
		mux.HandleFunc("GET /api/bonds/{id}", b.GetBond)
		mux.HandleFunc("GET /api/bonds/{id}/quote", b.Quote)
		mux.HandleFunc("POST /api/bonds/{id}/swap", b.Swap)
		mux.HandleFunc("POST /api/bonds/{id}/trades", b.Trade)
	}

	if a := handlers.Accounts; a != nil {
		mux.HandleFunc("GET /api/accounts/{address}", a.Balances)
		mux.HandleFunc("GET /api/accounts/{address}/limits", a.Limits)
	}

	if i := handlers.Issuances; i != nil {
		mux.HandleFunc("POST /api/issuances", i.Issue)
		mux.HandleFunc("GET /api/issuances", i.ListIssuances)
		mux.HandleFunc("GET /api/issuances/{id}", i.GetIssuance)
		mux.HandleFunc("POST /api/issuances/{id}/retry", i.Retry)
	}

	if handlers.Prices != nil {
		mux.HandleFunc("GET /api/price/eth", handlers.Prices.EthPrice)
	}
	if handlers.Audit != nil {
		mux.HandleFunc("GET /api/audit", handlers.Audit.ListAudit)
	}

	if handlers.Archives != nil {
		mux.HandleFunc("GET /api/archives", handlers.Archives.ListArchives)
		mux.HandleFunc("GET /api/archives/{path...}", handlers.Archives.GetArchive)
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Outermost first: request id, CORS, logging, rate limit, auth.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	h = middleware.RequestID(h)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Issuances block until the receipt is mined.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Handler returns the full middleware chain, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// Package server provides the HTTP REST API for the interview pilot.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/interview-pilot/internal/billing"
	"github.com/jonathan/interview-pilot/internal/config"
	"github.com/jonathan/interview-pilot/internal/evaluation"
	"github.com/jonathan/interview-pilot/internal/gateway"
	"github.com/jonathan/interview-pilot/internal/server/middleware"
	"github.com/jonathan/interview-pilot/internal/server/ratelimit"
	"github.com/jonathan/interview-pilot/internal/session"
	"github.com/jonathan/interview-pilot/internal/store"
)

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger

	gw       gateway.Service
	registry *session.Registry
	hub      *evaluation.Hub
	store    *store.Store
	billing  *billing.Coordinator
	plans    *billing.Catalog

	rateLimiter *ratelimit.Limiter
	jwtService  *JWTService
	userService *UserService
	authHandler *AuthHandler
}

// Config holds server configuration
type Config struct {
	Port int
}

// Deps carries the collaborators the server routes to. Store may be nil; the
// server then runs without user accounts and sessions stay memory-only.
type Deps struct {
	Logger   *zap.Logger
	Gateway  gateway.Service
	Registry *session.Registry
	Hub      *evaluation.Hub
	Store    *store.Store
	Billing  *billing.Coordinator
	Plans    *billing.Catalog
}

// New creates a new server instance
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Gateway == nil {
		return nil, fmt.Errorf("server requires a gateway")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("server requires a session registry")
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{
		logger:   log,
		gw:       deps.Gateway,
		registry: deps.Registry,
		hub:      deps.Hub,
		store:    deps.Store,
		billing:  deps.Billing,
		plans:    deps.Plans,
	}

	// Initialize rate limiter
	s.rateLimiter = ratelimit.NewLimiter(ratelimit.LoadConfig())

	// Initialize authentication services
	jwtConfig, err := config.NewJWTConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT config: %w", err)
	}
	s.jwtService = NewJWTService(jwtConfig)

	if deps.Store != nil {
		passwordConfig, err := config.NewPasswordConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to create password config: %w", err)
		}
		s.userService = NewUserService(deps.Store, passwordConfig)
		s.authHandler = NewAuthHandler(s.userService, s.jwtService)
	}

	// Create HTTP server
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // Long timeout for SSE streams
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler builds the routed handler with the full middleware chain. Exposed
// so tests can drive the server through httptest without a listener.
func (s *Server) Handler() http.Handler {
	auth := middleware.RequireAuth(s.jwtService.AsTokenValidator())
	optionalAuth := middleware.OptionalAuth(s.jwtService.AsTokenValidator())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	// Account endpoints
	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.Handle("GET /users/me", auth(http.HandlerFunc(s.handleMe)))
	mux.Handle("PUT /users/me/password", auth(http.HandlerFunc(s.handleUpdatePassword)))

	// Interview session endpoints
	mux.Handle("POST /sessions", auth(http.HandlerFunc(s.handleCreateSession)))
	mux.Handle("GET /sessions", auth(http.HandlerFunc(s.handleListSessions)))
	mux.Handle("GET /sessions/{id}", auth(http.HandlerFunc(s.handleGetSession)))
	mux.Handle("DELETE /sessions/{id}", auth(http.HandlerFunc(s.handleAbandonSession)))
	mux.Handle("PUT /sessions/{id}/setup", auth(http.HandlerFunc(s.handleUpdateSetup)))
	mux.Handle("POST /sessions/{id}/resume", auth(http.HandlerFunc(s.handleUploadResume)))
	mux.Handle("DELETE /sessions/{id}/resume", auth(http.HandlerFunc(s.handleRemoveResume)))
	mux.Handle("POST /sessions/{id}/next", auth(http.HandlerFunc(s.handleNextStep)))
	mux.Handle("POST /sessions/{id}/back", auth(http.HandlerFunc(s.handleBackStep)))
	mux.Handle("POST /sessions/{id}/generate", auth(http.HandlerFunc(s.handleGenerate)))
	mux.Handle("POST /sessions/{id}/recording", auth(http.HandlerFunc(s.handleToggleRecording)))
	mux.Handle("POST /sessions/{id}/advance", auth(http.HandlerFunc(s.handleAdvance)))
	mux.Handle("POST /sessions/{id}/retry", auth(http.HandlerFunc(s.handleRetry)))
	mux.Handle("GET /sessions/{id}/events", auth(http.HandlerFunc(s.handleSessionEvents)))
	mux.Handle("GET /sessions/{id}/evaluation/progress", auth(http.HandlerFunc(s.handleEvaluationProgress)))

	// Dashboard endpoint
	mux.Handle("GET /dashboard", auth(http.HandlerFunc(s.handleDashboard)))

	// Billing endpoints. Checkout takes optional auth so the coordinator can
	// answer with a login redirect instead of a bare 401.
	mux.HandleFunc("GET /billing/plans", s.handleListPlans)
	mux.Handle("POST /billing/checkout", optionalAuth(http.HandlerFunc(s.handleCheckout)))
	mux.Handle("GET /billing/checkout/confirm", auth(http.HandlerFunc(s.handleCheckoutConfirm)))
	mux.Handle("GET /billing/subscription", auth(http.HandlerFunc(s.handleSubscription)))
	mux.Handle("POST /billing/subscription/cancel", auth(http.HandlerFunc(s.handleCancelSubscription)))

	return s.withRateLimit(s.withLogging(s.withCORS(mux)))
}

// Start begins listening for requests and blocks until shutdown
func (s *Server) Start() error {
	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-stop:
	}
	s.logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.store != nil {
		s.store.Close()
	}

	s.logger.Info("server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := s.extractClientID(r)

		allowed, info := s.rateLimiter.Allow(clientID, r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, info)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request handled",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote", r.RemoteAddr),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("failed to encode response", zap.Error(err))
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// domainError maps a service error to its HTTP shape. Auth-required billing
// errors carry the login redirect; everything else is message-only.
func (s *Server) domainError(w http.ResponseWriter, err error) {
	if authErr, ok := billing.AsAuthRequired(err); ok {
		s.jsonResponse(w, http.StatusUnauthorized, map[string]string{
			"error":     "authentication required",
			"login_url": authErr.LoginURL,
			"return_to": authErr.ReturnTo,
		})
		return
	}
	s.errorResponse(w, HTTPStatus(err), gateway.UserMessage(err))
}

// extractClientID extracts the client identifier from the request.
// For MVP, this uses the IP address from RemoteAddr.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit
// information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}

	if info.RetryAfter > 0 {
		response["retry_after"] = int(info.RetryAfter.Seconds())
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(info.RetryAfter.Seconds())))
	}

	s.logger.Warn("rate limit exceeded",
		zap.Int("limit", info.Limit),
		zap.Int("remaining", info.Remaining),
		zap.Time("reset", info.ResetTime),
	)

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}

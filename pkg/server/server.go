package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Layr-Labs/eigenx-request-signer/pkg/authorizer"
	"github.com/Layr-Labs/eigenx-request-signer/pkg/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

/*
Server exposes the authorizer to a gateway or backend over HTTP.

	POST /sign
	  Request:  { action, name, amount?, targetAddress, timestamp? }
	            amount is a decimal string (default 0), timestamp defaults to now
	  Response: { timestamp, payload, signature, signer }
	  400 on invalid input, 502 when the signing identity fails, 429 when rate limited

	GET /address
	  Response: { address }

Every response carries an X-Request-Id header matching the request's log lines.
*/

const (
	RequestIdHeader = "X-Request-Id"

	maxRequestBodyBytes = 64 * 1024
	shutdownTimeout     = 10 * time.Second
)

type Server struct {
	authorizer *authorizer.Authorizer
	httpServer *http.Server
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewServer creates a new server instance. A zero rate limit disables limiting.
func NewServer(a *authorizer.Authorizer, cfg *config.ServerConfig, logger *zap.Logger) (*Server, error) {
	if a == nil {
		return nil, fmt.Errorf("authorizer cannot be nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("server config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		authorizer: a,
		logger:     logger,
	}
	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/sign", s.handleSign)
	mux.HandleFunc("/address", s.handleAddress)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.withRequestId(s.withRateLimit(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// Start starts the HTTP server
func (s *Server) Start() error {
	go func() {
		s.logger.Sugar().Infow("Starting HTTP server", "signer", s.authorizer.Address().Hex(), "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Sugar().Errorw("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Stop drains in-flight requests before closing.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// GetHandler returns the HTTP handler (for testing)
func (s *Server) GetHandler() http.Handler {
	return s.httpServer.Handler
}

type requestIdKey struct{}

func requestIdFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIdKey{}).(string)
	return id
}

func (s *Server) withRequestId(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIdHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIdHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIdKey{}, id)))
	})
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			s.logger.Warn("Rate limit exceeded",
				zap.String("requestId", requestIdFromContext(r.Context())),
				zap.String("path", r.URL.Path),
			)
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

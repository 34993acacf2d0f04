package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/detox/internal/assistant"
	"github.com/matheus3301/detox/internal/config"
	"github.com/matheus3301/detox/internal/domain"
	"github.com/matheus3301/detox/internal/httpapi"
	"github.com/matheus3301/detox/internal/messaging"
	"github.com/matheus3301/detox/internal/posts"
	"github.com/matheus3301/detox/internal/push"
)

// HTTPServer serves the app-facing API and push channel.
type HTTPServer struct {
	srv      *http.Server
	addr     string
	listener net.Listener
	logger   *zap.Logger
}

// NewHTTPServer wires the HTTP router. Nothing listens until Listen.
func NewHTTPServer(
	cfg *config.Config,
	backend domain.Backend,
	identity *messaging.IdentityResolver,
	contacts *messaging.ContactLoader,
	hub *push.Hub,
	postService *posts.Service,
	proxy *assistant.Proxy,
	policy messaging.Policy,
	logger *zap.Logger,
) *HTTPServer {
	handler := httpapi.NewRouter(httpapi.Deps{
		Backend:     backend,
		Identity:    identity,
		Contacts:    contacts,
		Hub:         hub,
		Posts:       postService,
		Assistant:   proxy,
		Policy:      policy,
		CORSOrigins: cfg.HTTP.CORSOrigins,
		Log:         logger,
	})
	return &HTTPServer{
		srv: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		addr:   cfg.HTTP.Addr,
		logger: logger,
	}
}

// Listen binds the configured address.
func (s *HTTPServer) Listen() error {
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen http %s: %w", s.addr, err)
	}
	s.listener = l
	return nil
}

// Addr is the bound address once Listen succeeded, the configured one before.
func (s *HTTPServer) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Serve blocks until Stop. Listen must have been called.
func (s *HTTPServer) Serve() error {
	s.logger.Info("HTTP server starting", zap.String("addr", s.Addr()))
	if err := s.srv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests.
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("HTTP server stopping")
	return s.srv.Shutdown(ctx)
}

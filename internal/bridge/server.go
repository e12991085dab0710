package bridge

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/softslim/soapbridge/config"
	"github.com/softslim/soapbridge/internal/logging"
)

// Server hosts the bridge's SOAP endpoints on one HTTP listener.
type Server struct {
	cfg    *config.BridgeConfig
	bridge *Bridge
	http   *http.Server
}

// NewServer compiles the bridge from cfg and prepares the HTTP listener.
func NewServer(cfg *config.BridgeConfig) *Server {
	b := New(cfg)
	return &Server{
		cfg:    cfg,
		bridge: b,
		http: &http.Server{
			Addr:         cfg.Server.Address,
			Handler:      b.Handler(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
	}
}

// Bridge returns the compiled bridge.
func (s *Server) Bridge() *Bridge {
	return s.bridge
}

// Run starts the listener and blocks until SIGINT or SIGTERM, then shuts
// down gracefully within the configured timeout.
func (s *Server) Run() error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info("SOAP bridge listening", zap.String("address", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logging.Info("shutting down gracefully", zap.String("signal", sig.String()))
		return s.Shutdown()
	}
}

// Shutdown stops the listener, draining in-flight requests.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}

package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rapidkrill/internal/logging"
)

// Server exposes the metric registry on a local HTTP endpoint.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer builds the endpoint for the given bind address.
func NewServer(bind string, m *Metrics, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))

	return &Server{
		srv: &http.Server{
			Addr:              bind,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logging.NewComponentLogger(logger, "metrics"),
	}
}

// Start binds the listener and serves in the background. A bind failure is
// returned synchronously so startup can abort.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("metrics endpoint listening", logging.String("addr", s.srv.Addr))
	go func() {
		if serveErr := s.srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("metrics endpoint stopped", logging.Error(serveErr))
		}
	}()
	return nil
}

// Stop shuts the endpoint down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

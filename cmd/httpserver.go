package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
)

// httpServer is a small lifecycle wrapper around net/http.Server shared by
// the stats and websocket surfaces, started on an fx.Lifecycle hook and
// shut down gracefully on stop.
type httpServer struct {
	addr    string
	handler http.Handler
	logger  *slog.Logger

	srv *http.Server
	ln  net.Listener
}

func (s *httpServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.srv = &http.Server{Handler: s.handler}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", slog.String("addr", s.addr), slog.Any("err", err))
		}
	}()
	return nil
}

func (s *httpServer) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

package protocol

import (
	"context"
	"log/slog"
	"net"

	grpclogging "github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// AdminRPC exposes the standard gRPC health service plus server
// reflection for operators, on its own listener separate from the event
// wire protocol in server.go. It registers no station or attachment RPCs.
type AdminRPC struct {
	dispatch *Dispatcher
	health   *health.Server
	logger   *slog.Logger

	srv *grpc.Server
	ln  net.Listener
}

// NewAdminRPC builds the gRPC server, wiring recovery and structured
// logging interceptors (spec-neutral ambient stack, grounded on the
// teacher's stream-auth interceptor shape in infra/server/grpc).
func NewAdminRPC(addr string, dispatch *Dispatcher, logger *slog.Logger) (*AdminRPC, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	hs := health.NewServer()
	logInterceptor := grpclogging.InterceptorLogger(slogLogger{logger})

	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			recovery.UnaryServerInterceptor(),
			grpclogging.UnaryServerInterceptor(logInterceptor),
		),
		grpc.ChainStreamInterceptor(
			recovery.StreamServerInterceptor(),
			grpclogging.StreamServerInterceptor(logInterceptor),
		),
	)
	grpc_health_v1.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	a := &AdminRPC{dispatch: dispatch, health: hs, logger: logger, srv: srv, ln: ln}
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	return a, nil
}

// Addr returns the bound listening address.
func (a *AdminRPC) Addr() net.Addr { return a.ln.Addr() }

// Serve runs the gRPC server until stop is closed.
func (a *AdminRPC) Serve(stop <-chan struct{}) error {
	go func() {
		<-stop
		a.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
		a.srv.GracefulStop()
	}()
	return a.srv.Serve(a.ln)
}

// slogLogger adapts log/slog to the grpc-middleware logging.Logger
// interface, the same adapter shape go-grpc-middleware's own examples use.
type slogLogger struct {
	l *slog.Logger
}

func (s slogLogger) Log(_ context.Context, level grpclogging.Level, msg string, fields ...any) {
	attrs := make([]any, 0, len(fields))
	for i := 0; i+1 < len(fields); i += 2 {
		attrs = append(attrs, slog.Any(fieldName(fields[i]), fields[i+1]))
	}
	switch level {
	case grpclogging.LevelDebug:
		s.l.Debug(msg, attrs...)
	case grpclogging.LevelInfo:
		s.l.Info(msg, attrs...)
	case grpclogging.LevelWarn:
		s.l.Warn(msg, attrs...)
	case grpclogging.LevelError:
		s.l.Error(msg, attrs...)
	}
}

func fieldName(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return "field"
}

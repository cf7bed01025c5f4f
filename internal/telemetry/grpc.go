package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GRPCServerInterceptor logs every call on slog and turns handler panics into Internal errors.
func GRPCServerInterceptor() grpc.ServerOption {
	opts := []logging.Option{
		logging.WithLogOnEvents(logging.StartCall, logging.FinishCall),
		logging.WithLevels(codeToLevel),
	}

	return grpc.ChainUnaryInterceptor(
		logging.UnaryServerInterceptor(grpcServerLogger(slog.Default()), opts...),
		recovery.UnaryServerInterceptor(recovery.WithRecoveryHandlerContext(recoverPanic)),
	)
}

func grpcServerLogger(l *slog.Logger) logging.Logger {
	return logging.LoggerFunc(func(ctx context.Context, lvl logging.Level, msg string, fields ...any) {
		l.Log(ctx, slog.Level(lvl), msg, fields...)
	})
}

// codeToLevel keeps rejected game actions out of the error log.
func codeToLevel(c codes.Code) logging.Level {
	switch c {
	case codes.OK, codes.InvalidArgument, codes.NotFound, codes.FailedPrecondition,
		codes.ResourceExhausted, codes.Unauthenticated, codes.AlreadyExists:
		return logging.LevelInfo
	case codes.Canceled, codes.DeadlineExceeded:
		return logging.LevelWarn
	default:
		return logging.LevelError
	}
}

func recoverPanic(ctx context.Context, p any) error {
	method, _ := grpc.Method(ctx)
	GRPCPanics.WithLabelValues(method).Inc()
	slog.ErrorContext(ctx, "grpc: handler panic",
		"method", method,
		"error", fmt.Errorf("%v, stack: %s", p, debug.Stack()),
	)

	return status.Error(codes.Internal, "internal error")
}

package handlers

import (
	"context"
	"fmt"
	"runtime/debug"

	grpcauth "github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/auth"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// UnaryInterceptors returns the interceptor chain shared by every service:
// panic recovery first, then request logging, then authentication.
// Extra interceptors (metrics) run between logging and authentication.
func UnaryInterceptors(logger *zap.Logger, sessions SessionProvider, extra ...grpc.UnaryServerInterceptor) []grpc.UnaryServerInterceptor {
	chain := []grpc.UnaryServerInterceptor{
		grpc_recovery.UnaryServerInterceptor(grpc_recovery.WithRecoveryHandlerContext(PanicRecoveryHandler(logger))),
		logging.UnaryServerInterceptor(InterceptorLogger(logger), logging.WithLogOnEvents(logging.FinishCall)),
	}
	chain = append(chain, extra...)
	return append(chain, grpcauth.UnaryServerInterceptor(AuthenticateFunc(sessions)))
}

// PanicRecoveryHandler logs a recovered panic and returns Internal
func PanicRecoveryHandler(logger *zap.Logger) grpc_recovery.RecoveryHandlerFuncContext {
	return func(ctx context.Context, p any) error {
		logger.Error("recovered from panic",
			zap.Error(fmt.Errorf("%v", p)),
			zap.ByteString("stacktrace", debug.Stack()),
		)
		return status.Error(codes.Internal, "internal error")
	}
}

// InterceptorLogger adapts a zap logger to the middleware logging interface
func InterceptorLogger(l *zap.Logger) logging.Logger {
	return logging.LoggerFunc(func(ctx context.Context, lvl logging.Level, msg string, fields ...any) {
		f := make([]zap.Field, 0, len(fields)/2)
		for i := 0; i+1 < len(fields); i += 2 {
			key, ok := fields[i].(string)
			if !ok {
				continue
			}
			switch v := fields[i+1].(type) {
			case string:
				f = append(f, zap.String(key, v))
			case int:
				f = append(f, zap.Int(key, v))
			case bool:
				f = append(f, zap.Bool(key, v))
			default:
				f = append(f, zap.Any(key, v))
			}
		}

		logger := l.WithOptions(zap.AddCallerSkip(1)).With(f...)
		switch lvl {
		case logging.LevelDebug:
			logger.Debug(msg)
		case logging.LevelInfo:
			logger.Info(msg)
		case logging.LevelWarn:
			logger.Warn(msg)
		case logging.LevelError:
			logger.Error(msg)
		default:
			logger.Info(msg, zap.Int("level", int(lvl)))
		}
	})
}

// bearerToken returns the bearer token of the request, or "" when none was sent
func bearerToken(ctx context.Context) (string, error) {
	if len(metadata.ValueFromIncomingContext(ctx, "authorization")) == 0 {
		return "", nil
	}
	return grpcauth.AuthFromMD(ctx, "bearer")
}

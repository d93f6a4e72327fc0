package logger

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
)

func Setup(dev bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	if dev {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			Level(level).With().Caller().Logger()
	}

	return logger
}

// UnaryRequests logs every unary gRPC call with its duration, attaching the
// logger to the call context for handlers further down.
func UnaryRequests(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		started := time.Now()
		ctx = logger.With().Str("method", info.FullMethod).Logger().WithContext(ctx)

		resp, err := handler(ctx, req)

		ev := zerolog.Ctx(ctx).Debug()
		if err != nil {
			ev = zerolog.Ctx(ctx).Error().Err(err)
		}
		ev.Dur("duration", time.Since(started)).Msg("grpc call")

		return resp, err
	}
}

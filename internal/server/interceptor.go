package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/exam-grader/internal/common"
)

const requestIDHeader = "x-request-id"

// LoggingInterceptor tags each call with a request id (taken from the
// x-request-id header or generated) and logs its outcome.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		reqID := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get(requestIDHeader); len(v) > 0 {
				reqID = v[0]
			}
		}
		if reqID == "" {
			reqID = uuid.NewString()
		}
		l := logger.With("request_id", reqID, "method", info.FullMethod)
		ctx = common.WithLogger(common.WithRequestID(ctx, reqID), l)
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDHeader, reqID))

		resp, err := handler(ctx, req)
		code := status.Code(err)
		if err != nil {
			l.Warn("grpc.request", "code", code.String(), "elapsed_ms", time.Since(start).Milliseconds(), "error", err)
		} else {
			l.Info("grpc.request", "code", code.String(), "elapsed_ms", time.Since(start).Milliseconds())
		}
		return resp, err
	}
}

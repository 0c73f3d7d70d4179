package grpc

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/msto63/wiener/pkg/core/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

var interceptorLogger = logging.New("grpc")

type requestIDKey struct{}

// RequestIDHeader carries the request id between orchestrator and provider
const RequestIDHeader = "x-wiener-request-id"

// RecoveryInterceptor turns a panicking operation handler into an Internal
// status so one bad operation cannot take the provider down
func RecoveryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				interceptorLogger.Error("Operation handler panicked",
					"method", info.FullMethod,
					"request_id", RequestID(ctx),
					"panic", r,
					"stack", string(debug.Stack()),
				)
				err = status.Errorf(codes.Internal, "operation panicked: %v", r)
			}
		}()
		return handler(ctx, req)
	}
}

// RequestIDInterceptor adopts the caller's request id, minting one when the
// caller sent none
func RequestIDInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		id := incomingRequestID(ctx)
		if id == "" {
			id = uuid.NewString()
		}
		return handler(WithRequestID(ctx, id), req)
	}
}

// DeadlineInterceptor bounds calls that arrive without a deadline.
// A non-positive limit leaves calls unbounded.
func DeadlineInterceptor(limit time.Duration) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); ok || limit <= 0 {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()
		resp, err := handler(ctx, req)
		if err != nil && ctx.Err() == context.DeadlineExceeded {
			if _, isStatus := status.FromError(err); !isStatus {
				err = status.Error(codes.DeadlineExceeded, err.Error())
			}
		}
		return resp, err
	}
}

// LoggingInterceptor logs every served call at debug level
func LoggingInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		interceptorLogger.Debug("Served call",
			"method", info.FullMethod,
			"request_id", RequestID(ctx),
			"code", status.Code(err).String(),
			"duration", time.Since(start),
		)
		return resp, err
	}
}

// ClientRequestIDInterceptor sends the context's request id along
func ClientRequestIDInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		id := RequestID(ctx)
		if id == "" {
			id = uuid.NewString()
		}
		ctx = metadata.AppendToOutgoingContext(ctx, RequestIDHeader, id)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// ClientLoggingInterceptor logs outgoing provider calls at debug level
func ClientLoggingInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		start := time.Now()
		err := invoker(ctx, method, req, reply, cc, opts...)
		interceptorLogger.Debug("Provider call",
			"target", cc.Target(),
			"method", method,
			"code", status.Code(err).String(),
			"duration", time.Since(start),
		)
		return err
	}
}

// RequestID returns the request id stored in ctx, falling back to the one
// received from the caller
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return incomingRequestID(ctx)
}

// WithRequestID stores id in ctx
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func incomingRequestID(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(RequestIDHeader); len(values) > 0 {
		return values[0]
	}
	return ""
}

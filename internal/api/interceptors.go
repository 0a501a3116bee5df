package api

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"thumbsup/internal/config"
	"thumbsup/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const (
	requestIDMetadataKey = "x-request-id"
	userIDMetadataKey    = "x-user-id"
	userEmailMetadataKey = "x-user-email"
)

type ctxKey int

const (
	sessionKey ctxKey = iota
	apiClientKey
)

// verifiedClient returns the backend whose API key AuthInterceptor accepted.
func verifiedClient(ctx context.Context) (config.APIClientKey, bool) {
	c, ok := ctx.Value(apiClientKey).(config.APIClientKey)
	return c, ok
}

// sessionFromContext returns the caller identity put there by
// IdentityUnaryInterceptor, or an anonymous session.
func sessionFromContext(ctx context.Context) models.Session {
	if s, ok := ctx.Value(sessionKey).(models.Session); ok {
		return s
	}
	return models.Anonymous()
}

// IdentityUnaryInterceptor reads the end user a backend acts for from
// x-user-id / x-user-email. Only a backend whose API key was verified may
// speak for a user; identity headers from anyone else are refused. Malformed
// ids are rejected, a missing id yields an anonymous session.
// It must run after AuthInterceptor.Unary.
func IdentityUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		sess := models.Anonymous()
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if raw := first(md.Get(userIDMetadataKey)); raw != "" {
				if _, trusted := verifiedClient(ctx); !trusted {
					return nil, status.Error(codes.Unauthenticated, "x-user-id requires a verified api key")
				}
				id, err := strconv.ParseInt(raw, 10, 64)
				if err != nil || id <= 0 {
					return nil, status.Error(codes.InvalidArgument, "invalid x-user-id")
				}
				sess = models.NewSession(id, first(md.Get(userEmailMetadataKey)))
			}
		}
		return handler(context.WithValue(ctx, sessionKey, sess), req)
	}
}

// RecoveryUnaryInterceptor turns a handler panic into codes.Internal.
func RecoveryUnaryInterceptor(logger *zerolog.Logger) grpc.UnaryServerInterceptor {
	base := zerolog.Nop()
	if logger != nil {
		base = *logger
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				base.Error().
					Str("method", info.FullMethod).
					Str("panic", fmt.Sprint(r)).
					Bytes("stack", debug.Stack()).
					Msg("grpc handler panic")
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

func LoggingUnaryInterceptor(logger *zerolog.Logger) grpc.UnaryServerInterceptor {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "grpc").Logger()
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		requestID := requestIDFromMetadata(ctx)
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDMetadataKey, requestID))

		start := time.Now()
		resp, err := handler(ctx, req)
		dur := time.Since(start)

		code := status.Code(err)

		remote := clientKeyUnknown
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			remote = p.Addr.String()
		}

		ev := base.Info()
		if code == codes.Internal || code == codes.Unavailable {
			ev = base.Error().Err(err)
		}
		ev.Str("request_id", requestID).
			Str("method", info.FullMethod).
			Str("remote", remote).
			Str("code", code.String()).
			Dur("duration", dur).
			Msg("grpc request")

		return resp, err
	}
}

func requestIDFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if ok {
		if vals := md.Get(requestIDMetadataKey); len(vals) > 0 {
			if id := strings.TrimSpace(vals[0]); id != "" {
				return id
			}
		}
	}
	return uuid.NewString()
}

package grpc

import (
	"context"
	"crypto/subtle"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// TokenMetadataKey carries the feed shared secret.
const TokenMetadataKey = "x-battle-feed-token"

// ServerOptions returns the options for a feed server. An empty token disables authentication.
func ServerOptions(token string) []grpc.ServerOption {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	return []grpc.ServerOption{grpc.ChainStreamInterceptor(SharedSecretInterceptor(token))}
}

// SharedSecretInterceptor rejects streams that do not present the token.
func SharedSecretInterceptor(secret string) grpc.StreamServerInterceptor {
	normalized := strings.TrimSpace(secret)
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if normalized == "" {
			return status.Error(codes.Unauthenticated, "shared secret not configured")
		}
		md, ok := metadata.FromIncomingContext(ss.Context())
		if !ok {
			return status.Error(codes.Unauthenticated, "missing metadata")
		}
		candidate := extractToken(md)
		if candidate == "" {
			return status.Error(codes.Unauthenticated, "missing feed token")
		}
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(normalized)) != 1 {
			return status.Error(codes.Unauthenticated, "invalid feed token")
		}
		return handler(srv, ss)
	}
}

// WithToken attaches the token to an outgoing context.
func WithToken(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, TokenMetadataKey, token)
}

func extractToken(md metadata.MD) string {
	for _, value := range md.Get(TokenMetadataKey) {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	for _, value := range md.Get("authorization") {
		if strings.HasPrefix(strings.ToLower(value), "bearer ") {
			if token := strings.TrimSpace(value[7:]); token != "" {
				return token
			}
		}
	}
	return ""
}

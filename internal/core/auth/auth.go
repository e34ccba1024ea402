// Package auth provides HMAC-based API key authentication for gRPC services.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// contextKey is a typed key for context values to avoid collisions.
type contextKey string

// clientKey is the context key for the authenticated client.
const clientKey = contextKey("client")

// MetadataKey is the gRPC metadata entry carrying the API key.
const MetadataKey = "x-api-key"

// healthPrefix marks methods served without authentication so probes need no key.
const healthPrefix = "/grpc.health.v1."

// Queries defines the database operations needed for authentication.
// Implemented by *db.Queries.
type Queries interface {
	Get(ctx context.Context, name string, dest any, args ...any) error
	Exec(ctx context.Context, name string, args ...any) (sql.Result, error)
}

// Client is the identity behind an authenticated request.
type Client struct {
	APIKeyID string
	Name     string
}

// Authenticator validates API keys using HMAC-SHA256 signatures.
// Holds in-memory secret map for O(1) lookup and queries for key verification.
type Authenticator struct {
	secrets map[string][]byte
	queries Queries
	now     func() time.Time
}

// NewAuthenticator creates an authenticator with HMAC secrets and query interface.
func NewAuthenticator(secrets map[string][]byte, queries Queries) *Authenticator {
	return &Authenticator{
		secrets: secrets,
		queries: queries,
		now:     time.Now,
	}
}

// Authenticate validates apiKey and returns the client it was issued to.
// Returns a specific error for each failure mode.
func (a *Authenticator) Authenticate(ctx context.Context, apiKey string) (Client, error) {
	secretID, _, err := ParseAPIKey(apiKey)
	if err != nil {
		return Client{}, err
	}

	secret, ok := a.secrets[secretID]
	if !ok {
		return Client{}, ErrUnknownKey
	}

	computedHash := ComputeHMAC(secret, apiKey)

	// key_hash is unique, so at most one row matches
	var result struct {
		APIKeyID   string       `db:"api_key_id"`
		Name       string       `db:"name"`
		KeyHash    []byte       `db:"key_hash"`
		RevokedAt  sql.NullTime `db:"revoked_at"`
		LastUsedAt sql.NullTime `db:"last_used_at"`
	}

	err = a.queries.Get(ctx, "get-api-key-by-hash", &result, computedHash)
	if errors.Is(err, sql.ErrNoRows) {
		return Client{}, ErrInvalidKey
	}
	if err != nil {
		return Client{}, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	if !VerifyHMAC(result.KeyHash, computedHash) {
		return Client{}, ErrInvalidKey
	}

	if result.RevokedAt.Valid {
		return Client{}, ErrKeyRevoked
	}

	now := a.now()
	if shouldUpdateLastUsed(result.LastUsedAt, now) {
		_, _ = a.queries.Exec(ctx, "update-last-used", now.UTC(), result.APIKeyID)
	}

	return Client{APIKeyID: result.APIKeyID, Name: result.Name}, nil
}

// shouldUpdateLastUsed throttles last_used_at writes to one per minute per key.
func shouldUpdateLastUsed(lastUsed sql.NullTime, now time.Time) bool {
	if !lastUsed.Valid {
		return true
	}
	return now.Sub(lastUsed.Time) > time.Minute
}

// authorize authenticates the key in ctx metadata and returns ctx carrying the client.
func (a *Authenticator) authorize(ctx context.Context) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing metadata")
	}

	apiKeys := md.Get(MetadataKey)
	if len(apiKeys) == 0 {
		return nil, status.Error(codes.Unauthenticated, ErrMissingKey.Error())
	}

	client, err := a.Authenticate(ctx, apiKeys[0])
	if err != nil {
		switch {
		case errors.Is(err, ErrKeyRevoked):
			return nil, status.Error(codes.PermissionDenied, err.Error())
		case errors.Is(err, ErrDatabase):
			return nil, status.Error(codes.Unavailable, err.Error())
		default:
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
	}

	return context.WithValue(ctx, clientKey, client), nil
}

// UnaryInterceptor returns a gRPC interceptor that authenticates unary requests.
func (a *Authenticator) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if strings.HasPrefix(info.FullMethod, healthPrefix) {
			return handler(ctx, req)
		}
		ctx, err := a.authorize(ctx)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamInterceptor returns a gRPC interceptor that authenticates streaming requests.
func (a *Authenticator) StreamInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if strings.HasPrefix(info.FullMethod, healthPrefix) {
			return handler(srv, ss)
		}
		ctx, err := a.authorize(ss.Context())
		if err != nil {
			return err
		}
		return handler(srv, &authenticatedStream{ServerStream: ss, ctx: ctx})
	}
}

// authenticatedStream overrides Context to carry the authenticated client.
type authenticatedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authenticatedStream) Context() context.Context {
	return s.ctx
}

// ClientFromContext extracts the authenticated client from ctx.
func ClientFromContext(ctx context.Context) (Client, bool) {
	client, ok := ctx.Value(clientKey).(Client)
	return client, ok
}

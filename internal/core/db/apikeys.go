package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrAPIKeyNotFound indicates no active key has the given id.
var ErrAPIKeyNotFound = errors.New("api key not found")

// APIKey is the stored metadata of an API key. The key itself is never stored.
type APIKey struct {
	ID         string       `db:"api_key_id"`
	Name       string       `db:"name"`
	SecretID   string       `db:"secret_id"`
	CreatedAt  time.Time    `db:"created_at"`
	LastUsedAt sql.NullTime `db:"last_used_at"`
	RevokedAt  sql.NullTime `db:"revoked_at"`
}

// InsertAPIKey records a newly issued key by its HMAC hash.
func InsertAPIKey(ctx context.Context, q *Queries, id, name, secretID string, keyHash []byte) error {
	_, err := q.Exec(ctx, "insert-api-key", id, name, secretID, keyHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert api key: %w", err)
	}
	return nil
}

// RevokeAPIKey marks the key revoked. Revoking an unknown or already revoked key returns
// ErrAPIKeyNotFound.
func RevokeAPIKey(ctx context.Context, q *Queries, id string) error {
	res, err := q.Exec(ctx, "revoke-api-key", time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to revoke api key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to revoke api key: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrAPIKeyNotFound, id)
	}
	return nil
}

// ListAPIKeys returns all keys ordered by creation time.
func ListAPIKeys(ctx context.Context, q *Queries) ([]APIKey, error) {
	var keys []APIKey
	if err := q.Select(ctx, "list-api-keys", &keys); err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	return keys, nil
}

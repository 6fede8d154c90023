package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/troopledger/troopledger/internal/shared"
)

const tokenKeyPrefix = "troopledger:token:"

// TokenStore keeps opaque bearer tokens in Redis with a sliding TTL.
type TokenStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTokenStore constructs a TokenStore.
func NewTokenStore(client *redis.Client, ttl time.Duration) *TokenStore {
	return &TokenStore{client: client, ttl: ttl}
}

type tokenRecord struct {
	ID       int64       `json:"id"`
	Username string      `json:"username"`
	Role     shared.Role `json:"role"`
}

// Issue creates a fresh token bound to the principal.
func (s *TokenStore) Issue(ctx context.Context, p shared.Principal) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: generate token: %w", err)
	}
	token := hex.EncodeToString(buf)
	payload, err := json.Marshal(tokenRecord{ID: p.ID, Username: p.Username, Role: p.Role})
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, tokenKeyPrefix+token, payload, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("auth: store token: %w", err)
	}
	return token, nil
}

// Resolve looks the token up and refreshes its TTL.
func (s *TokenStore) Resolve(ctx context.Context, token string) (shared.Principal, error) {
	if token == "" {
		return shared.Principal{}, shared.ErrInvalidCredentials
	}
	payload, err := s.client.Get(ctx, tokenKeyPrefix+token).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return shared.Principal{}, shared.ErrInvalidCredentials
		}
		return shared.Principal{}, err
	}
	var record tokenRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return shared.Principal{}, err
	}
	if !shared.ValidRole(record.Role) {
		return shared.Principal{}, shared.ErrInvalidCredentials
	}
	_ = s.client.Expire(ctx, tokenKeyPrefix+token, s.ttl).Err()
	return shared.Principal{ID: record.ID, Username: record.Username, Role: record.Role}, nil
}

// Revoke deletes the token.
func (s *TokenStore) Revoke(ctx context.Context, token string) error {
	return s.client.Del(ctx, tokenKeyPrefix+token).Err()
}

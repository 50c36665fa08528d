// Package auth is the gate in front of every protected route: it resolves a
// bearer token to an identity or fails closed. Sessions live in redis; the API
// only resolves them on the request path. Minting and revocation belong to the
// external identity service and to the sessionctl command, which share this
// store implementation.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

var (
	ErrUnauthenticated = errors.New("auth: missing or invalid credentials")
	ErrForbidden       = errors.New("auth: insufficient privileges")
)

type Identity struct {
	UserID uuid.UUID `json:"user_id"`
	Role   string    `json:"role"`
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

type Sessions interface {
	Create(ctx context.Context, identity Identity, ttl time.Duration) (token string, err error)
	Resolve(ctx context.Context, token string) (*Identity, error)
	Revoke(ctx context.Context, token string) error
}

type redisSessions struct {
	client *redis.Client
}

func NewRedisSessions(addr string) Sessions {
	return &redisSessions{
		client: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

func sessionKey(token string) string {
	return "attar-shop:session:" + token
}

func (s *redisSessions) Create(ctx context.Context, identity Identity, ttl time.Duration) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("auth: failed to generate session token: %w", err)
	}
	token := hex.EncodeToString(raw)

	payload, err := json.Marshal(identity)
	if err != nil {
		return "", fmt.Errorf("auth: failed to marshal identity: %w", err)
	}

	if err := s.client.Set(ctx, sessionKey(token), payload, ttl).Err(); err != nil {
		return "", fmt.Errorf("auth: failed to store session: %w", err)
	}
	return token, nil
}

func (s *redisSessions) Resolve(ctx context.Context, token string) (*Identity, error) {
	payload, err := s.client.Get(ctx, sessionKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("auth: failed to fetch session: %w", err)
	}

	var identity Identity
	if err := json.Unmarshal([]byte(payload), &identity); err != nil {
		return nil, fmt.Errorf("auth: failed to unmarshal session payload: %w", err)
	}
	return &identity, nil
}

func (s *redisSessions) Revoke(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, sessionKey(token)).Err(); err != nil {
		return fmt.Errorf("auth: failed to revoke session: %w", err)
	}
	return nil
}

// Package session maps opaque bearer tokens to board actors. Tokens are
// issued by the authentication service; this package only stores and
// resolves them.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
)

var ErrSessionNotFound = errors.New("session not found or expired")

const defaultTTL = 30 * 24 * time.Hour

// Actor is the identity a token resolves to.
type Actor struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// RedisStore keeps one key per token hash with the session's expiry as TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "kanban:session:",
	}
}

func (s *RedisStore) key(tokenHash string) string {
	return s.prefix + tokenHash
}

// HashToken is the key material stored for a token; raw tokens never reach
// Redis.
func HashToken(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Issue creates a random token for actor and stores its session.
func (s *RedisStore) Issue(ctx context.Context, actor Actor, ttl time.Duration) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	if err := s.Save(ctx, HashToken(token), actor, time.Now().Add(ttl)); err != nil {
		return "", err
	}
	return token, nil
}

// Save stores actor under tokenHash until expiresAt. A past expiry falls
// back to the default lifetime.
func (s *RedisStore) Save(ctx context.Context, tokenHash string, actor Actor, expiresAt time.Time) error {
	if actor.UserID == "" {
		return errors.New("save session: user id is required")
	}
	if actor.CreatedAt.IsZero() {
		actor.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(actor)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if err := s.client.Set(ctx, s.key(tokenHash), data, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *RedisStore) Lookup(ctx context.Context, tokenHash string) (Actor, error) {
	data, err := s.client.Get(ctx, s.key(tokenHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Actor{}, ErrSessionNotFound
	}
	if err != nil {
		return Actor{}, fmt.Errorf("lookup session: %w", err)
	}

	var actor Actor
	if err := json.Unmarshal(data, &actor); err != nil {
		return Actor{}, fmt.Errorf("unmarshal session: %w", err)
	}
	if actor.UserID == "" {
		return Actor{}, ErrSessionNotFound
	}
	return actor, nil
}

func (s *RedisStore) Revoke(ctx context.Context, tokenHash string) error {
	if err := s.client.Del(ctx, s.key(tokenHash)).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

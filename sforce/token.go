package sforce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Token is an issued API session
type Token struct {
	AccessToken string    `json:"access_token"`
	InstanceURL string    `json:"instance_url"`
	TokenType   string    `json:"token_type"`
	IssuedAt    time.Time `json:"issued_at"`
}

// Valid reports whether the token looks usable. Issued tokens carry no
// expiry; staleness is detected through an invalid-session response and
// handled by re-authenticating.
func (t *Token) Valid() bool {
	return t != nil && t.AccessToken != "" && t.InstanceURL != ""
}

// TokenStore persists issued tokens so a fleet of workers can share one API
// session instead of re-authenticating per process. This stores credentials
// only, never fetched records.
type TokenStore interface {
	// Get returns the stored token, or nil when none is stored
	Get(ctx context.Context) (*Token, error)

	// Put stores a freshly issued token
	Put(ctx context.Context, token *Token) error

	// Clear removes the stored token
	Clear(ctx context.Context) error
}

// MemoryStore is an in-process token store
type MemoryStore struct {
	mu    sync.RWMutex
	token *Token
}

// NewMemoryStore creates an empty in-process token store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get returns the stored token
func (s *MemoryStore) Get(ctx context.Context) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

// Put stores a token
func (s *MemoryStore) Put(ctx context.Context, token *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

// Clear removes the stored token
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = nil
	return nil
}

// RedisStore is a Redis-backed token store
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	// Addr is the Redis server address (host:port)
	Addr string

	// Password is the Redis password (empty if no auth)
	Password string

	// DB is the Redis database number
	DB int

	// Key is the key the token is stored under
	Key string

	// TTL bounds how long a stored token is reused before workers
	// re-authenticate
	TTL time.Duration
}

// DefaultRedisConfig returns default Redis configuration
func DefaultRedisConfig(addr string) *RedisConfig {
	return &RedisConfig{
		Addr: addr,
		Key:  "sforce:token",
		TTL:  90 * time.Minute,
	}
}

// NewRedisStore creates a new Redis token store
func NewRedisStore(config *RedisConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	return NewRedisStoreFromClient(client, config.Key, config.TTL)
}

// NewRedisStoreFromClient creates a Redis token store from an existing client
func NewRedisStoreFromClient(client *redis.Client, key string, ttl time.Duration) *RedisStore {
	if key == "" {
		key = "sforce:token"
	}
	if ttl == 0 {
		ttl = 90 * time.Minute
	}
	return &RedisStore{
		client: client,
		key:    key,
		ttl:    ttl,
	}
}

// Get returns the stored token
func (s *RedisStore) Get(ctx context.Context) (*Token, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token from redis: %w", err)
	}

	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to decode stored token: %w", err)
	}
	return &token, nil
}

// Put stores a token
func (s *RedisStore) Put(ctx context.Context, token *Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store token in redis: %w", err)
	}
	return nil
}

// Clear removes the stored token
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to clear token in redis: %w", err)
	}
	return nil
}

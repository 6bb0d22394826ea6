package store

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"kitabghar/internal/util"
)

const redisSessionPrefix = "kitabghar:session:"

// RedisSessionStore keeps sessions in Redis with TTL, so logins survive
// process restarts.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionStore builds a Redis-backed session store.
func NewRedisSessionStore(addr, password string, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		ttl: ttl,
	}
}

// NewSession writes a token -> userID mapping with TTL.
func (s *RedisSessionStore) NewSession(userID int) (string, error) {
	token := util.NewToken()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.client.Set(ctx, redisSessionPrefix+token, strconv.Itoa(userID), s.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// GetUserIDByToken resolves token to user ID.
func (s *RedisSessionStore) GetUserIDByToken(token string) (int, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	val, err := s.client.Get(ctx, redisSessionPrefix+token).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	uid, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, nil
	}
	return uid, true, nil
}

// DeleteSession removes a token mapping.
func (s *RedisSessionStore) DeleteSession(token string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.client.Del(ctx, redisSessionPrefix+token).Err(); err != nil && err != redis.Nil {
		return err
	}
	return nil
}

package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskboard/models"

	"github.com/redis/go-redis/v9"
)

const redisTimeout = 5 * time.Second

var ErrSessionNotFound = errors.New("session not found")

// OpenRedisPool initializes a Redis connection pool
func OpenRedisPool(ctx context.Context, dsn string) (*redis.Client, error) {
	opt, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis DSN: %w", err)
	}

	opt.PoolSize = 100
	opt.MinIdleConns = 2
	opt.DialTimeout = 5 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opt)
	if err = client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// RedisStore keeps sessions, revoked token ids and password reset codes.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func sessionKey(token string) string       { return "session:" + token }
func userSessionsKey(userID string) string { return "user_sessions:" + userID }
func revokedKey(jti string) string         { return "revoked_jti:" + jti }
func resetKey(email string) string         { return "reset_code:" + normalizeEmail(email) }
func notBeforeKey(userID string) string    { return "tokens_not_before:" + userID }

// StoreSession saves a session in Redis
func (s *RedisStore) StoreSession(ctx context.Context, session models.Session, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	sessionMap := map[string]any{
		"user_id":       session.UserID,
		"created_at":    session.CreatedAt.Format(time.RFC3339),
		"expires_at":    session.ExpiresAt.Format(time.RFC3339),
		"last_activity": session.LastActivity.Format(time.RFC3339),
		"csrf_token":    session.CSRFToken,
		"user_agent":    session.UserAgent,
		"ip_address":    session.IPAddress,
	}

	key := sessionKey(session.Token)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, sessionMap)
	pipe.Expire(ctx, key, ttl)
	pipe.SAdd(ctx, userSessionsKey(session.UserID), key)
	_, err := pipe.Exec(ctx)
	return err
}

// GetSession retrieves session details from Redis
func (s *RedisStore) GetSession(ctx context.Context, token string) (*models.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	data, err := s.client.HGetAll(ctx, sessionKey(token)).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrSessionNotFound
	}

	session := &models.Session{
		Token:     token,
		UserID:    data["user_id"],
		CSRFToken: data["csrf_token"],
		UserAgent: data["user_agent"],
		IPAddress: data["ip_address"],
	}
	session.CreatedAt, _ = time.Parse(time.RFC3339, data["created_at"])
	session.LastActivity, _ = time.Parse(time.RFC3339, data["last_activity"])
	if session.ExpiresAt, err = time.Parse(time.RFC3339, data["expires_at"]); err != nil {
		return nil, fmt.Errorf("corrupt session expiry: %w", err)
	}

	return session, nil
}

// DeleteSession removes a single session and its reference in the user index
func (s *RedisStore) DeleteSession(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	userID, err := s.client.HGet(ctx, sessionKey(token), "user_id").Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.client.SRem(ctx, userSessionsKey(userID), sessionKey(token)).Err(); err != nil {
		return err
	}
	return s.client.Del(ctx, sessionKey(token)).Err()
}

// UpdateLastActivity updates the last activity timestamp of a session
func (s *RedisStore) UpdateLastActivity(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	return s.client.HSet(ctx, sessionKey(token), "last_activity", time.Now().Format(time.RFC3339)).Err()
}

// CountUserSessions returns the number of live sessions in the user's index.
func (s *RedisStore) CountUserSessions(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	keys, err := s.client.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return 0, err
	}
	var count int64
	for _, key := range keys {
		n, err := s.client.Exists(ctx, key).Result()
		if err != nil {
			return 0, err
		}
		count += n
	}
	return count, nil
}

// DeleteAllUserSessions removes all sessions associated with a specific user
func (s *RedisStore) DeleteAllUserSessions(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	sessionKeys, err := s.client.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return err
	}

	if len(sessionKeys) > 0 {
		if err := s.client.Del(ctx, sessionKeys...).Err(); err != nil {
			return err
		}
	}

	return s.client.Del(ctx, userSessionsKey(userID)).Err()
}

// RevokeToken denylists a token id until it would have expired anyway.
func (s *RedisStore) RevokeToken(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	return s.client.Set(ctx, revokedKey(jti), 1, ttl).Err()
}

func (s *RedisStore) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	n, err := s.client.Exists(ctx, revokedKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetNotBefore rejects every token of userID issued before t (millisecond precision).
// ttl should be at least the token lifetime.
func (s *RedisStore) SetNotBefore(ctx context.Context, userID string, t time.Time, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	return s.client.Set(ctx, notBeforeKey(userID), t.UnixMilli(), ttl).Err()
}

// NotBefore returns the cut-off set by SetNotBefore, or the zero time.
func (s *RedisStore) NotBefore(ctx context.Context, userID string) (time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	ms, err := s.client.Get(ctx, notBeforeKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

// SetResetCode stores a password reset code for email, replacing any earlier one.
func (s *RedisStore) SetResetCode(ctx context.Context, email, code string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	return s.client.Set(ctx, resetKey(email), code, ttl).Err()
}

// ConsumeResetCode reports whether code matches the stored one. A matching
// code is deleted so it cannot be used twice.
func (s *RedisStore) ConsumeResetCode(ctx context.Context, email, code string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	stored, err := s.client.Get(ctx, resetKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !ConstantTimeEqual(stored, code) {
		return false, nil
	}
	return true, s.client.Del(ctx, resetKey(email)).Err()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

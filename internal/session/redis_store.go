package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/somalab/autonomic-monitory/internal/record"
)

// RedisStore реализует CacheStore для Redis (Infrastructure Layer)
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore создает новый экземпляр RedisStore
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
	}
}

// NewRedisStoreFromAddr создает RedisStore из адреса с проверкой соединения
func NewRedisStoreFromAddr(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewRedisStore(client, ttl), nil
}

// ===== Ключи Redis =====

func sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s:metadata", sessionID)
}

func latestRecordKey(sessionID string) string {
	return fmt.Sprintf("session:%s:record:latest", sessionID)
}

// ===== Управление сессиями =====

func (r *RedisStore) SetSession(ctx context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	return r.client.Set(ctx, sessionKey(session.ID), data, r.ttl).Err()
}

func (r *RedisStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	data, err := r.client.Get(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("session not found: %s", sessionID)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

func (r *RedisStore) DeleteSession(ctx context.Context, sessionID string) error {
	// Удаляем все ключи, связанные с сессией
	pattern := fmt.Sprintf("session:%s:*", sessionID)

	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	pipe := r.client.Pipeline()

	for iter.Next(ctx) {
		pipe.Del(ctx, iter.Val())
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan keys: %w", err)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// ===== Записи тиков =====

func (r *RedisStore) SetLatestRecord(ctx context.Context, rec *record.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	return r.client.Set(ctx, latestRecordKey(rec.SessionID), data, r.ttl).Err()
}

func (r *RedisStore) GetLatestRecord(ctx context.Context, sessionID string) (*record.Record, error) {
	data, err := r.client.Get(ctx, latestRecordKey(sessionID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("no record for session: %s", sessionID)
		}
		return nil, fmt.Errorf("failed to get latest record: %w", err)
	}

	var rec record.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}

	return &rec, nil
}

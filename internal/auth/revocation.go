package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedKeyPrefix = "greenfill:revoked:"

// RevocationList хранит идентификаторы отозванных токенов в Redis до истечения их срока.
type RevocationList struct {
	client *redis.Client
}

// NewRevocationList подключается к Redis по URL и проверяет соединение.
func NewRevocationList(redisURL string) (*RevocationList, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RevocationList{client: client}, nil
}

// NewRevocationListFromClient оборачивает готовый клиент Redis.
func NewRevocationListFromClient(client *redis.Client) *RevocationList {
	return &RevocationList{client: client}
}

// Revoke помечает токен отозванным на оставшееся время его жизни.
func (l *RevocationList) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := l.client.Set(ctx, revokedKeyPrefix+tokenID, 1, ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// IsRevoked сообщает, был ли токен отозван.
func (l *RevocationList) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := l.client.Exists(ctx, revokedKeyPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return n > 0, nil
}

// Close закрывает соединение с Redis.
func (l *RevocationList) Close() error {
	return l.client.Close()
}

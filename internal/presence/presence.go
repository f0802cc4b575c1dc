// Package presence backs the presence collaborator with Redis so that
// online state survives relay restarts and is visible to other services.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"gorelay/internal/common"
	"gorelay/internal/config"
)

const onlineSetKey = "presence:online"

// Service implements common.Presence on a Redis set of online user ids.
type Service struct {
	client *redis.Client
}

// NewRedisClient builds and pings the Redis connection.
func NewRedisClient(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cannot connect to Redis: %w", err)
	}

	return client, nil
}

func NewService(client *redis.Client) common.Presence {
	return &Service{client: client}
}

func (s *Service) MarkOnline(ctx context.Context, userID string) error {
	return s.client.SAdd(ctx, onlineSetKey, userID).Err()
}

func (s *Service) MarkOffline(ctx context.Context, userID string) error {
	return s.client.SRem(ctx, onlineSetKey, userID).Err()
}

func (s *Service) Status(ctx context.Context, userID string) (string, error) {
	online, err := s.client.SIsMember(ctx, onlineSetKey, userID).Result()
	if err != nil {
		return "", err
	}
	if online {
		return "online", nil
	}
	return "offline", nil
}

// Online lists every currently-online user id.
func (s *Service) Online(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, onlineSetKey).Result()
}

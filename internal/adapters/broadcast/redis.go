package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/okian/bastion/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the redis connection used for cross-process fan-out.
type RedisOptions struct {
	Addr           string
	Password       string
	DB             int
	ConnectTimeout time.Duration // total time allowed for connection attempts
	RetryInterval  time.Duration // initial wait between attempts, doubled up to MaxWait
	MaxWait        time.Duration
}

// ConnectRedis dials redis and pings it until it answers or ConnectTimeout
// runs out.
func ConnectRedis(ctx context.Context, o RedisOptions, log logger.Logger) (*redis.Client, error) {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 30 * time.Second
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = time.Second
	}
	if o.MaxWait <= 0 {
		o.MaxWait = 10 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     o.Addr,
		Password: o.Password,
		DB:       o.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, o.ConnectTimeout)
	defer cancel()

	log.Info(ctx, "connecting to redis",
		logger.String("addr", o.Addr),
		logger.Duration("timeout", o.ConnectTimeout))

	wait := o.RetryInterval
	for attempt := 1; ; attempt++ {
		err := client.Ping(ctx).Err()
		if err == nil {
			log.Info(ctx, "connected to redis",
				logger.String("addr", o.Addr),
				logger.Int("attempts", attempt))
			return client, nil
		}
		log.Warn(ctx, "redis connection failed, retrying",
			logger.String("addr", o.Addr),
			logger.Int("attempt", attempt),
			logger.Duration("next_retry_in", wait),
			logger.Error(err))

		select {
		case <-ctx.Done():
			_ = client.Close()
			return nil, fmt.Errorf("redis %s unavailable after %d attempts: %w", o.Addr, attempt, err)
		case <-time.After(wait):
		}
		wait = min(wait*2, o.MaxWait)
	}
}

// RedisPublisher publishes notifications on the match:<id> pub/sub channel.
type RedisPublisher struct {
	client redis.UniversalClient
}

var _ Publisher = (*RedisPublisher)(nil)

// NewRedisPublisher wraps a connected client.
func NewRedisPublisher(client redis.UniversalClient) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, matchID, state string) error {
	payload, err := json.Marshal(newNotification(matchID, state))
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := p.client.Publish(ctx, Channel(matchID), payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", Channel(matchID), err)
	}
	return nil
}

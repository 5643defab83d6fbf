package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

func RecordingLinkKey(sessionID string) string {
	return fmt.Sprintf("recording:%s", sessionID)
}

func CallLogClaimKey(sessionID string) string {
	return fmt.Sprintf("calllog:claim:%s", sessionID)
}

func MessageLogClaimKey(messageID string) string {
	return fmt.Sprintf("messagelog:claim:%s", messageID)
}

func UserRateLimitKey(userID string) string {
	return fmt.Sprintf("ratelimit:user:%s", userID)
}

func IPRateLimitKey(route, ip string) string {
	return fmt.Sprintf("ratelimit:ip:%s:%s", route, ip)
}

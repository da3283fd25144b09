// Package redis backs the capture task queue with a Redis list.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ErlanBelekov/court-capture/internal/queue"
	goredis "github.com/redis/go-redis/v9"
)

const (
	DefaultKey         = "capture:tasks"
	defaultPollTimeout = 2 * time.Second
)

// NewClient parses a redis:// URL and verifies the server answers.
func NewClient(ctx context.Context, redisURL string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Queue pushes tasks with LPUSH and pops them with BRPOP, so the list is FIFO.
type Queue struct {
	client      *goredis.Client
	key         string
	pollTimeout time.Duration
}

func NewQueue(client *goredis.Client, key string) *Queue {
	if key == "" {
		key = DefaultKey
	}
	return &Queue{client: client, key: key, pollTimeout: defaultPollTimeout}
}

func (q *Queue) Enqueue(ctx context.Context, t queue.Task) error {
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, b).Err(); err != nil {
		return fmt.Errorf("push task: %w", err)
	}
	return nil
}

func (q *Queue) Dequeue(ctx context.Context) (queue.Task, error) {
	for {
		if err := ctx.Err(); err != nil {
			return queue.Task{}, err
		}
		res, err := q.client.BRPop(ctx, q.pollTimeout, q.key).Result()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return queue.Task{}, ctx.Err()
			}
			return queue.Task{}, fmt.Errorf("pop task: %w", err)
		}
		// res is [key, value]
		var t queue.Task
		if err := json.Unmarshal([]byte(res[1]), &t); err != nil {
			return queue.Task{}, fmt.Errorf("decode task: %w", err)
		}
		return t, nil
	}
}

// Len reports queued tasks.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// Ping satisfies health.Pinger.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// StreamAdder is the part of a redis client used by RedisSink.
// *redis.Client and *redis.ClusterClient satisfy it.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisSink appends records to redis streams named <prefix>:<class>.
// The entry has a single "data" field holding the JSON encoded data.
type RedisSink struct {
	client StreamAdder
	prefix string
	maxLen int64
}

// RedisOption configures a RedisSink.
type RedisOption func(*RedisSink)

// WithPrefix sets the stream name prefix (default "afb").
func WithPrefix(p string) RedisOption {
	return func(s *RedisSink) {
		s.prefix = p
	}
}

// WithMaxLen caps streams to about n entries. Zero keeps everything.
func WithMaxLen(n int64) RedisOption {
	return func(s *RedisSink) {
		s.maxLen = n
	}
}

// NewRedisSink creates a sink writing through client.
func NewRedisSink(client StreamAdder, opts ...RedisOption) *RedisSink {
	s := &RedisSink{client: client, prefix: "afb"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stream returns the stream receiving records of class.
func (s *RedisSink) Stream(class string) string {
	if s.prefix == "" {
		return class
	}
	return s.prefix + ":" + class
}

// Insert adds rec to its stream. An empty or "*" timestamp lets redis
// assign the entry id; any other value is used as the id.
func (s *RedisSink) Insert(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", rec.Class, err)
	}

	id := rec.Timestamp
	if id == "" {
		id = AutoTimestamp
	}
	args := &redis.XAddArgs{
		Stream: s.Stream(rec.Class),
		ID:     id,
		Values: map[string]any{"data": string(data)},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", args.Stream, err)
	}
	return nil
}

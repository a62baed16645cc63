package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sonopix/pkg/models"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/redis/go-redis/v9"
)

// RedisStore shares job state between server instances through Redis.
// Job records are JSON, result blobs are zstd-compressed.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// RedisStoreConfig holds configuration for the Redis job store
type RedisStoreConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// NewRedisStore creates a new Redis-backed job store
func NewRedisStore(config RedisStoreConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := config.Prefix
	if prefix == "" {
		prefix = "sonopix:jobs:"
	}

	ttl := config.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return &RedisStore{
		client:  client,
		prefix:  prefix,
		ttl:     ttl,
		encoder: encoder,
		decoder: decoder,
	}, nil
}

func (s *RedisStore) jobKey(id uuid.UUID) string {
	return s.prefix + "job:" + id.String()
}

func (s *RedisStore) resultKey(id uuid.UUID) string {
	return s.prefix + "result:" + id.String()
}

// Save writes the job record with the store TTL
func (s *RedisStore) Save(ctx context.Context, job *models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := s.client.Set(ctx, s.jobKey(job.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

// Get reads a job record
func (s *RedisStore) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	data, err := s.client.Get(ctx, s.jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to read job: %w", err)
	}

	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		// Record corrupted, drop it
		s.client.Del(ctx, s.jobKey(id))
		return nil, models.ErrJobNotFound
	}
	return &job, nil
}

// SaveResult compresses and stores the result blob
func (s *RedisStore) SaveResult(ctx context.Context, id uuid.UUID, data []byte) error {
	compressed := s.encoder.EncodeAll(data, make([]byte, 0, len(data)/2))
	if err := s.client.Set(ctx, s.resultKey(id), compressed, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save job result: %w", err)
	}
	return nil
}

// TakeResult atomically reads and deletes the result blob
func (s *RedisStore) TakeResult(ctx context.Context, id uuid.UUID) ([]byte, error) {
	compressed, err := s.client.GetDel(ctx, s.resultKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrJobResultConsumed
		}
		return nil, fmt.Errorf("failed to read job result: %w", err)
	}

	data, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress job result: %w", err)
	}
	return data, nil
}

// Delete removes the job record and result
func (s *RedisStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.client.Del(ctx, s.jobKey(id), s.resultKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

// Close releases the codec and the Redis connection
func (s *RedisStore) Close() error {
	s.decoder.Close()
	_ = s.encoder.Close()
	return s.client.Close()
}

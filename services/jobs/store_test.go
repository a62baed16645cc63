package jobs

import (
	"bytes"
	"context"
	"testing"
	"time"

	"sonopix/pkg/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJob() *models.Job {
	return &models.Job{
		ID:         uuid.New(),
		Direction:  models.DirectionEncrypt,
		Status:     models.JobStatusRunning,
		Progress:   42,
		Format:     "png",
		InputBytes: 1024,
		CreatedAt:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	store, err := NewRedisStore(RedisStoreConfig{
		Addr:   s.Addr(),
		Prefix: "test:jobs:",
		TTL:    2 * time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, s
}

func storesUnderTest(t *testing.T) map[string]Store {
	redisStore, _ := newRedisStore(t)
	return map[string]Store{
		"memory": NewMemoryStore(time.Minute),
		"redis":  redisStore,
	}
}

func TestStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			job := newTestJob()
			require.NoError(t, store.Save(ctx, job))

			got, err := store.Get(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, job.ID, got.ID)
			assert.Equal(t, job.Status, got.Status)
			assert.Equal(t, 42, got.Progress)
			assert.True(t, job.CreatedAt.Equal(got.CreatedAt))

			// Mutating the returned copy leaves the store untouched
			got.Progress = 99
			again, err := store.Get(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, 42, again.Progress)
		})
	}
}

func TestStore_GetUnknown(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(ctx, uuid.New())
			assert.ErrorIs(t, err, models.ErrJobNotFound)
		})
	}
}

func TestStore_ResultTakenOnce(t *testing.T) {
	ctx := context.Background()
	payload := bytes.Repeat([]byte("sonopix result "), 1000)

	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			id := uuid.New()
			require.NoError(t, store.SaveResult(ctx, id, payload))

			got, err := store.TakeResult(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, payload, got)

			_, err = store.TakeResult(ctx, id)
			assert.ErrorIs(t, err, models.ErrJobResultConsumed)
		})
	}
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			job := newTestJob()
			require.NoError(t, store.Save(ctx, job))
			require.NoError(t, store.SaveResult(ctx, job.ID, []byte("x")))

			require.NoError(t, store.Delete(ctx, job.ID))

			_, err := store.Get(ctx, job.ID)
			assert.ErrorIs(t, err, models.ErrJobNotFound)
			_, err = store.TakeResult(ctx, job.ID)
			assert.ErrorIs(t, err, models.ErrJobResultConsumed)
		})
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }

	job := newTestJob()
	require.NoError(t, store.Save(ctx, job))
	require.NoError(t, store.SaveResult(ctx, job.ID, []byte("out")))

	store.now = func() time.Time { return base.Add(2 * time.Minute) }

	_, err := store.Get(ctx, job.ID)
	assert.ErrorIs(t, err, models.ErrJobNotFound)
	_, err = store.TakeResult(ctx, job.ID)
	assert.ErrorIs(t, err, models.ErrJobResultConsumed)

	// A later save purges the expired entry
	require.NoError(t, store.Save(ctx, newTestJob()))
	assert.Len(t, store.jobs, 1)
}

func TestRedisStore_TTLAndCompression(t *testing.T) {
	ctx := context.Background()
	store, s := newRedisStore(t)

	job := newTestJob()
	require.NoError(t, store.Save(ctx, job))

	payload := bytes.Repeat([]byte{0xAB}, 64*1024)
	require.NoError(t, store.SaveResult(ctx, job.ID, payload))

	raw, err := s.Get("test:jobs:result:" + job.ID.String())
	require.NoError(t, err)
	assert.Less(t, len(raw), len(payload)/10, "result blob should be compressed")
	assert.Equal(t, 2*time.Minute, s.TTL("test:jobs:job:"+job.ID.String()))

	s.FastForward(3 * time.Minute)
	_, err = store.Get(ctx, job.ID)
	assert.ErrorIs(t, err, models.ErrJobNotFound)
}

func TestRedisStore_CorruptRecord(t *testing.T) {
	ctx := context.Background()
	store, s := newRedisStore(t)

	id := uuid.New()
	require.NoError(t, s.Set("test:jobs:job:"+id.String(), "{not json"))

	_, err := store.Get(ctx, id)
	assert.ErrorIs(t, err, models.ErrJobNotFound)
	assert.False(t, s.Exists("test:jobs:job:"+id.String()))
}

func TestNewRedisStore_ConnectionFailure(t *testing.T) {
	s := miniredis.RunT(t)
	addr := s.Addr()
	s.Close()

	_, err := NewRedisStore(RedisStoreConfig{Addr: addr})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to Redis")
}

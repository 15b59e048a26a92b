package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/model"
)

const prewarmConcurrency = 4

// ExamSource is the authoritative exam catalog behind the cache.
type ExamSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	ListPublishedIDs(ctx context.Context) ([]uuid.UUID, error)
}

// CachedExamRepository is a read-through Redis cache in front of an ExamSource.
// Exam definitions are read on every taker request, so they are kept in
// Redis and warmed on startup.
type CachedExamRepository struct {
	source ExamSource
	rdb    *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewCachedExamRepository creates a new CachedExamRepository.
func NewCachedExamRepository(source ExamSource, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *CachedExamRepository {
	return &CachedExamRepository{
		source: source,
		rdb:    rdb,
		ttl:    ttl,
		log:    log.With().Str("component", "exam_cache").Logger(),
	}
}

// GetByID serves from Redis, falling back to the source on a miss or a
// Redis failure.
func (c *CachedExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	key := config.CacheKey.ExamDefinitionKey(id.String())

	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var exam model.Exam
		if err := json.Unmarshal(data, &exam); err == nil {
			return &exam, nil
		}
		c.log.Warn().Str("exam_id", id.String()).Msg("Discarding undecodable cached exam")
	case !errors.Is(err, redis.Nil):
		c.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Exam cache read failed, using database")
	}

	exam, err := c.source.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.store(ctx, exam); err != nil {
		c.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Failed to cache exam")
	}
	return exam, nil
}

// ListPublishedIDs always reads the source.
func (c *CachedExamRepository) ListPublishedIDs(ctx context.Context) ([]uuid.UUID, error) {
	return c.source.ListPublishedIDs(ctx)
}

// Warm reloads one exam from the source into Redis.
func (c *CachedExamRepository) Warm(ctx context.Context, id uuid.UUID) error {
	exam, err := c.source.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := c.store(ctx, exam); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}
	c.log.Debug().
		Str("exam_id", id.String()).
		Int("questions", len(exam.Questions)).
		Msg("Cache warmed")
	return nil
}

// PrewarmAll loads every published exam into Redis on application startup.
// Individual failures are logged and skipped.
func (c *CachedExamRepository) PrewarmAll(ctx context.Context) (int, error) {
	ids, err := c.source.ListPublishedIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list published exams: %w", err)
	}
	if len(ids) == 0 {
		c.log.Info().Msg("No published exams to prewarm")
		return 0, nil
	}

	c.log.Info().Int("count", len(ids)).Msg("Prewarming published exams...")

	results := make([]bool, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(prewarmConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			if err := c.Warm(gctx, id); err != nil {
				c.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Failed to warm exam, skipping")
				return nil
			}
			results[i] = true
			return nil
		})
	}
	_ = g.Wait()

	warmed := 0
	for _, ok := range results {
		if ok {
			warmed++
		}
	}
	c.log.Info().
		Int("warmed", warmed).
		Int("total", len(ids)).
		Msg("Prewarming complete")
	return warmed, nil
}

// Invalidate drops the cached copy of an exam.
func (c *CachedExamRepository) Invalidate(ctx context.Context, id uuid.UUID) error {
	return c.rdb.Del(ctx, config.CacheKey.ExamDefinitionKey(id.String())).Err()
}

func (c *CachedExamRepository) store(ctx context.Context, exam *model.Exam) error {
	data, err := json.Marshal(exam)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, config.CacheKey.ExamDefinitionKey(exam.ID.String()), data, c.ttl).Err()
}

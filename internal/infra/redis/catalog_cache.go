package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"time"

	"contest-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// CatalogLoader fetches the question catalog from a backing store.
type CatalogLoader interface {
	LoadQuestions(ctx context.Context) ([]domain.Question, error)
}

// catalogKey is a Redis hash: HSET questions:catalog {questionID} {json}.
const catalogKey = "questions:catalog"

// CatalogCache caches the question catalog in Redis and falls back to a
// loader on cache miss.
type CatalogCache struct {
	client *redis.Client
	loader CatalogLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewCatalogCache(client *redis.Client, loader CatalogLoader, ttl time.Duration) *CatalogCache {
	return &CatalogCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *CatalogCache) Questions(ctx context.Context) ([]domain.Question, error) {
	entries, err := c.client.HGetAll(ctx, catalogKey).Result()
	if err == nil && len(entries) > 0 {
		return decodeCatalog(entries)
	}

	result, err, _ := c.sf.Do(catalogKey, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		entries, err := c.client.HGetAll(ctx, catalogKey).Result()
		if err == nil && len(entries) > 0 {
			questions, err := decodeCatalog(entries)
			if err != nil {
				return nil, err
			}
			return questions, nil
		}

		questions, err := c.loader.LoadQuestions(ctx)
		if err != nil {
			return nil, err
		}

		pipe := c.client.Pipeline()
		for _, q := range questions {
			data, err := json.Marshal(q)
			if err != nil {
				return nil, fmt.Errorf("encode question %d: %w", q.ID, err)
			}
			pipe.HSet(ctx, catalogKey, strconv.FormatInt(q.ID, 10), data)
		}
		if ttl := c.ttlWithJitter(); ttl > 0 {
			pipe.Expire(ctx, catalogKey, ttl)
		}
		_, _ = pipe.Exec(ctx)

		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func decodeCatalog(entries map[string]string) ([]domain.Question, error) {
	questions := make([]domain.Question, 0, len(entries))
	for _, raw := range entries {
		var q domain.Question
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return nil, fmt.Errorf("decode question: %w", err)
		}
		questions = append(questions, q)
	}
	// hash iteration order is unstable
	sort.Slice(questions, func(i, j int) bool { return questions[i].ID < questions[j].ID })
	return questions, nil
}

func (c *CatalogCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

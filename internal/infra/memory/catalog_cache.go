package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"contest-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// CatalogLoader fetches the question catalog from a backing store.
type CatalogLoader interface {
	LoadQuestions(ctx context.Context) ([]domain.Question, error)
}

// CatalogCache caches the immutable question catalog with a TTL to avoid
// repeated DB hits on every draw.
type CatalogCache struct {
	loader CatalogLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu        sync.RWMutex
	questions []domain.Question
	expiresAt time.Time
}

func NewCatalogCache(loader CatalogLoader, ttl time.Duration) *CatalogCache {
	return &CatalogCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *CatalogCache) Questions(ctx context.Context) ([]domain.Question, error) {
	now := c.clock()

	c.mu.RLock()
	if c.questions != nil && c.expiresAt.After(now) {
		questions := c.questions
		c.mu.RUnlock()
		return questions, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do("catalog", func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if c.questions != nil && c.expiresAt.After(now) {
			questions := c.questions
			c.mu.RUnlock()
			return questions, nil
		}
		c.mu.RUnlock()

		questions, err := c.loader.LoadQuestions(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.questions = questions
		c.expiresAt = now.Add(c.ttlWithJitter())
		c.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *CatalogCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// StaticCatalogLoader serves a fixed question set (useful for tests/demos).
type StaticCatalogLoader struct {
	questions []domain.Question
}

func NewStaticCatalogLoader(questions []domain.Question) *StaticCatalogLoader {
	return &StaticCatalogLoader{questions: questions}
}

func (l *StaticCatalogLoader) LoadQuestions(_ context.Context) ([]domain.Question, error) {
	return l.questions, nil
}

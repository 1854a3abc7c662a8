package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"exam-attempt-service/internal/domain"
)

// PaperLoader fetches paper content from a backing store (e.g., document DB).
type PaperLoader interface {
	FindPaper(ctx context.Context, paperID string) (domain.Paper, error)
}

// PaperCache is a read-through Redis cache in front of a PaperLoader.
// Papers are stored whole as JSON under paper:{paperID}; the snapshot
// builder needs prompts and every option, so nothing lighter would do.
// A negative-result marker is not kept: unknown papers are rare and cheap.
type PaperCache struct {
	client *redis.Client
	loader PaperLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewPaperCache(client *redis.Client, loader PaperLoader, ttl time.Duration) *PaperCache {
	return &PaperCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *PaperCache) FindPaper(ctx context.Context, paperID string) (domain.Paper, error) {
	key := c.key(paperID)

	if paper, ok := c.cached(ctx, key); ok {
		return paper, nil
	}

	result, err, _ := c.sf.Do(paperID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if paper, ok := c.cached(ctx, key); ok {
			return paper, nil
		}

		paper, err := c.loader.FindPaper(ctx, paperID)
		if err != nil {
			return domain.Paper{}, err
		}

		if data, err := json.Marshal(paper); err == nil {
			_ = c.client.Set(ctx, key, data, c.ttlWithJitter()).Err()
		}
		return paper, nil
	})
	if err != nil {
		return domain.Paper{}, err
	}
	return result.(domain.Paper), nil
}

func (c *PaperCache) cached(ctx context.Context, key string) (domain.Paper, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return domain.Paper{}, false
	}
	var paper domain.Paper
	if err := json.Unmarshal(data, &paper); err != nil {
		return domain.Paper{}, false
	}
	return paper, true
}

func (c *PaperCache) key(paperID string) string {
	return "paper:" + paperID
}

func (c *PaperCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

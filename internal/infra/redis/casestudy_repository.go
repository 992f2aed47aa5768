package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"caselab-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// CaseStudyLoader fetches case study content from the backing store.
type CaseStudyLoader interface {
	LoadCaseStudy(ctx context.Context, id string) (domain.CaseStudy, error)
}

// CaseStudyRepository caches whole case studies as JSON in Redis and falls
// back to the loader on a miss. Content is stored as:
// SET casestudy:{id}:data {json} EX {ttl}
type CaseStudyRepository struct {
	client *redis.Client
	loader CaseStudyLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewCaseStudyRepository(client *redis.Client, loader CaseStudyLoader, ttl time.Duration) *CaseStudyRepository {
	return &CaseStudyRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *CaseStudyRepository) GetCaseStudy(ctx context.Context, id string) (domain.CaseStudy, error) {
	key := r.dataKey(id)

	raw, err := r.client.Get(ctx, key).Result()
	if err == nil && raw != "" {
		var cs domain.CaseStudy
		if uerr := json.Unmarshal([]byte(raw), &cs); uerr == nil {
			return cs, nil
		}
		// Corrupt cache entry; fall through to the loader and rewrite it.
	}

	result, err, _ := r.sf.Do(id, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		raw, err := r.client.Get(ctx, key).Result()
		if err == nil && raw != "" {
			var cs domain.CaseStudy
			if uerr := json.Unmarshal([]byte(raw), &cs); uerr == nil {
				return cs, nil
			}
		}

		cs, err := r.loader.LoadCaseStudy(ctx, id)
		if err != nil {
			return domain.CaseStudy{}, err
		}

		if data, merr := json.Marshal(cs); merr == nil {
			_ = r.client.Set(ctx, key, data, r.ttlWithJitter()).Err()
		}
		return cs, nil
	})
	if err != nil {
		return domain.CaseStudy{}, err
	}
	return result.(domain.CaseStudy), nil
}

// Invalidate drops the cached copy after an authoring edit.
func (r *CaseStudyRepository) Invalidate(ctx context.Context, id string) {
	_ = r.client.Del(ctx, r.dataKey(id)).Err()
}

func (r *CaseStudyRepository) dataKey(id string) string {
	return "casestudy:" + id + ":data"
}

func (r *CaseStudyRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

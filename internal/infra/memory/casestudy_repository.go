package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"caselab-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// CaseStudyLoader fetches case study content from a backing store.
type CaseStudyLoader interface {
	LoadCaseStudy(ctx context.Context, id string) (domain.CaseStudy, error)
}

// CaseStudyRepository caches case studies with TTL to avoid repeated DB hits
// on the hot session path.
type CaseStudyRepository struct {
	loader CaseStudyLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedCaseStudy
}

type cachedCaseStudy struct {
	caseStudy domain.CaseStudy
	expiresAt time.Time
}

func NewCaseStudyRepository(loader CaseStudyLoader, ttl time.Duration) *CaseStudyRepository {
	return &CaseStudyRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedCaseStudy),
	}
}

func (r *CaseStudyRepository) GetCaseStudy(ctx context.Context, id string) (domain.CaseStudy, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[id]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.caseStudy, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(id, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[id]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.caseStudy, nil
		}
		r.mu.RUnlock()

		cs, err := r.loader.LoadCaseStudy(ctx, id)
		if err != nil {
			return domain.CaseStudy{}, err
		}

		r.mu.Lock()
		r.cache[id] = cachedCaseStudy{
			caseStudy: cs,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return cs, nil
	})
	if err != nil {
		return domain.CaseStudy{}, err
	}
	return result.(domain.CaseStudy), nil
}

// Invalidate drops a cached entry after an authoring edit.
func (r *CaseStudyRepository) Invalidate(id string) {
	r.mu.Lock()
	delete(r.cache, id)
	r.mu.Unlock()
}

func (r *CaseStudyRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticCaseStudyLoader is a simple loader backed by an in-memory map (useful
// for tests/demos).
type StaticCaseStudyLoader struct {
	caseStudies map[string]domain.CaseStudy
}

func NewStaticCaseStudyLoader(caseStudies map[string]domain.CaseStudy) *StaticCaseStudyLoader {
	return &StaticCaseStudyLoader{caseStudies: caseStudies}
}

func (l *StaticCaseStudyLoader) LoadCaseStudy(_ context.Context, id string) (domain.CaseStudy, error) {
	if cs, ok := l.caseStudies[id]; ok {
		return cs, nil
	}
	return domain.CaseStudy{}, domain.ErrCaseStudyNotFound
}

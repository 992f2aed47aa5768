package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"caselab-service/internal/domain"
)

type countingLoader struct {
	loads int
	cs    domain.CaseStudy
}

func (l *countingLoader) LoadCaseStudy(_ context.Context, id string) (domain.CaseStudy, error) {
	l.loads++
	if id != l.cs.ID {
		return domain.CaseStudy{}, domain.ErrCaseStudyNotFound
	}
	return l.cs, nil
}

func TestCaseStudyRepositoryCachesWithinTTL(t *testing.T) {
	ctx := context.Background()
	loader := &countingLoader{cs: domain.CaseStudy{ID: "cs-1", Title: "Cached"}}
	repo := NewCaseStudyRepository(loader, time.Minute)

	for i := 0; i < 3; i++ {
		cs, err := repo.GetCaseStudy(ctx, "cs-1")
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		if cs.Title != "Cached" {
			t.Fatalf("unexpected case study: %+v", cs)
		}
	}
	if loader.loads != 1 {
		t.Fatalf("expected a single backing load, got %d", loader.loads)
	}
}

func TestCaseStudyRepositoryInvalidate(t *testing.T) {
	ctx := context.Background()
	loader := &countingLoader{cs: domain.CaseStudy{ID: "cs-1", Title: "Cached"}}
	repo := NewCaseStudyRepository(loader, time.Minute)

	if _, err := repo.GetCaseStudy(ctx, "cs-1"); err != nil {
		t.Fatalf("get: %v", err)
	}
	repo.Invalidate("cs-1")
	if _, err := repo.GetCaseStudy(ctx, "cs-1"); err != nil {
		t.Fatalf("get after invalidate: %v", err)
	}
	if loader.loads != 2 {
		t.Fatalf("expected reload after invalidate, got %d loads", loader.loads)
	}
}

func TestCaseStudyRepositoryMissesAreNotCached(t *testing.T) {
	ctx := context.Background()
	loader := &countingLoader{cs: domain.CaseStudy{ID: "cs-1"}}
	repo := NewCaseStudyRepository(loader, time.Minute)

	if _, err := repo.GetCaseStudy(ctx, "missing"); !errors.Is(err, domain.ErrCaseStudyNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
	if _, err := repo.GetCaseStudy(ctx, "missing"); !errors.Is(err, domain.ErrCaseStudyNotFound) {
		t.Fatalf("expected not-found again, got %v", err)
	}
	if loader.loads != 2 {
		t.Fatalf("misses must hit the loader every time, got %d", loader.loads)
	}
}

func TestCaseStudyRepositoryExpiry(t *testing.T) {
	ctx := context.Background()
	loader := &countingLoader{cs: domain.CaseStudy{ID: "cs-1", Title: "Cached"}}
	repo := NewCaseStudyRepository(loader, time.Minute)

	current := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	repo.clock = func() time.Time { return current }

	if _, err := repo.GetCaseStudy(ctx, "cs-1"); err != nil {
		t.Fatalf("get: %v", err)
	}

	// Past the TTL plus maximum jitter: the entry must be stale.
	current = current.Add(2 * time.Minute)
	if _, err := repo.GetCaseStudy(ctx, "cs-1"); err != nil {
		t.Fatalf("get after expiry: %v", err)
	}
	if loader.loads != 2 {
		t.Fatalf("expected reload after expiry, got %d loads", loader.loads)
	}
}

package app

import (
	"context"

	"github.com/google/uuid"

	"caselab-service/internal/domain"
)

// CaseStudyStore is the authoring store for case study content.
type CaseStudyStore interface {
	Create(ctx context.Context, cs *domain.CaseStudy) error
	Get(ctx context.Context, id string) (domain.CaseStudy, error)
	Update(ctx context.Context, cs *domain.CaseStudy) error
	ListByTeacher(ctx context.Context, teacherID string) ([]domain.CaseStudy, error)
}

// CaseStudyService covers the authoring use cases. TotalPoints is recomputed
// on every write so it can never drift from the section contents.
type CaseStudyService struct {
	store CaseStudyStore
}

func NewCaseStudyService(store CaseStudyStore) *CaseStudyService {
	return &CaseStudyService{store: store}
}

// Save validates and persists a case study, filling in missing IDs and section
// order for freshly authored content.
func (s *CaseStudyService) Save(ctx context.Context, cs domain.CaseStudy) (domain.CaseStudy, error) {
	normalizeCaseStudy(&cs)
	if err := cs.Validate(); err != nil {
		return domain.CaseStudy{}, err
	}
	cs.RecomputeTotalPoints()

	if cs.ID == "" {
		cs.ID = uuid.NewString()
		if err := s.store.Create(ctx, &cs); err != nil {
			return domain.CaseStudy{}, err
		}
		return cs, nil
	}
	if err := s.store.Update(ctx, &cs); err != nil {
		return domain.CaseStudy{}, err
	}
	return cs, nil
}

func (s *CaseStudyService) Get(ctx context.Context, id string) (domain.CaseStudy, error) {
	return s.store.Get(ctx, id)
}

func (s *CaseStudyService) ListByTeacher(ctx context.Context, teacherID string) ([]domain.CaseStudy, error) {
	return s.store.ListByTeacher(ctx, teacherID)
}

// Archive hides a case study from the teacher's active list without deleting
// the history behind past sessions.
func (s *CaseStudyService) Archive(ctx context.Context, id string, archived bool) (domain.CaseStudy, error) {
	cs, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.CaseStudy{}, err
	}
	cs.Archived = archived
	if err := s.store.Update(ctx, &cs); err != nil {
		return domain.CaseStudy{}, err
	}
	return cs, nil
}

// normalizeCaseStudy assigns IDs and rewrites section order to the array
// index, so hand-authored payloads with gaps still satisfy the contiguity
// invariant.
func normalizeCaseStudy(cs *domain.CaseStudy) {
	for i := range cs.Sections {
		section := &cs.Sections[i]
		section.Order = i
		if section.ID == "" {
			section.ID = uuid.NewString()
		}
		for j := range section.Questions {
			if section.Questions[j].ID == "" {
				section.Questions[j].ID = uuid.NewString()
			}
		}
	}
}

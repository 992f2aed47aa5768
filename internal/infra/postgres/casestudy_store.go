package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"caselab-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// CaseStudyStore persists case studies as JSONB documents. It also implements
// the CaseStudyLoader interfaces so it can sit behind the caching
// repositories.
type CaseStudyStore struct {
	pool *pgxpool.Pool
}

func NewCaseStudyStore(pool *pgxpool.Pool) *CaseStudyStore {
	return &CaseStudyStore{pool: pool}
}

func (s *CaseStudyStore) Create(ctx context.Context, cs *domain.CaseStudy) error {
	data, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("marshal case study: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO case_studies (id, teacher_id, archived, data) VALUES ($1, $2, $3, $4)`,
		cs.ID, cs.TeacherID, cs.Archived, data)
	if err != nil {
		return fmt.Errorf("insert case study: %w", err)
	}
	return nil
}

func (s *CaseStudyStore) Get(ctx context.Context, id string) (domain.CaseStudy, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM case_studies WHERE id=$1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CaseStudy{}, domain.ErrCaseStudyNotFound
	}
	if err != nil {
		return domain.CaseStudy{}, fmt.Errorf("load case study: %w", err)
	}
	var cs domain.CaseStudy
	if err := json.Unmarshal(raw, &cs); err != nil {
		return domain.CaseStudy{}, fmt.Errorf("unmarshal case study: %w", err)
	}
	return cs, nil
}

func (s *CaseStudyStore) Update(ctx context.Context, cs *domain.CaseStudy) error {
	data, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("marshal case study: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE case_studies SET teacher_id=$2, archived=$3, data=$4 WHERE id=$1`,
		cs.ID, cs.TeacherID, cs.Archived, data)
	if err != nil {
		return fmt.Errorf("update case study: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCaseStudyNotFound
	}
	return nil
}

func (s *CaseStudyStore) ListByTeacher(ctx context.Context, teacherID string) ([]domain.CaseStudy, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM case_studies WHERE teacher_id=$1 ORDER BY id`, teacherID)
	if err != nil {
		return nil, fmt.Errorf("list case studies: %w", err)
	}
	defer rows.Close()

	var out []domain.CaseStudy
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan case study: %w", err)
		}
		var cs domain.CaseStudy
		if err := json.Unmarshal(raw, &cs); err != nil {
			return nil, fmt.Errorf("unmarshal case study: %w", err)
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

// LoadCaseStudy satisfies the cache loader interfaces.
func (s *CaseStudyStore) LoadCaseStudy(ctx context.Context, id string) (domain.CaseStudy, error) {
	return s.Get(ctx, id)
}

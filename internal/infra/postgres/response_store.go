package postgres

import (
	"context"
	"fmt"

	"caselab-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ResponseStore persists student answers. The unique index on
// (session_id, student_id, question_id) turns resubmission into an overwrite
// of the live row.
type ResponseStore struct {
	pool *pgxpool.Pool
}

func NewResponseStore(pool *pgxpool.Pool) *ResponseStore {
	return &ResponseStore{pool: pool}
}

func (s *ResponseStore) Upsert(ctx context.Context, response *domain.Response) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO responses (id, session_id, student_id, question_id, response, points, assessment, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id, student_id, question_id) DO UPDATE
		SET response=EXCLUDED.response, points=EXCLUDED.points,
		    assessment=EXCLUDED.assessment, submitted_at=EXCLUDED.submitted_at
		RETURNING id`,
		response.ID, response.SessionID, response.StudentID, response.QuestionID,
		response.Response, response.Points, response.Assessment, response.SubmittedAt,
	).Scan(&response.ID)
	if err != nil {
		return fmt.Errorf("upsert response: %w", err)
	}
	return nil
}

func (s *ResponseStore) ListBySession(ctx context.Context, sessionID string) ([]domain.Response, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, student_id, question_id, response, points, assessment, submitted_at
		FROM responses WHERE session_id=$1`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	var out []domain.Response
	for rows.Next() {
		var r domain.Response
		if err := rows.Scan(&r.ID, &r.SessionID, &r.StudentID, &r.QuestionID,
			&r.Response, &r.Points, &r.Assessment, &r.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

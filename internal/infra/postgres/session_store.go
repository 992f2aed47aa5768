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

// SessionStore persists session records. Updates are guarded by the version
// column: the UPDATE only matches when the caller still holds the current
// version, which is what makes ReleaseNext safe against racing teachers.
type SessionStore struct {
	pool *pgxpool.Pool
}

func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

const sessionColumns = `id, code, case_study_id, teacher_id, active, started_at, ended_at, last_activity_at, students_joined, current_released_section, version`

func (s *SessionStore) Create(ctx context.Context, session *domain.Session) error {
	roster, err := json.Marshal(session.StudentsJoined)
	if err != nil {
		return fmt.Errorf("marshal roster: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		session.ID, session.Code, session.CaseStudyID, session.TeacherID,
		session.Active, session.StartedAt, session.EndedAt, session.LastActivityAt,
		roster, session.CurrentReleasedSection, session.Version)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (domain.Session, error) {
	return s.scanOne(s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id=$1`, id))
}

func (s *SessionStore) GetByCode(ctx context.Context, code string) (domain.Session, error) {
	return s.scanOne(s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE code=$1`, code))
}

func (s *SessionStore) Update(ctx context.Context, session *domain.Session, expectedVersion int64) error {
	roster, err := json.Marshal(session.StudentsJoined)
	if err != nil {
		return fmt.Errorf("marshal roster: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions
		SET active=$2, started_at=$3, ended_at=$4, last_activity_at=$5,
		    students_joined=$6, current_released_section=$7, version=version+1
		WHERE id=$1 AND version=$8`,
		session.ID, session.Active, session.StartedAt, session.EndedAt,
		session.LastActivityAt, roster, session.CurrentReleasedSection,
		expectedVersion)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a stale writer from a missing record.
		if _, gerr := s.Get(ctx, session.ID); gerr != nil {
			return gerr
		}
		return domain.ErrVersionConflict
	}
	session.Version = expectedVersion + 1
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *SessionStore) ListActive(ctx context.Context) ([]domain.Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE active`)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		session, err := s.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *SessionStore) scanOne(row rowScanner) (domain.Session, error) {
	var session domain.Session
	var roster []byte
	err := row.Scan(&session.ID, &session.Code, &session.CaseStudyID, &session.TeacherID,
		&session.Active, &session.StartedAt, &session.EndedAt, &session.LastActivityAt,
		&roster, &session.CurrentReleasedSection, &session.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("scan session: %w", err)
	}
	if err := json.Unmarshal(roster, &session.StudentsJoined); err != nil {
		return domain.Session{}, fmt.Errorf("unmarshal roster: %w", err)
	}
	return session, nil
}

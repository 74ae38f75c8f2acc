package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/livechat-service/internal/domain"
)

// SessionClientMeta carries browser/geolocation fields reported by the
// widget on connect.
type SessionClientMeta struct {
	Country *string
	City    *string
	Browser *string
	OS      *string
}

// SessionRepository encapsulates session persistence.
type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) error
	GetByID(ctx context.Context, businessID, id string) (*domain.Session, error)
	GetBySID(ctx context.Context, businessID, sid string) (*domain.Session, error)
	GetByEmail(ctx context.Context, businessID, email string) (*domain.Session, error)
	ListByBusiness(ctx context.Context, businessID string) ([]domain.Session, error)
	UpdateEmail(ctx context.Context, businessID, sid, email string) error
	UpdateAssignedAgent(ctx context.Context, id string, agentID string) error
	UpdateMeta(ctx context.Context, businessID, id string, segments *[]string, notes *string) error
	SetResolved(ctx context.Context, businessID, id string, resolved bool) error
	UpdateClientMeta(ctx context.Context, businessID, sid string, meta SessionClientMeta) error
	SetRating(ctx context.Context, businessID, sid string, rating int16) error
	TouchLastActive(ctx context.Context, id string) error
}

type sessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository instantiates repository.
func NewSessionRepository(pool *pgxpool.Pool) SessionRepository {
	return &sessionRepository{pool: pool}
}

const sessionColumns = `id, sid, business_id, customer_email, assigned_agent_id, is_resolved,
               notes, segments, country, city, browser, os, rating, last_active, created_at, updated_at`

func (r *sessionRepository) Create(ctx context.Context, session *domain.Session) error {
	const query = `
        INSERT INTO sessions (sid, business_id, customer_email, notes, segments)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, last_active, created_at, updated_at`
	if session.Segments == nil {
		session.Segments = []string{}
	}
	return r.pool.QueryRow(ctx, query,
		session.SID,
		session.BusinessID,
		session.CustomerEmail,
		session.Notes,
		session.Segments,
	).Scan(&session.ID, &session.LastActive, &session.CreatedAt, &session.UpdatedAt)
}

func (r *sessionRepository) GetByID(ctx context.Context, businessID, id string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE business_id=$1 AND id=$2`
	return r.fetchSingle(ctx, query, businessID, id)
}

func (r *sessionRepository) GetBySID(ctx context.Context, businessID, sid string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE business_id=$1 AND sid=$2`
	return r.fetchSingle(ctx, query, businessID, sid)
}

func (r *sessionRepository) GetByEmail(ctx context.Context, businessID, email string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE business_id=$1 AND customer_email=$2`
	return r.fetchSingle(ctx, query, businessID, email)
}

func (r *sessionRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Session, error) {
	var session domain.Session
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&session.ID,
		&session.SID,
		&session.BusinessID,
		&session.CustomerEmail,
		&session.AssignedAgentID,
		&session.IsResolved,
		&session.Notes,
		&session.Segments,
		&session.Country,
		&session.City,
		&session.Browser,
		&session.OS,
		&session.Rating,
		&session.LastActive,
		&session.CreatedAt,
		&session.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepository) ListByBusiness(ctx context.Context, businessID string) ([]domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE business_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Session
	for rows.Next() {
		var session domain.Session
		if err := rows.Scan(
			&session.ID,
			&session.SID,
			&session.BusinessID,
			&session.CustomerEmail,
			&session.AssignedAgentID,
			&session.IsResolved,
			&session.Notes,
			&session.Segments,
			&session.Country,
			&session.City,
			&session.Browser,
			&session.OS,
			&session.Rating,
			&session.LastActive,
			&session.CreatedAt,
			&session.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, session)
	}
	return result, rows.Err()
}

func (r *sessionRepository) UpdateEmail(ctx context.Context, businessID, sid, email string) error {
	const query = `
        UPDATE sessions SET customer_email=$1, updated_at=NOW()
        WHERE business_id=$2 AND sid=$3`
	cmd, err := r.pool.Exec(ctx, query, email, businessID, sid)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *sessionRepository) UpdateAssignedAgent(ctx context.Context, id string, agentID string) error {
	const query = `
        UPDATE sessions SET assigned_agent_id=$1, updated_at=NOW() WHERE id=$2`
	cmd, err := r.pool.Exec(ctx, query, agentID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *sessionRepository) UpdateMeta(ctx context.Context, businessID, id string, segments *[]string, notes *string) error {
	const query = `
        UPDATE sessions SET
            segments = COALESCE($1, segments),
            notes = COALESCE($2, notes),
            updated_at = NOW()
        WHERE business_id=$3 AND id=$4`
	cmd, err := r.pool.Exec(ctx, query, segments, notes, businessID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *sessionRepository) SetResolved(ctx context.Context, businessID, id string, resolved bool) error {
	const query = `
        UPDATE sessions SET is_resolved=$1, updated_at=NOW()
        WHERE business_id=$2 AND id=$3`
	cmd, err := r.pool.Exec(ctx, query, resolved, businessID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *sessionRepository) UpdateClientMeta(ctx context.Context, businessID, sid string, meta SessionClientMeta) error {
	const query = `
        UPDATE sessions SET
            country = COALESCE($1, country),
            city = COALESCE($2, city),
            browser = COALESCE($3, browser),
            os = COALESCE($4, os),
            last_active = NOW(),
            updated_at = NOW()
        WHERE business_id=$5 AND sid=$6`
	cmd, err := r.pool.Exec(ctx, query, meta.Country, meta.City, meta.Browser, meta.OS, businessID, sid)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *sessionRepository) SetRating(ctx context.Context, businessID, sid string, rating int16) error {
	const query = `
        UPDATE sessions SET rating=$1, updated_at=NOW()
        WHERE business_id=$2 AND sid=$3`
	cmd, err := r.pool.Exec(ctx, query, rating, businessID, sid)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *sessionRepository) TouchLastActive(ctx context.Context, id string) error {
	const query = `UPDATE sessions SET last_active=NOW() WHERE id=$1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/livechat-service/internal/domain"
)

// ErrDuplicateIdentifier signals a unique-constraint violation on the
// trigger identifier.
var ErrDuplicateIdentifier = errors.New("trigger identifier already exists")

// TriggerRepository encapsulates trigger rule persistence plus the
// per-session fire log backing executeOnce.
type TriggerRepository interface {
	Create(ctx context.Context, trigger *domain.Trigger) error
	Update(ctx context.Context, trigger *domain.Trigger) error
	Delete(ctx context.Context, businessID, id string) error
	GetByIdentifier(ctx context.Context, identifier string) (*domain.Trigger, error)
	ListByBusiness(ctx context.Context, businessID string) ([]domain.Trigger, error)
	RecordFire(ctx context.Context, triggerID, sessionID string) error
	HasFired(ctx context.Context, triggerID, sessionID string) (bool, error)
}

type triggerRepository struct {
	pool *pgxpool.Pool
}

// NewTriggerRepository instantiates repository.
func NewTriggerRepository(pool *pgxpool.Pool) TriggerRepository {
	return &triggerRepository{pool: pool}
}

func (r *triggerRepository) Create(ctx context.Context, trigger *domain.Trigger) error {
	const query = `
        INSERT INTO triggers (business_id, name, identifier, action, message, conditions, only_if_online, execute_once, delay_seconds)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		trigger.BusinessID,
		trigger.Name,
		trigger.Identifier,
		trigger.Action,
		trigger.Message,
		trigger.Conditions,
		trigger.OnlyIfOnline,
		trigger.ExecuteOnce,
		trigger.DelaySeconds,
	).Scan(&trigger.ID, &trigger.CreatedAt, &trigger.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateIdentifier
	}
	return err
}

func (r *triggerRepository) Update(ctx context.Context, trigger *domain.Trigger) error {
	const query = `
        UPDATE triggers SET name=$1, action=$2, message=$3, conditions=$4,
            only_if_online=$5, execute_once=$6, delay_seconds=$7, updated_at=NOW()
        WHERE business_id=$8 AND id=$9`
	cmd, err := r.pool.Exec(ctx, query,
		trigger.Name,
		trigger.Action,
		trigger.Message,
		trigger.Conditions,
		trigger.OnlyIfOnline,
		trigger.ExecuteOnce,
		trigger.DelaySeconds,
		trigger.BusinessID,
		trigger.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *triggerRepository) Delete(ctx context.Context, businessID, id string) error {
	const query = `DELETE FROM triggers WHERE business_id=$1 AND id=$2`
	cmd, err := r.pool.Exec(ctx, query, businessID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *triggerRepository) GetByIdentifier(ctx context.Context, identifier string) (*domain.Trigger, error) {
	const query = `
        SELECT id, business_id, name, identifier, action, message, conditions,
               only_if_online, execute_once, delay_seconds, created_at, updated_at
        FROM triggers WHERE identifier=$1`
	var trigger domain.Trigger
	if err := r.pool.QueryRow(ctx, query, identifier).Scan(
		&trigger.ID,
		&trigger.BusinessID,
		&trigger.Name,
		&trigger.Identifier,
		&trigger.Action,
		&trigger.Message,
		&trigger.Conditions,
		&trigger.OnlyIfOnline,
		&trigger.ExecuteOnce,
		&trigger.DelaySeconds,
		&trigger.CreatedAt,
		&trigger.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &trigger, nil
}

func (r *triggerRepository) ListByBusiness(ctx context.Context, businessID string) ([]domain.Trigger, error) {
	const query = `
        SELECT id, business_id, name, identifier, action, message, conditions,
               only_if_online, execute_once, delay_seconds, created_at, updated_at
        FROM triggers WHERE business_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Trigger
	for rows.Next() {
		var trigger domain.Trigger
		if err := rows.Scan(
			&trigger.ID,
			&trigger.BusinessID,
			&trigger.Name,
			&trigger.Identifier,
			&trigger.Action,
			&trigger.Message,
			&trigger.Conditions,
			&trigger.OnlyIfOnline,
			&trigger.ExecuteOnce,
			&trigger.DelaySeconds,
			&trigger.CreatedAt,
			&trigger.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, trigger)
	}
	return result, rows.Err()
}

func (r *triggerRepository) RecordFire(ctx context.Context, triggerID, sessionID string) error {
	const query = `
        INSERT INTO trigger_fires (trigger_id, session_id)
        VALUES ($1,$2)
        ON CONFLICT (trigger_id, session_id) DO NOTHING`
	_, err := r.pool.Exec(ctx, query, triggerID, sessionID)
	return err
}

func (r *triggerRepository) HasFired(ctx context.Context, triggerID, sessionID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM trigger_fires WHERE trigger_id=$1 AND session_id=$2)`
	var fired bool
	if err := r.pool.QueryRow(ctx, query, triggerID, sessionID).Scan(&fired); err != nil {
		return false, err
	}
	return fired, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/livechat-service/internal/domain"
)

// AgentRepository defines persistence access for business agents.
type AgentRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Agent, error)
	ListByBusiness(ctx context.Context, businessID string) ([]domain.Agent, error)
}

type agentRepository struct {
	pool *pgxpool.Pool
}

// NewAgentRepository returns a Postgres-backed implementation.
func NewAgentRepository(pool *pgxpool.Pool) AgentRepository {
	return &agentRepository{pool: pool}
}

func (r *agentRepository) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	const query = `
        SELECT id, business_id, name, email, avatar_url, created_at, updated_at
        FROM agents WHERE id=$1`

	var agent domain.Agent
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&agent.ID,
		&agent.BusinessID,
		&agent.Name,
		&agent.Email,
		&agent.AvatarURL,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &agent, nil
}

func (r *agentRepository) ListByBusiness(ctx context.Context, businessID string) ([]domain.Agent, error) {
	const query = `
        SELECT id, business_id, name, email, avatar_url, created_at, updated_at
        FROM agents WHERE business_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Agent
	for rows.Next() {
		var agent domain.Agent
		if err := rows.Scan(
			&agent.ID,
			&agent.BusinessID,
			&agent.Name,
			&agent.Email,
			&agent.AvatarURL,
			&agent.CreatedAt,
			&agent.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, agent)
	}
	return result, rows.Err()
}

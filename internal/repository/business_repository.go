package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/livechat-service/internal/domain"
)

// BusinessRepository defines persistence access for tenants.
type BusinessRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Business, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*domain.Business, error)
}

type businessRepository struct {
	pool *pgxpool.Pool
}

// NewBusinessRepository returns a Postgres-backed implementation.
func NewBusinessRepository(pool *pgxpool.Pool) BusinessRepository {
	return &businessRepository{pool: pool}
}

func (r *businessRepository) GetByID(ctx context.Context, id string) (*domain.Business, error) {
	const query = `
        SELECT id, name, api_key, widget_welcome_message, created_at, updated_at
        FROM businesses WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *businessRepository) GetByAPIKey(ctx context.Context, apiKey string) (*domain.Business, error) {
	const query = `
        SELECT id, name, api_key, widget_welcome_message, created_at, updated_at
        FROM businesses WHERE api_key=$1`
	return r.fetchSingle(ctx, query, apiKey)
}

func (r *businessRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Business, error) {
	var business domain.Business
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&business.ID,
		&business.Name,
		&business.APIKey,
		&business.WidgetWelcomeMessage,
		&business.CreatedAt,
		&business.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &business, nil
}

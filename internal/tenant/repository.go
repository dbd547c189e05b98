package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	GetByID(ctx context.Context, id string) (*Tenant, error)
	UpdatePlan(ctx context.Context, id string, plan Plan) error
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

func (r *pgxRepository) GetByID(ctx context.Context, id string) (*Tenant, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(
		"id", "name", "plan", "payment_provider", "provider_public_key", "provider_secret",
		"webhook_secret", "callback_url", "notify_email", "calendar_token", "created_at", "updated_at",
	).
		From("public.tenants").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get tenant query failed: %w", err)
	}

	var t Tenant
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&t.ID, &t.Name, &t.Plan, &t.PaymentProvider, &t.ProviderPublic, &t.ProviderSecret,
		&t.WebhookSecret, &t.CallbackURL, &t.NotifyEmail, &t.CalendarToken, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get tenant failed: %w", err)
	}
	return &t, nil
}

func (r *pgxRepository) UpdatePlan(ctx context.Context, id string, plan Plan) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Update("public.tenants").
		Set("plan", plan).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update tenant plan query failed: %w", err)
	}

	ct, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update tenant plan failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

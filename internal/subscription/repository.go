package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	GetByReference(ctx context.Context, reference string) (*Subscription, error)
	UpdateStatusByReference(ctx context.Context, reference string, status Status, periodEnd time.Time) error
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

func (r *pgxRepository) GetByReference(ctx context.Context, reference string) (*Subscription, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(
		"id", "tenant_id", "reference", "plan", "status", "current_period_end",
		"created_at", "updated_at",
	).
		From("public.subscriptions").
		Where(squirrel.Eq{"reference": reference}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get subscription query failed: %w", err)
	}

	var s Subscription
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&s.ID, &s.TenantID, &s.Reference, &s.Plan, &s.Status, &s.CurrentPeriodEnd,
		&s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get subscription failed: %w", err)
	}
	return &s, nil
}

func (r *pgxRepository) UpdateStatusByReference(ctx context.Context, reference string, status Status, periodEnd time.Time) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Update("public.subscriptions").
		Set("status", status).
		Set("current_period_end", periodEnd).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"reference": reference}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update subscription query failed: %w", err)
	}

	ct, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update subscription failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

package offering

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	GetByID(ctx context.Context, id string) (*Offering, error)
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

func (r *pgxRepository) GetByID(ctx context.Context, id string) (*Offering, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(
		"id", "tenant_id", "name", "duration_minutes", "price_cents", "currency",
		"created_at", "updated_at",
	).
		From("public.offerings").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get offering query failed: %w", err)
	}

	var o Offering
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&o.ID, &o.TenantID, &o.Name, &o.DurationMinutes, &o.PriceCents, &o.Currency,
		&o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get offering failed: %w", err)
	}
	return &o, nil
}

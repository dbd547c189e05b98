package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	GetByReference(ctx context.Context, reference string) (*Payment, error)
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

func (r *pgxRepository) GetByReference(ctx context.Context, reference string) (*Payment, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(
		"id", "tenant_id", "booking_id", "provider", "reference", "amount_cents",
		"currency", "status", "raw_payload", "created_at", "updated_at",
	).
		From("public.payments").
		Where(squirrel.Eq{"reference": reference}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get payment query failed: %w", err)
	}

	var p Payment
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&p.ID, &p.TenantID, &p.BookingID, &p.Provider, &p.Reference, &p.AmountCents,
		&p.Currency, &p.Status, &p.RawPayload, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get payment failed: %w", err)
	}
	return &p, nil
}

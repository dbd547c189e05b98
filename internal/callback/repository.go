package callback

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Create(ctx context.Context, l *Log) error
	ListByBooking(ctx context.Context, bookingID string) ([]*Log, error)
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

func (r *pgxRepository) Create(ctx context.Context, l *Log) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Insert("public.callback_logs").
		Columns("booking_id", "url", "payload", "status_code", "success", "error").
		Values(l.BookingID, l.URL, l.Payload, l.StatusCode, l.Success, l.Error).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build create callback log query failed: %w", err)
	}

	return r.pool.QueryRow(ctx, query, args...).Scan(&l.ID, &l.CreatedAt)
}

func (r *pgxRepository) ListByBooking(ctx context.Context, bookingID string) ([]*Log, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(
		"id", "booking_id", "url", "payload", "status_code", "success", "error", "created_at",
	).
		From("public.callback_logs").
		Where(squirrel.Eq{"booking_id": bookingID}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list callback logs query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list callback logs failed: %w", err)
	}
	defer rows.Close()

	var logs []*Log
	for rows.Next() {
		var l Log
		if err := rows.Scan(
			&l.ID, &l.BookingID, &l.URL, &l.Payload, &l.StatusCode, &l.Success, &l.Error, &l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan callback log failed: %w", err)
		}
		logs = append(logs, &l)
	}
	return logs, nil
}

package professional

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	GetByID(ctx context.Context, id string) (*Professional, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*Professional, error)
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

var professionalColumns = []string{
	"id", "tenant_id", "name", "timezone", "open_time", "close_time",
	"calendar_id", "created_at", "updated_at",
}

func scanProfessional(row pgx.Row) (*Professional, error) {
	var p Professional
	err := row.Scan(
		&p.ID, &p.TenantID, &p.Name, &p.Timezone, &p.OpenTime, &p.CloseTime,
		&p.CalendarID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *pgxRepository) GetByID(ctx context.Context, id string) (*Professional, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(professionalColumns...).
		From("public.professionals").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get professional query failed: %w", err)
	}

	p, err := scanProfessional(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get professional failed: %w", err)
	}
	return p, nil
}

func (r *pgxRepository) ListByTenant(ctx context.Context, tenantID string) ([]*Professional, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(professionalColumns...).
		From("public.professionals").
		Where(squirrel.Eq{"tenant_id": tenantID}).
		OrderBy("name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list professionals query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list professionals failed: %w", err)
	}
	defer rows.Close()

	var pros []*Professional
	for rows.Next() {
		p, err := scanProfessional(rows)
		if err != nil {
			return nil, fmt.Errorf("scan professional failed: %w", err)
		}
		pros = append(pros, p)
	}
	return pros, nil
}

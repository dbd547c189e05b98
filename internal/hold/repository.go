package hold

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/citaflow/booking-backend/internal/timerange"
)

type Repository interface {
	// CreateExclusive runs the whole claim protocol as one serializable
	// transaction: reject on overlapping active booking, reject on an
	// overlapping active hold owned by another session, drop this session's
	// stale or superseded holds, insert the new hold. A same-slot hold the
	// session already owns is returned as-is (holds are not renewed).
	CreateExclusive(ctx context.Context, h *Hold, now time.Time) (*Hold, error)

	// ListActiveOverlapping returns holds that are still live, belong to the
	// given professional, intersect the window, and are not owned by
	// excludeSessionID (pass "" to include all sessions).
	ListActiveOverlapping(ctx context.Context, professionalID string, window timerange.TimeRange, excludeSessionID string, now time.Time) ([]*Hold, error)

	// DeleteExpired removes rows past their expiry. Purely storage hygiene;
	// correctness never depends on it.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

var activeBookingStatuses = []string{"pending", "paid", "confirmed"}

func (r *pgxRepository) CreateExclusive(ctx context.Context, h *Hold, now time.Time) (*Hold, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, fmt.Errorf("begin hold transaction failed: %w", err)
	}
	defer tx.Rollback(ctx)

	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

	// Active booking wins over any hold attempt.
	bookedSQL, bookedArgs, err := psql.Select("1").
		From("public.bookings").
		Where(squirrel.Eq{"professional_id": h.ProfessionalID}).
		Where(squirrel.Eq{"status": activeBookingStatuses}).
		Where(squirrel.Lt{"start_time": h.Range.End}).
		Where(squirrel.Gt{"end_time": h.Range.Start}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build booked check query failed: %w", err)
	}

	var booked bool
	if err := tx.QueryRow(ctx, "SELECT EXISTS ("+bookedSQL+")", bookedArgs...).Scan(&booked); err != nil {
		return nil, fmt.Errorf("check booked failed: %w", err)
	}
	if booked {
		return nil, ErrSlotBooked
	}

	// A live hold under another session blocks the claim.
	heldSQL, heldArgs, err := psql.Select("1").
		From("public.slot_holds").
		Where(squirrel.Eq{"professional_id": h.ProfessionalID}).
		Where(squirrel.NotEq{"session_id": h.SessionID}).
		Where(squirrel.Gt{"expires_at": now}).
		Where(squirrel.Lt{"start_time": h.Range.End}).
		Where(squirrel.Gt{"end_time": h.Range.Start}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build held check query failed: %w", err)
	}

	var held bool
	if err := tx.QueryRow(ctx, "SELECT EXISTS ("+heldSQL+")", heldArgs...).Scan(&held); err != nil {
		return nil, fmt.Errorf("check held failed: %w", err)
	}
	if held {
		return nil, ErrSlotHeld
	}

	// If this session already holds the exact same slot, keep its expiry.
	ownSQL, ownArgs, err := psql.Select(
		"id", "professional_id", "service_id", "start_time", "end_time",
		"session_id", "expires_at", "created_at",
	).
		From("public.slot_holds").
		Where(squirrel.Eq{
			"professional_id": h.ProfessionalID,
			"session_id":      h.SessionID,
			"start_time":      h.Range.Start,
			"end_time":        h.Range.End,
		}).
		Where(squirrel.Gt{"expires_at": now}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build own hold query failed: %w", err)
	}

	existing, err := scanHold(tx.QueryRow(ctx, ownSQL, ownArgs...))
	if err == nil {
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit hold transaction failed: %w", err)
		}
		return existing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get own hold failed: %w", err)
	}

	// One hold per session: drop anything stale or superseded this session owns.
	delSQL, delArgs, err := psql.Delete("public.slot_holds").
		Where(squirrel.Eq{"session_id": h.SessionID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build delete own holds query failed: %w", err)
	}
	if _, err := tx.Exec(ctx, delSQL, delArgs...); err != nil {
		return nil, fmt.Errorf("delete own holds failed: %w", err)
	}

	insSQL, insArgs, err := psql.Insert("public.slot_holds").
		Columns("professional_id", "service_id", "start_time", "end_time", "session_id", "expires_at").
		Values(h.ProfessionalID, h.ServiceID, h.Range.Start, h.Range.End, h.SessionID, h.ExpiresAt).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert hold query failed: %w", err)
	}

	if err := tx.QueryRow(ctx, insSQL, insArgs...).Scan(&h.ID, &h.CreatedAt); err != nil {
		if isExclusionConflict(err) {
			return nil, ErrSlotHeld
		}
		return nil, fmt.Errorf("insert hold failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		// A serialization failure means a concurrent claimer won the race.
		if isSerializationFailure(err) {
			return nil, ErrSlotHeld
		}
		return nil, fmt.Errorf("commit hold transaction failed: %w", err)
	}
	return h, nil
}

func (r *pgxRepository) ListActiveOverlapping(ctx context.Context, professionalID string, window timerange.TimeRange, excludeSessionID string, now time.Time) ([]*Hold, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query := psql.Select(
		"id", "professional_id", "service_id", "start_time", "end_time",
		"session_id", "expires_at", "created_at",
	).
		From("public.slot_holds").
		Where(squirrel.Eq{"professional_id": professionalID}).
		Where(squirrel.Gt{"expires_at": now}).
		Where(squirrel.Lt{"start_time": window.End}).
		Where(squirrel.Gt{"end_time": window.Start}).
		OrderBy("start_time ASC")

	if excludeSessionID != "" {
		query = query.Where(squirrel.NotEq{"session_id": excludeSessionID})
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list holds query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list holds failed: %w", err)
	}
	defer rows.Close()

	var holds []*Hold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, fmt.Errorf("scan hold failed: %w", err)
		}
		holds = append(holds, h)
	}
	return holds, nil
}

func (r *pgxRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	sql, args, err := psql.Delete("public.slot_holds").
		Where(squirrel.LtOrEq{"expires_at": now}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build reap holds query failed: %w", err)
	}

	ct, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("reap holds failed: %w", err)
	}
	return ct.RowsAffected(), nil
}

func scanHold(row pgx.Row) (*Hold, error) {
	var h Hold
	err := row.Scan(
		&h.ID, &h.ProfessionalID, &h.ServiceID, &h.Range.Start, &h.Range.End,
		&h.SessionID, &h.ExpiresAt, &h.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// isExclusionConflict matches the constraint backing the in-transaction
// checks: a losing concurrent insert fails fast instead of silently
// double-claiming the slot.
func isExclusionConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.ExclusionViolation || pgErr.Code == pgerrcode.UniqueViolation
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.SerializationFailure
}

package booking

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

	"github.com/citaflow/booking-backend/internal/payment"
	"github.com/citaflow/booking-backend/internal/timerange"
)

type Repository interface {
	// CreateWithPayment inserts the booking and its payment row as one
	// serializable transaction, re-checking slot exclusivity inside it:
	// overlapping active bookings and other sessions' live holds both reject
	// with ErrTimeConflict. The session's own hold is consumed.
	CreateWithPayment(ctx context.Context, b *Booking, p *payment.Payment, sessionID string, now time.Time) error

	GetByID(ctx context.Context, id string) (*Booking, error)
	List(ctx context.Context, filter Filter) ([]*Booking, int, error)

	// ListActiveRanges returns the time ranges of active bookings
	// intersecting the window, for availability computation.
	ListActiveRanges(ctx context.Context, professionalID string, window timerange.TimeRange) ([]timerange.TimeRange, error)

	// ApplyPaymentResult overwrites the payment row keyed by reference and,
	// when to is non-empty and the booking is still pending, advances the
	// booking in the same transaction. Returns the booking and whether it
	// transitioned. Redeliveries are safe: the overwrite is idempotent and a
	// non-pending booking is left untouched.
	ApplyPaymentResult(ctx context.Context, reference string, status payment.Status, raw []byte, to Status) (*Booking, bool, error)

	// TransitionStatus moves the booking from any of the listed states to
	// the target state, checked and applied in one statement. Returns false
	// when the booking was not in an eligible state.
	TransitionStatus(ctx context.Context, id string, from []Status, to Status) (bool, error)

	// SetCalendarEventID records the external event id only when none is set
	// yet. Returns false when one already was, which is the idempotency
	// guard against duplicate webhook deliveries.
	SetCalendarEventID(ctx context.Context, id, eventID string) (bool, error)

	// CancelGuarded cancels the booking with all guards re-checked inside
	// the mutating statement: token match, not already cancelled, not yet
	// started.
	CancelGuarded(ctx context.Context, id, token string, now time.Time) (*Booking, error)

	// RescheduleGuarded moves the booking to newRange with guards and the
	// conflict re-check inside one transaction. Returns the updated booking
	// and its previous range.
	RescheduleGuarded(ctx context.Context, id, token string, newRange timerange.TimeRange, now time.Time) (*Booking, timerange.TimeRange, error)
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

var bookingColumns = []string{
	"id", "tenant_id", "link_id", "service_id", "professional_id",
	"start_time", "end_time",
	"customer_name", "customer_email", "customer_phone", "accepted_terms",
	"status", "cancellation_token", "reschedule_token", "calendar_event_id",
	"created_at", "updated_at",
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	err := row.Scan(
		&b.ID, &b.TenantID, &b.LinkID, &b.ServiceID, &b.ProfessionalID,
		&b.Range.Start, &b.Range.End,
		&b.Customer.Name, &b.Customer.Email, &b.Customer.Phone, &b.AcceptedTerms,
		&b.Status, &b.CancellationToken, &b.RescheduleToken, &b.CalendarEventID,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func (r *pgxRepository) CreateWithPayment(ctx context.Context, b *Booking, p *payment.Payment, sessionID string, now time.Time) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin booking transaction failed: %w", err)
	}
	defer tx.Rollback(ctx)

	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

	bookedSQL, bookedArgs, err := psql.Select("1").
		From("public.bookings").
		Where(squirrel.Eq{"professional_id": b.ProfessionalID}).
		Where(squirrel.Eq{"status": statusStrings(ActiveStatuses)}).
		Where(squirrel.Lt{"start_time": b.Range.End}).
		Where(squirrel.Gt{"end_time": b.Range.Start}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build booked check query failed: %w", err)
	}

	var conflict bool
	if err := tx.QueryRow(ctx, "SELECT EXISTS ("+bookedSQL+")", bookedArgs...).Scan(&conflict); err != nil {
		return fmt.Errorf("check booked failed: %w", err)
	}
	if conflict {
		return ErrTimeConflict
	}

	heldSQL, heldArgs, err := psql.Select("1").
		From("public.slot_holds").
		Where(squirrel.Eq{"professional_id": b.ProfessionalID}).
		Where(squirrel.NotEq{"session_id": sessionID}).
		Where(squirrel.Gt{"expires_at": now}).
		Where(squirrel.Lt{"start_time": b.Range.End}).
		Where(squirrel.Gt{"end_time": b.Range.Start}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build held check query failed: %w", err)
	}

	if err := tx.QueryRow(ctx, "SELECT EXISTS ("+heldSQL+")", heldArgs...).Scan(&conflict); err != nil {
		return fmt.Errorf("check held failed: %w", err)
	}
	if conflict {
		return ErrTimeConflict
	}

	// The session's hold served its purpose.
	if sessionID != "" {
		delSQL, delArgs, err := psql.Delete("public.slot_holds").
			Where(squirrel.Eq{"session_id": sessionID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build consume hold query failed: %w", err)
		}
		if _, err := tx.Exec(ctx, delSQL, delArgs...); err != nil {
			return fmt.Errorf("consume hold failed: %w", err)
		}
	}

	insSQL, insArgs, err := psql.Insert("public.bookings").
		Columns(
			"tenant_id", "link_id", "service_id", "professional_id",
			"start_time", "end_time",
			"customer_name", "customer_email", "customer_phone", "accepted_terms",
			"status", "cancellation_token", "reschedule_token", "calendar_event_id",
		).
		Values(
			b.TenantID, b.LinkID, b.ServiceID, b.ProfessionalID,
			b.Range.Start, b.Range.End,
			b.Customer.Name, b.Customer.Email, b.Customer.Phone, b.AcceptedTerms,
			b.Status, b.CancellationToken, b.RescheduleToken, b.CalendarEventID,
		).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert booking query failed: %w", err)
	}

	if err := tx.QueryRow(ctx, insSQL, insArgs...).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if isConstraintConflict(err) {
			return ErrTimeConflict
		}
		return fmt.Errorf("insert booking failed: %w", err)
	}

	paySQL, payArgs, err := psql.Insert("public.payments").
		Columns("tenant_id", "booking_id", "provider", "reference", "amount_cents", "currency", "status").
		Values(p.TenantID, b.ID, p.Provider, p.Reference, p.AmountCents, p.Currency, p.Status).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert payment query failed: %w", err)
	}

	if err := tx.QueryRow(ctx, paySQL, payArgs...).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return fmt.Errorf("insert payment failed: %w", err)
	}
	p.BookingID = b.ID

	if err := tx.Commit(ctx); err != nil {
		if isSerializationFailure(err) {
			return ErrTimeConflict
		}
		return fmt.Errorf("commit booking transaction failed: %w", err)
	}
	return nil
}

func (r *pgxRepository) GetByID(ctx context.Context, id string) (*Booking, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(bookingColumns...).
		From("public.bookings").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get booking query failed: %w", err)
	}

	b, err := scanBooking(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get booking failed: %w", err)
	}
	return b, nil
}

func (r *pgxRepository) List(ctx context.Context, filter Filter) ([]*Booking, int, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	cols := append(append([]string{}, bookingColumns...), "count(*) OVER() AS total_count")
	query := psql.Select(cols...).From("public.bookings")

	if filter.TenantID != "" {
		query = query.Where(squirrel.Eq{"tenant_id": filter.TenantID})
	}
	if filter.ProfessionalID != "" {
		query = query.Where(squirrel.Eq{"professional_id": filter.ProfessionalID})
	}
	if filter.Status != "" {
		query = query.Where(squirrel.Eq{"status": filter.Status})
	}
	if filter.StartTime != nil {
		query = query.Where(squirrel.GtOrEq{"end_time": filter.StartTime})
	}
	if filter.EndTime != nil {
		query = query.Where(squirrel.LtOrEq{"start_time": filter.EndTime})
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	offset := (filter.Page - 1) * filter.PageSize

	query = query.OrderBy("start_time ASC").
		Limit(uint64(filter.PageSize)).
		Offset(uint64(offset))

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list bookings query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list bookings failed: %w", err)
	}
	defer rows.Close()

	var bookings []*Booking
	var total int
	for rows.Next() {
		var b Booking
		if err := rows.Scan(
			&b.ID, &b.TenantID, &b.LinkID, &b.ServiceID, &b.ProfessionalID,
			&b.Range.Start, &b.Range.End,
			&b.Customer.Name, &b.Customer.Email, &b.Customer.Phone, &b.AcceptedTerms,
			&b.Status, &b.CancellationToken, &b.RescheduleToken, &b.CalendarEventID,
			&b.CreatedAt, &b.UpdatedAt, &total,
		); err != nil {
			return nil, 0, fmt.Errorf("scan booking failed: %w", err)
		}
		bookings = append(bookings, &b)
	}
	return bookings, total, nil
}

func (r *pgxRepository) ListActiveRanges(ctx context.Context, professionalID string, window timerange.TimeRange) ([]timerange.TimeRange, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select("start_time", "end_time").
		From("public.bookings").
		Where(squirrel.Eq{"professional_id": professionalID}).
		Where(squirrel.Eq{"status": statusStrings(ActiveStatuses)}).
		Where(squirrel.Lt{"start_time": window.End}).
		Where(squirrel.Gt{"end_time": window.Start}).
		OrderBy("start_time ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build active ranges query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list active ranges failed: %w", err)
	}
	defer rows.Close()

	var ranges []timerange.TimeRange
	for rows.Next() {
		var tr timerange.TimeRange
		if err := rows.Scan(&tr.Start, &tr.End); err != nil {
			return nil, fmt.Errorf("scan active range failed: %w", err)
		}
		ranges = append(ranges, tr)
	}
	return ranges, nil
}

func (r *pgxRepository) ApplyPaymentResult(ctx context.Context, reference string, status payment.Status, raw []byte, to Status) (*Booking, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin payment result transaction failed: %w", err)
	}
	defer tx.Rollback(ctx)

	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

	paySQL, payArgs, err := psql.Update("public.payments").
		Set("status", status).
		Set("raw_payload", raw).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"reference": reference}).
		Suffix("RETURNING booking_id").
		ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("build update payment query failed: %w", err)
	}

	var bookingID string
	if err := tx.QueryRow(ctx, paySQL, payArgs...).Scan(&bookingID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, payment.ErrNotFound
		}
		return nil, false, fmt.Errorf("update payment failed: %w", err)
	}

	getSQL, getArgs, err := psql.Select(bookingColumns...).
		From("public.bookings").
		Where(squirrel.Eq{"id": bookingID}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("build lock booking query failed: %w", err)
	}

	b, err := scanBooking(tx.QueryRow(ctx, getSQL, getArgs...))
	if err != nil {
		return nil, false, fmt.Errorf("lock booking failed: %w", err)
	}

	transitioned := false
	if to != "" && b.Status == StatusPending {
		updSQL, updArgs, err := psql.Update("public.bookings").
			Set("status", to).
			Set("updated_at", squirrel.Expr("now()")).
			Where(squirrel.Eq{"id": bookingID}).
			ToSql()
		if err != nil {
			return nil, false, fmt.Errorf("build transition booking query failed: %w", err)
		}
		if _, err := tx.Exec(ctx, updSQL, updArgs...); err != nil {
			return nil, false, fmt.Errorf("transition booking failed: %w", err)
		}
		b.Status = to
		transitioned = true
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit payment result transaction failed: %w", err)
	}
	return b, transitioned, nil
}

func (r *pgxRepository) TransitionStatus(ctx context.Context, id string, from []Status, to Status) (bool, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Update("public.bookings").
		Set("status", to).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.Eq{"status": statusStrings(from)}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build transition query failed: %w", err)
	}

	ct, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("transition booking failed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (r *pgxRepository) SetCalendarEventID(ctx context.Context, id, eventID string) (bool, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Update("public.bookings").
		Set("calendar_event_id", eventID).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.Eq{"calendar_event_id": ""}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build set calendar event query failed: %w", err)
	}

	ct, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("set calendar event failed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (r *pgxRepository) CancelGuarded(ctx context.Context, id, token string, now time.Time) (*Booking, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin cancel transaction failed: %w", err)
	}
	defer tx.Rollback(ctx)

	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

	// All guards live in the WHERE clause so a racing webhook transition
	// cannot slip between check and mutation.
	updSQL, updArgs, err := psql.Update("public.bookings").
		Set("status", StatusCancelled).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.Eq{"cancellation_token": token}).
		Where(squirrel.NotEq{"status": StatusCancelled}).
		Where(squirrel.Gt{"start_time": now}).
		Suffix("RETURNING " + joinColumns(bookingColumns)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build cancel query failed: %w", err)
	}

	b, err := scanBooking(tx.QueryRow(ctx, updSQL, updArgs...))
	if err == nil {
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit cancel transaction failed: %w", err)
		}
		return b, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("cancel booking failed: %w", err)
	}

	return nil, r.classifyGuardFailure(ctx, tx, id, token, "cancellation_token", now)
}

func (r *pgxRepository) RescheduleGuarded(ctx context.Context, id, token string, newRange timerange.TimeRange, now time.Time) (*Booking, timerange.TimeRange, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, timerange.TimeRange{}, fmt.Errorf("begin reschedule transaction failed: %w", err)
	}
	defer tx.Rollback(ctx)

	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

	getSQL, getArgs, err := psql.Select(bookingColumns...).
		From("public.bookings").
		Where(squirrel.Eq{"id": id}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, timerange.TimeRange{}, fmt.Errorf("build lock booking query failed: %w", err)
	}

	current, err := scanBooking(tx.QueryRow(ctx, getSQL, getArgs...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, timerange.TimeRange{}, ErrNotFound
		}
		return nil, timerange.TimeRange{}, fmt.Errorf("lock booking failed: %w", err)
	}

	if current.RescheduleToken != token {
		return nil, timerange.TimeRange{}, ErrInvalidToken
	}
	if current.Status == StatusCancelled {
		return nil, timerange.TimeRange{}, ErrAlreadyCancelled
	}

	oldRange := current.Range

	conflictSQL, conflictArgs, err := psql.Select("1").
		From("public.bookings").
		Where(squirrel.Eq{"professional_id": current.ProfessionalID}).
		Where(squirrel.Eq{"status": statusStrings(ActiveStatuses)}).
		Where(squirrel.NotEq{"id": id}).
		Where(squirrel.Lt{"start_time": newRange.End}).
		Where(squirrel.Gt{"end_time": newRange.Start}).
		ToSql()
	if err != nil {
		return nil, timerange.TimeRange{}, fmt.Errorf("build reschedule conflict query failed: %w", err)
	}

	var conflict bool
	if err := tx.QueryRow(ctx, "SELECT EXISTS ("+conflictSQL+")", conflictArgs...).Scan(&conflict); err != nil {
		return nil, timerange.TimeRange{}, fmt.Errorf("check reschedule conflict failed: %w", err)
	}
	if conflict {
		return nil, timerange.TimeRange{}, ErrTimeConflict
	}

	updSQL, updArgs, err := psql.Update("public.bookings").
		Set("start_time", newRange.Start).
		Set("end_time", newRange.End).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.Eq{"reschedule_token": token}).
		Where(squirrel.NotEq{"status": StatusCancelled}).
		Suffix("RETURNING " + joinColumns(bookingColumns)).
		ToSql()
	if err != nil {
		return nil, timerange.TimeRange{}, fmt.Errorf("build reschedule query failed: %w", err)
	}

	b, err := scanBooking(tx.QueryRow(ctx, updSQL, updArgs...))
	if err != nil {
		return nil, timerange.TimeRange{}, fmt.Errorf("reschedule booking failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		if isSerializationFailure(err) {
			return nil, timerange.TimeRange{}, ErrTimeConflict
		}
		return nil, timerange.TimeRange{}, fmt.Errorf("commit reschedule transaction failed: %w", err)
	}
	return b, oldRange, nil
}

// classifyGuardFailure figures out which guard rejected a conditional update
// so the caller gets a precise error instead of a generic one.
func (r *pgxRepository) classifyGuardFailure(ctx context.Context, tx pgx.Tx, id, token, tokenColumn string, now time.Time) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(tokenColumn, "status", "start_time").
		From("public.bookings").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build guard classify query failed: %w", err)
	}

	var storedToken string
	var status Status
	var start time.Time
	if err := tx.QueryRow(ctx, query, args...).Scan(&storedToken, &status, &start); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("guard classify failed: %w", err)
	}

	switch {
	case storedToken != token:
		return ErrInvalidToken
	case status == StatusCancelled:
		return ErrAlreadyCancelled
	case !start.After(now):
		return ErrAlreadyStarted
	default:
		return ErrInvalidTransition
	}
}

func joinColumns(cols []string) string {
	out := cols[0]
	for _, c := range cols[1:] {
		out += ", " + c
	}
	return out
}

func isConstraintConflict(err error) bool {
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

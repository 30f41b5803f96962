package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/interval"
)

// Schema creates the tables PgStore needs. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS appointments (
	id                      uuid PRIMARY KEY,
	appt_date               date        NOT NULL,
	start_minute            integer     NOT NULL,
	duration_minutes        integer     NOT NULL,
	name                    text        NOT NULL,
	email                   text        NOT NULL,
	phone                   text        NOT NULL,
	reason                  text        NOT NULL DEFAULT '',
	appointment_type        text        NOT NULL DEFAULT '',
	procedencia             text        NOT NULL DEFAULT '',
	status                  text        NOT NULL,
	created_at              timestamptz NOT NULL,
	completed_at            timestamptz,
	no_show_at              timestamptz,
	cancelled_at            timestamptz,
	rescheduled_at          timestamptz,
	patient_at              timestamptz,
	rescheduled_to_id       uuid REFERENCES appointments(id),
	original_appointment_id uuid REFERENCES appointments(id)
);
CREATE INDEX IF NOT EXISTS appointments_date_idx ON appointments (appt_date);
CREATE INDEX IF NOT EXISTS appointments_email_idx ON appointments (lower(email));

CREATE TABLE IF NOT EXISTS blocked_slots (
	id               uuid PRIMARY KEY,
	block_date       date        NOT NULL,
	start_minute     integer,
	duration_minutes integer,
	reason           text        NOT NULL DEFAULT '',
	blocked_at       timestamptz NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS blocked_slots_window_idx
	ON blocked_slots (block_date, COALESCE(start_minute, -1));

CREATE TABLE IF NOT EXISTS event_logs (
	id             bigserial PRIMARY KEY,
	event_type     text        NOT NULL,
	appointment_id uuid,
	payload        jsonb,
	created_at     timestamptz NOT NULL DEFAULT now()
);
`

const appointmentColumns = `id, appt_date, start_minute, duration_minutes, name, email, phone,
	reason, appointment_type, procedencia, status, created_at, completed_at, no_show_at,
	cancelled_at, rescheduled_at, patient_at, rescheduled_to_id, original_appointment_id`

const blockColumns = `id, block_date, start_minute, duration_minutes, reason, blocked_at`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgStore struct {
	pool *pgxpool.Pool // nil inside a transaction
	q    querier
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool, q: pool}
}

func (s *PgStore) Migrate(ctx context.Context) error {
	if _, err := s.q.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PgStore) Appointments() Ledger { return pgLedger{s.q} }

func (s *PgStore) Blackouts() Registry { return pgRegistry{s.q} }

func (s *PgStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	if s.pool == nil {
		return fn(s)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&PgStore{q: tx})
	})
}

// Record writes an audit entry to event_logs, so PgStore doubles as an Auditor.
func (s *PgStore) Record(ctx context.Context, entry AuditEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	var apptID *uuid.UUID
	if entry.AppointmentID != uuid.Nil {
		apptID = &entry.AppointmentID
	}

	_, err = s.q.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, entry.Event, apptID, payload, nullableTime(entry.At))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a        Appointment
		date     time.Time
		startMin int
	)

	err := row.Scan(
		&a.ID,
		&date,
		&startMin,
		&a.Duration,
		&a.Name,
		&a.Email,
		&a.Phone,
		&a.Reason,
		&a.AppointmentType,
		&a.Procedencia,
		&a.Status,
		&a.CreatedAt,
		&a.CompletedAt,
		&a.NoShowAt,
		&a.CancelledAt,
		&a.RescheduledAt,
		&a.PatientAt,
		&a.RescheduledToID,
		&a.OriginalAppointmentID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Date = interval.DateOf(date)
	a.Time = interval.Clock(startMin)
	return &a, nil
}

func scanBlock(row pgx.Row) (*BlockedSlot, error) {
	var (
		b        BlockedSlot
		date     time.Time
		startMin *int
	)

	err := row.Scan(&b.ID, &date, &startMin, &b.Duration, &b.Reason, &b.BlockedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBlockNotFound
		}
		return nil, err
	}

	b.Date = interval.DateOf(date)
	if startMin != nil {
		c := interval.Clock(*startMin)
		b.Time = &c
	}
	return &b, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]T, error) {
	defer rows.Close()

	var result []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// statusColumns maps a status to the column stamped when it is reached.
var statusColumns = map[Status]string{
	StatusCompleted:   "completed_at",
	StatusNoShow:      "no_show_at",
	StatusCancelled:   "cancelled_at",
	StatusRescheduled: "rescheduled_at",
	StatusPatient:     "patient_at",
}

type pgLedger struct{ q querier }

func (l pgLedger) list(ctx context.Context, where string, args ...any) ([]Appointment, error) {
	rows, err := l.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		`+where+`
		ORDER BY appt_date, start_minute, created_at
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query appointments: %w", err)
	}
	return collect(rows, scanAppointment)
}

func (l pgLedger) All(ctx context.Context) ([]Appointment, error) {
	return l.list(ctx, "")
}

func (l pgLedger) ByDate(ctx context.Context, date interval.Date) ([]Appointment, error) {
	return l.list(ctx, "WHERE appt_date = $1 AND status <> 'cancelled'", date.Time())
}

func (l pgLedger) ByEmail(ctx context.Context, email string) ([]Appointment, error) {
	return l.list(ctx, "WHERE lower(email) = lower($1)", email)
}

func (l pgLedger) ByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := l.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (l pgLedger) Append(ctx context.Context, a *Appointment) error {
	_, err := l.q.Exec(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`,
		a.ID, a.Date.Time(), a.Time.Minutes(), a.Duration, a.Name, a.Email, a.Phone,
		a.Reason, a.AppointmentType, a.Procedencia, a.Status, a.CreatedAt, a.CompletedAt, a.NoShowAt,
		a.CancelledAt, a.RescheduledAt, a.PatientAt, a.RescheduledToID, a.OriginalAppointmentID,
	)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (l pgLedger) ReplaceStatus(ctx context.Context, id uuid.UUID, status Status, at time.Time) (*Appointment, error) {
	set := "status = $2"
	args := []any{id, status}
	if col, ok := statusColumns[status]; ok {
		set += ", " + col + " = $3"
		args = append(args, at)
	}

	row := l.q.QueryRow(ctx, `
		UPDATE appointments
		SET `+set+`
		WHERE id = $1
		RETURNING `+appointmentColumns, args...)
	return scanAppointment(row)
}

func (l pgLedger) LinkReschedule(ctx context.Context, oldID, newID uuid.UUID, at time.Time) (*Appointment, error) {
	row := l.q.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'rescheduled',
		    rescheduled_at = $3,
		    rescheduled_to_id = $2
		WHERE id = $1
		RETURNING `+appointmentColumns, oldID, newID, at)
	return scanAppointment(row)
}

type pgRegistry struct{ q querier }

func (r pgRegistry) Block(ctx context.Context, b *BlockedSlot) error {
	var startMin *int
	if b.Time != nil {
		m := b.Time.Minutes()
		startMin = &m
	}

	_, err := r.q.Exec(ctx, `
		INSERT INTO blocked_slots (`+blockColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, b.ID, b.Date.Time(), startMin, b.Duration, b.Reason, b.BlockedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyBlocked
		}
		return fmt.Errorf("insert blocked slot: %w", err)
	}
	return nil
}

func (r pgRegistry) Unblock(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM blocked_slots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete blocked slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBlockNotFound
	}
	return nil
}

func (r pgRegistry) list(ctx context.Context, where string, args ...any) ([]BlockedSlot, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+blockColumns+`
		FROM blocked_slots
		`+where+`
		ORDER BY block_date, start_minute NULLS FIRST
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query blocked slots: %w", err)
	}
	return collect(rows, scanBlock)
}

func (r pgRegistry) ForDate(ctx context.Context, date interval.Date) ([]BlockedSlot, error) {
	return r.list(ctx, "WHERE block_date = $1", date.Time())
}

func (r pgRegistry) All(ctx context.Context) ([]BlockedSlot, error) {
	return r.list(ctx, "")
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/geocoder89/tickethub/internal/domain/attendee"
	"github.com/geocoder89/tickethub/internal/domain/registration"
	"github.com/geocoder89/tickethub/internal/observability"
)

const schema = `
CREATE TABLE IF NOT EXISTS attendees (
	id            UUID PRIMARY KEY,
	email         TEXT NOT NULL,
	name          TEXT NOT NULL,
	ticket_status TEXT NOT NULL DEFAULT '',
	email_status  TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL,
	UNIQUE (email, name)
)`

type AttendeesRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewAttendeesRepo(pool *pgxpool.Pool, prom *observability.Prom) *AttendeesRepo {
	return &AttendeesRepo{pool: pool, prom: prom}
}

func (r *AttendeesRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

// EnsureSchema creates the attendees table when it does not exist yet.
func (r *AttendeesRepo) EnsureSchema(ctx context.Context) error {
	return r.observe("attendees.ensure_schema", func() error {
		_, err := r.pool.Exec(ctx, schema)
		return err
	})
}

func (r *AttendeesRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Ensure returns the attendee registered under (email, name), creating it on first
// sight. Concurrent callers converge on the same id.
func (r *AttendeesRepo) Ensure(ctx context.Context, name, email string) (attendee.Attendee, error) {
	a := attendee.New(name, email)
	var out attendee.Attendee

	err := r.observe("attendees.ensure", func() error {
		// the no-op update makes RETURNING yield the existing row on conflict
		return r.pool.QueryRow(ctx, `
			INSERT INTO attendees (id, email, name, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $4)
			ON CONFLICT (email, name) DO UPDATE SET email = EXCLUDED.email
			RETURNING id, email, name, ticket_status, email_status, created_at, updated_at
		`, a.ID, a.Email, a.Name, a.CreatedAt).Scan(
			&out.ID,
			&out.Email,
			&out.Name,
			&out.TicketStatus,
			&out.EmailStatus,
			&out.CreatedAt,
			&out.UpdatedAt,
		)
	})
	if err != nil {
		return attendee.Attendee{}, err
	}
	return out, nil
}

func (r *AttendeesRepo) GetByID(ctx context.Context, id string) (attendee.Attendee, error) {
	var a attendee.Attendee

	err := r.observe("attendees.get_by_id", func() error {
		return r.pool.QueryRow(ctx, `
			SELECT id, email, name, ticket_status, email_status, created_at, updated_at
			FROM attendees
			WHERE id = $1
		`, id).Scan(
			&a.ID,
			&a.Email,
			&a.Name,
			&a.TicketStatus,
			&a.EmailStatus,
			&a.CreatedAt,
			&a.UpdatedAt,
		)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return attendee.Attendee{}, attendee.ErrNotFound
		}
		return attendee.Attendee{}, err
	}
	return a, nil
}

func (r *AttendeesRepo) UpdateStatus(ctx context.Context, id string, ticket, email registration.Status) error {
	var affected int64

	err := r.observe("attendees.update_status", func() error {
		tag, err := r.pool.Exec(ctx, `
			UPDATE attendees
			SET ticket_status = $2,
			    email_status = $3,
			    updated_at = NOW()
			WHERE id = $1
		`, id, ticket.String(), email.String())
		affected = tag.RowsAffected()
		return err
	})
	if err != nil {
		if isInvalidUUID(err) {
			return attendee.ErrNotFound
		}
		return err
	}
	if affected == 0 {
		return attendee.ErrNotFound
	}
	return nil
}

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/geocoder89/tickethub/internal/guard"
	"github.com/geocoder89/tickethub/internal/observability"
)

const deliveriesSchema = `
CREATE TABLE IF NOT EXISTS ticket_deliveries (
	delivery_key TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	claimed_at   TIMESTAMPTZ NOT NULL,
	sent_at      TIMESTAMPTZ,
	updated_at   TIMESTAMPTZ NOT NULL
)`

// DeliveriesRepo is a guard.Guard backed by the ticket_deliveries table. It is used
// when Postgres is configured but Redis is not.
type DeliveriesRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
	// claims older than this are treated as abandoned by a crashed sender
	claimTTL time.Duration
}

func NewDeliveriesRepo(pool *pgxpool.Pool, prom *observability.Prom, claimTTL time.Duration) *DeliveriesRepo {
	if claimTTL <= 0 {
		claimTTL = 10 * time.Minute
	}
	return &DeliveriesRepo{pool: pool, prom: prom, claimTTL: claimTTL}
}

func (r *DeliveriesRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *DeliveriesRepo) EnsureSchema(ctx context.Context) error {
	return r.observe("deliveries.ensure_schema", func() error {
		_, err := r.pool.Exec(ctx, deliveriesSchema)
		return err
	})
}

func (r *DeliveriesRepo) Begin(ctx context.Context, key string) error {
	// 1) first claim
	err := r.observe("deliveries.claim", func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO ticket_deliveries (delivery_key, status, claimed_at, updated_at)
			VALUES ($1, 'sending', NOW(), NOW())
		`, key)
		return err
	})
	if err == nil {
		return nil
	}
	if !IsUniqueViolation(err) {
		return err
	}

	// 2) row exists: take it over when released or abandoned. Only one caller can win
	// the conditional update.
	var affected int64
	err = r.observe("deliveries.reclaim", func() error {
		tag, err := r.pool.Exec(ctx, `
			UPDATE ticket_deliveries
			SET status = 'sending',
			    claimed_at = NOW(),
			    updated_at = NOW()
			WHERE delivery_key = $1
			  AND (status = 'released'
			       OR (status = 'sending' AND claimed_at < NOW() - make_interval(secs => $2)))
		`, key, r.claimTTL.Seconds())
		affected = tag.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	// 3) held by someone else, or finished
	var status string
	err = r.observe("deliveries.status", func() error {
		return r.pool.QueryRow(ctx, `
			SELECT status FROM ticket_deliveries WHERE delivery_key = $1
		`, key).Scan(&status)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// row vanished between statements; let the next pass retry
			return guard.ErrInProgress
		}
		return err
	}

	if status == "sent" {
		return guard.ErrAlreadySent
	}
	return guard.ErrInProgress
}

func (r *DeliveriesRepo) MarkSent(ctx context.Context, key string) error {
	return r.observe("deliveries.mark_sent", func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO ticket_deliveries (delivery_key, status, claimed_at, sent_at, updated_at)
			VALUES ($1, 'sent', NOW(), NOW(), NOW())
			ON CONFLICT (delivery_key) DO UPDATE
			SET status = 'sent',
			    sent_at = NOW(),
			    updated_at = NOW()
		`, key)
		return err
	})
}

func (r *DeliveriesRepo) Release(ctx context.Context, key string) error {
	return r.observe("deliveries.release", func() error {
		_, err := r.pool.Exec(ctx, `
			UPDATE ticket_deliveries
			SET status = 'released',
			    updated_at = NOW()
			WHERE delivery_key = $1 AND status = 'sending'
		`, key)
		return err
	})
}

// Package audit persists the booking attempt trail. Records carry ids and
// outcomes only, never patient details.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/medspa-booking-wizard/internal/wizard"
)

// Querier is the subset of pgxpool.Pool the repository uses.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository stores booking attempts in Postgres.
type Repository struct {
	db Querier
}

var _ wizard.AttemptRecorder = (*Repository)(nil)

func NewRepository(db Querier) *Repository {
	if db == nil {
		panic("audit: querier required")
	}
	return &Repository{db: db}
}

// RecordAttempt inserts one attempt.
func (r *Repository) RecordAttempt(ctx context.Context, a wizard.BookingAttempt) error {
	query := `
		INSERT INTO booking_attempts (session_id, location_id, provider_id, reason_id, slot_id, appt_date, outcome, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	at := a.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx, query,
		a.SessionID, a.LocationID, a.ProviderID, a.ReasonID, a.SlotID,
		nullableDate(a.ApptDate), a.Outcome, a.Message, at,
	)
	if err != nil {
		return fmt.Errorf("audit: record attempt: %w", err)
	}
	return nil
}

// ListBySession returns a session's attempts, newest first.
func (r *Repository) ListBySession(ctx context.Context, sessionID string, limit int) ([]wizard.BookingAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT session_id, location_id, provider_id, reason_id, slot_id, appt_date, outcome, message, created_at
		FROM booking_attempts
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: list attempts: %w", err)
	}
	defer rows.Close()
	var out []wizard.BookingAttempt
	for rows.Next() {
		var a wizard.BookingAttempt
		var apptDate sql.NullTime
		if err := rows.Scan(&a.SessionID, &a.LocationID, &a.ProviderID, &a.ReasonID, &a.SlotID, &apptDate, &a.Outcome, &a.Message, &a.At); err != nil {
			return nil, fmt.Errorf("audit: scan attempt: %w", err)
		}
		if apptDate.Valid {
			a.ApptDate = apptDate.Time
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// OutcomeCounts tallies attempts per outcome since a point in time.
func (r *Repository) OutcomeCounts(ctx context.Context, since time.Time) (map[string]int, error) {
	query := `
		SELECT outcome, COUNT(*)
		FROM booking_attempts
		WHERE created_at >= $1
		GROUP BY outcome
	`
	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("audit: outcome counts: %w", err)
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("audit: scan outcome count: %w", err)
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

func nullableDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

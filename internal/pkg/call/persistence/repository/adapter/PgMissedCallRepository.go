package adapter

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"messenger/internal/pkg/call"
)

type PgMissedCallRepository struct {
	pool *pgxpool.Pool
}

func NewPgMissedCallRepository(pool *pgxpool.Pool) *PgMissedCallRepository {
	return &PgMissedCallRepository{pool: pool}
}

func (r *PgMissedCallRepository) Record(ctx context.Context, rec call.MissedCall) error {
	if r == nil || r.pool == nil {
		return errors.New("PgMissedCallRepository: nil pool")
	}
	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO missed_calls (id, callee_id, caller_id, caller_name, is_video, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, rec.CalleeID, rec.CallerID, rec.CallerName, rec.IsVideo, rec.CreatedAt)
	return err
}

// Drain atomically removes and returns all pending records for calleeID,
// oldest first. The single statement keeps the clear-and-return all-or-nothing.
func (r *PgMissedCallRepository) Drain(ctx context.Context, calleeID string) ([]call.MissedCall, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgMissedCallRepository: nil pool")
	}
	rows, err := r.pool.Query(ctx, `
		WITH drained AS (
			DELETE FROM missed_calls
			WHERE callee_id = $1
			RETURNING id, callee_id, caller_id, caller_name, is_video, created_at
		)
		SELECT id, callee_id, caller_id, caller_name, is_video, created_at
		FROM drained
		ORDER BY created_at
	`, calleeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []call.MissedCall
	for rows.Next() {
		var rec call.MissedCall
		if err := rows.Scan(&rec.ID, &rec.CalleeID, &rec.CallerID, &rec.CallerName, &rec.IsVideo, &rec.CreatedAt); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return recs, nil
}

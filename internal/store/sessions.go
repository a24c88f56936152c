package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/interview-pilot/internal/session"
)

var _ session.CheckpointStore = (*Store)(nil)

// SaveCheckpoint upserts the checkpoint for a session
func (s *Store) SaveCheckpoint(ctx context.Context, cp session.Checkpoint) error {
	payload, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO interview_sessions (id, user_id, state, checkpoint, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			state = EXCLUDED.state,
			checkpoint = EXCLUDED.checkpoint,
			updated_at = EXCLUDED.updated_at`,
		cp.ID, cp.UserID, string(cp.State), payload, cp.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// GetCheckpoint retrieves a session checkpoint. Returns nil, nil when no
// row matches.
func (s *Store) GetCheckpoint(ctx context.Context, id uuid.UUID) (*session.Checkpoint, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT checkpoint FROM interview_sessions WHERE id = $1`,
		id,
	).Scan(&payload)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	var cp session.Checkpoint
	if err := json.Unmarshal(payload, &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return &cp, nil
}

// DeleteCheckpoint removes a session checkpoint. Deleting a checkpoint
// that does not exist is not an error.
func (s *Store) DeleteCheckpoint(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM interview_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// DeleteStaleCheckpoints removes checkpoints last touched before the
// cutoff and reports how many rows went away.
func (s *Store) DeleteStaleCheckpoints(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.pool.Exec(ctx,
		`DELETE FROM interview_sessions WHERE updated_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale checkpoints: %w", err)
	}
	return result.RowsAffected(), nil
}

// ListUserCheckpoints returns the checkpoints belonging to a user, most
// recently touched first.
func (s *Store) ListUserCheckpoints(ctx context.Context, userID uuid.UUID) ([]session.Checkpoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT checkpoint FROM interview_sessions
		 WHERE user_id = $1
		 ORDER BY updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var cps []session.Checkpoint
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		var cp session.Checkpoint
		if err := json.Unmarshal(payload, &cp); err != nil {
			return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
		}
		cps = append(cps, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read checkpoints: %w", err)
	}
	return cps, nil
}

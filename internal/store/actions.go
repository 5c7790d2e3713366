package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Action is a persisted pending mutation.
//
// Seq is the queue position (monotonic, assigned by the database).
// LocalRef is a stable client-side identifier usable before a server id
// exists. IdempotencyKey dedupes re-submissions of the same logical action.
type Action struct {
	Seq            int64
	LocalRef       string
	Kind           string
	Payload        []byte
	IdempotencyKey string
	Attempts       int
	LastError      string
	CreatedAt      time.Time
}

// ErrNotFound is returned when the requested action row does not exist.
var ErrNotFound = errors.New("action not found")

// UpsertAction persists an action before Enqueue returns to its caller.
//
// On an idempotency-key conflict the payload is replaced in place and the
// existing seq (queue position) is kept. Returns the stored row and
// whether a new row was inserted.
func (s *Store) UpsertAction(ctx context.Context, a Action) (Action, bool, error) {
	existing, err := s.actionByKey(ctx, a.IdempotencyKey)
	switch {
	case err == nil:
		// Dedupe: replace payload in place, keep seq, local_ref, attempts.
		_, err = s.db.ExecContext(ctx,
			`UPDATE actions SET payload = ? WHERE idempotency_key = ?`,
			string(a.Payload), a.IdempotencyKey)
		if err != nil {
			return Action{}, false, fmt.Errorf("upsert action: %w", err)
		}
		existing.Payload = a.Payload
		return existing, false, nil

	case errors.Is(err, ErrNotFound):
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO actions (local_ref, kind, payload, idempotency_key, attempts, last_error, created_at)
			VALUES (?, ?, ?, ?, 0, '', ?)
		`,
			a.LocalRef,
			a.Kind,
			string(a.Payload),
			a.IdempotencyKey,
			a.CreatedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return Action{}, false, fmt.Errorf("upsert action: %w", err)
		}
		stored, err := s.actionByKey(ctx, a.IdempotencyKey)
		if err != nil {
			return Action{}, false, err
		}
		return stored, true, nil

	default:
		return Action{}, false, err
	}
}

// actionByKey returns the pending action with the given idempotency key.
func (s *Store) actionByKey(ctx context.Context, key string) (Action, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, local_ref, kind, payload, idempotency_key, attempts, last_error, created_at
		FROM actions
		WHERE idempotency_key = ?
	`, key)
	return scanAction(row)
}

// NextAction returns the oldest pending action, or ErrNotFound when the
// queue is empty.
func (s *Store) NextAction(ctx context.Context) (Action, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, local_ref, kind, payload, idempotency_key, attempts, last_error, created_at
		FROM actions
		ORDER BY seq ASC
		LIMIT 1
	`)
	return scanAction(row)
}

// ListActions returns every pending action in queue order.
func (s *Store) ListActions(ctx context.Context) ([]Action, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, local_ref, kind, payload, idempotency_key, attempts, last_error, created_at
		FROM actions
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	var out []Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountActions returns the number of pending actions.
func (s *Store) CountActions(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM actions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count actions: %w", err)
	}
	return n, nil
}

// DeleteAction removes a pending action by seq.
func (s *Store) DeleteAction(ctx context.Context, seq int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM actions WHERE seq = ?`, seq)
	if err != nil {
		return fmt.Errorf("delete action %d: %w", seq, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete action %d: %w", seq, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordFailure increments the attempt counter and stores the last error.
// Returns the new attempt count.
func (s *Store) RecordFailure(ctx context.Context, seq int64, errMsg string) (int, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE actions SET attempts = attempts + 1, last_error = ? WHERE seq = ?
	`, errMsg, seq)
	if err != nil {
		return 0, fmt.Errorf("record failure for action %d: %w", seq, err)
	}

	var attempts int
	err = s.db.QueryRowContext(ctx, `SELECT attempts FROM actions WHERE seq = ?`, seq).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read attempts for action %d: %w", seq, err)
	}
	return attempts, nil
}

// MoveToDeadLetter atomically copies an action into dead_letters and
// removes it from the queue.
func (s *Store) MoveToDeadLetter(ctx context.Context, seq int64, failedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin dead-letter tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO dead_letters (seq, local_ref, kind, payload, idempotency_key, attempts, last_error, created_at, failed_at)
		SELECT seq, local_ref, kind, payload, idempotency_key, attempts, last_error, created_at, ?
		FROM actions WHERE seq = ?
	`, failedAt.UTC().Format(time.RFC3339Nano), seq)
	if err != nil {
		return fmt.Errorf("dead-letter action %d: %w", seq, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("dead-letter action %d: %w", seq, err)
	}
	if n == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM actions WHERE seq = ?`, seq); err != nil {
		return fmt.Errorf("dead-letter delete action %d: %w", seq, err)
	}

	return tx.Commit()
}

// ListDeadLetters returns dead-lettered actions in original queue order.
func (s *Store) ListDeadLetters(ctx context.Context) ([]Action, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, local_ref, kind, payload, idempotency_key, attempts, last_error, created_at
		FROM dead_letters
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var out []Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// OldestActionOfKinds returns the oldest pending action whose kind is in
// kinds, or ErrNotFound. Used by the queue's saturation policy to pick a
// displacement victim.
func (s *Store) OldestActionOfKinds(ctx context.Context, kinds ...string) (Action, error) {
	if len(kinds) == 0 {
		return Action{}, ErrNotFound
	}

	placeholders := strings.Repeat("?,", len(kinds))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(kinds))
	for i, k := range kinds {
		args[i] = k
	}

	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT seq, local_ref, kind, payload, idempotency_key, attempts, last_error, created_at
		FROM actions
		WHERE kind IN (%s)
		ORDER BY seq ASC
		LIMIT 1
	`, placeholders), args...)
	return scanAction(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAction(row rowScanner) (Action, error) {
	var a Action
	var payload, createdAt string
	err := row.Scan(&a.Seq, &a.LocalRef, &a.Kind, &payload, &a.IdempotencyKey, &a.Attempts, &a.LastError, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Action{}, ErrNotFound
	}
	if err != nil {
		return Action{}, fmt.Errorf("scan action: %w", err)
	}

	a.Payload = []byte(payload)
	a.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Action{}, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	return a, nil
}

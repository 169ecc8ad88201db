// Package repository persists controller session history.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/opencontroller/backend/internal/model"
)

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 50

// SessionRepository provides data access for controller sessions.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const selectColumns = `id, client_id, slot, remote_addr, status, driver_ok, inputs, connected_at, updated_at, disconnected_at`

// Create inserts a new session record.
func (r *SessionRepository) Create(ctx context.Context, rec *model.SessionRecord) error {
	query := `
		INSERT INTO controller_sessions (id, client_id, slot, remote_addr, status, driver_ok, inputs, connected_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.ClientID,
		int(rec.Slot),
		rec.RemoteAddr,
		rec.Status,
		rec.DriverOK,
		rec.Inputs,
		rec.ConnectedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.SessionRecord, error) {
	rec := &model.SessionRecord{}
	var slot int
	var remoteAddr sql.NullString
	var disconnectedAt sql.NullTime

	err := row.Scan(
		&rec.ID,
		&rec.ClientID,
		&slot,
		&remoteAddr,
		&rec.Status,
		&rec.DriverOK,
		&rec.Inputs,
		&rec.ConnectedAt,
		&rec.UpdatedAt,
		&disconnectedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Slot = model.SlotID(slot)
	if remoteAddr.Valid {
		rec.RemoteAddr = remoteAddr.String
	}
	if disconnectedAt.Valid {
		t := disconnectedAt.Time
		rec.DisconnectedAt = &t
	}
	return rec, nil
}

// GetByID retrieves a session record by its ID.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*model.SessionRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM controller_sessions WHERE id = ?`

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, model.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return rec, nil
}

// List returns the most recent session records, newest first.
func (r *SessionRepository) List(ctx context.Context, limit int) ([]*model.SessionRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT ` + selectColumns + ` FROM controller_sessions ORDER BY connected_at DESC, rowid DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var records []*model.SessionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return records, nil
}

// UpdateSlot records a reassignment.
func (r *SessionRepository) UpdateSlot(ctx context.Context, id string, slot model.SlotID, driverOK bool) error {
	query := `
		UPDATE controller_sessions
		SET slot = ?, driver_ok = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, int(slot), driverOK, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update session slot: %w", err)
	}
	return requireRow(result)
}

// MarkDisconnected closes a session record and stores its input count.
func (r *SessionRepository) MarkDisconnected(ctx context.Context, id string, inputs int64) error {
	query := `
		UPDATE controller_sessions
		SET status = ?, inputs = ?, updated_at = ?, disconnected_at = ?
		WHERE id = ?
	`

	now := time.Now()
	result, err := r.db.ExecContext(ctx, query, model.SessionStatusDisconnected, inputs, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to mark session disconnected: %w", err)
	}
	return requireRow(result)
}

// CloseStale marks every record still connected as disconnected. It is run at
// startup since no client survives a restart.
func (r *SessionRepository) CloseStale(ctx context.Context) (int64, error) {
	query := `
		UPDATE controller_sessions
		SET status = ?, updated_at = ?, disconnected_at = ?
		WHERE status = ?
	`

	now := time.Now()
	result, err := r.db.ExecContext(ctx, query, model.SessionStatusDisconnected, now, now, model.SessionStatusConnected)
	if err != nil {
		return 0, fmt.Errorf("failed to close stale sessions: %w", err)
	}
	return result.RowsAffected()
}

// CountActive returns the number of connected session records.
func (r *SessionRepository) CountActive(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM controller_sessions WHERE status = ?`

	var count int
	err := r.db.QueryRowContext(ctx, query, model.SessionStatusConnected).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active sessions: %w", err)
	}

	return count, nil
}

func requireRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ErrSessionNotFound
	}
	return nil
}
